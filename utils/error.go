package utils

import (
	"errors"
)

var (
	ErrInvalidKey      = errors.New("key not supported by appendstore")
	ErrUnknownService  = errors.New("unknown service name")
	ErrMissingEndpoint = errors.New("endpoint is required")
)
