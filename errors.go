package appendstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/glin-gogogo/go-net-appendstore/datastore"
)

var (
	ErrShardingFileMissing = fmt.Errorf("%s file not found in datastore", ShardingFn)
	ErrObjectNotFound      = errors.New("object not found")
)

// ErrorCode is the closed set of append failures a caller must branch on.
type ErrorCode int

const (
	ErrCodeMissingArgument ErrorCode = iota + 1
	ErrCodeObjectNotAppendable
	ErrCodePositionNotEqualToLength
)

// String returns the stable identifier used on the wire.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeMissingArgument:
		return datastore.CodeMissingArgument
	case ErrCodeObjectNotAppendable:
		return datastore.CodeObjectNotAppendable
	case ErrCodePositionNotEqualToLength:
		return datastore.CodePositionNotEqualToLength
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// MessagePrefix is the fixed text every message of this kind starts with.
func (c ErrorCode) MessagePrefix() string {
	switch c {
	case ErrCodeMissingArgument:
		return datastore.MsgMissingArgument
	case ErrCodeObjectNotAppendable:
		return datastore.MsgObjectNotAppendable
	case ErrCodePositionNotEqualToLength:
		return datastore.MsgPositionNotEqualToLength
	default:
		return ""
	}
}

// Error is a typed append failure. Backend failures keep the backend's
// message and request id.
type Error struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	RequestID  string
}

var (
	ErrMissingArgument          = &Error{Code: ErrCodeMissingArgument}
	ErrObjectNotAppendable      = &Error{Code: ErrCodeObjectNotAppendable}
	ErrPositionNotEqualToLength = &Error{Code: ErrCodePositionNotEqualToLength}
)

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.MessagePrefix()
	}
	return e.Message
}

// Is matches any *Error with the same code, so the package sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t != nil && t.Code == e.Code
}

// CodeOf returns the ErrorCode carried by err, if any.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

func newError(code ErrorCode, detail string) *Error {
	msg := code.MessagePrefix()
	if detail != "" {
		msg += " " + detail
	}
	return &Error{Code: code, Message: msg}
}

func missingArgument(name string) *Error {
	return newError(ErrCodeMissingArgument, name+" is required")
}

// fromServiceError maps a backend error onto the taxonomy. ok is false for
// codes outside it.
func fromServiceError(se *datastore.ServiceError) (*Error, bool) {
	var code ErrorCode
	switch se.Code {
	case datastore.CodeMissingArgument:
		code = ErrCodeMissingArgument
	case datastore.CodeObjectNotAppendable:
		code = ErrCodeObjectNotAppendable
	case datastore.CodePositionNotEqualToLength:
		code = ErrCodePositionNotEqualToLength
	default:
		return nil, false
	}

	msg := se.Message
	if !strings.HasPrefix(msg, code.MessagePrefix()) {
		msg = strings.TrimSpace(code.MessagePrefix() + " " + msg)
	}

	return &Error{
		Code:       code,
		Message:    msg,
		StatusCode: se.StatusCode,
		RequestID:  se.RequestID,
	}, true
}

func translateError(err error, op, key string) error {
	if se, ok := datastore.AsServiceError(err); ok {
		if e, ok := fromServiceError(se); ok {
			return e
		}
	}
	return fmt.Errorf("appendstore: %s %q: %w", op, key, err)
}
