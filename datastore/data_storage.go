package datastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ipfs/go-datastore"
)

// Error codes reported by backends. They match the codes used on the wire by
// services that implement positional appends.
const (
	CodeMissingArgument          = "MissingArgument"
	CodeObjectNotAppendable      = "ObjectNotAppendable"
	CodePositionNotEqualToLength = "PositionNotEqualToLength"
	CodeNoSuchKey                = "NoSuchKey"
	CodeNoSuchBucket             = "NoSuchBucket"
)

const (
	MsgMissingArgument          = "Missing Some Required Arguments."
	MsgObjectNotAppendable      = "The object is not appendable"
	MsgPositionNotEqualToLength = "Position is not equal to file length"
)

// dataStorageBlock stores small records, such as the key layout descriptor,
// under the root directory.
type dataStorageBlock interface {
	Put(ctx context.Context, k datastore.Key, value []byte) error
	Get(ctx context.Context, k datastore.Key) ([]byte, error)
	Close() error
}

type DataStorageObject interface {
	GetObjectMetadata(ctx context.Context, bucket, objectKey string) (*ObjectMetadata, bool, error)
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)
	PutObject(ctx context.Context, input *PutObjectInput) (*PutObjectOutput, error)
	AppendObject(ctx context.Context, input *AppendObjectInput) (*AppendObjectOutput, error)
	DeleteObject(ctx context.Context, bucket, objectKey string) error
	ListObjectMetadatas(ctx context.Context, bucket, prefix, marker string, limit int64) ([]*ObjectMetadata, error)
	IsObjectExist(ctx context.Context, bucket, objectKey string) (bool, error)
}

type DataStorage interface {
	dataStorageBlock
	DataStorageObject

	RootDir() string
	DefaultBucket() string
}

// ServiceError is a structured failure reported by a backend.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *ServiceError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (status %d, request id %s)", e.Code, e.Message, e.StatusCode, e.RequestID)
}

// AsServiceError extracts a ServiceError from err's chain.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func ErrNotFound(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := AsServiceError(err); ok {
		return se.Code == CodeNoSuchKey || se.StatusCode == 404
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "404") ||
		strings.Contains(errMsg, "not exists") ||
		strings.Contains(errMsg, "not exist") ||
		strings.Contains(errMsg, "nosuchkey")
}

func bucketOr(bucket, fallback string) string {
	if bucket == "" {
		return fallback
	}
	return bucket
}
