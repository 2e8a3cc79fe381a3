package datastore

import (
	"fmt"
	"net/http"
)

// ObjectState is what the append gates need to know about the target object.
type ObjectState struct {
	Exists bool
	Type   ObjectType
	Length int64
}

// CheckAppend runs the type gate and then the position gate. An absent object
// is created as appendable with length 0, so the first append must be at 0.
// Nothing may be written when CheckAppend fails.
func CheckAppend(state ObjectState, position int64) error {
	if state.Exists && state.Type != ObjectTypeAppendable {
		return &ServiceError{
			StatusCode: http.StatusConflict,
			Code:       CodeObjectNotAppendable,
			Message:    MsgObjectNotAppendable + ".",
		}
	}

	var length int64
	if state.Exists {
		length = state.Length
	}

	if position != length {
		return &ServiceError{
			StatusCode: http.StatusConflict,
			Code:       CodePositionNotEqualToLength,
			Message:    fmt.Sprintf("%s. position=%d, length=%d", MsgPositionNotEqualToLength, position, length),
		}
	}

	return nil
}

func missingArgument(name string) error {
	return &ServiceError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeMissingArgument,
		Message:    fmt.Sprintf("%s %s is required", MsgMissingArgument, name),
	}
}

func noSuchKey(bucket, key string) error {
	return &ServiceError{
		StatusCode: http.StatusNotFound,
		Code:       CodeNoSuchKey,
		Message:    fmt.Sprintf("The specified key does not exist: %s/%s", bucket, key),
	}
}
