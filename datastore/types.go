package datastore

import (
	"fmt"
	"io"
	"time"
)

// ObjectType classifies how an object was created. It is fixed at creation.
type ObjectType int

const (
	ObjectTypeNormal ObjectType = iota
	ObjectTypeAppendable
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTypeAppendable:
		return "Appendable"
	default:
		return "Normal"
	}
}

// ParseObjectType maps a backend type marker to an ObjectType. Anything that
// is not explicitly appendable is treated as Normal.
func ParseObjectType(s string) ObjectType {
	switch s {
	case "Appendable", "appendable", "APPENDABLE":
		return ObjectTypeAppendable
	default:
		return ObjectTypeNormal
	}
}

// Position is a byte offset that may be unknown. The zero value is unknown,
// which is distinct from a known offset of 0.
type Position struct {
	offset int64
	known  bool
}

// At returns a known position.
func At(offset int64) Position {
	return Position{offset: offset, known: true}
}

// UnknownPosition is returned when a backend declines to report an offset.
var UnknownPosition = Position{}

// Get returns the offset and whether it is known.
func (p Position) Get() (int64, bool) {
	return p.offset, p.known
}

func (p Position) Known() bool {
	return p.known
}

func (p Position) String() string {
	if !p.known {
		return "unknown"
	}
	return fmt.Sprintf("%d", p.offset)
}

type ObjectMetadata struct {
	Key                string
	ContentDisposition string
	ContentEncoding    string
	ContentLanguage    string
	ContentLength      int64
	ContentType        string
	ETag               string
	ObjectType         ObjectType
	NextAppendPosition Position
	UserMetadata       map[string]string
	LastModified       time.Time
}

type ObjectOperationInput struct {
	Bucket       string
	Key          string
	ContentType  string
	UserMetadata map[string]string
}

type PutObjectInput struct {
	ObjectOperationInput
	Body          io.Reader
	ContentLength int64
}

type PutObjectOutput struct {
	ETag      string
	RequestID string
}

// AppendObjectInput carries one positional append. ContentLength is -1 when
// the body length is not known in advance.
type AppendObjectInput struct {
	ObjectOperationInput
	Body          io.Reader
	ContentLength int64
	Position      int64
}

type AppendObjectOutput struct {
	NextPosition Position
	ETag         string
	CRC64        uint64
	HasCRC64     bool
	RequestID    string
}
