package appendstore

import (
	"io"
	"os"

	"github.com/glin-gogogo/go-net-appendstore/datastore"
)

// Position is a byte offset that may be unknown. See datastore.Position.
type Position = datastore.Position

// At returns a known position.
func At(offset int64) Position {
	return datastore.At(offset)
}

// UnknownPosition is the position of a request that has none set, and the
// next position of a result whose backend did not report one.
var UnknownPosition = datastore.UnknownPosition

// ObjectMeta is applied only by the append that creates the object.
type ObjectMeta struct {
	ContentType  string
	UserMetadata map[string]string
}

func (m *ObjectMeta) clone() *ObjectMeta {
	if m == nil {
		return nil
	}
	out := &ObjectMeta{ContentType: m.ContentType}
	if m.UserMetadata != nil {
		out.UserMetadata = make(map[string]string, len(m.UserMetadata))
		for k, v := range m.UserMetadata {
			out.UserMetadata[k] = v
		}
	}
	return out
}

// AppendRequest describes one append. It is a value: the With* methods
// return modified copies and the source is not read until dispatch.
type AppendRequest struct {
	bucketName    string
	key           string
	source        io.Reader
	filePath      string
	contentLength int64
	position      Position
	meta          *ObjectMeta
}

// NewAppendRequest builds a request over a stream of unknown length. The
// position must still be set before dispatch.
func NewAppendRequest(bucketName, key string, source io.Reader, meta *ObjectMeta) AppendRequest {
	return AppendRequest{
		bucketName:    bucketName,
		key:           key,
		source:        source,
		contentLength: -1,
		meta:          meta.clone(),
	}
}

// NewAppendRequestFromFile builds a request whose bytes come from a file.
// The file is opened at dispatch.
func NewAppendRequestFromFile(bucketName, key, filePath string) AppendRequest {
	return AppendRequest{
		bucketName:    bucketName,
		key:           key,
		filePath:      filePath,
		contentLength: -1,
	}
}

func (r AppendRequest) WithPosition(offset int64) AppendRequest {
	r.position = At(offset)
	return r
}

// WithNextPosition sets the position reported by a previous result. An
// unknown position leaves the request without one.
func (r AppendRequest) WithNextPosition(p Position) AppendRequest {
	r.position = p
	return r
}

func (r AppendRequest) WithContentLength(n int64) AppendRequest {
	r.contentLength = n
	return r
}

func (r AppendRequest) WithMetadata(meta *ObjectMeta) AppendRequest {
	r.meta = meta.clone()
	return r
}

func (r AppendRequest) BucketName() string { return r.bucketName }
func (r AppendRequest) Key() string        { return r.key }
func (r AppendRequest) Position() Position { return r.position }

// Validate checks the request without touching the network or the source.
func (r AppendRequest) Validate() error {
	if r.bucketName == "" {
		return missingArgument("bucket name")
	}
	if r.key == "" {
		return missingArgument("key")
	}
	if r.source == nil && r.filePath == "" {
		return missingArgument("source")
	}

	pos, ok := r.position.Get()
	if !ok {
		return missingArgument("position")
	}
	if pos < 0 {
		return newError(ErrCodeMissingArgument, "position must be non-negative")
	}
	return nil
}

// open returns the body to send and its length, -1 when unknown.
func (r AppendRequest) open() (io.Reader, int64, func() error, error) {
	if r.source != nil {
		return r.source, r.contentLength, func() error { return nil }, nil
	}

	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, 0, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, err
	}
	return f, info.Size(), f.Close, nil
}

// countingReader counts the bytes the backend consumed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
