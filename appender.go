package appendstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// Appender appends to one key in order, always starting where the last
// acknowledged append ended. It is safe for concurrent use; calls are
// serialized. A lost race surfaces as ErrPositionNotEqualToLength and is not
// retried: call Refresh to pick up the current length first.
type Appender struct {
	c      *Client
	ctx    context.Context
	bucket string
	key    string
	meta   *ObjectMeta

	mu   sync.Mutex
	next int64
}

// NewAppender positions a new Appender at the end of the object, or at 0 if
// there is no object yet. An empty bucket means the default bucket. ctx is
// used by Write.
func (c *Client) NewAppender(ctx context.Context, bucket, key string, meta *ObjectMeta) (*Appender, error) {
	a := &Appender{
		c:      c,
		ctx:    ctx,
		bucket: c.bucket(bucket),
		key:    key,
		meta:   meta.clone(),
	}
	if err := a.Refresh(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Refresh re-reads the object's length.
func (a *Appender) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	obj, err := a.c.GetObjectMetadata(ctx, a.bucket, a.key)
	switch {
	case errors.Is(err, ErrObjectNotFound):
		a.next = 0
		return nil
	case err != nil:
		return err
	case obj.Type != Appendable:
		return newError(ErrCodeObjectNotAppendable, "key "+a.key+" holds a normal object")
	}

	if next, ok := obj.NextPosition.Get(); ok {
		a.next = next
	} else {
		a.next = obj.Length
	}
	return nil
}

// Position is where the next append will start.
func (a *Appender) Position() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// Append sends r at the current position. length may be -1 when unknown.
func (a *Appender) Append(ctx context.Context, r io.Reader, length int64) (*AppendResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	req := NewAppendRequest(a.bucket, a.key, r, a.meta).
		WithContentLength(length).
		WithPosition(a.next)

	res, err := a.c.AppendObject(ctx, req)
	if err != nil {
		return nil, err
	}

	if next, ok := res.NextPosition.Get(); ok {
		a.next = next
	} else {
		// Accepted at a.next, so the object now ends after our bytes.
		a.next += res.BytesWritten
	}
	return res, nil
}

func (a *Appender) Write(p []byte) (int, error) {
	if _, err := a.Append(a.ctx, bytes.NewReader(p), int64(len(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadFrom appends everything in r as a single append.
func (a *Appender) ReadFrom(r io.Reader) (int64, error) {
	res, err := a.Append(a.ctx, r, -1)
	if err != nil {
		return 0, err
	}
	return res.BytesWritten, nil
}
