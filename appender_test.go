package appendstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/glin-gogogo/go-net-appendstore/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAppenderWrites(t *testing.T) {
	ctx := context.Background()
	c := newMemoryClient(t)

	a, err := c.NewAppender(ctx, bucketName, "log/app.log", &ObjectMeta{ContentType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.Position())

	for i := 0; i < 3; i++ {
		_, err := fmt.Fprintf(a, "line %d\n", i)
		require.NoError(t, err)
	}
	n, err := a.ReadFrom(strings.NewReader("tail\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	o, err := c.GetObject(ctx, bucketName, "log/app.log")
	require.NoError(t, err)
	defer o.Body.Close()
	content, err := io.ReadAll(o.Body)
	require.NoError(t, err)
	assert.Equal(t, "line 0\nline 1\nline 2\ntail\n", string(content))
	assert.Equal(t, int64(len(content)), a.Position())
	assert.Equal(t, "text/plain", o.ContentType)

	resumed, err := c.NewAppender(ctx, bucketName, "log/app.log", nil)
	require.NoError(t, err)
	assert.Equal(t, a.Position(), resumed.Position())
}

func TestAppenderOnNormalObject(t *testing.T) {
	ctx := context.Background()
	c := newMemoryClient(t)

	_, err := c.PutObject(ctx, bucketName, "plain", strings.NewReader("abc"), 3, nil)
	require.NoError(t, err)

	_, err = c.NewAppender(ctx, bucketName, "plain", nil)
	assert.True(t, errors.Is(err, ErrObjectNotAppendable))
}

func TestAppenderLostRace(t *testing.T) {
	ctx := context.Background()
	c := newMemoryClient(t)

	a, err := c.NewAppender(ctx, bucketName, "contended", nil)
	require.NoError(t, err)
	b, err := c.NewAppender(ctx, bucketName, "contended", nil)
	require.NoError(t, err)

	_, err = a.Write([]byte("first"))
	require.NoError(t, err)

	_, err = b.Write([]byte("second"))
	assert.True(t, errors.Is(err, ErrPositionNotEqualToLength))
	assert.Equal(t, int64(0), b.Position())

	require.NoError(t, b.Refresh(ctx))
	assert.Equal(t, int64(5), b.Position())
	_, err = b.Write([]byte("second"))
	assert.NoError(t, err)
}

func TestAppenderConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	c := newMemoryClient(t)

	a, err := c.NewAppender(ctx, bucketName, "shared", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Write([]byte("0123456789"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	o, err := c.GetObjectMetadata(ctx, bucketName, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(80), o.Length)
}

func TestAppenderUnknownNextPosition(t *testing.T) {
	backend := new(MockBackend)
	backend.On("AppendObject", mock.Anything, mock.MatchedBy(func(in *datastore.AppendObjectInput) bool {
		return in.Position == 0
	})).Return(&datastore.AppendObjectOutput{}, nil).Once().Run(drainBody)
	backend.On("AppendObject", mock.Anything, mock.MatchedBy(func(in *datastore.AppendObjectInput) bool {
		return in.Position == 4
	})).Return(&datastore.AppendObjectOutput{NextPosition: datastore.At(6)}, nil).Once().Run(drainBody)

	a := &Appender{c: NewClient(backend), ctx: context.Background(), bucket: bucketName, key: "k"}
	_, err := a.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), a.Position())

	_, err = a.Write([]byte("ef"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), a.Position())

	backend.AssertExpectations(t)
}

func drainBody(args mock.Arguments) {
	in := args.Get(1).(*datastore.AppendObjectInput)
	_, _ = io.Copy(io.Discard, in.Body)
}

func TestAppenderDefaultBucket(t *testing.T) {
	ctx := context.Background()
	c := newMemoryClient(t)

	a, err := c.NewAppender(ctx, "", "default-bucket.log", nil)
	require.NoError(t, err)
	_, err = a.Write([]byte("one"))
	require.NoError(t, err)
	_, err = a.Write([]byte("two"))
	require.NoError(t, err)

	o, err := c.GetObjectMetadata(ctx, bucketName, "default-bucket.log")
	require.NoError(t, err)
	assert.Equal(t, int64(6), o.Length)
}
