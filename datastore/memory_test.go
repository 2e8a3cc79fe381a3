package datastore

import (
	"bytes"
	"context"
	"hash/crc64"
	"io"
	"sync"
	"testing"

	ds "github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chunkLength = 128 * 1024

func newTestMemory(t *testing.T) *Memory {
	opt := &WithStorageOption{}
	store, err := NewMemory(opt.WithBucket("test-bucket"), opt.WithRootDirectory("blocks"))
	require.NoError(t, err)
	return store.(*Memory)
}

func fixedChunk(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func appendInput(key string, data []byte, pos int64) *AppendObjectInput {
	return &AppendObjectInput{
		ObjectOperationInput: ObjectOperationInput{Key: key},
		Body:                 bytes.NewReader(data),
		ContentLength:        int64(len(data)),
		Position:             pos,
	}
}

func TestMemoryAppendObject(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	first := fixedChunk(chunkLength, 'a')
	out, err := m.AppendObject(ctx, appendInput("normal-append-object", first, 0))
	require.NoError(t, err)
	next, known := out.NextPosition.Get()
	require.True(t, known)
	assert.Equal(t, int64(chunkLength), next)
	assert.True(t, out.HasCRC64)
	assert.NotEmpty(t, out.RequestID)

	second := fixedChunk(chunkLength, 'b')
	out, err = m.AppendObject(ctx, appendInput("normal-append-object", second, next))
	require.NoError(t, err)
	next, _ = out.NextPosition.Get()
	assert.Equal(t, int64(2*chunkLength), next)

	whole := append(append([]byte{}, first...), second...)
	assert.Equal(t, crc64.Checksum(whole, crc64.MakeTable(crc64.ECMA)), out.CRC64)

	meta, exist, err := m.GetObjectMetadata(ctx, "", "normal-append-object")
	require.NoError(t, err)
	require.True(t, exist)
	assert.Equal(t, ObjectTypeAppendable, meta.ObjectType)
	assert.Equal(t, int64(2*chunkLength), meta.ContentLength)

	body, err := m.GetObject(ctx, "", "normal-append-object")
	require.NoError(t, err)
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, whole, got)
}

func TestMemoryAppendExistingNormalObject(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	data := fixedChunk(chunkLength, 'n')
	_, err := m.PutObject(ctx, &PutObjectInput{
		ObjectOperationInput: ObjectOperationInput{Key: "append-existing-normal-object"},
		Body:                 bytes.NewReader(data),
		ContentLength:        int64(len(data)),
	})
	require.NoError(t, err)

	_, err = m.AppendObject(ctx, appendInput("append-existing-normal-object", data, chunkLength))
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, CodeObjectNotAppendable, se.Code)
	assert.NotEmpty(t, se.RequestID)

	meta, _, err := m.GetObjectMetadata(ctx, "", "append-existing-normal-object")
	require.NoError(t, err)
	assert.Equal(t, int64(chunkLength), meta.ContentLength)
	assert.False(t, meta.NextAppendPosition.Known())
}

func TestMemoryAppendAtIllegalPosition(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	data := fixedChunk(chunkLength, 'x')
	_, err := m.AppendObject(ctx, appendInput("append-object-at-illegal-position", data, 0))
	require.NoError(t, err)

	_, err = m.AppendObject(ctx, appendInput("append-object-at-illegal-position", data, chunkLength-1))
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, CodePositionNotEqualToLength, se.Code)

	meta, _, err := m.GetObjectMetadata(ctx, "", "append-object-at-illegal-position")
	require.NoError(t, err)
	assert.Equal(t, int64(chunkLength), meta.ContentLength)
}

func TestMemoryShortBodyWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	in := appendInput("short-body", []byte("abc"), 0)
	in.ContentLength = 10
	_, err := m.AppendObject(ctx, in)
	require.Error(t, err)

	exist, err := m.IsObjectExist(ctx, "", "short-body")
	require.NoError(t, err)
	assert.False(t, exist)
}

func TestMemoryFirstAppendMetadata(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	in := appendInput("meta", []byte("one"), 0)
	in.ContentType = "text/plain"
	in.UserMetadata = map[string]string{"owner": "first"}
	_, err := m.AppendObject(ctx, in)
	require.NoError(t, err)

	in = appendInput("meta", []byte("two"), 3)
	in.ContentType = "application/json"
	in.UserMetadata = map[string]string{"owner": "second"}
	_, err = m.AppendObject(ctx, in)
	require.NoError(t, err)

	meta, _, err := m.GetObjectMetadata(ctx, "", "meta")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, "first", meta.UserMetadata["owner"])
}

func TestMemoryConcurrentAppendersSamePosition(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := m.AppendObject(ctx, appendInput("race", fixedChunk(64, byte('a'+i)), 0))

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if se, ok := AsServiceError(err); ok && se.Code == CodePositionNotEqualToLength {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)

	meta, _, err := m.GetObjectMetadata(ctx, "", "race")
	require.NoError(t, err)
	assert.Equal(t, int64(64), meta.ContentLength)
}

func TestMemoryBlockOperations(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	require.NoError(t, m.Put(ctx, ds.NewKey("SHARDING"), []byte("layout")))

	val, err := m.Get(ctx, ds.NewKey("SHARDING"))
	require.NoError(t, err)
	assert.Equal(t, []byte("layout"), val)

	exist, err := m.IsObjectExist(ctx, "", "blocks/SHARDING")
	require.NoError(t, err)
	assert.True(t, exist)

	_, err = m.Get(ctx, ds.NewKey("missing"))
	assert.ErrorIs(t, err, ds.ErrNotFound)
}

func TestMemoryListObjectMetadatas(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	for _, k := range []string{"logs/a", "logs/b", "logs/c", "other"} {
		_, err := m.AppendObject(ctx, appendInput(k, []byte(k), 0))
		require.NoError(t, err)
	}

	metas, err := m.ListObjectMetadatas(ctx, "", "logs/", "logs/a", 10)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "logs/b", metas[0].Key)
	assert.Equal(t, "logs/c", metas[1].Key)

	metas, err = m.ListObjectMetadatas(ctx, "", "logs/", "", 1)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "logs/a", metas[0].Key)
}
