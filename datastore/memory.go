package datastore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash/crc64"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glin-gogogo/go-net-appendstore/utils"
	"github.com/google/uuid"
	ds "github.com/ipfs/go-datastore"
)

var crcTable = crc64.MakeTable(crc64.ECMA)

type memObject struct {
	typ         ObjectType
	content     []byte
	contentType string
	userMeta    map[string]string
	etag        string
	modified    time.Time
}

func (o *memObject) metadata(key string) *ObjectMetadata {
	meta := &ObjectMetadata{
		Key:           key,
		ContentLength: int64(len(o.content)),
		ContentType:   o.contentType,
		ETag:          o.etag,
		ObjectType:    o.typ,
		UserMetadata:  copyMeta(o.userMeta),
		LastModified:  o.modified,
	}
	if o.typ == ObjectTypeAppendable {
		meta.NextAppendPosition = At(int64(len(o.content)))
	}
	return meta
}

// Memory keeps objects in process memory. Every mutation holds one lock, so
// appends to the same key are linearized and exactly one writer can advance a
// given length.
type Memory struct {
	utils.DataStoreConfig

	mu      sync.Mutex
	buckets map[string]map[string]*memObject
}

func NewMemory(opts ...utils.WithOption) (DataStorage, error) {
	dsConfig, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Memory{
		DataStoreConfig: *dsConfig,
		buckets:         make(map[string]map[string]*memObject),
	}, nil
}

func (m *Memory) RootDir() string {
	return m.RootDirectory
}

func (m *Memory) DefaultBucket() string {
	return m.Bucket
}

func (m *Memory) dsPath(p string) string {
	return path.Join(m.RootDirectory, p)
}

// objects must be called with m.mu held.
func (m *Memory) objects(bucket string) map[string]*memObject {
	objs, ok := m.buckets[bucket]
	if !ok {
		objs = make(map[string]*memObject)
		m.buckets[bucket] = objs
	}
	return objs
}

func (m *Memory) lookup(bucket, key string) *memObject {
	objs, ok := m.buckets[bucket]
	if !ok {
		return nil
	}
	return objs[key]
}

func (m *Memory) AppendObject(_ context.Context, input *AppendObjectInput) (*AppendObjectOutput, error) {
	if input == nil || input.Key == "" {
		return nil, withRequestID(missingArgument("key"))
	}
	if input.Body == nil {
		return nil, withRequestID(missingArgument("body"))
	}
	bucket := bucketOr(input.Bucket, m.Bucket)

	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.lookup(bucket, input.Key)
	state := ObjectState{}
	if obj != nil {
		state = ObjectState{Exists: true, Type: obj.typ, Length: int64(len(obj.content))}
	}
	if err := CheckAppend(state, input.Position); err != nil {
		return nil, withRequestID(err)
	}

	data, err := readBody(input.Body, input.ContentLength)
	if err != nil {
		return nil, err
	}

	if obj == nil {
		obj = &memObject{
			typ:         ObjectTypeAppendable,
			contentType: contentTypeOr(input.ContentType),
			userMeta:    copyMeta(input.UserMetadata),
		}
		m.objects(bucket)[input.Key] = obj
	}
	obj.content = append(obj.content, data...)
	obj.etag = etagOf(obj.content)
	obj.modified = time.Now()

	return &AppendObjectOutput{
		NextPosition: At(int64(len(obj.content))),
		ETag:         obj.etag,
		CRC64:        crc64.Checksum(obj.content, crcTable),
		HasCRC64:     true,
		RequestID:    uuid.NewString(),
	}, nil
}

func (m *Memory) PutObject(_ context.Context, input *PutObjectInput) (*PutObjectOutput, error) {
	if input == nil || input.Key == "" {
		return nil, withRequestID(missingArgument("key"))
	}

	var data []byte
	if input.Body != nil {
		var err error
		if data, err = readBody(input.Body, input.ContentLength); err != nil {
			return nil, err
		}
	}
	bucket := bucketOr(input.Bucket, m.Bucket)

	obj := &memObject{
		typ:         ObjectTypeNormal,
		content:     data,
		contentType: contentTypeOr(input.ContentType),
		userMeta:    copyMeta(input.UserMetadata),
		etag:        etagOf(data),
		modified:    time.Now(),
	}

	m.mu.Lock()
	m.objects(bucket)[input.Key] = obj
	m.mu.Unlock()

	return &PutObjectOutput{ETag: obj.etag, RequestID: uuid.NewString()}, nil
}

func (m *Memory) GetObjectMetadata(_ context.Context, bucket, objectKey string) (*ObjectMetadata, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.lookup(bucketOr(bucket, m.Bucket), objectKey)
	if obj == nil {
		return nil, false, nil
	}
	return obj.metadata(objectKey), true, nil
}

func (m *Memory) GetObject(_ context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	bucket = bucketOr(bucket, m.Bucket)

	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.lookup(bucket, objectKey)
	if obj == nil {
		return nil, noSuchKey(bucket, objectKey)
	}

	content := make([]byte, len(obj.content))
	copy(content, obj.content)
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (m *Memory) DeleteObject(_ context.Context, bucket, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if objs, ok := m.buckets[bucketOr(bucket, m.Bucket)]; ok {
		delete(objs, objectKey)
	}
	return nil
}

func (m *Memory) IsObjectExist(ctx context.Context, bucket, objectKey string) (bool, error) {
	_, isExist, err := m.GetObjectMetadata(ctx, bucket, objectKey)
	return isExist, err
}

func (m *Memory) ListObjectMetadatas(_ context.Context, bucket, prefix, marker string, limit int64) ([]*ObjectMetadata, error) {
	if limit <= 0 || limit > utils.DefaultListMax {
		limit = utils.DefaultListMax
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	objs := m.buckets[bucketOr(bucket, m.Bucket)]
	keys := make([]string, 0, len(objs))
	for k := range objs {
		if strings.HasPrefix(k, prefix) && k > marker {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if int64(len(keys)) > limit {
		keys = keys[:limit]
	}

	metadatas := make([]*ObjectMetadata, 0, len(keys))
	for _, k := range keys {
		metadatas = append(metadatas, objs[k].metadata(k))
	}
	return metadatas, nil
}

func (m *Memory) Put(ctx context.Context, k ds.Key, value []byte) error {
	_, err := m.PutObject(ctx, &PutObjectInput{
		ObjectOperationInput: ObjectOperationInput{Key: m.dsPath(k.String())},
		Body:                 bytes.NewReader(value),
		ContentLength:        int64(len(value)),
	})
	return err
}

func (m *Memory) Get(ctx context.Context, k ds.Key) ([]byte, error) {
	resp, err := m.GetObject(ctx, "", m.dsPath(k.String()))
	if err != nil {
		if ErrNotFound(err) {
			return nil, ds.ErrNotFound
		}
		return nil, err
	}
	defer resp.Close()

	return io.ReadAll(resp)
}

func (m *Memory) Close() error {
	return nil
}

func readBody(body io.Reader, length int64) ([]byte, error) {
	if length < 0 {
		return io.ReadAll(body)
	}

	data, err := io.ReadAll(io.LimitReader(body, length))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != length {
		return nil, fmt.Errorf("datastore memory: body has %d bytes, content length is %d", len(data), length)
	}
	return data, nil
}

func withRequestID(err error) error {
	if se, ok := err.(*ServiceError); ok && se.RequestID == "" {
		se.RequestID = uuid.NewString()
	}
	return err
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func contentTypeOr(contentType string) string {
	if contentType == "" {
		return utils.DefaultContentType
	}
	return contentType
}

func copyMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
