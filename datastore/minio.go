package datastore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/glin-gogogo/go-net-appendstore/utils"
	"github.com/go-http-utils/headers"
	ds "github.com/ipfs/go-datastore"
	MinIO "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object type marker stored as user metadata (X-Amz-Meta-Object-Type).
const minioMetaObjectType = "Object-Type"

// Minio emulates appends on an S3 compatible service that has no append
// call. The type marker lives in user metadata and every append rewrites the
// object as old content followed by the new bytes. Appends to one key are
// serialized within this process, and the read of the old content is pinned
// to the ETag the gates were checked against.
type Minio struct {
	utils.DataStoreConfig
	client *MinIO.Client
	locks  keyLocks
}

func (m *Minio) dsPath(p string) string {
	return path.Join(m.RootDirectory, p)
}

func NewMinio(opts ...utils.WithOption) (DataStorage, error) {
	dsConfig, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if dsConfig.Endpoint == "" {
		return nil, fmt.Errorf("new minio client failed: %w", utils.ErrMissingEndpoint)
	}

	client, err := MinIO.New(dsConfig.Endpoint, &MinIO.Options{
		Creds:  credentials.NewStaticV4(dsConfig.AccessKey, dsConfig.SecretKey, ""),
		Secure: dsConfig.UseSSL,
		Region: dsConfig.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("new minio client failed: %s", err)
	}

	return &Minio{
		DataStoreConfig: *dsConfig,
		client:          client,
		locks:           keyLocks{m: make(map[string]*keyLock)},
	}, nil
}

func (m *Minio) RootDir() string {
	return m.RootDirectory
}

func (m *Minio) DefaultBucket() string {
	return m.Bucket
}

func (m *Minio) AppendObject(ctx context.Context, input *AppendObjectInput) (*AppendObjectOutput, error) {
	if input.Body == nil {
		return nil, missingArgument("body")
	}
	bucket := bucketOr(input.Bucket, m.Bucket)

	unlock := m.locks.lock(bucket + "/" + input.Key)
	defer unlock()

	meta, exist, err := m.GetObjectMetadata(ctx, bucket, input.Key)
	if err != nil {
		return nil, err
	}

	state := ObjectState{}
	if exist {
		state = ObjectState{Exists: true, Type: meta.ObjectType, Length: meta.ContentLength}
	}
	if err := CheckAppend(state, input.Position); err != nil {
		return nil, err
	}

	body := input.Body
	size := input.ContentLength
	contentType := input.ContentType
	userMeta := copyMeta(input.UserMetadata)

	if exist {
		contentType = meta.ContentType
		userMeta = copyMeta(meta.UserMetadata)

		if meta.ContentLength > 0 {
			opts := MinIO.GetObjectOptions{}
			if err := opts.SetMatchETag(meta.ETag); err != nil {
				return nil, err
			}

			existing, err := m.client.GetObject(ctx, bucket, input.Key, opts)
			if err != nil {
				return nil, minioServiceError(err)
			}
			defer existing.Close()

			body = io.MultiReader(io.LimitReader(existing, meta.ContentLength), input.Body)
			if size >= 0 {
				size += meta.ContentLength
			}
		}
	}
	if userMeta == nil {
		userMeta = make(map[string]string)
	}
	deleteMetaKey(userMeta, minioMetaObjectType)
	userMeta[minioMetaObjectType] = ObjectTypeAppendable.String()

	info, err := m.client.PutObject(ctx, bucket, input.Key, body, size, MinIO.PutObjectOptions{
		ContentType:  contentTypeOr(contentType),
		UserMetadata: userMeta,
	})
	if err != nil {
		return nil, minioServiceError(err)
	}

	return &AppendObjectOutput{
		NextPosition: At(info.Size),
		ETag:         info.ETag,
	}, nil
}

func (m *Minio) PutObject(ctx context.Context, input *PutObjectInput) (*PutObjectOutput, error) {
	bucket := bucketOr(input.Bucket, m.Bucket)
	userMeta := copyMeta(input.UserMetadata)
	if userMeta == nil {
		userMeta = make(map[string]string)
	}
	deleteMetaKey(userMeta, minioMetaObjectType)
	userMeta[minioMetaObjectType] = ObjectTypeNormal.String()

	body := input.Body
	if body == nil {
		body = bytes.NewReader(nil)
	}

	unlock := m.locks.lock(bucket + "/" + input.Key)
	defer unlock()

	info, err := m.client.PutObject(ctx, bucket, input.Key, body, input.ContentLength, MinIO.PutObjectOptions{
		ContentType:  contentTypeOr(input.ContentType),
		UserMetadata: userMeta,
	})
	if err != nil {
		return nil, minioServiceError(err)
	}

	return &PutObjectOutput{ETag: info.ETag}, nil
}

func (m *Minio) GetObjectMetadata(ctx context.Context, bucket, objectKey string) (*ObjectMetadata, bool, error) {
	resp, err := m.client.StatObject(ctx, bucketOr(bucket, m.Bucket), objectKey, MinIO.StatObjectOptions{})
	if err != nil {
		err = minioServiceError(err)
		if ErrNotFound(err) {
			return nil, false, nil
		}

		return nil, false, err
	}

	userMeta := map[string]string(resp.UserMetadata)
	objectType, _ := metaValue(userMeta, minioMetaObjectType)

	meta := &ObjectMetadata{
		Key:                objectKey,
		ContentDisposition: resp.Metadata.Get(headers.ContentDisposition),
		ContentEncoding:    resp.Metadata.Get(headers.ContentEncoding),
		ContentLanguage:    resp.Metadata.Get(headers.ContentLanguage),
		ContentLength:      resp.Size,
		ContentType:        resp.ContentType,
		ETag:               resp.ETag,
		ObjectType:         ParseObjectType(objectType),
		UserMetadata:       userMeta,
		LastModified:       resp.LastModified,
	}
	if meta.ObjectType == ObjectTypeAppendable {
		meta.NextAppendPosition = At(resp.Size)
	}

	return meta, true, nil
}

func (m *Minio) GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	resp, err := m.client.GetObject(ctx, bucketOr(bucket, m.Bucket), objectKey, MinIO.GetObjectOptions{})
	if err != nil {
		return nil, minioServiceError(err)
	}

	return resp, nil
}

func (m *Minio) DeleteObject(ctx context.Context, bucket, objectKey string) error {
	err := m.client.RemoveObject(ctx, bucketOr(bucket, m.Bucket), objectKey, MinIO.RemoveObjectOptions{})
	if err != nil {
		return minioServiceError(err)
	}
	return nil
}

func (m *Minio) IsObjectExist(ctx context.Context, bucket, objectKey string) (bool, error) {
	_, isExist, err := m.GetObjectMetadata(ctx, bucket, objectKey)
	return isExist, err
}

func (m *Minio) ListObjectMetadatas(ctx context.Context, bucket, prefix, marker string, limit int64) ([]*ObjectMetadata, error) {
	if limit <= 0 || limit > utils.DefaultListMax {
		limit = utils.DefaultListMax
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metadatas []*ObjectMetadata
	for object := range m.client.ListObjects(ctx, bucketOr(bucket, m.Bucket), MinIO.ListObjectsOptions{
		Prefix:     prefix,
		StartAfter: marker,
		Recursive:  true,
	}) {
		if object.Err != nil {
			return nil, minioServiceError(object.Err)
		}

		metadatas = append(metadatas, &ObjectMetadata{
			Key:           object.Key,
			ETag:          object.ETag,
			ContentLength: object.Size,
			ContentType:   object.ContentType,
			LastModified:  object.LastModified,
		})
		if int64(len(metadatas)) >= limit {
			break
		}
	}

	return metadatas, nil
}

func (m *Minio) Put(ctx context.Context, k ds.Key, value []byte) error {
	_, err := m.PutObject(ctx, &PutObjectInput{
		ObjectOperationInput: ObjectOperationInput{Key: m.dsPath(k.String())},
		Body:                 bytes.NewReader(value),
		ContentLength:        int64(len(value)),
	})
	return err
}

func (m *Minio) Get(ctx context.Context, k ds.Key) ([]byte, error) {
	exist, err := m.IsObjectExist(ctx, "", m.dsPath(k.String()))
	if err != nil {
		return nil, err
	}

	if !exist {
		return nil, ds.ErrNotFound
	}

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

func (m *Minio) Close() error {
	return nil
}

func minioServiceError(err error) error {
	resp := MinIO.ToErrorResponse(err)
	if resp.Code == "" {
		return err
	}

	return &ServiceError{
		StatusCode: resp.StatusCode,
		Code:       resp.Code,
		Message:    resp.Message,
		RequestID:  resp.RequestID,
	}
}

func metaValue(meta map[string]string, key string) (string, bool) {
	for k, v := range meta {
		if strings.EqualFold(k, key) || strings.EqualFold(k, "X-Amz-Meta-"+key) {
			return v, true
		}
	}
	return "", false
}

func deleteMetaKey(meta map[string]string, key string) {
	for k := range meta {
		if strings.EqualFold(k, key) || strings.EqualFold(k, "X-Amz-Meta-"+key) {
			delete(meta, k)
		}
	}
}

type keyLock struct {
	sync.Mutex
	refs int
}

// keyLocks hands out one mutex per key and forgets it when nobody holds it.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

func (l *keyLocks) lock(key string) (unlock func()) {
	l.mu.Lock()
	kl, ok := l.m[key]
	if !ok {
		kl = &keyLock{}
		l.m[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.Lock()
	return func() {
		kl.Unlock()

		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}
