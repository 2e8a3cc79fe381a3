package datastore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/glin-gogogo/go-net-appendstore/utils"
	"github.com/go-http-utils/headers"
	huaweiobs "github.com/huaweicloud/huaweicloud-sdk-go-obs/obs"
	ds "github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("datastore")

const (
	obsHeaderNextAppendPosition = "next-append-position"
	obsHeaderObjectType         = "object-type"
	obsHeaderCRC64              = "hash-crc64ecma"
)

// Obs talks to Huawei OBS, which implements positional appends natively:
// the service runs the type and position gates and reports the next position.
type Obs struct {
	utils.DataStoreConfig
	client *huaweiobs.ObsClient
}

func (o *Obs) dsPath(p string) string {
	return path.Join(o.RootDirectory, p)
}

func NewOBS(opts ...utils.WithOption) (DataStorage, error) {
	dsConfig, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if dsConfig.Endpoint == "" {
		return nil, fmt.Errorf("new obs client failed: %w", utils.ErrMissingEndpoint)
	}

	connectTimeout, socketTimeout := dsConfig.ConnectTimeout, dsConfig.SocketTimeout
	if connectTimeout <= 0 {
		connectTimeout = utils.DefaultConnectTimeout
	}
	if socketTimeout <= 0 {
		socketTimeout = utils.DefaultSocketTimeout
	}

	client, err := huaweiobs.New(dsConfig.AccessKey, dsConfig.SecretKey, dsConfig.Endpoint,
		huaweiobs.WithRegion(dsConfig.Region),
		huaweiobs.WithConnectTimeout(connectTimeout),
		huaweiobs.WithSocketTimeout(socketTimeout),
		huaweiobs.WithMaxRetryCount(dsConfig.MaxRetryCount),
		huaweiobs.WithMaxConnections(128))
	if err != nil {
		return nil, fmt.Errorf("new obs client failed: %s", err)
	}

	return &Obs{
		DataStoreConfig: *dsConfig,
		client:          client,
	}, nil
}

func (o *Obs) RootDir() string {
	return o.RootDirectory
}

func (o *Obs) DefaultBucket() string {
	return o.Bucket
}

func (o *Obs) AppendObject(_ context.Context, input *AppendObjectInput) (*AppendObjectOutput, error) {
	in := &huaweiobs.AppendObjectInput{}
	in.Bucket = bucketOr(input.Bucket, o.Bucket)
	in.Key = input.Key
	in.Metadata = input.UserMetadata
	in.ContentType = input.ContentType
	if input.ContentLength >= 0 {
		in.ContentLength = input.ContentLength
	}
	in.Body = input.Body
	in.Position = input.Position

	out, err := o.client.AppendObject(in)
	if err != nil {
		return nil, obsServiceError(err)
	}

	result := &AppendObjectOutput{
		ETag:      out.ETag,
		RequestID: out.RequestId,
	}
	if _, ok := headerValue(out.ResponseHeaders, obsHeaderNextAppendPosition); ok {
		result.NextPosition = At(out.NextAppendPosition)
	}
	if v, ok := headerValue(out.ResponseHeaders, obsHeaderCRC64); ok {
		if crc, err := strconv.ParseUint(v, 10, 64); err == nil {
			result.CRC64, result.HasCRC64 = crc, true
		} else {
			log.Warnf("obs: ignoring malformed crc64 %q for %s", v, input.Key)
		}
	}

	return result, nil
}

func (o *Obs) PutObject(_ context.Context, input *PutObjectInput) (*PutObjectOutput, error) {
	in := &huaweiobs.PutObjectInput{}
	in.Bucket = bucketOr(input.Bucket, o.Bucket)
	in.Key = input.Key
	in.Metadata = input.UserMetadata
	in.ContentType = input.ContentType
	if input.ContentLength >= 0 {
		in.ContentLength = input.ContentLength
	}
	in.Body = input.Body

	out, err := o.client.PutObject(in)
	if err != nil {
		return nil, obsServiceError(err)
	}

	return &PutObjectOutput{ETag: out.ETag, RequestID: out.RequestId}, nil
}

func (o *Obs) GetObjectMetadata(_ context.Context, bucket, objectKey string) (*ObjectMetadata, bool, error) {
	metadata, err := o.client.GetObjectMetadata(&huaweiobs.GetObjectMetadataInput{
		Bucket: bucketOr(bucket, o.Bucket),
		Key:    objectKey,
	})
	if err != nil {
		err = obsServiceError(err)
		if ErrNotFound(err) {
			return nil, false, nil
		}

		return nil, false, err
	}

	meta := &ObjectMetadata{
		Key:           objectKey,
		ContentLength: metadata.ContentLength,
		ContentType:   metadata.ContentType,
		ETag:          metadata.ETag,
		UserMetadata:  metadata.Metadata,
	}
	meta.ContentDisposition, _ = headerValue(metadata.ResponseHeaders, headers.ContentDisposition)
	meta.ContentEncoding, _ = headerValue(metadata.ResponseHeaders, headers.ContentEncoding)
	meta.ContentLanguage, _ = headerValue(metadata.ResponseHeaders, headers.ContentLanguage)
	if v, ok := headerValue(metadata.ResponseHeaders, headers.LastModified); ok {
		if t, err := http.ParseTime(v); err == nil {
			meta.LastModified = t
		}
	}

	objectType, _ := headerValue(metadata.ResponseHeaders, obsHeaderObjectType)
	meta.ObjectType = ParseObjectType(objectType)
	if v, ok := headerValue(metadata.ResponseHeaders, obsHeaderNextAppendPosition); ok {
		if next, err := strconv.ParseInt(v, 10, 64); err == nil {
			meta.NextAppendPosition = At(next)
		}
	}

	return meta, true, nil
}

func (o *Obs) GetObject(_ context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	resp, err := o.client.GetObject(&huaweiobs.GetObjectInput{
		GetObjectMetadataInput: huaweiobs.GetObjectMetadataInput{
			Bucket: bucketOr(bucket, o.Bucket),
			Key:    objectKey,
		},
	})
	if err != nil {
		return nil, obsServiceError(err)
	}

	return resp.Body, nil
}

func (o *Obs) DeleteObject(_ context.Context, bucket, objectKey string) error {
	_, err := o.client.DeleteObject(&huaweiobs.DeleteObjectInput{Bucket: bucketOr(bucket, o.Bucket), Key: objectKey})
	if err != nil {
		return obsServiceError(err)
	}
	return nil
}

func (o *Obs) IsObjectExist(ctx context.Context, bucket, objectKey string) (bool, error) {
	_, isExist, err := o.GetObjectMetadata(ctx, bucket, objectKey)
	return isExist, err
}

func (o *Obs) ListObjectMetadatas(_ context.Context, bucket, prefix, marker string, limit int64) ([]*ObjectMetadata, error) {
	if limit <= 0 || limit > utils.DefaultListMax {
		limit = utils.DefaultListMax
	}

	input := &huaweiobs.ListObjectsInput{}
	input.Bucket = bucketOr(bucket, o.Bucket)
	input.ListObjsInput.Prefix = prefix
	input.ListObjsInput.MaxKeys = int(limit)
	input.Marker = marker

	var metadatas []*ObjectMetadata
	for int64(len(metadatas)) < limit {
		resp, err := o.client.ListObjects(input)
		if err != nil {
			return nil, obsServiceError(err)
		}

		for _, object := range resp.Contents {
			metadatas = append(metadatas, &ObjectMetadata{
				Key:           object.Key,
				ETag:          object.ETag,
				ContentLength: object.Size,
				LastModified:  object.LastModified,
			})
		}

		if !resp.IsTruncated || resp.NextMarker == "" {
			break
		}
		input.Marker = resp.NextMarker
	}

	if int64(len(metadatas)) > limit {
		metadatas = metadatas[:limit]
	}
	return metadatas, nil
}

func (o *Obs) Put(ctx context.Context, k ds.Key, value []byte) error {
	_, err := o.PutObject(ctx, &PutObjectInput{
		ObjectOperationInput: ObjectOperationInput{Key: o.dsPath(k.String())},
		Body:                 bytes.NewReader(value),
		ContentLength:        int64(len(value)),
	})
	return err
}

func (o *Obs) Get(ctx context.Context, k ds.Key) ([]byte, error) {
	resp, err := o.GetObject(ctx, "", o.dsPath(k.String()))
	if err != nil {
		if ErrNotFound(err) {
			return nil, ds.ErrNotFound
		}

		return nil, err
	}
	defer resp.Close()

	return io.ReadAll(resp)
}

func (o *Obs) Close() error {
	o.client.Close()
	return nil
}

// obsServiceError converts an OBS SDK error into a ServiceError, keeping the
// service's code, message and request id. Other errors pass through.
func obsServiceError(err error) error {
	var obsErr huaweiobs.ObsError
	if errors.As(err, &obsErr) {
		return fromObsError(obsErr)
	}
	var obsErrPtr *huaweiobs.ObsError
	if errors.As(err, &obsErrPtr) && obsErrPtr != nil {
		return fromObsError(*obsErrPtr)
	}
	return err
}

func fromObsError(obsErr huaweiobs.ObsError) *ServiceError {
	se := &ServiceError{
		StatusCode: obsErr.StatusCode,
		Code:       obsErr.Code,
		Message:    obsErr.Message,
		RequestID:  obsErr.RequestId,
	}
	if se.Code == "" && se.StatusCode == http.StatusNotFound {
		se.Code = CodeNoSuchKey
	}
	if se.Message == "" {
		se.Message = obsErr.Status
	}
	return se
}

// headerValue looks a response header up case-insensitively, with or
// without the vendor prefix the SDK may have stripped.
func headerValue(h map[string][]string, name string) (string, bool) {
	name = strings.ToLower(name)
	for k, v := range h {
		k = strings.ToLower(k)
		if k == name || k == "x-obs-"+name || k == "x-amz-"+name {
			if len(v) > 0 {
				return v[0], true
			}
		}
	}
	return "", false
}
