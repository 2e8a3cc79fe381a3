// Package appendstore grows objects in a remote object store by positional
// appends. Every append names the offset it expects the object to have; the
// backend accepts it only if the object is appendable and its length equals
// that offset, and reports the offset for the next call.
package appendstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/glin-gogogo/go-net-appendstore/datastore"
	"github.com/glin-gogogo/go-net-appendstore/utils"
	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("appendstore")

type ObjectType = datastore.ObjectType

const (
	Normal     = datastore.ObjectTypeNormal
	Appendable = datastore.ObjectTypeAppendable
)

// AppendResult is the acknowledgement of one append.
type AppendResult struct {
	// NextPosition is where the next append must start. It may be unknown
	// if the backend did not report it.
	NextPosition Position

	ETag string

	// CRC64 is the ECMA CRC64 of the whole object, valid when HasCRC64.
	CRC64    uint64
	HasCRC64 bool

	RequestID string

	// BytesWritten is how many source bytes were sent with this append.
	BytesWritten int64
}

type PutResult struct {
	ETag      string
	RequestID string
}

// Object is the read view of a stored object. Body is nil for metadata
// reads and must be closed otherwise.
type Object struct {
	Key          string
	Type         ObjectType
	Length       int64
	ContentType  string
	ETag         string
	NextPosition Position
	UserMetadata map[string]string
	Body         io.ReadCloser
}

type Client struct {
	ds         datastore.DataStorage
	shard      *ShardIdV1
	numWorkers int
}

type Option func(*Client)

// WithShard places every key under the directory chosen by id.
func WithShard(id *ShardIdV1) Option {
	return func(c *Client) {
		c.shard = id
	}
}

func WithWorkers(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.numWorkers = n
		}
	}
}

func NewClient(backend datastore.DataStorage, opts ...Option) *Client {
	c := &Client{
		ds:         backend,
		numWorkers: utils.DefaultBatchWorkers,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open builds the backend described by cfg and binds the key layout to it.
func Open(ctx context.Context, cfg utils.DataStoreConfig, shard *ShardIdV1) (*Client, error) {
	backend, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return OpenWithBackend(ctx, backend, shard, WithWorkers(cfg.Workers))
}

// OpenWithBackend binds the key layout to backend. A layout already stored
// in the backend wins when shard is nil and must match otherwise; a missing
// one is written.
func OpenWithBackend(ctx context.Context, backend datastore.DataStorage, shard *ShardIdV1, opts ...Option) (*Client, error) {
	stored, err := ReadShardFunc(ctx, backend)
	switch {
	case errors.Is(err, ErrShardingFileMissing):
		if shard != nil {
			if err := WriteShardFunc(ctx, backend, shard); err != nil {
				return nil, err
			}
		}
	case err == nil:
		if shard == nil {
			shard = stored
		} else if shard.String() != stored.String() {
			return nil, fmt.Errorf("specified shard func '%s' does not match repo shard func '%s'",
				shard.String(), stored.String())
		}
	default:
		return nil, err
	}

	return NewClient(backend, append(opts, WithShard(shard))...), nil
}

// DefaultBucket is the bucket used when a call names none.
func (c *Client) DefaultBucket() string {
	return c.ds.DefaultBucket()
}

// objectKey maps a logical key to its stored name and checks both.
func (c *Client) objectKey(op, key string) (string, error) {
	if !utils.ObjectKeyIsValid(key) {
		return "", fmt.Errorf("when %s %q: %w", op, key, utils.ErrInvalidKey)
	}
	if c.shard == nil {
		return key, nil
	}

	stored := c.shard.ObjectKey(key)
	if !utils.ObjectKeyIsValid(stored) {
		return "", fmt.Errorf("when %s %q: stored name %q: %w", op, key, stored, utils.ErrInvalidKey)
	}
	return stored, nil
}

// logicalKey reverses objectKey. ok is false for names the layout did not
// produce.
func (c *Client) logicalKey(stored string) (string, bool) {
	if c.shard == nil {
		return stored, true
	}
	// Every layout yields exactly param characters, which may include '/'.
	i := 0
	for n := 0; n < c.shard.param && i < len(stored); n++ {
		_, size := utf8.DecodeRuneInString(stored[i:])
		i += size
	}
	if i >= len(stored) || stored[i] != '/' {
		return "", false
	}

	dir, key := stored[:i], stored[i+1:]
	if key == "" || c.shard.Func()(key) != dir {
		return "", false
	}
	return key, true
}

func (c *Client) bucket(name string) string {
	if name == "" {
		return c.ds.DefaultBucket()
	}
	return name
}

// AppendObject validates req, sends it and classifies the outcome. Requests
// that fail validation never reach the backend. Failures from the backend's
// type or position gates come back as *Error; nothing is retried.
func (c *Client) AppendObject(ctx context.Context, req AppendRequest) (*AppendResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	storedKey, err := c.objectKey("appending", req.key)
	if err != nil {
		return nil, err
	}

	position, _ := req.position.Get()
	body, length, closeSource, err := req.open()
	if err != nil {
		return nil, fmt.Errorf("appendstore: open source for %q: %w", req.key, err)
	}
	defer closeSource()

	counter := &countingReader{r: body}
	input := &datastore.AppendObjectInput{
		ObjectOperationInput: datastore.ObjectOperationInput{
			Bucket: c.bucket(req.bucketName),
			Key:    storedKey,
		},
		Body:          counter,
		ContentLength: length,
		Position:      position,
	}
	if req.meta != nil {
		input.ContentType = req.meta.ContentType
		input.UserMetadata = req.meta.UserMetadata
	}

	log.Debugf("append %s/%s at position %d", input.Bucket, input.Key, position)
	out, err := c.ds.AppendObject(ctx, input)
	if err != nil {
		return nil, translateError(err, "append", req.key)
	}

	if next, ok := out.NextPosition.Get(); ok && next != position+counter.n {
		log.Warnf("append %s/%s: backend reported next position %d, expected %d",
			input.Bucket, input.Key, next, position+counter.n)
	}

	return &AppendResult{
		NextPosition: out.NextPosition,
		ETag:         out.ETag,
		CRC64:        out.CRC64,
		HasCRC64:     out.HasCRC64,
		RequestID:    out.RequestID,
		BytesWritten: counter.n,
	}, nil
}

// PutObject writes a Normal object, replacing whatever was at key.
func (c *Client) PutObject(ctx context.Context, bucket, key string, source io.Reader, length int64, meta *ObjectMeta) (*PutResult, error) {
	if key == "" {
		return nil, missingArgument("key")
	}
	storedKey, err := c.objectKey("putting", key)
	if err != nil {
		return nil, err
	}

	input := &datastore.PutObjectInput{
		ObjectOperationInput: datastore.ObjectOperationInput{
			Bucket: c.bucket(bucket),
			Key:    storedKey,
		},
		Body:          source,
		ContentLength: length,
	}
	if meta != nil {
		input.ContentType = meta.ContentType
		input.UserMetadata = meta.UserMetadata
	}

	out, err := c.ds.PutObject(ctx, input)
	if err != nil {
		return nil, translateError(err, "put", key)
	}
	return &PutResult{ETag: out.ETag, RequestID: out.RequestID}, nil
}

// GetObjectMetadata returns the object's type and length without content.
func (c *Client) GetObjectMetadata(ctx context.Context, bucket, key string) (*Object, error) {
	storedKey, err := c.objectKey("getting", key)
	if err != nil {
		return nil, err
	}

	meta, exist, err := c.ds.GetObjectMetadata(ctx, c.bucket(bucket), storedKey)
	if err != nil {
		return nil, translateError(err, "stat", key)
	}
	if !exist {
		return nil, fmt.Errorf("when getting %q: %w", key, ErrObjectNotFound)
	}
	return objectFromMetadata(key, meta), nil
}

// GetObject returns the object's metadata and content.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	obj, err := c.GetObjectMetadata(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	storedKey, _ := c.objectKey("getting", key)
	body, err := c.ds.GetObject(ctx, c.bucket(bucket), storedKey)
	if err != nil {
		if datastore.ErrNotFound(err) {
			return nil, fmt.Errorf("when getting %q: %w", key, ErrObjectNotFound)
		}
		return nil, translateError(err, "get", key)
	}
	obj.Body = body
	return obj, nil
}

func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	storedKey, err := c.objectKey("deleting", key)
	if err != nil {
		return err
	}
	if err := c.ds.DeleteObject(ctx, c.bucket(bucket), storedKey); err != nil && !datastore.ErrNotFound(err) {
		return translateError(err, "delete", key)
	}
	return nil
}

// ListObjects lists objects whose key starts with prefix and sorts after
// marker, in key order. Keys are the ones callers pass to the other methods;
// the store's own bookkeeping under the root directory is not listed. Each
// entry is stat'ed, so Type and NextPosition reflect the stored object.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix, marker string, limit int64) ([]*Object, error) {
	if limit <= 0 || limit > utils.DefaultListMax {
		limit = utils.DefaultListMax
	}
	bucket = c.bucket(bucket)

	type entry struct {
		key    string
		stored string
	}
	var entries []entry

	if c.shard == nil {
		err := c.scan(ctx, bucket, prefix, marker, func(stored string) bool {
			entries = append(entries, entry{key: stored, stored: stored})
			return int64(len(entries)) < limit
		})
		if err != nil {
			return nil, err
		}
	} else {
		// Logical order differs from stored order, so the listing is
		// collected and sorted before the limit applies.
		err := c.scan(ctx, bucket, c.shardListPrefix(prefix), "", func(stored string) bool {
			key, ok := c.logicalKey(stored)
			if ok && strings.HasPrefix(key, prefix) && key > marker {
				entries = append(entries, entry{key: key, stored: stored})
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
		if int64(len(entries)) > limit {
			entries = entries[:limit]
		}
	}

	objects := make([]*Object, 0, len(entries))
	for _, e := range entries {
		meta, exist, err := c.ds.GetObjectMetadata(ctx, bucket, e.stored)
		if err != nil {
			return nil, translateError(err, "list", e.key)
		}
		if !exist {
			continue
		}
		objects = append(objects, objectFromMetadata(e.key, meta))
	}
	return objects, nil
}

// scan pages through stored names under prefix after marker until visit
// returns false.
func (c *Client) scan(ctx context.Context, bucket, prefix, marker string, visit func(stored string) bool) error {
	hidden := strings.TrimSuffix(c.ds.RootDir(), "/") + "/"
	for {
		metas, err := c.ds.ListObjectMetadatas(ctx, bucket, prefix, marker, utils.DefaultListMax)
		if err != nil {
			return translateError(err, "list", prefix)
		}
		for _, meta := range metas {
			if strings.HasPrefix(meta.Key, hidden) {
				continue
			}
			if !visit(meta.Key) {
				return nil
			}
		}
		if len(metas) < utils.DefaultListMax {
			return nil
		}
		marker = metas[len(metas)-1].Key
	}
}

// shardListPrefix narrows a listing to one shard directory when every key
// with prefix lands in it. Otherwise the whole bucket is scanned.
func (c *Client) shardListPrefix(prefix string) string {
	if c.shard.funName == "prefix" && utf8.RuneCountInString(prefix) >= c.shard.param {
		return c.shard.ObjectKey(prefix)
	}
	return ""
}

func (c *Client) Close() error {
	return c.ds.Close()
}

func objectFromMetadata(key string, meta *datastore.ObjectMetadata) *Object {
	return &Object{
		Key:          key,
		Type:         meta.ObjectType,
		Length:       meta.ContentLength,
		ContentType:  meta.ContentType,
		ETag:         meta.ETag,
		NextPosition: meta.NextAppendPosition,
		UserMetadata: meta.UserMetadata,
	}
}
