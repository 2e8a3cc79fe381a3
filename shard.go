package appendstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/glin-gogogo/go-net-appendstore/datastore"
	ds "github.com/ipfs/go-datastore"
)

// DefaultShard spreads keys over two-character directories taken from the
// characters before the last one.
var DefaultShard = NextToLast(2)

const (
	PREFIX     = "/repo/appendstore/shard/"
	ShardingFn = "SHARDING"

	shardVersion = "v1"
)

// ShardFunc maps a logical key to the directory it is stored under.
type ShardFunc func(string) string

// ShardIdV1 names a key layout. String is what gets persisted.
type ShardIdV1 struct {
	funName string
	param   int
	fun     ShardFunc
}

func (f *ShardIdV1) String() string {
	return PREFIX + shardVersion + "/" + f.funName + "/" + strconv.Itoa(f.param)
}

func (f *ShardIdV1) Func() ShardFunc {
	return f.fun
}

// ObjectKey is the stored name of key under this layout. The key is kept
// byte for byte, so distinct keys never share a stored name.
func (f *ShardIdV1) ObjectKey(key string) string {
	return f.fun(key) + "/" + key
}

var shardFuncs = map[string]func(int) *ShardIdV1{
	"prefix":       Prefix,
	"suffix":       Suffix,
	"next-to-last": NextToLast,
}

// Shard functions count characters, not bytes, so directory names stay valid
// UTF-8. Short keys are padded with '_'.

// Prefix takes the first n characters.
func Prefix(n int) *ShardIdV1 {
	return &ShardIdV1{funName: "prefix", param: n, fun: func(key string) string {
		r := []rune(key)
		if len(r) >= n {
			return string(r[:n])
		}
		return string(r) + strings.Repeat("_", n-len(r))
	}}
}

// Suffix takes the last n characters.
func Suffix(n int) *ShardIdV1 {
	return &ShardIdV1{funName: "suffix", param: n, fun: func(key string) string {
		r := []rune(key)
		if len(r) >= n {
			return string(r[len(r)-n:])
		}
		return strings.Repeat("_", n-len(r)) + string(r)
	}}
}

// NextToLast takes the n characters before the last one.
func NextToLast(n int) *ShardIdV1 {
	return &ShardIdV1{funName: "next-to-last", param: n, fun: func(key string) string {
		r := []rune(key)
		if len(r) > 0 {
			r = r[:len(r)-1]
		}
		if len(r) >= n {
			return string(r[len(r)-n:])
		}
		return strings.Repeat("_", n-len(r)) + string(r)
	}}
}

// ParseShardFunc reads an identifier written by ShardIdV1.String.
func ParseShardFunc(str string) (*ShardIdV1, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return nil, errors.New("empty shard identifier")
	}

	rest, ok := strings.CutPrefix(str, PREFIX)
	if !ok {
		return nil, fmt.Errorf("invalid or no prefix in shard identifier: %s", str)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid shard identifier: %s", rest)
	}
	version, name, rawParam := parts[0], parts[1], parts[2]

	if version != shardVersion {
		return nil, fmt.Errorf("expected %q for version string got: %s", shardVersion, version)
	}

	newFunc, ok := shardFuncs[name]
	if !ok {
		names := make([]string, 0, len(shardFuncs))
		for n := range shardFuncs {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("expected one of %s got: %s", strings.Join(names, ", "), name)
	}

	param, err := strconv.Atoi(rawParam)
	if err != nil {
		return nil, fmt.Errorf("invalid parameter: %w", err)
	}
	if param <= 0 {
		return nil, fmt.Errorf("shard parameter must be positive, got: %d", param)
	}

	return newFunc(param), nil
}

// ReadShardFunc loads the layout persisted in store.
func ReadShardFunc(ctx context.Context, store datastore.DataStorage) (*ShardIdV1, error) {
	buf, err := store.Get(ctx, ds.NewKey(ShardingFn))
	switch {
	case errors.Is(err, ds.ErrNotFound):
		return nil, ErrShardingFileMissing
	case err != nil:
		return nil, err
	}
	return ParseShardFunc(string(buf))
}

func WriteShardFunc(ctx context.Context, store datastore.DataStorage, id *ShardIdV1) error {
	return store.Put(ctx, ds.NewKey(ShardingFn), []byte(id.String()))
}
