package appendstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// AppendBatch collects chunks for many keys. Commit appends each key's
// chunks in the order they were added; different keys proceed in parallel.
type AppendBatch struct {
	c          *Client
	bucket     string
	ops        map[string][][]byte
	numWorkers int
}

// Batch starts a batch against bucket, or the default bucket when empty.
func (c *Client) Batch(bucket string) *AppendBatch {
	return &AppendBatch{
		c:          c,
		bucket:     c.bucket(bucket),
		ops:        make(map[string][][]byte),
		numWorkers: c.numWorkers,
	}
}

func (b *AppendBatch) Append(key string, data []byte) {
	b.ops[key] = append(b.ops[key], data)
}

func (b *AppendBatch) Len() int {
	return len(b.ops)
}

func (b *AppendBatch) Commit(ctx context.Context) error {
	keys := make([]string, 0, len(b.ops))
	for k := range b.ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	numJobs := len(keys)
	if numJobs == 0 {
		return nil
	}
	jobs := make(chan func() error, numJobs)
	results := make(chan error, numJobs)

	numWorkers := b.numWorkers
	if numJobs < numWorkers {
		numWorkers = numJobs
	}

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	defer wg.Wait()

	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			worker(jobs, results)
		}()
	}

	for _, k := range keys {
		jobs <- b.newAppendJob(ctx, k, b.ops[k])
	}
	close(jobs)

	var errs []string
	for i := 0; i < numJobs; i++ {
		err := <-results
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	b.ops = make(map[string][][]byte)

	if len(errs) > 0 {
		log.Errorf("batch commit: %d of %d keys failed", len(errs), numJobs)
		return fmt.Errorf("appendstore: failed batch operation:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (b *AppendBatch) newAppendJob(ctx context.Context, key string, chunks [][]byte) func() error {
	return func() error {
		a, err := b.c.NewAppender(ctx, b.bucket, key, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}

		for _, chunk := range chunks {
			if _, err := a.Append(ctx, bytes.NewReader(chunk), int64(len(chunk))); err != nil {
				return fmt.Errorf("%s at %d: %w", key, a.Position(), err)
			}
		}
		return nil
	}
}

func worker(jobs <-chan func() error, results chan<- error) {
	for j := range jobs {
		results <- j()
	}
}
