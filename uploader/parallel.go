package uploader

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/tiergo/objectstore"
	"github.com/hupe1980/tiergo/resource"
)

// ParallelConfig controls fan-out for ParallelUploader.
type ParallelConfig struct {
	// MaxConcurrency is the number of uploads allowed in flight at once.
	MaxConcurrency int
}

// DefaultParallelConfig returns the default fan-out configuration.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MaxConcurrency: 10,
	}
}

// Validate checks the configuration for usable values.
func (c ParallelConfig) Validate() error {
	if c.MaxConcurrency < 1 || c.MaxConcurrency > 50 {
		return fmt.Errorf("uploader: max concurrency must be in [1, 50], got %d", c.MaxConcurrency)
	}
	return nil
}

// Item is one object write.
type Item struct {
	Key  string
	Data []byte
}

// Result reports the outcome of one item's upload.
type Result struct {
	Key string
	Err error
}

// ParallelUploader writes independent objects concurrently with a bounded
// number of uploads in flight. The bound is shared across Upload calls.
type ParallelUploader struct {
	store      objectstore.ObjectStore
	cfg        ParallelConfig
	controller *resource.Controller
	sem        *semaphore.Weighted
}

// ParallelOption configures a ParallelUploader.
type ParallelOption func(*ParallelUploader)

// WithController applies the controller's upload byte-rate limit before
// each put.
func WithController(ctrl *resource.Controller) ParallelOption {
	return func(u *ParallelUploader) {
		u.controller = ctrl
	}
}

// NewParallelUploader creates a bounded-concurrency uploader on top of store.
func NewParallelUploader(store objectstore.ObjectStore, cfg ParallelConfig, optFns ...ParallelOption) (*ParallelUploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	u := &ParallelUploader{
		store: store,
		cfg:   cfg,
		sem:   semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
	}

	for _, fn := range optFns {
		fn(u)
	}

	return u, nil
}

// Upload writes every item with at most MaxConcurrency in flight. The
// returned slice has one result per item in input order; a failed item
// never cancels its siblings. When ctx is cancelled, items that have not
// started report the context error.
func (u *ParallelUploader) Upload(ctx context.Context, items []Item) []Result {
	results := make([]Result, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		i, item := i, item
		results[i].Key = item.Key

		if err := u.sem.Acquire(ctx, 1); err != nil {
			results[i].Err = err
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer u.sem.Release(1)

			results[i].Err = u.put(ctx, item)
		}()
	}
	wg.Wait()

	return results
}

func (u *ParallelUploader) put(ctx context.Context, item Item) error {
	if err := u.controller.AcquireUpload(ctx, len(item.Data)); err != nil {
		return err
	}
	return u.store.Put(ctx, item.Key, item.Data)
}
