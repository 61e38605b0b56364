package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/tiergo/objectstore"
)

// ErrClosed is returned when work is submitted to a closed uploader.
var ErrClosed = errors.New("uploader: closed")

// BatchConfig controls how BatchUploader groups writes.
type BatchConfig struct {
	// BatchSize is the queue length per prefix that triggers an immediate
	// flush of that prefix.
	BatchSize int

	// MaxWait bounds how long a queued item may wait before its prefix is
	// flushed regardless of queue length.
	MaxWait time.Duration
}

// DefaultBatchConfig returns the default batching configuration.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize: 100,
		MaxWait:   5 * time.Second,
	}
}

// Validate checks the configuration for usable values.
func (c BatchConfig) Validate() error {
	if c.BatchSize < 1 || c.BatchSize > 10000 {
		return fmt.Errorf("uploader: batch size must be in [1, 10000], got %d", c.BatchSize)
	}
	if c.MaxWait <= 0 {
		return fmt.Errorf("uploader: max wait must be positive, got %v", c.MaxWait)
	}
	return nil
}

// PendingUpload is a queued object write.
type PendingUpload struct {
	Key      string
	Data     []byte
	Enqueued time.Time
}

// BatchUploader groups uploads by destination prefix (path.Dir of the key)
// and writes each batch sequentially in insertion order. A batch is flushed
// inline when it reaches BatchSize; a background goroutine flushes batches
// whose oldest item has waited at least MaxWait.
type BatchUploader struct {
	store  objectstore.ObjectStore
	cfg    BatchConfig
	logger *slog.Logger
	tick   time.Duration

	mu     sync.Mutex
	queues map[string][]PendingUpload

	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool // Tracks if uploader is closed
	submitMu sync.RWMutex
}

// BatchOption configures a BatchUploader.
type BatchOption func(*BatchUploader)

// WithBatchLogger sets the logger used for background flush failures.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(u *BatchUploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// NewBatchUploader creates a batching uploader on top of store and starts
// its background flush goroutine. Call Close to stop it and drain the
// remaining queues.
func NewBatchUploader(store objectstore.ObjectStore, cfg BatchConfig, optFns ...BatchOption) (*BatchUploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	u := &BatchUploader{
		store:  store,
		cfg:    cfg,
		logger: noopLogger(),
		tick:   cfg.MaxWait / 4,
		queues: make(map[string][]PendingUpload),
		stopCh: make(chan struct{}),
	}
	if u.tick < time.Millisecond {
		u.tick = time.Millisecond
	}

	for _, fn := range optFns {
		fn(u)
	}

	u.wg.Add(1)
	go u.flushLoop()

	return u, nil
}

// Enqueue queues data for upload under key. The data is copied, so the
// caller may reuse the buffer. If the key's prefix reaches BatchSize the
// batch is uploaded before Enqueue returns, and any upload error is
// returned to the caller.
func (u *BatchUploader) Enqueue(ctx context.Context, key string, data []byte) error {
	u.submitMu.RLock()
	defer u.submitMu.RUnlock()

	if u.closed.Load() {
		return ErrClosed
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	prefix := path.Dir(key)

	u.mu.Lock()
	u.queues[prefix] = append(u.queues[prefix], PendingUpload{
		Key:      key,
		Data:     buf,
		Enqueued: time.Now(),
	})
	var full []PendingUpload
	if len(u.queues[prefix]) >= u.cfg.BatchSize {
		full = u.queues[prefix]
		delete(u.queues, prefix)
	}
	u.mu.Unlock()

	if full == nil {
		return nil
	}
	return u.upload(ctx, full)
}

// Flush uploads the queued items for prefix in insertion order. Per-item
// failures are collected with errors.Join; the queue is cleared either way.
func (u *BatchUploader) Flush(ctx context.Context, prefix string) error {
	u.mu.Lock()
	items := u.queues[prefix]
	delete(u.queues, prefix)
	u.mu.Unlock()

	if len(items) == 0 {
		return nil
	}
	return u.upload(ctx, items)
}

// FlushAll flushes every prefix. The order across prefixes is unspecified;
// items within a prefix keep their insertion order.
func (u *BatchUploader) FlushAll(ctx context.Context) error {
	u.mu.Lock()
	detached := u.queues
	u.queues = make(map[string][]PendingUpload)
	u.mu.Unlock()

	var errs []error
	for _, items := range detached {
		if err := u.upload(ctx, items); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Pending returns the number of queued items across all prefixes.
func (u *BatchUploader) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	n := 0
	for _, queue := range u.queues {
		n += len(queue)
	}
	return n
}

// Close stops the background flush goroutine and drains the remaining
// queues. Close is idempotent; later calls return nil.
func (u *BatchUploader) Close() error {
	// Mark as closed (atomic, idempotent)
	if !u.closed.CompareAndSwap(false, true) {
		return nil
	}

	u.submitMu.Lock()
	close(u.stopCh)
	u.submitMu.Unlock()

	u.wg.Wait()

	return u.FlushAll(context.Background())
}

func (u *BatchUploader) flushLoop() {
	defer u.wg.Done()

	ticker := time.NewTicker(u.tick)
	defer ticker.Stop()

	for {
		select {
		case <-u.stopCh:
			return
		case <-ticker.C:
			u.flushExpired()
		}
	}
}

// flushExpired flushes every prefix whose oldest item has waited at least
// MaxWait. Failures cannot be returned to a caller here, so they are logged.
func (u *BatchUploader) flushExpired() {
	now := time.Now()

	u.mu.Lock()
	expired := make(map[string][]PendingUpload)
	for prefix, queue := range u.queues {
		if len(queue) > 0 && now.Sub(queue[0].Enqueued) >= u.cfg.MaxWait {
			expired[prefix] = queue
			delete(u.queues, prefix)
		}
	}
	u.mu.Unlock()

	for prefix, items := range expired {
		if err := u.upload(context.Background(), items); err != nil {
			u.logger.Warn("background flush failed",
				"prefix", prefix,
				"items", len(items),
				"error", err,
			)
		}
	}
}

// upload writes items one at a time in slice order. Every item is attempted
// even when an earlier one fails.
func (u *BatchUploader) upload(ctx context.Context, items []PendingUpload) error {
	var errs []error
	for _, item := range items {
		if err := u.store.Put(ctx, item.Key, item.Data); err != nil {
			errs = append(errs, fmt.Errorf("put %s: %w", item.Key, err))
		}
	}
	return errors.Join(errs...)
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}
