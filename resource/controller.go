// Package resource enforces global limits on hot-tier memory, concurrent
// tier transitions, and upload throughput.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// HotMemoryLimitBytes is the hard limit for hot-tier resident data.
	// If 0, no hard limit is enforced (only tracking).
	HotMemoryLimitBytes int64

	// MaxConcurrentTransitions is the maximum number of tier transitions
	// running at once. If 0, defaults to 1.
	MaxConcurrentTransitions int64

	// UploadBytesPerSec is the maximum upload throughput to object
	// storage. If 0, unlimited.
	UploadBytesPerSec int64
}

// Controller manages global resources shared by the tiering manager and the
// uploaders.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Transitions
	transSem *semaphore.Weighted

	// Uploads
	uploadLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentTransitions <= 0 {
		cfg.MaxConcurrentTransitions = 1
	}

	c := &Controller{
		cfg:      cfg,
		transSem: semaphore.NewWeighted(cfg.MaxConcurrentTransitions),
	}

	if cfg.HotMemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.HotMemoryLimitBytes)
	}

	if cfg.UploadBytesPerSec > 0 {
		c.uploadLimiter = rate.NewLimiter(rate.Limit(cfg.UploadBytesPerSec), int(cfg.UploadBytesPerSec))
	}

	return c
}

// AcquireMemory reserves hot-tier memory. If a hard limit is configured and
// usage would exceed it, this blocks until memory is released or ctx is
// canceled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory reserves hot-tier memory without blocking.
// Returns true if acquired, false if the limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil {
		return true
	}
	if bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved hot-tier memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the tracked hot-tier memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}

	return c.memUsed.Load()
}

// AcquireTransition reserves a tier-transition slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireTransition(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.transSem.Acquire(ctx, 1)
}

// TryAcquireTransition reserves a tier-transition slot without blocking.
func (c *Controller) TryAcquireTransition() bool {
	if c == nil {
		return true
	}
	return c.transSem.TryAcquire(1)
}

// ReleaseTransition releases a tier-transition slot.
func (c *Controller) ReleaseTransition() {
	if c == nil {
		return
	}
	c.transSem.Release(1)
}

// AcquireUpload waits until the upload limit allows the specified number of
// bytes.
func (c *Controller) AcquireUpload(ctx context.Context, bytes int) error {
	if c == nil || c.uploadLimiter == nil {
		return nil
	}

	// WaitN cannot wait for more than one burst at a time.
	burst := c.uploadLimiter.Burst()
	for bytes > burst {
		if err := c.uploadLimiter.WaitN(ctx, burst); err != nil {
			return err
		}
		bytes -= burst
	}
	return c.uploadLimiter.WaitN(ctx, bytes)
}
