package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig controls the retry behavior of a RetryStore.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first
	// failure. Default: 5.
	MaxRetries uint64

	// InitialBackoff is the base delay before the first retry. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts. Default: 64s.
	MaxBackoff time.Duration

	// Multiplier grows the delay between attempts. Default: 2.0.
	Multiplier float64

	// Jitter randomizes each delay within ±Jitter×delay to avoid
	// synchronized retry storms. Default: 0.5.
	Jitter float64
}

// DefaultRetryConfig returns production defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialBackoff: time.Second,
		MaxBackoff:     64 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.5,
	}
}

// Validate checks the configuration.
func (c RetryConfig) Validate() error {
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("objectstore: initial backoff must be positive, got %v", c.InitialBackoff)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("objectstore: max backoff %v below initial backoff %v", c.MaxBackoff, c.InitialBackoff)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("objectstore: multiplier must be >= 1, got %v", c.Multiplier)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("objectstore: jitter must be in [0, 1], got %v", c.Jitter)
	}
	return nil
}

// RetryStore wraps an ObjectStore and retries transient failures with
// exponential backoff and jitter.
//
// Only errors classified retryable by IsRetryable (throttling, server
// errors, timeouts) are retried; NotFound and Forbidden surface
// immediately. Context cancellation aborts the wait between attempts.
type RetryStore struct {
	inner  ObjectStore
	cfg    RetryConfig
	logger *slog.Logger
}

// RetryOption configures a RetryStore.
type RetryOption func(*RetryStore)

// WithRetryLogger attaches a logger; retry attempts are logged at debug
// level.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(s *RetryStore) {
		s.logger = logger
	}
}

// NewRetryStore creates a retrying wrapper around inner.
// Zero-valued config fields fall back to DefaultRetryConfig.
func NewRetryStore(inner ObjectStore, cfg RetryConfig, opts ...RetryOption) (*RetryStore, error) {
	def := DefaultRetryConfig()
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = def.Multiplier
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &RetryStore{inner: inner, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put implements ObjectStore.
func (s *RetryStore) Put(ctx context.Context, key string, data []byte) error {
	return s.do(ctx, OpPut, key, func() error {
		return s.inner.Put(ctx, key, data)
	})
}

// Get implements ObjectStore.
func (s *RetryStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.do(ctx, OpGet, key, func() error {
		var err error
		out, err = s.inner.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete implements ObjectStore.
func (s *RetryStore) Delete(ctx context.Context, key string) error {
	return s.do(ctx, OpDelete, key, func() error {
		return s.inner.Delete(ctx, key)
	})
}

// List implements ObjectStore.
func (s *RetryStore) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.do(ctx, OpList, prefix, func() error {
		var err error
		out, err = s.inner.List(ctx, prefix)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RetryStore) do(ctx context.Context, op, key string, fn func() error) error {
	b := s.newBackOff(ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "retrying object store call",
				"op", op,
				"key", key,
				"attempt", attempt,
				"wait", wait,
				"error", err,
			)
		}
	}

	return backoff.RetryNotify(operation, b, notify)
}

func (s *RetryStore) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.InitialBackoff
	eb.MaxInterval = s.cfg.MaxBackoff
	eb.Multiplier = s.cfg.Multiplier
	eb.RandomizationFactor = s.cfg.Jitter
	// Rely on the attempt bound, not wall-clock time.
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	b = backoff.WithMaxRetries(b, s.cfg.MaxRetries)
	return backoff.WithContext(b, ctx)
}
