package tiergo

import (
	"log/slog"

	"github.com/hupe1980/tiergo/objectstore"
	"github.com/hupe1980/tiergo/resource"
	"github.com/hupe1980/tiergo/snapshot"
	"github.com/hupe1980/tiergo/tiering"
	"github.com/hupe1980/tiergo/tierstate"
)

type options struct {
	policy           tiering.Policy
	states           tierstate.Store
	warm             objectstore.ObjectStore
	warmDir          string
	compression      snapshot.Compression
	retryConfig      objectstore.RetryConfig
	retryDisabled    bool
	controller       *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Tiering constructor behavior.
type Option func(*options)

// WithPolicy sets the tiering policy. Defaults to tiering.DefaultPolicy().
func WithPolicy(p tiering.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithStateStore sets the placement state store. Defaults to an in-memory
// store; use tierstate.NewDynamoStore for placement that survives restarts.
func WithStateStore(s tierstate.Store) Option {
	return func(o *options) {
		o.states = s
	}
}

// WithWarmStore sets the warm-tier object store. Defaults to an in-memory
// store; takes precedence over WithWarmDir.
func WithWarmStore(s objectstore.ObjectStore) Option {
	return func(o *options) {
		o.warm = s
	}
}

// WithWarmDir stores warm-tier objects under dir on the local filesystem.
//
// Example:
//
//	tg, _ := tiergo.New(source, cold, tiergo.WithWarmDir("/fast/nvme/warm"))
func WithWarmDir(dir string) Option {
	return func(o *options) {
		o.warmDir = dir
	}
}

// WithCompression sets the codec used for warm objects and cold snapshots.
// Defaults to zstd.
func WithCompression(c snapshot.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithRetryConfig tunes the retry layer wrapped around the cold store.
func WithRetryConfig(cfg objectstore.RetryConfig) Option {
	return func(o *options) {
		o.retryConfig = cfg
	}
}

// WithoutRetry disables the retry layer around the cold store. Use this
// when the store already retries internally.
func WithoutRetry() Option {
	return func(o *options) {
		o.retryDisabled = true
	}
}

// WithController sets a resource controller enforcing global transition
// and upload limits, shared with other components of the application.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &tiergo.BasicMetricsCollector{}
//	tg, _ := tiergo.New(source, cold, tiergo.WithMetricsCollector(metrics))
//	// ... use tg ...
//	stats := metrics.GetStats()
//	fmt.Printf("Transitions: %d, Demotions: %d\n", stats.TransitionCount, stats.Demotions)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := tiergo.NewJSONLogger(slog.LevelInfo)
//	tg, _ := tiergo.New(source, cold, tiergo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		policy:           tiering.DefaultPolicy(),
		compression:      snapshot.CompressionZstd,
		retryConfig:      objectstore.DefaultRetryConfig(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
