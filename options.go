package coocgo

import (
	"log/slog"

	"github.com/hupe1980/coocgo/codec"
	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/resource"
)

type options struct {
	store            graphstore.Store
	cacheSize        int
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	resourceCfg      resource.Config
	hasResourceCfg   bool
	eagerCross       bool
}

// Option configures session constructor behavior.
//
// Today options primarily exist to avoid exploding the API surface
// (e.g. store-specific constructor variants).
type Option func(*options)

// WithStore configures the backing row store. The session takes ownership
// and closes it on Close.
//
// If nil is passed, an in-memory store is used.
//
// Example with SQLite persistence:
//
//	st, _ := graphstore.NewSQLiteStore("./corpus.db")
//	sess, _ := coocgo.AnyLink().Store(st).Build()
func WithStore(st graphstore.Store) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithCacheSize wraps the store in an LRU read cache of the given size.
// Worth it for disk-backed stores; a pure memory store gains nothing.
//
// If size <= 0, no cache is added.
func WithCacheSize(size int) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

// WithCodec configures the codec used for encoding snapshot rows.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithResourceLimits configures admission control for memory, maintenance
// concurrency and snapshot IO. Zero fields disable the matching limit.
//
// Example:
//
//	sess, _ := coocgo.Clique(6).
//	    ResourceLimits(resource.Config{
//	        MemoryLimitBytes:   1 << 30,
//	        MaxMaintenanceJobs: 4,
//	    }).
//	    Build()
func WithResourceLimits(cfg resource.Config) Option {
	return func(o *options) {
		o.resourceCfg = cfg
		o.hasResourceCfg = true
	}
}

// WithEagerCrossSections materializes every cross-section copy at observe
// time instead of on demand. Merges skip their reconstruction phase at the
// cost of a larger index.
func WithEagerCrossSections(eager bool) Option {
	return func(o *options) {
		o.eagerCross = eager
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &coocgo.BasicMetricsCollector{}
//	sess, _ := coocgo.AnyLink().Metrics(metrics).Build()
//	// ... use sess ...
//	stats := metrics.GetStats()
//	fmt.Printf("Observes: %d, Avg latency: %dns\n", stats.ObserveCount, stats.ObserveAvgNanos)
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
//	logger := coocgo.NewJSONLogger(slog.LevelInfo)
//	sess, _ := coocgo.AnyLink().Logger(logger).Build()
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
		codec:            nil,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
