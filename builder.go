// Package coocgo provides an incremental co-occurrence statistics engine.
//
// This file implements relation-specific fluent builder APIs for creating and configuring sessions.
// Builders are immutable - each method returns a new builder with the updated configuration.
package coocgo

import (
	"github.com/hupe1980/coocgo/codec"
	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/pairs"
	"github.com/hupe1980/coocgo/resource"
)

// =============================================================================
// AnyLink Builder (Immutable)
// =============================================================================

// AnyLink creates a session builder for link-mediated counting: one pair per
// parser link, left and right ordered by sentence position.
//
// The builder is immutable - each method returns a new builder with the updated configuration.
// This ensures thread-safety and prevents accidental state sharing.
//
// Example:
//
//	sess, err := coocgo.AnyLink().
//	    Store(st).
//	    CacheSize(4096).
//	    Build()
func AnyLink() AnyLinkBuilder {
	return AnyLinkBuilder{}
}

// AnyLinkBuilder is an immutable fluent builder for creating link-counting sessions.
// Each method returns a new builder with the updated configuration.
type AnyLinkBuilder struct {
	store       graphstore.Store
	cacheSize   int
	codec       codec.Codec
	logger      *Logger
	metrics     MetricsCollector
	resourceCfg *resource.Config
	eagerCross  bool
}

// Store sets the backing row store. The session takes ownership and closes
// it on Close. Default: in-memory store.
func (b AnyLinkBuilder) Store(st graphstore.Store) AnyLinkBuilder {
	b.store = st
	return b
}

// CacheSize wraps the store in an LRU read cache of the given size.
// Worth it for disk-backed stores. Default: no cache.
func (b AnyLinkBuilder) CacheSize(size int) AnyLinkBuilder {
	b.cacheSize = size
	return b
}

// Logger sets the structured logger for operation tracing.
func (b AnyLinkBuilder) Logger(l *Logger) AnyLinkBuilder {
	b.logger = l
	return b
}

// Metrics sets the metrics collector for monitoring.
func (b AnyLinkBuilder) Metrics(mc MetricsCollector) AnyLinkBuilder {
	b.metrics = mc
	return b
}

// Codec sets the row codec for snapshot serialization.
func (b AnyLinkBuilder) Codec(c codec.Codec) AnyLinkBuilder {
	b.codec = c
	return b
}

// ResourceLimits configures admission control for memory, maintenance
// concurrency and snapshot IO.
func (b AnyLinkBuilder) ResourceLimits(cfg resource.Config) AnyLinkBuilder {
	b.resourceCfg = &cfg
	return b
}

// EagerCrossSections materializes every cross-section copy at observe time
// instead of on demand.
func (b AnyLinkBuilder) EagerCrossSections(eager bool) AnyLinkBuilder {
	b.eagerCross = eager
	return b
}

// Build creates the link-counting session.
func (b AnyLinkBuilder) Build() (*Session, error) {
	opts := sessionOptions(b.store, b.cacheSize, b.codec, b.logger, b.metrics, b.resourceCfg, b.eagerCross)

	return newSession(func(st graphstore.Store, optFns ...pairs.Option) pairs.API {
		return pairs.NewAnyLink(st, optFns...)
	}, opts)
}

// MustBuild creates the session, panicking on error.
func (b AnyLinkBuilder) MustBuild() *Session {
	sess, err := b.Build()
	if err != nil {
		panic(err)
	}
	return sess
}

// =============================================================================
// Clique Builder (Immutable)
// =============================================================================

// Clique creates a session builder for clique counting: every word pair of a
// sentence within the given window is counted, links or not. window <= 0
// disables the bound, pairing every word with every later word.
//
// The builder is immutable - each method returns a new builder with the updated configuration.
//
// Example:
//
//	sess, err := coocgo.Clique(6).
//	    Logger(coocgo.NewTextLogger(slog.LevelInfo)).
//	    Build()
func Clique(window int) CliqueBuilder {
	return CliqueBuilder{
		window: window,
	}
}

// CliqueBuilder is an immutable fluent builder for creating clique-counting sessions.
// Each method returns a new builder with the updated configuration.
type CliqueBuilder struct {
	window      int
	store       graphstore.Store
	cacheSize   int
	codec       codec.Codec
	logger      *Logger
	metrics     MetricsCollector
	resourceCfg *resource.Config
	eagerCross  bool
}

// Store sets the backing row store. The session takes ownership and closes
// it on Close. Default: in-memory store.
func (b CliqueBuilder) Store(st graphstore.Store) CliqueBuilder {
	b.store = st
	return b
}

// CacheSize wraps the store in an LRU read cache of the given size.
// Worth it for disk-backed stores. Default: no cache.
func (b CliqueBuilder) CacheSize(size int) CliqueBuilder {
	b.cacheSize = size
	return b
}

// Logger sets the structured logger for operation tracing.
func (b CliqueBuilder) Logger(l *Logger) CliqueBuilder {
	b.logger = l
	return b
}

// Metrics sets the metrics collector for monitoring.
func (b CliqueBuilder) Metrics(mc MetricsCollector) CliqueBuilder {
	b.metrics = mc
	return b
}

// Codec sets the row codec for snapshot serialization.
func (b CliqueBuilder) Codec(c codec.Codec) CliqueBuilder {
	b.codec = c
	return b
}

// ResourceLimits configures admission control for memory, maintenance
// concurrency and snapshot IO.
func (b CliqueBuilder) ResourceLimits(cfg resource.Config) CliqueBuilder {
	b.resourceCfg = &cfg
	return b
}

// EagerCrossSections materializes every cross-section copy at observe time
// instead of on demand.
func (b CliqueBuilder) EagerCrossSections(eager bool) CliqueBuilder {
	b.eagerCross = eager
	return b
}

// Build creates the clique-counting session.
func (b CliqueBuilder) Build() (*Session, error) {
	if b.window < 0 {
		return nil, ErrInvalidWindow
	}

	opts := sessionOptions(b.store, b.cacheSize, b.codec, b.logger, b.metrics, b.resourceCfg, b.eagerCross)

	return newSession(func(st graphstore.Store, optFns ...pairs.Option) pairs.API {
		return pairs.NewClique(st, b.window, optFns...)
	}, opts)
}

// MustBuild creates the session, panicking on error.
func (b CliqueBuilder) MustBuild() *Session {
	sess, err := b.Build()
	if err != nil {
		panic(err)
	}
	return sess
}

// =============================================================================
// DistanceClique Builder (Immutable)
// =============================================================================

// DistanceClique creates a session builder for distance-annotated clique
// counting: clique pairs plus a per-distance sub-count for separations up to
// maxDistance. window <= 0 disables the pairing bound; maxDistance <= 0
// records every distance.
//
// The builder is immutable - each method returns a new builder with the updated configuration.
//
// Example:
//
//	sess, err := coocgo.DistanceClique(6, 3).
//	    Store(st).
//	    Build()
func DistanceClique(window, maxDistance int) DistanceCliqueBuilder {
	return DistanceCliqueBuilder{
		window:      window,
		maxDistance: maxDistance,
	}
}

// DistanceCliqueBuilder is an immutable fluent builder for creating
// distance-counting sessions.
// Each method returns a new builder with the updated configuration.
type DistanceCliqueBuilder struct {
	window      int
	maxDistance int
	store       graphstore.Store
	cacheSize   int
	codec       codec.Codec
	logger      *Logger
	metrics     MetricsCollector
	resourceCfg *resource.Config
	eagerCross  bool
}

// Store sets the backing row store. The session takes ownership and closes
// it on Close. Default: in-memory store.
func (b DistanceCliqueBuilder) Store(st graphstore.Store) DistanceCliqueBuilder {
	b.store = st
	return b
}

// CacheSize wraps the store in an LRU read cache of the given size.
// Worth it for disk-backed stores. Default: no cache.
func (b DistanceCliqueBuilder) CacheSize(size int) DistanceCliqueBuilder {
	b.cacheSize = size
	return b
}

// Logger sets the structured logger for operation tracing.
func (b DistanceCliqueBuilder) Logger(l *Logger) DistanceCliqueBuilder {
	b.logger = l
	return b
}

// Metrics sets the metrics collector for monitoring.
func (b DistanceCliqueBuilder) Metrics(mc MetricsCollector) DistanceCliqueBuilder {
	b.metrics = mc
	return b
}

// Codec sets the row codec for snapshot serialization.
func (b DistanceCliqueBuilder) Codec(c codec.Codec) DistanceCliqueBuilder {
	b.codec = c
	return b
}

// ResourceLimits configures admission control for memory, maintenance
// concurrency and snapshot IO.
func (b DistanceCliqueBuilder) ResourceLimits(cfg resource.Config) DistanceCliqueBuilder {
	b.resourceCfg = &cfg
	return b
}

// EagerCrossSections materializes every cross-section copy at observe time
// instead of on demand.
func (b DistanceCliqueBuilder) EagerCrossSections(eager bool) DistanceCliqueBuilder {
	b.eagerCross = eager
	return b
}

// Build creates the distance-counting session.
func (b DistanceCliqueBuilder) Build() (*Session, error) {
	if b.window < 0 || b.maxDistance < 0 {
		return nil, ErrInvalidWindow
	}

	opts := sessionOptions(b.store, b.cacheSize, b.codec, b.logger, b.metrics, b.resourceCfg, b.eagerCross)

	return newSession(func(st graphstore.Store, optFns ...pairs.Option) pairs.API {
		return pairs.NewDistance(st, b.window, b.maxDistance, optFns...)
	}, opts)
}

// MustBuild creates the session, panicking on error.
func (b DistanceCliqueBuilder) MustBuild() *Session {
	sess, err := b.Build()
	if err != nil {
		panic(err)
	}
	return sess
}

func sessionOptions(st graphstore.Store, cacheSize int, c codec.Codec, l *Logger, mc MetricsCollector, cfg *resource.Config, eagerCross bool) []Option {
	var opts []Option

	if st != nil {
		opts = append(opts, WithStore(st))
	}
	if cacheSize > 0 {
		opts = append(opts, WithCacheSize(cacheSize))
	}
	if c != nil {
		opts = append(opts, WithCodec(c))
	}
	if l != nil {
		opts = append(opts, WithLogger(l))
	}
	if mc != nil {
		opts = append(opts, WithMetricsCollector(mc))
	}
	if cfg != nil {
		opts = append(opts, WithResourceLimits(*cfg))
	}
	if eagerCross {
		opts = append(opts, WithEagerCrossSections(true))
	}

	return opts
}
