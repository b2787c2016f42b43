// Package pairs implements the sparse co-occurrence vectors: each API
// variant decides which word pairs of a parse are counted (parser links,
// sentence cliques, distance-capped cliques) while sharing one contract
// for lookup, wildcard access and bulk loading.
//
// An API instance owns its loaded-state explicitly. FetchAll is a blocking
// one-shot prefetch of the whole pair set; marginal and statistic sweeps
// over a partially loaded set would silently undercount, so they refuse to
// run until Loaded reports true.
package pairs

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/model"
	"github.com/hupe1980/coocgo/resource"
)

// API is the uniform contract over heterogeneous pair representations.
// Implementations are safe for concurrent use; the store is the
// serialization point for counting.
type API interface {
	// PairType returns the relation kind this vector keeps its primary
	// counts under.
	PairType() model.PairKind

	// LeftType and RightType declare the entity kinds admitted on each
	// side. Cluster entities are always admitted alongside the declared
	// kind; the wildcard never is.
	LeftType() model.EntityKind
	RightType() model.EntityKind

	// Pair looks up the concrete pair without creating it. The boolean
	// reports whether the pair has ever been counted.
	Pair(ctx context.Context, left, right model.Entity) (model.Pair, bool, error)

	// MakePair creates the pair row if missing and returns it. Idempotent.
	MakePair(ctx context.Context, left, right model.Entity) (model.Pair, error)

	// Count returns the stored count of a pair or wildcard row, 0 when
	// never observed.
	Count(ctx context.Context, p model.Pair) (float64, error)

	// LeftWildcard returns the marginal row N(*, right); RightWildcard
	// returns N(left, *); BothWildcard returns the grand total N(*, *).
	// The rows themselves are materialized by the marginal engine.
	LeftWildcard(right model.Entity) model.Pair
	RightWildcard(left model.Entity) model.Pair
	BothWildcard() model.Pair

	// Observe counts the pairs asserted by one parse and returns the
	// number of rows incremented.
	Observe(ctx context.Context, p model.Parse) (int, error)

	// FetchAll bulk-loads every pair of this kind from the store into the
	// working set. It blocks until complete (possibly minutes on a large
	// corpus) and is cancellable as a whole via ctx. Repeat calls are
	// no-ops once loaded.
	FetchAll(ctx context.Context) error

	// Loaded reports whether the working set holds the full pair set.
	Loaded() bool

	// ForEach visits every pair of the loaded working set, including
	// wildcard rows. Returns ErrNotLoaded before FetchAll.
	ForEach(fn func(p model.Pair, count float64) error) error

	// Len returns the size of the loaded working set, 0 before FetchAll.
	Len() int
}

// Option configures an API variant.
type Option func(*options)

type options struct {
	rc *resource.Controller
}

// WithController throttles FetchAll through the controller's IO budget.
func WithController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

func applyOptions(optFns []Option) options {
	var o options
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

// base carries the store-backed behavior shared by every variant. Only
// Observe differs between them.
type base struct {
	store    graphstore.Store
	rc       *resource.Controller
	kind     model.PairKind
	prefixes []string

	mu      sync.RWMutex
	fetchMu sync.Mutex
	loaded  bool
	working map[string]entry
}

type entry struct {
	pair  model.Pair
	count float64
}

func newBase(store graphstore.Store, kind model.PairKind, prefixes []string, opts options) *base {
	return &base{
		store:    store,
		rc:       opts.rc,
		kind:     kind,
		prefixes: prefixes,
	}
}

func (b *base) PairType() model.PairKind {
	return b.kind
}

func (b *base) LeftType() model.EntityKind {
	return model.EntityWord
}

func (b *base) RightType() model.EntityKind {
	return model.EntityWord
}

func (b *base) validate(left, right model.Entity) error {
	if !kindOK(left, b.LeftType()) {
		return fmt.Errorf("%w: left entity %s is %s, want %s", ErrWrongType, left, left.Kind, b.LeftType())
	}
	if !kindOK(right, b.RightType()) {
		return fmt.Errorf("%w: right entity %s is %s, want %s", ErrWrongType, right, right.Kind, b.RightType())
	}
	return nil
}

// kindOK admits the declared kind plus cluster entities, which stand in
// for merged words everywhere words are allowed.
func kindOK(e model.Entity, want model.EntityKind) bool {
	return e.Kind == want || e.Kind == model.EntityClass
}

func (b *base) Pair(ctx context.Context, left, right model.Entity) (model.Pair, bool, error) {
	if err := b.validate(left, right); err != nil {
		return model.Pair{}, false, err
	}
	p := model.Pair{Kind: b.kind, Left: left, Right: right}
	_, ok, err := b.store.Lookup(ctx, p.Key())
	if err != nil {
		return model.Pair{}, false, err
	}
	return p, ok, nil
}

func (b *base) MakePair(ctx context.Context, left, right model.Entity) (model.Pair, error) {
	if err := b.validate(left, right); err != nil {
		return model.Pair{}, err
	}
	p := model.Pair{Kind: b.kind, Left: left, Right: right}
	if err := b.store.Create(ctx, p.Key(), pairRefs(p)...); err != nil {
		return model.Pair{}, err
	}
	return p, nil
}

func (b *base) Count(ctx context.Context, p model.Pair) (float64, error) {
	return graphstore.Count(ctx, b.store, p.Key())
}

func (b *base) LeftWildcard(right model.Entity) model.Pair {
	return model.Pair{Kind: b.kind, Left: model.Wild, Right: right}
}

func (b *base) RightWildcard(left model.Entity) model.Pair {
	return model.Pair{Kind: b.kind, Left: left, Right: model.Wild}
}

func (b *base) BothWildcard() model.Pair {
	return model.Pair{Kind: b.kind, Left: model.Wild, Right: model.Wild}
}

func (b *base) FetchAll(ctx context.Context) error {
	// One fetch at a time; late callers block behind the first and then
	// find the set loaded.
	b.fetchMu.Lock()
	defer b.fetchMu.Unlock()

	if b.Loaded() {
		return nil
	}

	working := make(map[string]entry)
	for _, prefix := range b.prefixes {
		err := b.store.Scan(ctx, prefix, func(row graphstore.Row) error {
			if err := b.rc.AcquireIO(ctx, len(row.Key)); err != nil {
				return err
			}
			p, err := model.ParsePairKey(row.Key)
			if err != nil {
				return err
			}
			working[row.Key] = entry{pair: p, count: row.Value.Count}
			return nil
		})
		if err != nil {
			return fmt.Errorf("fetch %q pairs: %w", prefix, err)
		}
	}

	b.mu.Lock()
	b.working = working
	b.loaded = true
	b.mu.Unlock()
	return nil
}

func (b *base) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.loaded
}

func (b *base) ForEach(fn func(p model.Pair, count float64) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.loaded {
		return ErrNotLoaded
	}
	for _, e := range b.working {
		if err := fn(e.pair, e.count); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.working)
}

// bump counts one observation of p, creating the row on first use, and
// keeps the loaded working set in sync.
func (b *base) bump(ctx context.Context, p model.Pair, delta float64) error {
	count, err := graphstore.Ensure(ctx, b.store, p.Key(), delta, pairRefs(p)...)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.loaded {
		b.working[p.Key()] = entry{pair: p, count: count}
	}
	b.mu.Unlock()
	return nil
}

// pairRefs returns the entity keys a pair row references. The wildcard
// marker is not a real entity and is not indexed.
func pairRefs(p model.Pair) []string {
	refs := make([]string, 0, 2)
	for _, e := range []model.Entity{p.Left, p.Right} {
		if e.IsWild() {
			continue
		}
		refs = append(refs, e.Key())
	}
	return refs
}

// pairPrefix returns the store key prefix shared by every pair of kind.
func pairPrefix(kind model.PairKind) string {
	return "P(" + string(kind) + ":"
}
