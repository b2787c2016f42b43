// Package marginals computes and persists the wildcard sums of a pair
// vector: N(x,*) over every right partner of x, N(*,y) over every left
// partner of y, and the grand total N(*,*). The sweep requires the full
// pair set; a partial working set would silently undercount, so the
// engine refuses to run before FetchAll completes.
package marginals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/model"
	"github.com/hupe1980/coocgo/pairs"
)

// DefaultEpsilon is the tolerance distinguishing float accumulation noise
// from a real marginal violation.
const DefaultEpsilon = 1e-9

// Engine sweeps one pair vector. Wildcard rows are reset and rewritten on
// every run ("delete then recompute"), never incrementally patched.
type Engine struct {
	api   pairs.API
	store graphstore.Store
}

// New creates a marginal engine over the given vector and store.
func New(api pairs.API, store graphstore.Store) *Engine {
	return &Engine{api: api, store: store}
}

// Report summarizes one marginal sweep.
type Report struct {
	Entities  int           // distinct entities swept
	Pairs     int           // concrete pair rows summed
	Wildcards int           // wildcard rows written
	Total     float64       // grand total N(*,*)
	Elapsed   time.Duration // wall time of the sweep
}

// Violation is one failed marginal identity found by Verify.
type Violation struct {
	Key  string  // wildcard row key
	Want float64 // sum recomputed from the working set
	Got  float64 // count currently stored
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: stored %v, recomputed %v", v.Key, v.Got, v.Want)
}

// ComputeAll recomputes every wildcard row of the vector from its fully
// loaded working set. Returns pairs.ErrNotLoaded if FetchAll has not
// completed. An entity with no partners simply gets no wildcard row;
// looking its marginal up later yields 0.
func (e *Engine) ComputeAll(ctx context.Context) (Report, error) {
	start := time.Now()

	if !e.api.Loaded() {
		return Report{}, pairs.ErrNotLoaded
	}

	gathered, stale, err := e.gather()
	if err != nil {
		return Report{}, err
	}

	// Delete-then-recompute: stale wildcard rows from an earlier sweep
	// are dropped before the fresh ones are written, so entities that
	// lost all partners don't keep ghost marginals.
	for _, key := range stale {
		if err := e.store.Delete(ctx, key); err != nil && !errors.Is(err, graphstore.ErrNotFound) {
			return Report{}, fmt.Errorf("reset wildcard %s: %w", key, err)
		}
	}

	report := Report{
		Entities: len(gathered.entities),
		Pairs:    gathered.pairs,
	}

	for _, g := range gathered.rights {
		if err := e.writeWildcard(ctx, e.api.RightWildcard(g.entity), floats.Sum(g.counts)); err != nil {
			return Report{}, err
		}
		report.Wildcards++
	}
	for _, g := range gathered.lefts {
		if err := e.writeWildcard(ctx, e.api.LeftWildcard(g.entity), floats.Sum(g.counts)); err != nil {
			return Report{}, err
		}
		report.Wildcards++
	}

	report.Total = floats.Sum(gathered.all)
	if err := e.writeWildcard(ctx, e.api.BothWildcard(), report.Total); err != nil {
		return Report{}, err
	}
	report.Wildcards++

	report.Elapsed = time.Since(start)
	return report, nil
}

// Verify recomputes every marginal from the working set and compares it
// against the stored wildcard rows, within eps (<= 0 means
// DefaultEpsilon). It reports violations; it never repairs them.
func (e *Engine) Verify(ctx context.Context, eps float64) ([]Violation, error) {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	if !e.api.Loaded() {
		return nil, pairs.ErrNotLoaded
	}

	gathered, _, err := e.gather()
	if err != nil {
		return nil, err
	}

	var violations []Violation
	check := func(p model.Pair, want float64) error {
		got, err := graphstore.Count(ctx, e.store, p.Key())
		if err != nil {
			return err
		}
		if math.Abs(got-want) > eps {
			violations = append(violations, Violation{Key: p.Key(), Want: want, Got: got})
		}
		return nil
	}

	for _, g := range gathered.rights {
		if err := check(e.api.RightWildcard(g.entity), floats.Sum(g.counts)); err != nil {
			return nil, err
		}
	}
	for _, g := range gathered.lefts {
		if err := check(e.api.LeftWildcard(g.entity), floats.Sum(g.counts)); err != nil {
			return nil, err
		}
	}
	if err := check(e.api.BothWildcard(), floats.Sum(gathered.all)); err != nil {
		return nil, err
	}
	return violations, nil
}

type gatheredSums struct {
	rights   map[string]*partnerSums // left entity key -> counts over its right partners
	lefts    map[string]*partnerSums // right entity key -> counts over its left partners
	entities map[string]struct{}
	all      []float64
	pairs    int
}

type partnerSums struct {
	entity model.Entity
	counts []float64
}

// gather walks the working set once, splitting concrete rows of the
// vector's own kind into per-entity count slices. Wildcard rows met along
// the way are collected as stale keys for the reset; sub-count rows of
// other kinds (per-distance cliques) are ignored.
func (e *Engine) gather() (*gatheredSums, []string, error) {
	g := &gatheredSums{
		rights:   make(map[string]*partnerSums),
		lefts:    make(map[string]*partnerSums),
		entities: make(map[string]struct{}),
	}
	var stale []string

	err := e.api.ForEach(func(p model.Pair, count float64) error {
		if p.Kind != e.api.PairType() {
			return nil
		}
		if p.IsMarginal() {
			stale = append(stale, p.Key())
			return nil
		}

		g.pairs++
		g.all = append(g.all, count)
		g.entities[p.Left.Key()] = struct{}{}
		g.entities[p.Right.Key()] = struct{}{}

		r, ok := g.rights[p.Left.Key()]
		if !ok {
			r = &partnerSums{entity: p.Left}
			g.rights[p.Left.Key()] = r
		}
		r.counts = append(r.counts, count)

		l, ok := g.lefts[p.Right.Key()]
		if !ok {
			l = &partnerSums{entity: p.Right}
			g.lefts[p.Right.Key()] = l
		}
		l.counts = append(l.counts, count)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return g, stale, nil
}

// writeWildcard materializes one wildcard row with the given count. The
// concrete side is registered as the row's reference; the wildcard marker
// is not an entity and is not indexed.
func (e *Engine) writeWildcard(ctx context.Context, p model.Pair, sum float64) error {
	var refs []string
	if !p.Left.IsWild() {
		refs = append(refs, p.Left.Key())
	}
	if !p.Right.IsWild() {
		refs = append(refs, p.Right.Key())
	}
	if err := e.store.Create(ctx, p.Key(), refs...); err != nil {
		return err
	}
	v, _, err := e.store.Lookup(ctx, p.Key())
	if err != nil {
		return err
	}
	v.Count = sum
	return e.store.SetValue(ctx, p.Key(), v)
}
