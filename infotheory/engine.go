package infotheory

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/model"
	"github.com/hupe1980/coocgo/pairs"
)

// Engine sweeps one pair vector, writing computed statistics into the
// Mean field of the affected rows. Counts are inputs only; the engines
// never modify them. Sweeps are idempotent: rerunning on unchanged counts
// rewrites identical values.
type Engine struct {
	api   pairs.API
	store graphstore.Store
}

// New creates a statistics engine over the given vector and store.
func New(api pairs.API, store graphstore.Store) *Engine {
	return &Engine{api: api, store: store}
}

// Report summarizes one statistics sweep.
type Report struct {
	Rows    int           // rows whose Mean was written
	Skipped int           // rows skipped by the zero guard
	Elapsed time.Duration // wall time of the sweep
}

// ComputeAllLogli writes every left entity's log-likelihood
// -log2(N(e,*)/N(*,*)) into the Mean of its right-wildcard row. The grand
// total is read once; all values of one sweep share that denominator.
// Entities whose marginal is zero are skipped and counted, not fatal.
func (e *Engine) ComputeAllLogli(ctx context.Context) (Report, error) {
	start := time.Now()

	if !e.api.Loaded() {
		return Report{}, pairs.ErrNotLoaded
	}
	total, err := e.grandTotal(ctx)
	if err != nil {
		return Report{}, err
	}

	seen := make(map[string]model.Entity)
	err = e.api.ForEach(func(p model.Pair, _ float64) error {
		if p.Kind != e.api.PairType() || p.IsMarginal() {
			return nil
		}
		seen[p.Left.Key()] = p.Left
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	report := Report{}
	for _, entity := range seen {
		row := e.api.RightWildcard(entity)
		count, err := graphstore.Count(ctx, e.store, row.Key())
		if err != nil {
			return report, err
		}
		logli, err := LogLikelihood(count, total)
		if err != nil {
			report.Skipped++
			continue
		}
		if err := graphstore.SetMean(ctx, e.store, row.Key(), logli, confidence(count)); err != nil {
			return report, err
		}
		report.Rows++
	}

	report.Elapsed = time.Since(start)
	return report, nil
}

// ComputeAllMI writes every concrete pair's pointwise mutual information
// into its row's Mean. Marginals must have been computed for the current
// counts; pairs failing the zero guard are skipped and counted.
func (e *Engine) ComputeAllMI(ctx context.Context) (Report, error) {
	start := time.Now()

	if !e.api.Loaded() {
		return Report{}, pairs.ErrNotLoaded
	}
	total, err := e.grandTotal(ctx)
	if err != nil {
		return Report{}, err
	}

	// Wildcard rows are consulted once per entity, not once per pair.
	marginalCache := make(map[string]float64)
	marginal := func(p model.Pair) (float64, error) {
		if c, ok := marginalCache[p.Key()]; ok {
			return c, nil
		}
		c, err := graphstore.Count(ctx, e.store, p.Key())
		if err != nil {
			return 0, err
		}
		marginalCache[p.Key()] = c
		return c, nil
	}

	report := Report{}
	err = e.api.ForEach(func(p model.Pair, count float64) error {
		if p.Kind != e.api.PairType() || p.IsMarginal() {
			return nil
		}

		nxAny, err := marginal(e.api.RightWildcard(p.Left))
		if err != nil {
			return err
		}
		nAnyY, err := marginal(e.api.LeftWildcard(p.Right))
		if err != nil {
			return err
		}

		mi, err := PairMI(count, nxAny, nAnyY, total)
		if err != nil {
			report.Skipped++
			return nil
		}
		if err := graphstore.SetMean(ctx, e.store, p.Key(), mi, confidence(count)); err != nil {
			return err
		}
		report.Rows++
		return nil
	})
	if err != nil {
		return report, err
	}

	report.Elapsed = time.Since(start)
	return report, nil
}

// LeftEntropy returns the Shannon entropy, in bits, of the left-entity
// distribution P(x) = N(x,*)/N(*,*).
func (e *Engine) LeftEntropy(ctx context.Context) (float64, error) {
	return e.marginalEntropy(ctx, func(p model.Pair) bool {
		return p.Right.IsWild() && !p.Left.IsWild()
	})
}

// RightEntropy returns the Shannon entropy, in bits, of the right-entity
// distribution P(y) = N(*,y)/N(*,*).
func (e *Engine) RightEntropy(ctx context.Context) (float64, error) {
	return e.marginalEntropy(ctx, func(p model.Pair) bool {
		return p.Left.IsWild() && !p.Right.IsWild()
	})
}

func (e *Engine) marginalEntropy(ctx context.Context, keep func(model.Pair) bool) (float64, error) {
	total, err := e.grandTotal(ctx)
	if err != nil {
		return 0, err
	}

	var probs []float64
	prefix := "P(" + string(e.api.PairType()) + ":"
	err = e.store.Scan(ctx, prefix, func(row graphstore.Row) error {
		p, err := model.ParsePairKey(row.Key)
		if err != nil {
			return err
		}
		if !keep(p) || row.Value.Count <= 0 {
			return nil
		}
		probs = append(probs, row.Value.Count/total)
		return nil
	})
	if err != nil {
		return 0, err
	}

	// stat.Entropy works in nats; convert to bits.
	return stat.Entropy(probs) / math.Ln2, nil
}

// grandTotal reads N(*,*) once. Zero means marginals were never computed
// (or the population is empty), which fails the whole sweep rather than
// silently producing garbage statistics.
func (e *Engine) grandTotal(ctx context.Context) (float64, error) {
	total, err := graphstore.Count(ctx, e.store, e.api.BothWildcard().Key())
	if err != nil {
		return 0, err
	}
	if total <= 0 {
		return 0, ErrNoMarginals
	}
	return total, nil
}

// confidence maps an observation count onto (0,1): more observations,
// more confidence in the computed statistic.
func confidence(count float64) float64 {
	if count <= 0 {
		return 0
	}
	return count / (count + 1)
}
