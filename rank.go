// Package coocgo provides an incremental co-occurrence statistics engine.
//
// This file implements a fluent ranking API for querying the loaded pair set.
package coocgo

import (
	"context"
	"iter"
	"time"

	"github.com/hupe1980/coocgo/model"
	"github.com/hupe1980/coocgo/queue"
)

// Score selects the per-pair quantity rankings order by.
type Score uint8

const (
	// ScoreCount ranks by raw co-occurrence count.
	ScoreCount Score = iota

	// ScoreMean ranks by the statistic stored on the row. Concrete pair
	// rows carry pointwise mutual information after a
	// ComputeMutualInformation sweep.
	ScoreMean
)

// Rank creates a new fluent ranking builder over the loaded pair set.
// Requires a prior FetchAll.
//
// Example:
//
//	results, err := sess.Rank().
//	    Top(10).
//	    By(coocgo.ScoreMean).
//	    Execute(ctx)
//
//	// Or with streaming:
//	for result, err := range sess.Rank().Top(100).Stream(ctx) {
//	    if err != nil { break }
//	    if result.Score < threshold { break }
//	    process(result)
//	}
func (s *Session) Rank() *RankBuilder {
	return &RankBuilder{
		s:     s,
		k:     10, // Default k
		score: ScoreCount,
	}
}

// RankBuilder is a fluent builder for constructing ranking queries.
type RankBuilder struct {
	s     *Session
	k     int
	score Score

	// Filters
	filterFunc func(p model.Pair) bool
}

// Top sets the number of pairs to return. k <= 0 returns every pair.
func (rb *RankBuilder) Top(k int) *RankBuilder {
	rb.k = k
	return rb
}

// By sets the quantity pairs are ranked by.
func (rb *RankBuilder) By(score Score) *RankBuilder {
	rb.score = score
	return rb
}

// Where sets a filter function for ranked pairs.
// Only pairs where filter(p) returns true are considered.
func (rb *RankBuilder) Where(fn func(p model.Pair) bool) *RankBuilder {
	rb.filterFunc = fn
	return rb
}

// WhereLeft keeps only pairs whose left side is the given entity.
// Convenience method for the common partner listing pattern.
func (rb *RankBuilder) WhereLeft(e model.Entity) *RankBuilder {
	return rb.Where(func(p model.Pair) bool { return p.Left == e })
}

// WhereRight keeps only pairs whose right side is the given entity.
func (rb *RankBuilder) WhereRight(e model.Entity) *RankBuilder {
	return rb.Where(func(p model.Pair) bool { return p.Right == e })
}

// RankedPair is one ranking result.
type RankedPair struct {
	Pair  model.Pair
	Score float64
}

// Execute runs the ranking and returns results ordered best first.
// Wildcard rows never rank; only concrete pairs are considered.
func (rb *RankBuilder) Execute(ctx context.Context) ([]RankedPair, error) {
	start := time.Now()

	if err := rb.s.ensureOpen(); err != nil {
		return nil, err
	}

	topk := queue.NewTopK(rb.k)

	err := rb.s.pairs.ForEach(func(p model.Pair, count float64) error {
		if p.IsMarginal() {
			return nil
		}
		if rb.filterFunc != nil && !rb.filterFunc(p) {
			return nil
		}

		score := count
		if rb.score == ScoreMean {
			v, ok, err := rb.s.store.Lookup(ctx, p.Key())
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			score = v.Mean
		}

		topk.Add(p.Key(), score)
		return nil
	})
	if err != nil {
		err = translateError(err)
		rb.s.metrics.RecordRank(rb.k, time.Since(start), err)
		rb.s.logger.LogRank(ctx, rb.k, 0, err)
		return nil, err
	}

	items := topk.Results()
	results := make([]RankedPair, 0, len(items))
	for _, it := range items {
		p, err := model.ParsePairKey(it.Key)
		if err != nil {
			return nil, err
		}
		results = append(results, RankedPair{Pair: p, Score: it.Score})
	}

	rb.s.metrics.RecordRank(rb.k, time.Since(start), nil)
	rb.s.logger.LogRank(ctx, rb.k, len(results), nil)

	return results, nil
}

// MustExecute runs the ranking, panicking on error.
// Use this only in tests or when you're certain the pair set is loaded.
func (rb *RankBuilder) MustExecute(ctx context.Context) []RankedPair {
	results, err := rb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return results
}

// Stream returns an iterator over ranking results.
// Results are yielded in order from best to worst.
// The iterator supports early termination by breaking from the loop.
//
// Example:
//
//	for result, err := range sess.Rank().Top(100).Stream(ctx) {
//	    if err != nil { break }
//	    if result.Score < 1.0 { break } // Early termination
//	    process(result)
//	}
func (rb *RankBuilder) Stream(ctx context.Context) iter.Seq2[RankedPair, error] {
	return func(yield func(RankedPair, error) bool) {
		results, err := rb.Execute(ctx)
		if err != nil {
			yield(RankedPair{}, err)
			return
		}
		for _, r := range results {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// First returns only the best result, or an error if none found.
func (rb *RankBuilder) First(ctx context.Context) (RankedPair, error) {
	rb.k = 1
	results, err := rb.Execute(ctx)
	if err != nil {
		return RankedPair{}, err
	}
	if len(results) == 0 {
		return RankedPair{}, ErrNotFound
	}
	return results[0], nil
}

// Count executes the ranking and returns the number of results.
func (rb *RankBuilder) Count(ctx context.Context) (int, error) {
	results, err := rb.Execute(ctx)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

// Exists checks if at least one pair matches the ranking filters.
func (rb *RankBuilder) Exists(ctx context.Context) (bool, error) {
	rb.k = 1
	results, err := rb.Execute(ctx)
	if err != nil {
		return false, err
	}
	return len(results) > 0, nil
}
