package pairs

import (
	"context"

	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/model"
)

// Distance counts like Clique and additionally keeps one sub-count row per
// positional distance, under the clique-d<d> kinds. The clique row of a
// pair then equals the sum of its per-distance rows whenever maxDistance
// covers the window, which makes undercounting detectable.
//
// Per-distance rows multiply storage by up to the window size; prefer
// Clique unless the distance profile is actually needed.
type Distance struct {
	*base
	window      int
	maxDistance int
}

var _ API = (*Distance)(nil)

// NewDistance creates the distance-capped clique pair vector. window caps
// which pairs count at all (<= 0 unlimited); maxDistance caps which
// distances get their own sub-count row (<= 0 meaning every counted pair).
func NewDistance(store graphstore.Store, window, maxDistance int, optFns ...Option) *Distance {
	kind := model.PairClique
	// The working set needs the sub-count rows too: "P(clique" covers
	// both "P(clique:" and every "P(clique-d<d>:".
	return &Distance{
		base:        newBase(store, kind, []string{"P(clique"}, applyOptions(optFns)),
		window:      window,
		maxDistance: maxDistance,
	}
}

// Observe counts every in-window word pair of the parse, plus its
// per-distance sub-count row.
func (d *Distance) Observe(ctx context.Context, p model.Parse) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	n := 0
	for i := range p.Words {
		for j := i + 1; j < len(p.Words); j++ {
			dist := j - i
			if d.window > 0 && dist > d.window {
				break
			}
			pair := model.Pair{Kind: d.kind, Left: p.WordAt(i), Right: p.WordAt(j)}
			if err := d.bump(ctx, pair, 1); err != nil {
				return n, err
			}
			n++

			if d.maxDistance > 0 && dist > d.maxDistance {
				continue
			}
			sub := model.Pair{Kind: model.CliqueDistance(dist), Left: pair.Left, Right: pair.Right}
			if err := d.bump(ctx, sub, 1); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// DistanceCount returns the stored sub-count for a pair at one exact
// positional distance.
func (d *Distance) DistanceCount(ctx context.Context, left, right model.Entity, dist int) (float64, error) {
	p := model.Pair{Kind: model.CliqueDistance(dist), Left: left, Right: right}
	return graphstore.Count(ctx, d.store, p.Key())
}
