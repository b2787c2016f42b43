package pairs

import (
	"context"

	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/model"
)

// Clique counts every ordered word pair co-occurring in a sentence,
// regardless of any link structure, up to a positional window.
type Clique struct {
	*base
	window int
}

var _ API = (*Clique)(nil)

// NewClique creates the clique pair vector. window caps how far apart two
// words may sit and still be counted; window <= 0 means unlimited.
func NewClique(store graphstore.Store, window int, optFns ...Option) *Clique {
	kind := model.PairClique
	return &Clique{
		base:   newBase(store, kind, []string{pairPrefix(kind)}, applyOptions(optFns)),
		window: window,
	}
}

// Window returns the positional window, 0 meaning unlimited.
func (c *Clique) Window() int {
	if c.window <= 0 {
		return 0
	}
	return c.window
}

// Observe counts every in-window word pair of the parse.
func (c *Clique) Observe(ctx context.Context, p model.Parse) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	n := 0
	for i := range p.Words {
		for j := i + 1; j < len(p.Words); j++ {
			if c.window > 0 && j-i > c.window {
				break
			}
			pair := model.Pair{Kind: c.kind, Left: p.WordAt(i), Right: p.WordAt(j)}
			if err := c.bump(ctx, pair, 1); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
