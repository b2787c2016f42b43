package pairs

import (
	"context"

	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/model"
)

// AnyLink counts one pair per parser-asserted link, ordered by sentence
// position. Link labels are ignored: any relationship between two words
// counts as the same "any" kind.
type AnyLink struct {
	*base
}

var _ API = (*AnyLink)(nil)

// NewAnyLink creates the link-based pair vector.
func NewAnyLink(store graphstore.Store, optFns ...Option) *AnyLink {
	kind := model.PairAnyLink
	return &AnyLink{
		base: newBase(store, kind, []string{pairPrefix(kind)}, applyOptions(optFns)),
	}
}

// Observe counts every link of the parse. Malformed parses are rejected
// whole; no partial counting.
func (a *AnyLink) Observe(ctx context.Context, p model.Parse) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	n := 0
	for _, l := range p.Links {
		pair := model.Pair{Kind: a.kind, Left: p.WordAt(l.Left), Right: p.WordAt(l.Right)}
		if err := a.bump(ctx, pair, 1); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
