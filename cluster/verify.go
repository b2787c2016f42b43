package cluster

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hupe1980/coocgo/graphstore"
)

// DefaultEpsilon bounds the count drift Verify tolerates.
const DefaultEpsilon = 1e-9

// Violation reports one cross-section whose count drifted from its
// section's count.
type Violation struct {
	Key  string
	Want float64
	Got  float64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: want %v, got %v", v.Key, v.Want, v.Got)
}

// Verify checks detailed balance over the whole index: every
// materialized cross-section must carry its section's count, and every
// indexed cross-section must reassemble into a live section. Violations
// are reported, never repaired. eps <= 0 selects DefaultEpsilon.
func (m *Merger) Verify(ctx context.Context, eps float64) ([]Violation, error) {
	if eps <= 0 {
		eps = DefaultEpsilon
	}

	var out []Violation
	for _, sec := range m.ix.Sections() {
		want, err := graphstore.Count(ctx, m.store, sec.Key())
		if err != nil {
			return nil, err
		}
		for _, x := range sec.Explode() {
			if _, ok := m.ix.Lookup(x.Key()); !ok {
				// Unmaterialized copies are balanced by definition.
				continue
			}
			got, err := graphstore.Count(ctx, m.store, x.Key())
			if err != nil {
				return nil, err
			}
			if math.Abs(got-want) > eps {
				out = append(out, Violation{Key: x.Key(), Want: want, Got: got})
			}
		}
	}

	// Cross-sections without a section carry counts nothing balances.
	for _, x := range m.ix.Crosses() {
		if _, ok := m.ix.Lookup(x.Reassemble().Key()); ok {
			continue
		}
		got, err := graphstore.Count(ctx, m.store, x.Key())
		if err != nil {
			return nil, err
		}
		if math.Abs(got) > eps {
			out = append(out, Violation{Key: x.Key(), Want: 0, Got: got})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
