package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/model"
	"github.com/hupe1980/coocgo/sections"
)

func right(name string) model.Connector {
	return model.Connector{Dir: model.DirRight, Target: model.Word(name)}
}

func left(name string) model.Connector {
	return model.Connector{Dir: model.DirLeft, Target: model.Word(name)}
}

func sec(germ model.Entity, conns ...model.Connector) model.Section {
	return model.Section{Germ: germ, Seq: model.ConnectorSeq(conns)}
}

func addSection(t *testing.T, ix *sections.Index, s model.Section, count float64) {
	t.Helper()

	_, err := ix.AddSection(context.Background(), s, count)
	require.NoError(t, err)
}

func storeCount(t *testing.T, store graphstore.Store, key string) float64 {
	t.Helper()

	c, err := graphstore.Count(context.Background(), store, key)
	require.NoError(t, err)
	return c
}

func newMerger(t *testing.T, store graphstore.Store, ix *sections.Index, policy Policy) *Merger {
	t.Helper()

	m, err := NewMerger(store, ix, policy)
	require.NoError(t, err)
	return m
}

func snapshotCounts(t *testing.T, store graphstore.Store, prefix string) map[string]float64 {
	t.Helper()

	out := make(map[string]float64)
	err := store.Scan(context.Background(), prefix, func(r graphstore.Row) error {
		out[r.Key] = r.Value.Count
		return nil
	})
	require.NoError(t, err)
	return out
}

func requireBalanced(t *testing.T, m *Merger) {
	t.Helper()

	violations, err := m.Verify(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr error
	}{
		{"Default", DefaultPolicy, nil},
		{"FullMove", Policy{Fraction: 1}, nil},
		{"NegativeFraction", Policy{Fraction: -0.1}, ErrFractionRange},
		{"FractionAboveOne", Policy{Fraction: 1.1}, ErrFractionRange},
		{"NegativeNoise", Policy{Fraction: 0.5, NoiseFloor: -1}, ErrNoiseNegative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMerger_Merge_Direct(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemStore()
	ix := sections.New(store)

	// Germ e seen 5 times and germ j 3 times with the same context.
	e, j := model.Word("e"), model.Word("j")
	addSection(t, ix, sec(e, right("a"), right("b"), right("c")), 5)
	addSection(t, ix, sec(j, right("a"), right("b"), right("c")), 3)

	m := newMerger(t, store, ix, Policy{Fraction: 0.6, NoiseFloor: 0})
	rep, err := m.Merge(ctx, e, j)
	require.NoError(t, err)

	cluster := model.Class("e", "j")
	assert.Equal(t, cluster, rep.Cluster)
	assert.False(t, rep.NoOp)
	assert.Equal(t, 2, rep.Direct)
	assert.Zero(t, rep.Crosses)
	assert.Zero(t, rep.TieBreaks)
	assert.NotEmpty(t, rep.StepID)
	assert.InDelta(t, 0.6*5+0.6*3, rep.Moved, 1e-9)

	// Moved and retained amounts sum to the original totals per donor.
	assert.InDelta(t, 4.8, storeCount(t, store, sec(cluster, right("a"), right("b"), right("c")).Key()), 1e-9)
	assert.InDelta(t, 2.0, storeCount(t, store, sec(e, right("a"), right("b"), right("c")).Key()), 1e-9)
	assert.InDelta(t, 1.2, storeCount(t, store, sec(j, right("a"), right("b"), right("c")).Key()), 1e-9)

	// Redistribution conserves observation mass.
	assert.InDelta(t, 8.0, rep.TotalBefore, 1e-9)
	assert.InDelta(t, rep.TotalBefore, rep.TotalAfter+rep.Collected, 1e-9)

	members, err := m.Members(ctx, cluster)
	require.NoError(t, err)
	assert.Equal(t, []model.Entity{e, j}, members)

	requireBalanced(t, m)
}

func TestMerger_Merge_CrossPropagation(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemStore()
	ix := sections.New(store)

	// e never appears as a germ, only nested inside w's context.
	e, j, w := model.Word("e"), model.Word("j"), model.Word("w")
	addSection(t, ix, sec(w, left("e")), 4)

	m := newMerger(t, store, ix, Policy{Fraction: 0.5, NoiseFloor: 0})
	rep, err := m.Merge(ctx, e, j)
	require.NoError(t, err)

	assert.Zero(t, rep.Direct)
	assert.Equal(t, 1, rep.Crosses)
	assert.Equal(t, 1, rep.Rebuilt)

	cluster := model.Class("e", "j")
	donor := sec(w, left("e"))
	merged := sec(w, model.Connector{Dir: model.DirLeft, Target: cluster})
	assert.InDelta(t, 2.0, storeCount(t, store, donor.Key()), 1e-9)
	assert.InDelta(t, 2.0, storeCount(t, store, merged.Key()), 1e-9)

	// The cross rows moved the same mass as their sections.
	assert.InDelta(t, 2.0, storeCount(t, store, donor.CrossAt(0).Key()), 1e-9)
	assert.InDelta(t, 2.0, storeCount(t, store, merged.CrossAt(0).Key()), 1e-9)

	requireBalanced(t, m)
}

func TestMerger_Merge_MultiMention(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemStore()
	ix := sections.New(store)

	// Both slots of w's context mention donor e; each mention moves the
	// fraction of the count left by the previous one.
	e, j, w := model.Word("e"), model.Word("j"), model.Word("w")
	donor := sec(w, left("e"), right("e"))
	addSection(t, ix, donor, 8)

	m := newMerger(t, store, ix, Policy{Fraction: 0.5, NoiseFloor: 0})
	rep, err := m.Merge(ctx, e, j)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Crosses)

	cluster := model.Class("e", "j")
	half := sec(w, model.Connector{Dir: model.DirLeft, Target: cluster}, right("e"))
	otherHalf := sec(w, left("e"), model.Connector{Dir: model.DirRight, Target: cluster})

	assert.InDelta(t, 2.0, storeCount(t, store, donor.Key()), 1e-9)
	assert.InDelta(t, 4.0, storeCount(t, store, half.Key()), 1e-9)
	assert.InDelta(t, 2.0, storeCount(t, store, otherHalf.Key()), 1e-9)

	requireBalanced(t, m)
}

func TestMerger_Merge_NoiseMovesWhole(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemStore()
	ix := sections.New(store)

	e, j := model.Word("e"), model.Word("j")
	addSection(t, ix, sec(e, right("a")), 5)
	addSection(t, ix, sec(e, right("b")), 0.8)
	addSection(t, ix, sec(j, right("b")), 0.9)

	m := newMerger(t, store, ix, Policy{Fraction: 0.6, NoiseFloor: 1})
	rep, err := m.Merge(ctx, e, j)
	require.NoError(t, err)

	cluster := model.Class("e", "j")

	// Counts above the floor split; counts at or below it move whole and
	// their emptied rows are collected.
	assert.InDelta(t, 2.0, storeCount(t, store, sec(e, right("a")).Key()), 1e-9)
	assert.InDelta(t, 3.0, storeCount(t, store, sec(cluster, right("a")).Key()), 1e-9)
	assert.InDelta(t, 1.7, storeCount(t, store, sec(cluster, right("b")).Key()), 1e-9)
	assert.Equal(t, 2, rep.Deleted)

	_, ok := ix.Lookup(sec(e, right("b")).Key())
	assert.False(t, ok)
	_, ok = ix.Lookup(sec(j, right("b")).Key())
	assert.False(t, ok)

	assert.InDelta(t, rep.TotalBefore, rep.TotalAfter+rep.Collected, 1e-9)
	requireBalanced(t, m)
}

func TestMerger_Merge_TieBreak(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemStore()
	ix := sections.New(store)

	// Germ e mentions the other donor j, and a half-merged alternate on
	// the cluster germ already exists.
	e, j := model.Word("e"), model.Word("j")
	cluster := model.Class("e", "j")
	addSection(t, ix, sec(e, right("j")), 4)
	addSection(t, ix, sec(j, right("x")), 2)
	addSection(t, ix, sec(cluster, right("j")), 3)

	m := newMerger(t, store, ix, Policy{Fraction: 0.5, NoiseFloor: 0})
	rep, err := m.Merge(ctx, e, j)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Direct)    // (j | x+)
	assert.Equal(t, 1, rep.Crosses)   // j nested in the alternate row
	assert.Equal(t, 1, rep.TieBreaks) // (e | j+)

	clusterConn := model.Connector{Dir: model.DirRight, Target: cluster}
	full := sec(cluster, clusterConn)

	// Half of the tie-break row plus the alternate's propagated half.
	assert.InDelta(t, 3.5, storeCount(t, store, full.Key()), 1e-9)
	assert.InDelta(t, 2.0, storeCount(t, store, sec(e, right("j")).Key()), 1e-9)

	// The naive alternate was zeroed and collected.
	_, ok := ix.Lookup(sec(cluster, right("j")).Key())
	assert.False(t, ok)
	assert.InDelta(t, 1.5, rep.Collected, 1e-9)

	assert.InDelta(t, 9.0, rep.TotalBefore, 1e-9)
	assert.InDelta(t, rep.TotalBefore, rep.TotalAfter+rep.Collected, 1e-9)
	requireBalanced(t, m)
}

func TestMerger_Merge_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemStore()
	ix := sections.New(store)

	e, j := model.Word("e"), model.Word("j")
	addSection(t, ix, sec(e, right("a")), 5)
	addSection(t, ix, sec(j, right("a")), 3)

	m := newMerger(t, store, ix, Policy{Fraction: 0.6, NoiseFloor: 0})
	_, err := m.Merge(ctx, e, j)
	require.NoError(t, err)

	before := snapshotCounts(t, store, "")
	rep, err := m.Merge(ctx, e, j)
	require.NoError(t, err)
	assert.True(t, rep.NoOp)
	assert.Equal(t, before, snapshotCounts(t, store, ""))

	// Re-merging a member into its own cluster is equally a no-op.
	rep, err = m.Merge(ctx, model.Class("e", "j"), e)
	require.NoError(t, err)
	assert.True(t, rep.NoOp)
	assert.Equal(t, before, snapshotCounts(t, store, ""))
}

func TestMerger_Merge_OrderIndependence(t *testing.T) {
	ctx := context.Background()

	a, b, c, w := model.Word("a"), model.Word("b"), model.Word("c"), model.Word("w")

	build := func() (graphstore.Store, *sections.Index) {
		store := graphstore.NewMemStore()
		ix := sections.New(store)
		addSection(t, ix, sec(a, right("z")), 4)
		addSection(t, ix, sec(b, right("z")), 2)
		addSection(t, ix, sec(c, right("z")), 1)
		addSection(t, ix, sec(w, left("a")), 4)
		return store, ix
	}

	run := func(first, second model.Entity) map[string]float64 {
		store, ix := build()
		m := newMerger(t, store, ix, Policy{Fraction: 0.5, NoiseFloor: 0})

		rep, err := m.Merge(ctx, a, first)
		require.NoError(t, err)
		_, err = m.Merge(ctx, rep.Cluster, second)
		require.NoError(t, err)

		requireBalanced(t, m)
		return snapshotCounts(t, store, "S(")
	}

	viaB := run(b, c)
	viaC := run(c, b)

	require.Len(t, viaC, len(viaB))
	for key, want := range viaB {
		got, ok := viaC[key]
		require.True(t, ok, "missing %s", key)
		assert.InDelta(t, want, got, 1e-9, key)
	}

	// The intermediate two-member cluster forwarded its whole mass and
	// was collected on the way.
	cluster3 := model.Class("a", "b", "c")
	_, ok := viaB[sec(model.Class("a", "b"), right("z")).Key()]
	assert.False(t, ok)
	assert.InDelta(t, 3.5, viaB[sec(cluster3, right("z")).Key()], 1e-9)
}

func TestMerger_Merge_Validation(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemStore()
	ix := sections.New(store)

	_, err := NewMerger(store, ix, Policy{Fraction: 1.2})
	assert.ErrorIs(t, err, ErrFractionRange)
	_, err = NewMerger(store, ix, Policy{Fraction: 0.5, NoiseFloor: -0.1})
	assert.ErrorIs(t, err, ErrNoiseNegative)

	m := newMerger(t, store, ix, DefaultPolicy)

	tests := []struct {
		name string
		a, b model.Entity
	}{
		{"Wildcard", model.Wild, model.Word("j")},
		{"EmptyName", model.Word(""), model.Word("j")},
		{"SelfMerge", model.Word("e"), model.Word("e")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Merge(ctx, tt.a, tt.b)
			assert.ErrorIs(t, err, ErrBadDonor)
		})
	}

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "rejected merges must not touch the store")
}

func TestMerger_Reconcile(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemStore()

	seed := sections.New(store)
	e := model.Word("e")
	donor := sec(e, right("a"))
	addSection(t, seed, donor, 2)
	_, err := seed.Explode(ctx, donor)
	require.NoError(t, err)

	// A fresh index knows nothing until it reconciles against the store.
	ix := sections.New(store)
	m := newMerger(t, store, ix, DefaultPolicy)

	fixed, err := m.Reconcile(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)
	assert.Len(t, ix.SectionsOn(e), 1)
	secs, crosses := ix.Counts()
	assert.Equal(t, 1, secs)
	assert.Equal(t, 1, crosses)

	// Rows deleted behind the index's back are unlinked on the next pass.
	require.NoError(t, store.Delete(ctx, donor.Key()))
	fixed, err = m.Reconcile(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)
	_, ok := ix.Lookup(donor.Key())
	assert.False(t, ok)
}
