package coocgo

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/coocgo/archive"
	"github.com/hupe1980/coocgo/model"
	"github.com/hupe1980/coocgo/testutil"
)

func TestSession(t *testing.T) {
	ctx := context.Background()

	short := model.Parse{
		Words: []string{"the", "cat"},
		Links: []model.Link{
			{Left: 0, Right: 1, Label: "D"},
		},
	}
	long := model.Parse{
		Words: []string{"the", "cat", "runs"},
		Links: []model.Link{
			{Left: 0, Right: 1, Label: "D"},
			{Left: 1, Right: 2, Label: "S"},
		},
	}

	t.Run("ObserveAndCount", func(t *testing.T) {
		sess := AnyLink().MustBuild()
		defer sess.Close()

		rows, err := sess.Observe(ctx, long)
		require.NoError(t, err)
		assert.Equal(t, 5, rows) // 2 pair rows + 3 section rows

		count, err := sess.Count(ctx, model.Word("the"), model.Word("cat"))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, count, 1e-9)

		_, err = sess.Observe(ctx, long)
		require.NoError(t, err)

		count, err = sess.Count(ctx, model.Word("the"), model.Word("cat"))
		require.NoError(t, err)
		assert.InDelta(t, 2.0, count, 1e-9)

		count, err = sess.Count(ctx, model.Word("cat"), model.Word("the"))
		require.NoError(t, err)
		assert.Zero(t, count) // pairs are ordered
	})

	t.Run("ObserveMalformed", func(t *testing.T) {
		sess := AnyLink().MustBuild()
		defer sess.Close()

		inverted := model.Parse{
			Words: []string{"a", "b"},
			Links: []model.Link{
				{Left: 1, Right: 0, Label: "X"},
			},
		}

		_, err := sess.Observe(ctx, inverted)
		require.ErrorIs(t, err, ErrMalformedParse)

		stats, err := sess.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.StoreRows) // rejected parses leave no trace
	})

	t.Run("ObserveBatch", func(t *testing.T) {
		sess := AnyLink().MustBuild()
		defer sess.Close()

		inverted := model.Parse{
			Words: []string{"a", "b"},
			Links: []model.Link{
				{Left: 1, Right: 0, Label: "X"},
			},
		}

		rep, err := sess.ObserveBatch(ctx, []model.Parse{short, long, inverted})
		require.NoError(t, err)
		assert.Equal(t, 2, rep.Observed)
		assert.Equal(t, 1, rep.Skipped)
		assert.Equal(t, 8, rep.Rows) // 3 from short, 5 from long
	})

	t.Run("MarginalsAndStatistics", func(t *testing.T) {
		sess := AnyLink().MustBuild()
		defer sess.Close()

		_, err := sess.Observe(ctx, short)
		require.NoError(t, err)
		_, err = sess.Observe(ctx, long)
		require.NoError(t, err)

		require.NoError(t, sess.FetchAll(ctx))

		// Counts: (the,cat)=2, (cat,runs)=1, grand total 3.
		mrep, err := sess.ComputeMarginals(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, mrep.Pairs)
		assert.Equal(t, 5, mrep.Wildcards)
		assert.InDelta(t, 3.0, mrep.Total, 1e-9)

		llrep, err := sess.ComputeLogLikelihoods(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, llrep.Rows) // one per left entity
		assert.Zero(t, llrep.Skipped)

		// LL(the) = -log2(2/3), stored on the N(the,*) row.
		row := sess.pairs.RightWildcard(model.Word("the"))
		v, ok, err := sess.store.Lookup(ctx, row.Key())
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, math.Log2(1.5), v.Mean, 1e-9)

		mirep, err := sess.ComputeMutualInformation(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, mirep.Rows)
		assert.Zero(t, mirep.Skipped)

		// MI(the,cat) = log2(2*3/(2*2)), MI(cat,runs) = log2(1*3/(1*1)).
		p, ok, err := sess.pairs.Pair(ctx, model.Word("the"), model.Word("cat"))
		require.NoError(t, err)
		require.True(t, ok)
		v, ok, err = sess.store.Lookup(ctx, p.Key())
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, math.Log2(1.5), v.Mean, 1e-9)

		p, ok, err = sess.pairs.Pair(ctx, model.Word("cat"), model.Word("runs"))
		require.NoError(t, err)
		require.True(t, ok)
		v, ok, err = sess.store.Lookup(ctx, p.Key())
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, math.Log2(3), v.Mean, 1e-9)
	})

	t.Run("MergeAndVerify", func(t *testing.T) {
		sess := AnyLink().MustBuild()
		defer sess.Close()

		dog := model.Parse{
			Words: []string{"the", "dog", "runs"},
			Links: []model.Link{
				{Left: 0, Right: 1, Label: "D"},
				{Left: 1, Right: 2, Label: "S"},
			},
		}
		cat := model.Parse{
			Words: []string{"the", "cat", "runs"},
			Links: []model.Link{
				{Left: 0, Right: 1, Label: "D"},
				{Left: 1, Right: 2, Label: "S"},
			},
		}

		_, err := sess.Observe(ctx, dog)
		require.NoError(t, err)
		_, err = sess.Observe(ctx, cat)
		require.NoError(t, err)

		cls, rep, err := sess.Merge(ctx, model.Word("dog"), model.Word("cat"), 0.5, 0)
		require.NoError(t, err)
		assert.False(t, rep.NoOp)
		assert.Equal(t, model.EntityClass, cls.Kind)
		assert.Equal(t, "cat dog", cls.Name)
		assert.Greater(t, rep.Moved, 0.0)
		assert.Zero(t, rep.Collected)
		assert.InDelta(t, rep.TotalBefore, rep.TotalAfter, 1e-9)

		report, err := sess.VerifyConsistency(ctx)
		require.NoError(t, err)
		assert.True(t, report.Pass())
	})

	t.Run("MergeInvalidPolicy", func(t *testing.T) {
		sess := AnyLink().MustBuild()
		defer sess.Close()

		_, _, err := sess.Merge(ctx, model.Word("a"), model.Word("b"), 1.5, 0)
		require.ErrorIs(t, err, ErrInvalidPolicy)

		_, _, err = sess.Merge(ctx, model.Word("a"), model.Word("b"), 0.5, -1)
		require.ErrorIs(t, err, ErrInvalidPolicy)
	})

	t.Run("SnapshotRoundTrip", func(t *testing.T) {
		sess := AnyLink().MustBuild()
		defer sess.Close()

		_, err := sess.Observe(ctx, short)
		require.NoError(t, err)
		_, err = sess.Observe(ctx, long)
		require.NoError(t, err)

		var buf bytes.Buffer
		wrep, err := sess.SaveSnapshot(ctx, &buf)
		require.NoError(t, err)
		assert.Equal(t, 6, wrep.Rows) // 2 pair rows + 4 section rows

		restored := AnyLink().MustBuild()
		defer restored.Close()

		rrep, err := restored.LoadSnapshot(ctx, &buf)
		require.NoError(t, err)
		assert.Equal(t, wrep.Rows, rrep.Rows)

		require.NoError(t, restored.FetchAll(ctx))

		count, err := restored.Count(ctx, model.Word("the"), model.Word("cat"))
		require.NoError(t, err)
		assert.InDelta(t, 2.0, count, 1e-9)

		stats, err := restored.Stats(ctx)
		require.NoError(t, err)
		assert.True(t, stats.Loaded)
		assert.Equal(t, 6, stats.StoreRows)
		assert.Equal(t, 2, stats.Pairs)
		assert.Equal(t, 4, stats.Sections)
	})

	t.Run("PublishAndRestore", func(t *testing.T) {
		arc := archive.NewMemory()

		sess := AnyLink().MustBuild()
		defer sess.Close()

		_, err := sess.Observe(ctx, long)
		require.NoError(t, err)

		_, err = sess.PublishSnapshot(ctx, arc, "snap-1")
		require.NoError(t, err)

		current, err := archive.GetCurrent(ctx, arc)
		require.NoError(t, err)
		assert.Equal(t, "snap-1", current)

		restored := AnyLink().MustBuild()
		defer restored.Close()

		_, err = restored.LoadLatestSnapshot(ctx, arc)
		require.NoError(t, err)
		require.NoError(t, restored.FetchAll(ctx))

		count, err := restored.Count(ctx, model.Word("cat"), model.Word("runs"))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, count, 1e-9)
	})

	t.Run("LoadLatestEmptyArchive", func(t *testing.T) {
		sess := AnyLink().MustBuild()
		defer sess.Close()

		_, err := sess.LoadLatestSnapshot(ctx, archive.NewMemory())
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("NotLoaded", func(t *testing.T) {
		sess := AnyLink().MustBuild()
		defer sess.Close()

		_, err := sess.Observe(ctx, short)
		require.NoError(t, err)

		_, err = sess.ComputeMarginals(ctx)
		require.ErrorIs(t, err, ErrNotLoaded)

		_, err = sess.ComputeMutualInformation(ctx)
		require.ErrorIs(t, err, ErrNotLoaded)

		_, err = sess.Rank().Execute(ctx)
		require.ErrorIs(t, err, ErrNotLoaded)
	})
}

func BenchmarkObserve(b *testing.B) {
	ctx := context.Background()

	b.Run("Clique", func(b *testing.B) {
		sess := Clique(6).MustBuild()
		defer sess.Close()

		rng := testutil.NewRNG(4711)
		vocab := testutil.Vocabulary(500)
		parses := rng.Corpus(vocab, b.N, 5, 12, 1.1)

		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			if _, err := sess.Observe(ctx, parses[i]); err != nil {
				b.Fatalf("Observe failed: %v", err)
			}
		}
	})
}
