package coocgo_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/coocgo"
	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/testutil"
)

// TestCloseIdempotent verifies that calling Close() multiple times is safe,
// including when the session owns a disk-backed store.
func TestCloseIdempotent(t *testing.T) {
	st, err := graphstore.NewSQLiteStore(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)

	sess, err := coocgo.Clique(6).Store(st).Build()
	require.NoError(t, err)

	ctx := context.Background()
	rng := testutil.NewRNG(4711)
	vocab := testutil.Vocabulary(50)
	for _, p := range rng.Corpus(vocab, 10, 3, 8, 1.1) {
		_, err := sess.Observe(ctx, p)
		require.NoError(t, err)
	}

	// Close multiple times should not panic or error
	err1 := sess.Close()
	err2 := sess.Close()
	err3 := sess.Close()

	assert.NoError(t, err1, "First close should succeed")
	assert.NoError(t, err2, "Second close should be idempotent")
	assert.NoError(t, err3, "Third close should be idempotent")
}

// TestOperationsAfterClose verifies that every operation on a closed session
// reports ErrClosed instead of touching the store.
func TestOperationsAfterClose(t *testing.T) {
	sess := coocgo.AnyLink().MustBuild()
	require.NoError(t, sess.Close())

	ctx := context.Background()
	rng := testutil.NewRNG(1)
	vocab := testutil.Vocabulary(10)
	p := rng.RandomParse(vocab, 4, 1.1, 0)

	_, err := sess.Observe(ctx, p)
	assert.ErrorIs(t, err, coocgo.ErrClosed)

	_, err = sess.ObserveBatch(ctx, nil)
	assert.ErrorIs(t, err, coocgo.ErrClosed)

	err = sess.FetchAll(ctx)
	assert.ErrorIs(t, err, coocgo.ErrClosed)

	_, err = sess.ComputeMarginals(ctx)
	assert.ErrorIs(t, err, coocgo.ErrClosed)

	_, err = sess.Stats(ctx)
	assert.ErrorIs(t, err, coocgo.ErrClosed)

	_, err = sess.Rank().Execute(ctx)
	assert.ErrorIs(t, err, coocgo.ErrClosed)
}

// TestCloseWithActiveOperations verifies shutdown during active observes.
func TestCloseWithActiveOperations(t *testing.T) {
	sess := coocgo.Clique(4).MustBuild()

	ctx := context.Background()
	rng := testutil.NewRNG(99)
	vocab := testutil.Vocabulary(100)
	parses := rng.Corpus(vocab, 100, 4, 10, 1.1)

	// Start concurrent observes; errors after close are expected and ignored.
	done := make(chan bool)
	go func() {
		for _, p := range parses {
			_, _ = sess.Observe(ctx, p)
			time.Sleep(time.Millisecond)
		}
		done <- true
	}()

	// Let some observes happen
	time.Sleep(20 * time.Millisecond)

	err := sess.Close()
	assert.NoError(t, err, "Close should succeed even with active operations")

	<-done
}
