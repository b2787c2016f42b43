package benchmark_test

import (
	"context"
	"testing"

	"github.com/hupe1980/coocgo"
	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/model"
	"github.com/hupe1980/coocgo/testutil"
)

// ============================================================================
// Benchmark Configuration
// ============================================================================

// Standard corpus shapes used across benchmarks for consistency.
const (
	vocabSize = 2000 // Distinct tokens, Zipf-ranked
	sentMin   = 8    // Shortest sentence
	sentMax   = 16   // Longest sentence
	zipfSkew  = 1.1  // Natural-language-like frequency skew
)

// Standard corpus sizes.
const (
	corpusSmall  = 2_000  // Quick iteration
	corpusMedium = 10_000 // Default CI
)

// Counting window shared by all clique benchmarks.
const benchWindow = 6

// Seed for deterministic benchmarks - enables reproducible comparisons.
const benchSeed = 42

// ============================================================================
// Benchmark Helpers
// ============================================================================

// MakeCorpus generates n parses from the standard benchmark vocabulary.
func MakeCorpus(n int) []model.Parse {
	rng := testutil.NewRNG(benchSeed)
	return rng.Corpus(testutil.Vocabulary(vocabSize), n, sentMin, sentMax, zipfSkew)
}

// OpenBenchSession creates an in-memory clique session and registers its
// cleanup.
func OpenBenchSession(b *testing.B) *coocgo.Session {
	b.Helper()

	sess, err := coocgo.Clique(benchWindow).Build()
	if err != nil {
		b.Fatalf("failed to open session: %v", err)
	}
	b.Cleanup(func() { _ = sess.Close() })

	return sess
}

// LoadedBenchSession creates a session, counts an n-parse corpus into it
// and fetches the working set, so read-side benchmarks start warm.
func LoadedBenchSession(b *testing.B, n int) *coocgo.Session {
	b.Helper()

	sess := OpenBenchSession(b)
	ctx := context.Background()

	if _, err := sess.ObserveBatch(ctx, MakeCorpus(n)); err != nil {
		b.Fatalf("batch observe failed: %v", err)
	}
	if err := sess.FetchAll(ctx); err != nil {
		b.Fatalf("fetch failed: %v", err)
	}

	return sess
}

// SeedStore counts an n-parse corpus into st through a throwaway session.
// The session is deliberately not closed: closing would close st, which
// the caller still needs.
func SeedStore(b *testing.B, st graphstore.Store, n int) {
	b.Helper()

	sess, err := coocgo.Clique(benchWindow).Store(st).Build()
	if err != nil {
		b.Fatalf("failed to open session: %v", err)
	}
	if _, err := sess.ObserveBatch(context.Background(), MakeCorpus(n)); err != nil {
		b.Fatalf("batch observe failed: %v", err)
	}
}
