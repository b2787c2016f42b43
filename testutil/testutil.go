// Package testutil provides deterministic corpus generation and
// brute-force ground truth for co-occurrence tests and benchmarks.
package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/coocgo/model"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns, as a float64, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Zipf returns a Zipfian-distributed value in [0, n).
// Uses Zipf's law: P(k) is proportional to 1/k^s where s is the skew
// parameter. s=1.0 gives standard Zipf, s=1.5 gives a heavy tail.
// Word frequencies in natural language follow this law, so sampling
// vocabulary indices from it produces realistic corpora.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	// Compute normalization constant (harmonic number with exponent s)
	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	// Sample from uniform and use inverse transform
	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1 // 0-indexed
		}
	}

	return n - 1
}

// Vocabulary returns n distinct synthetic tokens, "w000" through
// "w(n-1)". Index order doubles as frequency rank when sampled through
// Zipf, so w000 is the most frequent token of a generated corpus.
func Vocabulary(n int) []string {
	vocab := make([]string, n)
	for i := range vocab {
		vocab[i] = fmt.Sprintf("w%03d", i)
	}
	return vocab
}

// Sentence samples length tokens from vocab with Zipfian skew s.
func (r *RNG) Sentence(vocab []string, length int, s float64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	words := make([]string, length)
	for i := range words {
		words[i] = vocab[r.zipfLocked(len(vocab), s)]
	}
	return words
}

// ChainLinks returns the sequential link structure over n word
// positions: position i linked to i+1. It is the minimal structure that
// leaves no word unlinked, so every word of the parse yields a section.
func ChainLinks(n int) []model.Link {
	if n < 2 {
		return nil
	}
	links := make([]model.Link, n-1)
	for i := range links {
		links[i] = model.Link{Left: i, Right: i + 1}
	}
	return links
}

// RandomParse generates one parse: a Zipf-sampled sentence of the given
// length with chain links, plus extra random long-range links. Extra
// links are deduplicated against the chain, so the result always
// validates.
func (r *RNG) RandomParse(vocab []string, length int, s float64, extraLinks int) model.Parse {
	words := r.Sentence(vocab, length, s)
	links := ChainLinks(length)

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[[2]int]struct{}, len(links)+extraLinks)
	for _, l := range links {
		seen[[2]int{l.Left, l.Right}] = struct{}{}
	}

	for added := 0; added < extraLinks && length > 2; {
		i := r.rand.Intn(length)
		j := r.rand.Intn(length)
		if i == j {
			continue
		}
		if i > j {
			i, j = j, i
		}
		if _, dup := seen[[2]int{i, j}]; dup {
			added++ // Count duplicates as attempts so dense sentences terminate.
			continue
		}
		seen[[2]int{i, j}] = struct{}{}
		links = append(links, model.Link{Left: i, Right: j})
		added++
	}

	return model.Parse{Words: words, Links: links}
}

// Corpus generates n parses with sentence lengths uniform in
// [minLen, maxLen] and Zipfian token skew s.
func (r *RNG) Corpus(vocab []string, n, minLen, maxLen int, s float64) []model.Parse {
	parses := make([]model.Parse, n)
	for i := range parses {
		length := minLen
		if maxLen > minLen {
			length += r.Intn(maxLen - minLen + 1)
		}
		parses[i] = r.RandomParse(vocab, length, s, 0)
	}
	return parses
}

// WordPair is an ordered token pair, left word before right word in
// sentence position.
type WordPair struct {
	Left  string
	Right string
}

// BruteForceLinkPairs counts one ordered pair per parser link across the
// corpus, the exact rows an any-link counter should produce.
func BruteForceLinkPairs(parses []model.Parse) map[WordPair]float64 {
	counts := make(map[WordPair]float64)
	for _, p := range parses {
		for _, l := range p.Links {
			counts[WordPair{Left: p.Words[l.Left], Right: p.Words[l.Right]}]++
		}
	}
	return counts
}

// BruteForceCliquePairs counts every ordered in-window word pair across
// the corpus, the exact rows a clique counter should produce. A window
// of zero or less counts all pairs.
func BruteForceCliquePairs(parses []model.Parse, window int) map[WordPair]float64 {
	counts := make(map[WordPair]float64)
	for _, p := range parses {
		for i := range p.Words {
			for j := i + 1; j < len(p.Words); j++ {
				if window > 0 && j-i > window {
					break
				}
				counts[WordPair{Left: p.Words[i], Right: p.Words[j]}]++
			}
		}
	}
	return counts
}

// Marginals computes the wildcard sums implied by exact pair counts:
// per-left totals N(x,*), per-right totals N(*,y) and the grand total
// N(*,*). Engines that maintain marginals incrementally can be checked
// against these.
func Marginals(counts map[WordPair]float64) (left, right map[string]float64, total float64) {
	left = make(map[string]float64)
	right = make(map[string]float64)
	for p, c := range counts {
		left[p.Left] += c
		right[p.Right] += c
		total += c
	}
	return left, right, total
}
