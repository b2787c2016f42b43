// Package infotheory computes the information-theoretic statistics of a
// pair vector: per-entity log-likelihoods, pointwise mutual information
// per pair, and marginal-distribution entropies. All logarithms are base
// 2, so results read as bits.
//
// Nothing here ever persists -Inf or NaN: zero or negative inputs fail
// the single computation and are skipped, the raw counts stay untouched.
package infotheory

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrZeroCount is returned when a log-likelihood or MI input count is
	// zero or negative; the logarithm is undefined there.
	ErrZeroCount = errors.New("zero or negative count")

	// ErrZeroTotal is returned when the population total or a marginal in
	// the denominator is zero or negative.
	ErrZeroTotal = errors.New("zero or negative total")

	// ErrNoMarginals is returned when a sweep needs wildcard rows that
	// have not been computed yet.
	ErrNoMarginals = errors.New("marginals not computed")
)

// LogLikelihood returns -log2(count/total), the self-information of an
// outcome observed count times out of total.
func LogLikelihood(count, total float64) (float64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("%w: count %v", ErrZeroCount, count)
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: total %v", ErrZeroTotal, total)
	}
	return -math.Log2(count / total), nil
}

// PairMI returns the pointwise mutual information of a pair:
//
//	MI(x,y) = log2( N(x,y)·N(*,*) / (N(x,*)·N(*,y)) )
//
// which is log2(P(x,y)/(P(x)·P(y))) with all probabilities normalized by
// the grand total.
func PairMI(nxy, nxAny, nAnyY, nAnyAny float64) (float64, error) {
	if nxy <= 0 {
		return 0, fmt.Errorf("%w: pair count %v", ErrZeroCount, nxy)
	}
	if nxAny <= 0 || nAnyY <= 0 {
		return 0, fmt.Errorf("%w: marginals %v, %v", ErrZeroTotal, nxAny, nAnyY)
	}
	if nAnyAny <= 0 {
		return 0, fmt.Errorf("%w: grand total %v", ErrZeroTotal, nAnyAny)
	}
	return math.Log2((nxy * nAnyAny) / (nxAny * nAnyY)), nil
}
