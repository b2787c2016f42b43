// Package graphstore persists the keyed observation rows the rest of the
// module computes over: pair counts, sections, cross-sections, marginals
// and membership markers. Rows are addressed by the stable keys produced
// by the model package and carry a float-valued count plus a computed
// (mean, confidence) slot.
package graphstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a Store cannot find a key.
//
// This is a storage-layer sentinel used internally; the coocgo package may
// translate it into its public error contract.
var ErrNotFound = errors.New("not found")

// Value is the mutable payload of a row. Count accumulates observation
// weight; Mean and Confidence hold the most recently computed statistic
// for the row (log-likelihood or mutual information).
type Value struct {
	Mean       float64
	Confidence float64
	Count      float64
}

// Row is one stored entry, as yielded by Scan.
type Row struct {
	Key   string
	Value Value
	Refs  []string
}

// Store keeps observation rows addressed by stable keys. Implementations
// must be safe for concurrent use; IncrementCount in particular must apply
// its delta atomically so parallel observers never lose updates.
//
// A row's reference set is fixed at creation: the key encodes the entities
// it involves, so the refs never change afterwards.
type Store interface {
	// Lookup retrieves the value stored under key.
	// Returns the value and true if found, or zero value and false if not.
	Lookup(ctx context.Context, key string) (Value, bool, error)

	// Create inserts a zero-valued row under key, registering the given
	// entity keys as its references. Creating an existing key is a no-op.
	Create(ctx context.Context, key string, refs ...string) error

	// SetValue overwrites the full value of an existing row.
	// Returns ErrNotFound if the key doesn't exist.
	SetValue(ctx context.Context, key string, v Value) error

	// IncrementCount atomically adds delta to the row's count and returns
	// the new count. Returns ErrNotFound if the key doesn't exist; callers
	// create rows explicitly so the reference set is always recorded.
	IncrementCount(ctx context.Context, key string, delta float64) (float64, error)

	// IncomingSet returns the keys of every row referencing the given
	// entity key. Order is unspecified.
	IncomingSet(ctx context.Context, ref string) ([]string, error)

	// Scan visits every row whose key starts with prefix. An empty prefix
	// visits everything. Returning an error from fn stops the scan and
	// propagates the error. Visit order is unspecified.
	Scan(ctx context.Context, prefix string, fn func(row Row) error) error

	// Delete removes the row and its reference registrations.
	// Returns ErrNotFound if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Len returns the number of rows currently stored.
	Len(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// Count returns the count stored under key, or 0 when the key has never
// been observed.
func Count(ctx context.Context, s Store, key string) (float64, error) {
	v, ok, err := s.Lookup(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	return v.Count, nil
}

// SetMean overwrites the computed statistic of an existing row, leaving
// its count untouched.
func SetMean(ctx context.Context, s Store, key string, mean, confidence float64) error {
	v, ok, err := s.Lookup(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	v.Mean = mean
	v.Confidence = confidence
	return s.SetValue(ctx, key, v)
}

// Ensure creates the row if it is missing and then adds delta to its
// count, returning the new count.
func Ensure(ctx context.Context, s Store, key string, delta float64, refs ...string) (float64, error) {
	if err := s.Create(ctx, key, refs...); err != nil {
		return 0, err
	}
	return s.IncrementCount(ctx, key, delta)
}
