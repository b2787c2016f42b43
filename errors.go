package coocgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/coocgo/archive"
	"github.com/hupe1980/coocgo/cluster"
	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/model"
	"github.com/hupe1980/coocgo/pairs"
)

var (
	// ErrNotFound is returned when a requested pair, row or snapshot does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotLoaded is returned by operations that need the full pair set in
	// memory before FetchAll has run.
	ErrNotLoaded = errors.New("not loaded")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")

	// ErrInvalidPolicy is returned when merge parameters leave their valid
	// range (fraction outside [0,1] or a negative noise floor).
	ErrInvalidPolicy = errors.New("invalid merge policy")

	// ErrInvalidWindow is returned by builders when a window or distance
	// bound is negative.
	ErrInvalidWindow = errors.New("window parameters must not be negative")
)

// ErrMalformedParse is the validation error for rejected parses. It aliases
// the model sentinel so errors.Is matches against either package.
var ErrMalformedParse = model.ErrMalformedParse

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, graphstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, archive.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Working set and argument normalization.
	if errors.Is(err, pairs.ErrNotLoaded) {
		return fmt.Errorf("%w: %w", ErrNotLoaded, err)
	}
	if errors.Is(err, cluster.ErrFractionRange) || errors.Is(err, cluster.ErrNoiseNegative) {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	return err
}
