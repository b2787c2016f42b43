package pairs

import "errors"

var (
	// ErrNotLoaded is returned when an operation requires the full pair
	// set but FetchAll has not completed. Sweeping a partial set would
	// silently undercount marginals, so this fails loudly instead.
	ErrNotLoaded = errors.New("pair set not loaded: call FetchAll first")

	// ErrWrongType is returned when an entity does not match the kind an
	// API variant declared for that side of its pairs.
	ErrWrongType = errors.New("wrong entity type")
)
