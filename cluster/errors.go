package cluster

import "errors"

var (
	// ErrFractionRange is returned when the policy fraction leaves [0,1].
	ErrFractionRange = errors.New("merge fraction out of range [0,1]")

	// ErrNoiseNegative is returned when the policy noise floor is negative.
	ErrNoiseNegative = errors.New("noise floor must not be negative")

	// ErrBadDonor is returned when a merge argument is not a word or
	// cluster entity, or when an entity is merged with itself.
	ErrBadDonor = errors.New("entity not mergeable")

	// ErrMergeAborted wraps any failure inside a merge step. The step is
	// not resumable; callers must Reconcile the donor entities before
	// retrying from the store's latest state.
	ErrMergeAborted = errors.New("merge aborted")
)
