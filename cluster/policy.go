package cluster

import "fmt"

// DefaultPolicy moves half of every donor row and treats only true zeros
// as noise.
var DefaultPolicy = Policy{Fraction: 0.5, NoiseFloor: 0}

// Policy fixes the redistribution behavior of a merge step.
type Policy struct {
	// Fraction is the share of a word donor's count moved to the cluster,
	// in [0,1]. The remainder stays behind as the donor's residual sense.
	Fraction float64

	// NoiseFloor is the count at or below which a row is moved whole
	// instead of fractionally, and below which the collection phase
	// deletes rows. Must not be negative.
	NoiseFloor float64
}

// Validate rejects an out-of-range policy before any state is touched.
func (p Policy) Validate() error {
	if p.Fraction < 0 || p.Fraction > 1 {
		return fmt.Errorf("%w: %v", ErrFractionRange, p.Fraction)
	}
	if p.NoiseFloor < 0 {
		return fmt.Errorf("%w: %v", ErrNoiseNegative, p.NoiseFloor)
	}
	return nil
}
