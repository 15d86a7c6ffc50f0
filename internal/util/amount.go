// Package util collects small pure helpers shared across the scoring core:
// fixed-point amount parsing, piecewise-log interpolation for the dimension
// scorers, and time-window math for the indexers and calibration loops.
package util

import (
	"fmt"
	"math/big"
)

// AmountScale is the fixed-point precision (6 decimal places) used for all
// stablecoin-denominated amounts, per spec §3/§6.
const AmountScale = 6

// ParseAmount parses a decimal string (as stored in the embedded store) into
// a *big.Rat, following the teacher's bigIntToString convention for
// serializing arbitrary-precision values into TEXT columns
// (internal/db/transaction_recorder.go), generalized from integer wei to
// 6dp fixed-point stablecoin units.
func ParseAmount(s string) (*big.Rat, error) {
	if s == "" {
		return new(big.Rat), nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return r, nil
}

// FormatAmount renders a *big.Rat as a fixed 6dp decimal string for
// storage, defaulting nil to "0" the same way bigIntToString does for a nil
// *big.Int.
func FormatAmount(r *big.Rat) string {
	if r == nil {
		return "0"
	}
	return r.FloatString(AmountScale)
}

// AddAmounts returns a new *big.Rat that is the sum of a and b, treating
// nil as zero.
func AddAmounts(a, b *big.Rat) *big.Rat {
	out := new(big.Rat)
	if a != nil {
		out.Add(out, a)
	}
	if b != nil {
		out.Add(out, b)
	}
	return out
}

// AmountToFloat64 converts a *big.Rat amount to a float64 for scorer
// inputs, where exact precision no longer matters.
func AmountToFloat64(r *big.Rat) float64 {
	if r == nil {
		return 0
	}
	f, _ := r.Float64()
	return f
}
