package util

import "math"

// Breakpoint is one ⟨input, points⟩ pair in a dimension scorer's configured
// table (spec §4.4: "Each breakpoint table is a configured ⟨input, points⟩
// list; linear interpolation between known points, clamping outside the
// range.").
type Breakpoint struct {
	Input  float64
	Points float64
}

// Interpolate performs linear interpolation over a breakpoint table sorted
// ascending by Input, clamping outside the table's range. An empty table
// always returns 0.
func Interpolate(table []Breakpoint, x float64) float64 {
	if len(table) == 0 {
		return 0
	}
	if x <= table[0].Input {
		return table[0].Points
	}
	last := table[len(table)-1]
	if x >= last.Input {
		return last.Points
	}
	for i := 1; i < len(table); i++ {
		if x <= table[i].Input {
			prev := table[i-1]
			span := table[i].Input - prev.Input
			if span == 0 {
				return table[i].Points
			}
			frac := (x - prev.Input) / span
			return prev.Points + frac*(table[i].Points-prev.Points)
		}
	}
	return last.Points
}

// PiecewiseLogInterpolate is Interpolate but over log10(x) for inputs that
// span multiple orders of magnitude (tx counts, volumes, wallet age), per
// spec §4.4's "piecewise-log interpolated points". Non-positive x is
// treated as the smallest representable input (log10 floor).
func PiecewiseLogInterpolate(table []Breakpoint, x float64) float64 {
	lx := math.Log10(math.Max(x, 1e-9))
	return Interpolate(table, lx)
}

// LogBreakpoint is sugar for building a PiecewiseLogInterpolate table: it
// takes the input in natural units and stores log10(input) so callers don't
// have to pre-compute logs by hand at every table definition site.
func LogBreakpoint(input, points float64) Breakpoint {
	return Breakpoint{Input: math.Log10(math.Max(input, 1e-9)), Points: points}
}

// Clamp restricts x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ClampInt restricts x to [lo, hi].
func ClampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
