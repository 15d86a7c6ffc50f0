// Package dimensions implements the five pure dimension scorers (C4).
// Each takes a facts struct gathered by the scoring engine and returns an
// integer in [0,100] plus a per-signal point breakdown for explainability.
// Scorers perform no I/O.
package dimensions

import (
	"github.com/onchainscore/scoringcore/internal/util"
)

var (
	txCountPoints = []util.Breakpoint{
		util.LogBreakpoint(1, 0),
		util.LogBreakpoint(10, 10),
		util.LogBreakpoint(100, 20),
		util.LogBreakpoint(1000, 25),
		util.LogBreakpoint(10000, 25),
	}
	noncePoints = []util.Breakpoint{
		util.LogBreakpoint(1, 0),
		util.LogBreakpoint(10, 8),
		util.LogBreakpoint(100, 16),
		util.LogBreakpoint(1000, 20),
	}
	recencyPoints = []util.Breakpoint{
		{Input: 0, Points: 15},
		{Input: 100, Points: 12},
		{Input: 10000, Points: 6},
		{Input: 200000, Points: 0},
	}
)

// ReliabilityFacts bundles the inputs the reliability scorer reads
// (spec §4.4).
type ReliabilityFacts struct {
	TxCount           int64
	Nonce             uint64
	SuccessRateProxy  float64 // [0,1]
	UptimeSpanRatio   float64 // active days / 14, clamped [0,1]
	BlocksSinceLastTx uint64
}

// ScoreReliability computes the reliability dimension (weight 0.30).
func ScoreReliability(f ReliabilityFacts) (int, map[string]int) {
	points := map[string]int{
		"tx_count":      int(util.PiecewiseLogInterpolate(txCountPoints, float64(f.TxCount))),
		"nonce":         int(util.PiecewiseLogInterpolate(noncePoints, float64(f.Nonce))),
		"success_rate":  int(util.Clamp(f.SuccessRateProxy, 0, 1) * 20),
		"uptime_span":   int(util.Clamp(f.UptimeSpanRatio, 0, 1) * 20),
		"recency_tier":  int(util.Interpolate(recencyPoints, float64(f.BlocksSinceLastTx))),
	}
	total := 0
	for _, v := range points {
		total += v
	}
	return util.ClampInt(total, 0, 100), points
}
