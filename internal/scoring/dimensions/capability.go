package dimensions

import "github.com/onchainscore/scoringcore/internal/util"

var (
	activeServicesPoints = []util.Breakpoint{
		{Input: 0, Points: 0},
		{Input: 10, Points: 20},
		{Input: 50, Points: 40},
		{Input: 200, Points: 50},
	}
	revenuePoints = []util.Breakpoint{
		util.LogBreakpoint(1, 0),
		util.LogBreakpoint(100, 20),
		util.LogBreakpoint(1000, 35),
		util.LogBreakpoint(10000, 50),
	}
)

// CapabilityFacts bundles the inputs the capability scorer reads
// (spec §4.4). A non-zero EstimatedActiveServices is used as the active
// service count as given; when it is zero the scorer falls back to a
// tx-count estimate (estimateActiveServicesFromTxCount).
type CapabilityFacts struct {
	TxCount                 int64
	EstimatedActiveServices int
	RevenueDaily            float64
}

// ScoreCapability computes the capability dimension (weight 0.10).
func ScoreCapability(f CapabilityFacts) (int, map[string]int) {
	estimate := f.EstimatedActiveServices
	if estimate == 0 {
		estimate = estimateActiveServicesFromTxCount(f.TxCount)
	}

	points := map[string]int{
		"active_services": int(util.Interpolate(activeServicesPoints, float64(estimate))),
		"revenue":          int(util.PiecewiseLogInterpolate(revenuePoints, f.RevenueDaily)),
	}
	total := 0
	for _, v := range points {
		total += v
	}
	return util.ClampInt(total, 0, 100), points
}

// estimateActiveServicesFromTxCount is the heuristic fallback: one active
// service roughly every 50 transactions, capped at 200.
func estimateActiveServicesFromTxCount(txCount int64) int {
	est := int(txCount / 50)
	if est > 200 {
		est = 200
	}
	return est
}
