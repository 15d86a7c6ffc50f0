package dimensions

import (
	"github.com/onchainscore/scoringcore/internal/util"
	"github.com/onchainscore/scoringcore/pkg/types"
)

var (
	nativeBalancePoints = []util.Breakpoint{
		util.LogBreakpoint(0.001, 0),
		util.LogBreakpoint(0.1, 10),
		util.LogBreakpoint(1, 18),
		util.LogBreakpoint(10, 25),
	}
	stablecoinBalancePoints = []util.Breakpoint{
		util.LogBreakpoint(1, 0),
		util.LogBreakpoint(10, 8),
		util.LogBreakpoint(100, 18),
		util.LogBreakpoint(1000, 25),
	}
	walletAgePoints = []util.Breakpoint{
		util.LogBreakpoint(1, 0),
		util.LogBreakpoint(7, 8),
		util.LogBreakpoint(30, 14),
		util.LogBreakpoint(90, 18),
		util.LogBreakpoint(365, 20),
	}
)

const drainedPenalty = 15

var trendAdjustment = map[types.TrendDirection]int{
	types.TrendRising:   10,
	types.TrendStable:   0,
	types.TrendDeclining: -10,
	types.TrendFreefall: -20,
}

// ViabilityFacts bundles the inputs the viability scorer reads (spec §4.4).
type ViabilityFacts struct {
	NativeBalance     float64
	StablecoinBalance float64
	IncomeBurnRatio   float64 // income / burn over a trailing window
	WalletAgeDays     float64
	Trend             types.TrendDirection
	EverDrained       bool
}

// ScoreViability computes the viability dimension (weight 0.25).
func ScoreViability(f ViabilityFacts) (int, map[string]int) {
	points := map[string]int{
		"native_balance":     int(util.PiecewiseLogInterpolate(nativeBalancePoints, f.NativeBalance)),
		"stablecoin_balance": int(util.PiecewiseLogInterpolate(stablecoinBalancePoints, f.StablecoinBalance)),
		"income_burn_ratio":  incomeBurnPoints(f.IncomeBurnRatio),
		"wallet_age":         int(util.PiecewiseLogInterpolate(walletAgePoints, f.WalletAgeDays)),
		"trend":              trendAdjustment[f.Trend],
	}
	if f.EverDrained {
		points["ever_drained_penalty"] = -drainedPenalty
	}

	total := 0
	for _, v := range points {
		total += v
	}
	return util.ClampInt(total, 0, 100), points
}

func incomeBurnPoints(ratio float64) int {
	return int(util.Clamp(ratio, 0, 2) / 2 * 20)
}
