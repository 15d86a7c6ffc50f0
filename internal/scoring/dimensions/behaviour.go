package dimensions

import (
	"sort"
	"time"

	"github.com/onchainscore/scoringcore/internal/util"
	"github.com/onchainscore/scoringcore/pkg/types"
)

const insufficientBehaviourBaseline = 50

// ScoreBehaviour derives the behaviour dimension (weight 0.15) from the
// ordered sequence of a wallet's transfer timestamps (spec §4.4): inter-
// arrival coefficient of variation, hour-of-day entropy, and max gap.
func ScoreBehaviour(timestamps []time.Time) (int, map[string]int) {
	if len(timestamps) < 2 {
		return insufficientBehaviourBaseline, map[string]int{"insufficient_history": insufficientBehaviourBaseline}
	}

	sorted := append([]time.Time(nil), timestamps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	cv := util.InterArrivalCV(sorted)
	entropy := util.HourOfDayEntropy(sorted)
	gap := util.MaxGap(sorted)

	cvScore := cvToPoints(cv)
	entropyScore := int(util.Clamp(entropy, 0, 1) * 100)
	gapScore := gapToPoints(gap)

	base := (cvScore + entropyScore + gapScore) / 3

	points := map[string]int{
		"inter_arrival_cv": cvScore,
		"hour_of_day_entropy": entropyScore,
		"max_gap": gapScore,
	}

	if len(timestamps) <= 4 {
		blend := float64(len(timestamps)-1) / 4
		base = int(blend*float64(base) + (1-blend)*insufficientBehaviourBaseline)
		points["blended_with_insufficient_baseline"] = base
	}

	return util.ClampInt(base, 0, 100), points
}

// cvToPoints rewards a MODERATE coefficient of variation with high points
// and scores both very low and very high values lower — organic
// human/service usage tends to have moderate, consistent spacing rather
// than bursty or perfectly robotic spacing.
func cvToPoints(cv float64) int {
	// cv near 0.5-1.5 reads as organic; very low (robotic) or very high
	// (bursty/erratic) reads as automated or suspicious.
	table := []util.Breakpoint{
		{Input: 0, Points: 40},
		{Input: 0.5, Points: 90},
		{Input: 1.5, Points: 90},
		{Input: 4, Points: 20},
	}
	return int(util.Interpolate(table, cv))
}

func gapToPoints(gap time.Duration) int {
	table := []util.Breakpoint{
		{Input: 0, Points: 90},
		{Input: float64(7 * 24 * time.Hour), Points: 60},
		{Input: float64(30 * 24 * time.Hour), Points: 20},
		{Input: float64(90 * 24 * time.Hour), Points: 0},
	}
	return int(util.Interpolate(table, float64(gap)))
}

// ClassifyBehaviour maps a behaviour score to its classification tier per
// the thresholds in spec §4.4.
func ClassifyBehaviour(score int) types.BehaviourClass {
	switch {
	case score >= 70:
		return types.BehaviourOrganic
	case score >= 45:
		return types.BehaviourMixed
	case score >= 25:
		return types.BehaviourAutomated
	default:
		return types.BehaviourSuspicious
	}
}
