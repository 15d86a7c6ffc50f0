package calibration

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// TargetTierProportions is the population share each tier should occupy
// once thresholds are well-calibrated, used by RunTierThresholdTuning to
// pick cutoffs from the observed composite-score distribution (spec §4.8).
var TargetTierProportions = struct {
	Elite, Trusted, Established, Emerging float64
}{
	Elite:       0.05,
	Trusted:     0.20,
	Established: 0.50,
	Emerging:    0.80, // everything above this percentile is at least Emerging
}

// RunTierThresholdTuning recomputes tier cutoffs from the current
// composite-score distribution so the tier proportions track
// TargetTierProportions, and persists them to indexer-state (spec §4.8).
// It is a no-op (returns (nil, false, nil)) until minWallets scores exist.
func RunTierThresholdTuning(st *store.Store, minWallets int64) (*types.TierThresholds, bool, error) {
	count, err := st.CountScores()
	if err != nil {
		return nil, false, fmt.Errorf("tier threshold tuning: count scores: %w", err)
	}
	if count < minWallets {
		return nil, false, nil
	}

	var composites []int
	err = st.IterateLeaderboard(200, func(sc *types.Score) error {
		composites = append(composites, sc.Composite)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("tier threshold tuning: iterate leaderboard: %w", err)
	}
	if len(composites) == 0 {
		return nil, false, nil
	}
	sort.Ints(composites)

	thresholds := types.TierThresholds{
		Elite:       percentileInt(composites, TargetTierProportions.Elite),
		Trusted:     percentileInt(composites, TargetTierProportions.Trusted),
		Established: percentileInt(composites, TargetTierProportions.Established),
		Emerging:    percentileInt(composites, TargetTierProportions.Emerging),
	}
	thresholds = clampMonotonic(thresholds)

	raw, err := json.Marshal(thresholds)
	if err != nil {
		return nil, false, fmt.Errorf("tier threshold tuning: marshal thresholds: %w", err)
	}
	if err := st.SetState(store.KeyTierThresholdAdjustments, string(raw)); err != nil {
		return nil, false, fmt.Errorf("tier threshold tuning: persist thresholds: %w", err)
	}
	return &thresholds, true, nil
}

// percentileInt returns the composite score at the (1-proportion) upper
// tail of sorted — e.g. proportion 0.05 picks the cutoff above which the
// top 5% of wallets sit.
func percentileInt(sorted []int, proportion float64) int {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(len(sorted)) * (1 - proportion)
	idx := int(rank)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// clampMonotonic enforces Elite > Trusted > Established > Emerging, falling
// back to the spec defaults for any level that would otherwise invert —
// a thin population can make adjacent percentiles collide. If the set is
// still out of order after those per-level fallbacks, the whole default
// set is returned.
func clampMonotonic(t types.TierThresholds) types.TierThresholds {
	d := types.DefaultTierThresholds
	if t.Elite <= t.Trusted {
		t.Elite = d.Elite
	}
	if t.Trusted <= t.Established {
		t.Trusted = d.Trusted
	}
	if t.Established <= t.Emerging {
		t.Established = d.Established
	}
	if t.Emerging <= 0 {
		t.Emerging = d.Emerging
	}
	if t.Elite <= t.Trusted || t.Trusted <= t.Established || t.Established <= t.Emerging {
		return d
	}
	return t
}
