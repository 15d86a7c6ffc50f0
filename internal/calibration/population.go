package calibration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/internal/util"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// DimensionStats is the per-dimension distribution summary spec §4.8's
// population-stats loop computes: mean, stdev, and the p10/25/50/75/90
// percentiles.
type DimensionStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	P10    float64 `json:"p10"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
}

// PopulationStats bundles the five dimension distributions plus the sample
// size and when they were computed.
type PopulationStats struct {
	SampleSize  int64          `json:"sampleSize"`
	ComputedAt  time.Time      `json:"computedAt"`
	Reliability DimensionStats `json:"reliability"`
	Viability   DimensionStats `json:"viability"`
	Identity    DimensionStats `json:"identity"`
	Capability  DimensionStats `json:"capability"`
	Behaviour   DimensionStats `json:"behaviour"`
}

// MaturityBaseline is the median score above which a dimension's break-point
// table is considered eligible to drift upward (spec §4.8: "only if the
// population median exceeds a maturity baseline").
const MaturityBaseline = 60.0

// MaxBreakpointDriftRatio is the largest upward shift, relative to its
// current span, allowed for a break-point table (spec §4.8's example of
// 0.30). Nothing in this package shifts a table, so it is not applied.
const MaxBreakpointDriftRatio = 0.30

// RunPopulationStats computes per-dimension distribution stats once at
// least minWallets scores exist, and persists them to indexer-state. It
// returns (nil, nil) when the sample-size floor isn't met yet.
//
// The dimension scorers (internal/scoring/dimensions) take plain facts
// structs rather than injectable break-point tables, so this loop computes
// and records the distribution — including which dimensions have crossed
// the maturity baseline and would be eligible to drift — without itself
// mutating the scorers' tables.
func RunPopulationStats(st *store.Store, minWallets int64) (*PopulationStats, error) {
	count, err := st.CountScores()
	if err != nil {
		return nil, fmt.Errorf("count scores: %w", err)
	}
	if count < minWallets {
		return nil, nil
	}

	dims, err := st.AllDimensionScores()
	if err != nil {
		return nil, fmt.Errorf("all dimension scores: %w", err)
	}

	rel := make([]float64, len(dims))
	via := make([]float64, len(dims))
	idn := make([]float64, len(dims))
	cap_ := make([]float64, len(dims))
	beh := make([]float64, len(dims))
	for i, d := range dims {
		rel[i] = float64(d.Reliability.Score)
		via[i] = float64(d.Viability.Score)
		idn[i] = float64(d.Identity.Score)
		cap_[i] = float64(d.Capability.Score)
		beh[i] = float64(d.Behaviour.Score)
	}

	stats := &PopulationStats{
		SampleSize:  count,
		ComputedAt:  time.Now().UTC(),
		Reliability: summarize(rel),
		Viability:   summarize(via),
		Identity:    summarize(idn),
		Capability:  summarize(cap_),
		Behaviour:   summarize(beh),
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("marshal population stats: %w", err)
	}
	if err := st.SetState(store.KeyPopulationStats, string(raw)); err != nil {
		return nil, fmt.Errorf("persist population stats: %w", err)
	}
	return stats, nil
}

// LoadPopulationStats reads the last persisted population stats, if any.
func LoadPopulationStats(st *store.Store) (*PopulationStats, error) {
	raw, ok, err := st.GetState(store.KeyPopulationStats)
	if err != nil {
		return nil, fmt.Errorf("get population stats: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var stats PopulationStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, fmt.Errorf("unmarshal population stats: %w", err)
	}
	return &stats, nil
}

// MatureDimensions reports which of the five dimensions have a median at or
// above MaturityBaseline and are therefore eligible for break-point drift.
func (p *PopulationStats) MatureDimensions() map[string]bool {
	return map[string]bool{
		"reliability": p.Reliability.P50 >= MaturityBaseline,
		"viability":   p.Viability.P50 >= MaturityBaseline,
		"identity":    p.Identity.P50 >= MaturityBaseline,
		"capability":  p.Capability.P50 >= MaturityBaseline,
		"behaviour":   p.Behaviour.P50 >= MaturityBaseline,
	}
}

func summarize(xs []float64) DimensionStats {
	sorted := append([]float64(nil), xs...)
	sortFloat64s(sorted)
	return DimensionStats{
		Mean:   util.Mean(xs),
		StdDev: util.StdDev(xs),
		P10:    util.Percentile(sorted, 10),
		P25:    util.Percentile(sorted, 25),
		P50:    util.Percentile(sorted, 50),
		P75:    util.Percentile(sorted, 75),
		P90:    util.Percentile(sorted, 90),
	}
}

func sortFloat64s(xs []float64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

var _ = types.Dimensions{}
