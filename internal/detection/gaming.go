package detection

import (
	"sort"
	"time"

	"github.com/onchainscore/scoringcore/internal/util"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// DimensionPenalties are subtractive point deductions applied after sybil
// caps (spec §4.3/§4.5 step g).
type DimensionPenalties struct {
	Reliability int
	Viability   int
	Behaviour   int
}

// GamingResult is the output of gaming detection.
type GamingResult struct {
	Indicators    []types.GamingIndicator
	Penalties     DimensionPenalties
	Factors       []float64
	UseAvgBalance bool // substitute 24h average balance into viability input
}

func (r GamingResult) Flagged() bool { return len(r.Indicators) > 0 }

// BalanceSnapshot is one point-in-time native/stablecoin balance reading,
// used to detect window-dressing spikes around compute time.
type BalanceSnapshot struct {
	At      time.Time
	Balance float64
}

// GamingFacts bundles the temporal inputs gaming detection needs.
type GamingFacts struct {
	ComputedAt       time.Time
	BalanceHistory   []BalanceSnapshot // recent snapshots, any order
	AverageBalance24h float64
	TransferTimestamps []time.Time // ascending, recent window
	CurrentNonce     uint64
	ExpectedNonceFromTxCount uint64 // nonce the tx history alone would predict
	RevenueByDay     []float64      // most recent N days, oldest first
}

// DetectGaming inspects temporal patterns for window-dressing, burst-and-
// stop, nonce inflation, and revenue recycling (spec §4.3).
func DetectGaming(f GamingFacts) GamingResult {
	var res GamingResult

	if balanceWindowDressing(f.BalanceHistory, f.ComputedAt) {
		res.Indicators = append(res.Indicators, types.GamingBalanceWindowDressing)
		res.Penalties.Viability += 10
		res.UseAvgBalance = true
		res.Factors = append(res.Factors, 0.85)
	}

	if burstAndStop(f.TransferTimestamps, f.ComputedAt) {
		res.Indicators = append(res.Indicators, types.GamingBurstAndStop)
		res.Penalties.Reliability += 8
		res.Penalties.Behaviour += 8
		res.Factors = append(res.Factors, 0.80)
	}

	if nonceInflation(f.CurrentNonce, f.ExpectedNonceFromTxCount) {
		res.Indicators = append(res.Indicators, types.GamingNonceInflation)
		res.Penalties.Reliability += 8
		res.Factors = append(res.Factors, 0.85)
	}

	if revenueRecycling(f.RevenueByDay) {
		res.Indicators = append(res.Indicators, types.GamingRevenueRecycling)
		res.Penalties.Viability += 8
		res.Factors = append(res.Factors, 0.85)
	}

	return res
}

// balanceWindowDressing trips when the balance spikes sharply in the hours
// immediately preceding computedAt relative to the trailing baseline.
func balanceWindowDressing(history []BalanceSnapshot, computedAt time.Time) bool {
	if len(history) < 3 {
		return false
	}
	sorted := append([]BalanceSnapshot(nil), history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	var baseline []float64
	var recentSpike float64
	spikeFound := false
	for _, s := range sorted {
		if computedAt.Sub(s.At) <= 6*time.Hour {
			if s.Balance > recentSpike {
				recentSpike = s.Balance
				spikeFound = true
			}
			continue
		}
		baseline = append(baseline, s.Balance)
	}
	if !spikeFound || len(baseline) == 0 {
		return false
	}
	mean := util.Mean(baseline)
	if mean <= 0 {
		return false
	}
	return recentSpike/mean >= 3.0
}

// burstAndStop trips when all recent activity is crammed into a short
// window followed by silence up to computedAt.
func burstAndStop(timestamps []time.Time, computedAt time.Time) bool {
	if len(timestamps) < 4 {
		return false
	}
	sorted := append([]time.Time(nil), timestamps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	activeWindow := sorted[len(sorted)-1].Sub(sorted[0])
	silence := computedAt.Sub(sorted[len(sorted)-1])
	return activeWindow <= 48*time.Hour && silence >= 14*24*time.Hour
}

// nonceInflation trips when the chain nonce is far higher than the tx
// history on this token alone would predict, suggesting activity inflated
// via unrelated or self-dealing transactions.
func nonceInflation(currentNonce, expectedFromTxCount uint64) bool {
	if expectedFromTxCount == 0 {
		return currentNonce > 20
	}
	return float64(currentNonce) > float64(expectedFromTxCount)*2.5
}

// revenueRecycling trips when day-over-day revenue oscillates in a way
// consistent with funds being sent out and cycled back in as "new" income.
func revenueRecycling(byDay []float64) bool {
	if len(byDay) < 4 {
		return false
	}
	flips := 0
	for i := 1; i < len(byDay); i++ {
		prevUp := byDay[i-1] > 0
		currUp := byDay[i] > 0
		if i >= 2 {
			prevPrevUp := byDay[i-2] > 0
			if prevPrevUp != prevUp && prevUp != currUp {
				flips++
			}
		}
	}
	return flips >= len(byDay)/2
}
