// Package scoring implements the scoring engine (C5) and its freshness /
// background-refresh cache semantics (C6).
package scoring

import (
	"math"
	"time"

	"github.com/onchainscore/scoringcore/pkg/types"
)

// IsFresh reports whether sc can be served without recomputation: now is
// strictly before its expiry.
func IsFresh(sc *types.Score, now time.Time) bool {
	return now.Before(sc.ExpiresAt)
}

// DampenForFraudReports applies the cache-hit-only fraud dampening from
// spec §4.5 step 1: ×0.90 per fraud report filed strictly after
// sc.ComputedAt. The cached composite already embeds the integrity
// multiplier computed at compute time, so reapplying the full multiplier
// here would double-penalize — only new reports count.
func DampenForFraudReports(sc *types.Score, newReportCount int) *types.Score {
	if newReportCount <= 0 {
		return sc
	}
	dampened := sc.Clone()
	factor := 1.0
	for i := 0; i < newReportCount; i++ {
		factor *= 0.90
	}
	dampened.Composite = int(math.Round(float64(dampened.Composite) * factor))
	if dampened.Composite < 0 {
		dampened.Composite = 0
	}
	return dampened
}
