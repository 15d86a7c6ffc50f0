package store

import (
	"fmt"
	"math"
	"time"

	"github.com/onchainscore/scoringcore/pkg/types"
)

// GetHistory returns up to limit history rows for wallet, optionally
// bounded by [after, before), ordered oldest-first. Callers are expected to
// have already clamped limit to [1,100] (spec §9.1 open question ii) — this
// method clamps defensively too so a store-level invariant never regresses.
func (s *Store) GetHistory(wallet string, after, before *time.Time, limit int) ([]types.ScoreHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	q := s.db.Model(&scoreHistoryRecord{}).Where("wallet = ?", wallet)
	if after != nil {
		q = q.Where("computed_at > ?", *after)
	}
	if before != nil {
		q = q.Where("computed_at < ?", *before)
	}

	var recs []scoreHistoryRecord
	if err := q.Order("computed_at ASC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	out := make([]types.ScoreHistoryEntry, len(recs))
	for i, r := range recs {
		out[i] = types.ScoreHistoryEntry{
			Wallet:       r.Wallet,
			Score:        r.Score,
			ComputedAt:   r.ComputedAt,
			Confidence:   r.Confidence,
			ModelVersion: r.ModelVersion,
		}
	}
	return out, nil
}

// HistoryVolatility returns the standard deviation of the wallet's recent
// score history, used as the "trajectory stability" confidence signal in
// C5 step 3k.
func (s *Store) HistoryVolatility(wallet string, limit int) (float64, error) {
	entries, err := s.GetHistory(wallet, nil, nil, limit)
	if err != nil {
		return 0, err
	}
	if len(entries) < 2 {
		return 0, nil
	}
	scores := make([]float64, len(entries))
	for i, e := range entries {
		scores[i] = float64(e.Score)
	}
	var mean float64
	for _, v := range scores {
		mean += v
	}
	mean /= float64(len(scores))
	var sq float64
	for _, v := range scores {
		d := v - mean
		sq += d * d
	}
	variance := sq / float64(len(scores))
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance), nil
}

// Trend derives the HistoryTrend summary for the history(...) endpoint from
// an ordered (oldest-first) slice of entries.
func Trend(entries []types.ScoreHistoryEntry) types.HistoryTrend {
	if len(entries) == 0 {
		return types.HistoryTrend{Direction: types.HistoryStable}
	}

	min, max := entries[0].Score, entries[0].Score
	for _, e := range entries {
		if e.Score < min {
			min = e.Score
		}
		if e.Score > max {
			max = e.Score
		}
	}

	first, last := entries[0].Score, entries[len(entries)-1].Score
	var changePct float64
	if first != 0 {
		changePct = (float64(last) - float64(first)) / float64(first) * 100
	}

	direction := types.HistoryStable
	switch {
	case changePct > 5:
		direction = types.HistoryImproving
	case changePct < -5:
		direction = types.HistoryDeclining
	}

	return types.HistoryTrend{
		Direction: direction,
		ChangePct: changePct,
		MinScore:  min,
		MaxScore:  max,
	}
}
