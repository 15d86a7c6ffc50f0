package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/onchainscore/scoringcore/pkg/types"
	"gorm.io/gorm/clause"
)

// RecordOutcome upserts an outcome row keyed by (wallet, query_at), so
// running the outcome matcher twice over the same window yields the same
// set of rows (spec §8 invariant 7). If id is empty, a fresh uuid is
// assigned.
func (s *Store) RecordOutcome(o types.Outcome) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	rec := outcomeRecord{
		ID:        o.ID,
		Wallet:    o.Wallet,
		QueryAt:   o.QueryAt,
		Type:      string(o.Type),
		MatchedAt: o.MatchedAt,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet"}, {Name: "query_at"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "matched_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// OutcomesSince returns every outcome recorded at or after since, used by
// the outcome-driven weight calibration loop (spec §4.8).
func (s *Store) OutcomesSince(since time.Time) ([]types.Outcome, error) {
	var recs []outcomeRecord
	if err := s.db.Where("matched_at >= ?", since).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("outcomes since: %w", err)
	}
	out := make([]types.Outcome, len(recs))
	for i, r := range recs {
		out[i] = types.Outcome{
			ID:        r.ID,
			Wallet:    r.Wallet,
			QueryAt:   r.QueryAt,
			Type:      types.OutcomeType(r.Type),
			MatchedAt: r.MatchedAt,
		}
	}
	return out, nil
}
