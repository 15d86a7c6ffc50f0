package store

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Reserved indexer_state keys (spec §3/§6).
const (
	KeyLastIndexedBlockPrefix   = "last_indexed_block:" // + IndexerName
	KeyLastAggregationDate      = "last_aggregation_date"
	KeyPopulationStats          = "population_stats"
	KeyTierThresholdAdjustments = "tier_threshold_adjustments"
	KeyAdaptiveWeightAdjustments = "adaptive_weight_adjustments"
)

// GetState returns the value for key, or ("", false) if unset.
func (s *Store) GetState(key string) (string, bool, error) {
	var rec indexerStateRecord
	err := s.db.Where("key = ?", key).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %s: %w", key, err)
	}
	return rec.Value, true, nil
}

// SetState upserts the value for key.
func (s *Store) SetState(key, value string) error {
	rec := indexerStateRecord{Key: key, Value: value}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}
