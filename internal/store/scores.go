package store

import (
	"fmt"
	"strings"

	"github.com/onchainscore/scoringcore/pkg/types"
	"gorm.io/gorm"
)

const maxHistoryPerWallet = 50

func joinIndicators[T ~string](xs []T) string {
	if len(xs) == 0 {
		return ""
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = string(x)
	}
	return strings.Join(parts, ",")
}

func splitSybilIndicators(s string) []types.SybilIndicator {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]types.SybilIndicator, len(parts))
	for i, p := range parts {
		out[i] = types.SybilIndicator(p)
	}
	return out
}

func splitGamingIndicators(s string) []types.GamingIndicator {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]types.GamingIndicator, len(parts))
	for i, p := range parts {
		out[i] = types.GamingIndicator(p)
	}
	return out
}

func toRecord(sc *types.Score) scoreRecord {
	return scoreRecord{
		Wallet:              sc.Wallet,
		Composite:           sc.Composite,
		ReliabilityScore:    sc.Dimensions.Reliability.Score,
		ViabilityScore:      sc.Dimensions.Viability.Score,
		IdentityScore:       sc.Dimensions.Identity.Score,
		CapabilityScore:     sc.Dimensions.Capability.Score,
		BehaviourScore:      sc.Dimensions.Behaviour.Score,
		Tier:                string(sc.Tier),
		RawSnapshot:         sc.RawSnapshot,
		ComputedAt:          sc.ComputedAt,
		ExpiresAt:           sc.ExpiresAt,
		Confidence:          sc.Confidence,
		Recommendation:      string(sc.Recommendation),
		ModelVersion:        sc.ModelVersion,
		SybilFlag:           sc.SybilFlag,
		SybilIndicators:     joinIndicators(sc.SybilIndicators),
		GamingIndicators:    joinIndicators(sc.GamingIndicators),
		IntegrityMultiplier: sc.IntegrityMultiplier,
	}
}

func fromRecord(r scoreRecord) *types.Score {
	return &types.Score{
		Wallet:    r.Wallet,
		Composite: r.Composite,
		Dimensions: types.Dimensions{
			Reliability: types.DimensionScore{Name: "reliability", Score: r.ReliabilityScore},
			Viability:   types.DimensionScore{Name: "viability", Score: r.ViabilityScore},
			Identity:    types.DimensionScore{Name: "identity", Score: r.IdentityScore},
			Capability:  types.DimensionScore{Name: "capability", Score: r.CapabilityScore},
			Behaviour:   types.DimensionScore{Name: "behaviour", Score: r.BehaviourScore},
		},
		Tier:                types.Tier(r.Tier),
		RawSnapshot:         r.RawSnapshot,
		ComputedAt:          r.ComputedAt,
		ExpiresAt:           r.ExpiresAt,
		Confidence:          r.Confidence,
		Recommendation:      types.Recommendation(r.Recommendation),
		ModelVersion:        r.ModelVersion,
		SybilFlag:           r.SybilFlag,
		SybilIndicators:     splitSybilIndicators(r.SybilIndicators),
		GamingIndicators:    splitGamingIndicators(r.GamingIndicators),
		IntegrityMultiplier: r.IntegrityMultiplier,
	}
}

// UpsertScore persists a freshly computed score. Per spec §4.1, this is one
// transaction that also records a history row, marks the wallet scored, and
// prunes history beyond the most recent 50 entries (§8 invariant 3).
func (s *Store) UpsertScore(sc *types.Score) error {
	rec := toRecord(sc)

	return s.txn(func(tx *gorm.DB) error {
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("upsert score: %w", err)
		}

		hist := scoreHistoryRecord{
			Wallet:       sc.Wallet,
			Score:        sc.Composite,
			ComputedAt:   sc.ComputedAt,
			Confidence:   sc.Confidence,
			ModelVersion: sc.ModelVersion,
		}
		if err := tx.Create(&hist).Error; err != nil {
			return fmt.Errorf("insert history: %w", err)
		}

		if err := tx.Model(&walletRecord{}).Where("address = ?", sc.Wallet).
			Update("scored", true).Error; err != nil {
			return fmt.Errorf("mark wallet scored: %w", err)
		}

		if err := pruneHistory(tx, sc.Wallet); err != nil {
			return err
		}

		return nil
	})
}

// pruneHistory deletes history rows beyond the most recent maxHistoryPerWallet
// for a wallet, run inside the caller's transaction.
func pruneHistory(tx *gorm.DB, wallet string) error {
	var ids []uint
	if err := tx.Model(&scoreHistoryRecord{}).
		Where("wallet = ?", wallet).
		Order("computed_at DESC, id DESC").
		Offset(maxHistoryPerWallet).
		Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("prune history: list excess: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("id IN ?", ids).Delete(&scoreHistoryRecord{}).Error; err != nil {
		return fmt.Errorf("prune history: delete excess: %w", err)
	}
	return nil
}

// GetScore returns the cached score for a wallet, or (nil, nil) if none
// exists.
func (s *Store) GetScore(wallet string) (*types.Score, error) {
	var rec scoreRecord
	err := s.db.Where("wallet = ?", wallet).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get score: %w", err)
	}
	return fromRecord(rec), nil
}

// CountScores returns the number of wallets with a persisted score, used as
// the sample-size floor gate for calibration (spec §4.8).
func (s *Store) CountScores() (int64, error) {
	var count int64
	if err := s.db.Model(&scoreRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count scores: %w", err)
	}
	return count, nil
}

// ListExpired returns up to limit wallets whose cached score has expired,
// for the hourly refresh job (C7).
func (s *Store) ListExpired(limit int) ([]string, error) {
	var wallets []string
	err := s.db.Model(&scoreRecord{}).
		Where("expires_at <= ?", now()).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("wallet", &wallets).Error
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	return wallets, nil
}

// IterateLeaderboard calls fn for every scored wallet ordered by composite
// descending, in batches, without loading the whole table into memory.
func (s *Store) IterateLeaderboard(batchSize int, fn func(*types.Score) error) error {
	var recs []scoreRecord
	result := s.db.Order("composite DESC").FindInBatches(&recs, batchSize, func(tx *gorm.DB, batch int) error {
		for _, r := range recs {
			if err := fn(fromRecord(r)); err != nil {
				return err
			}
		}
		return nil
	})
	if result.Error != nil {
		return fmt.Errorf("iterate leaderboard: %w", result.Error)
	}
	return nil
}

// AllDimensionScores returns every dimension score currently on record, used
// by the population-stats calibration loop (spec §4.8).
func (s *Store) AllDimensionScores() ([]types.Dimensions, error) {
	var recs []scoreRecord
	if err := s.db.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("all dimension scores: %w", err)
	}
	out := make([]types.Dimensions, len(recs))
	for i, r := range recs {
		out[i] = fromRecord(r).Dimensions
	}
	return out, nil
}
