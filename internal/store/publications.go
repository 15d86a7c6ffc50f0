package store

import (
	"fmt"
	"strings"

	"github.com/onchainscore/scoringcore/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetPublication returns the last publication for wallet, or (nil, nil) if
// it has never been published.
func (s *Store) GetPublication(wallet string) (*types.ReputationPublication, error) {
	var rec publicationRecord
	err := s.db.Where("wallet = ?", strings.ToLower(wallet)).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get publication: %w", err)
	}
	return &types.ReputationPublication{
		Wallet:             rec.Wallet,
		LastPublishedScore: rec.LastPublishedScore,
		ModelVersion:       rec.ModelVersion,
		TxHash:             rec.TxHash,
		PublishedAt:        rec.PublishedAt,
	}, nil
}

// RecordPublication upserts the publication row for wallet (spec §4.9).
func (s *Store) RecordPublication(p types.ReputationPublication) error {
	rec := publicationRecord{
		Wallet:             strings.ToLower(p.Wallet),
		LastPublishedScore: p.LastPublishedScore,
		ModelVersion:       p.ModelVersion,
		TxHash:             p.TxHash,
		PublishedAt:        p.PublishedAt,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_published_score", "model_version", "tx_hash", "published_at",
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("record publication: %w", err)
	}
	return nil
}

// PublishablesCandidate pairs a score with its (possibly absent) prior
// publication, for the publisher's eligibility scan.
type PublishablesCandidate struct {
	Score             types.Score
	LastPublishedScore *int
}

// PublishCandidates returns wallets whose score meets the confidence floor,
// ordered by computed_at descending, up to limit rows. Delta-eligibility
// (score differs from last published by >= configured delta, or was never
// published) is left to the publisher since it needs the configured delta,
// not a store-level constant.
func (s *Store) PublishCandidates(minConfidence float64, limit int) ([]PublishablesCandidate, error) {
	var scores []scoreRecord
	err := s.db.Where("confidence >= ?", minConfidence).
		Order("computed_at DESC").
		Limit(limit).
		Find(&scores).Error
	if err != nil {
		return nil, fmt.Errorf("publish candidates: %w", err)
	}

	out := make([]PublishablesCandidate, 0, len(scores))
	for _, rec := range scores {
		sc := fromRecord(rec)
		cand := PublishablesCandidate{Score: *sc}
		pub, err := s.GetPublication(rec.Wallet)
		if err != nil {
			return nil, err
		}
		if pub != nil {
			v := pub.LastPublishedScore
			cand.LastPublishedScore = &v
		}
		out = append(out, cand)
	}
	return out, nil
}
