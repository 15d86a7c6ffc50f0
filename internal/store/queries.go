package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// queryLogRecord backs a minimal paid-query log: the (external) payment
// middleware records one row per priced read so the outcome matcher (C8)
// has a left-hand side to join subsequent chain activity or fraud reports
// against. Out of core scope is *charging* for the query; recording that
// one happened is the core's concern since the outcome matcher lives here.
type queryLogRecord struct {
	ID      string    `gorm:"primaryKey;size:36"`
	Wallet  string    `gorm:"index;size:42;not null"`
	QueryAt time.Time `gorm:"index;not null"`
}

func (queryLogRecord) TableName() string { return "query_log" }

// RecordQuery appends a paid-query log row for wallet, called by the
// (external) payment-gated endpoints whenever they serve a priced read.
func (s *Store) RecordQuery(wallet string, at time.Time) error {
	rec := queryLogRecord{ID: uuid.NewString(), Wallet: strings.ToLower(wallet), QueryAt: at}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	return nil
}

// QueriesSince returns every logged query at or after since, ordered
// oldest first, for the outcome matcher to join against subsequent
// activity (spec §4.8).
func (s *Store) QueriesSince(since time.Time) ([]struct {
	Wallet  string
	QueryAt time.Time
}, error) {
	var recs []queryLogRecord
	if err := s.db.Where("query_at >= ?", since).Order("query_at ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("queries since: %w", err)
	}
	out := make([]struct {
		Wallet  string
		QueryAt time.Time
	}, len(recs))
	for i, r := range recs {
		out[i].Wallet = r.Wallet
		out[i].QueryAt = r.QueryAt
	}
	return out, nil
}
