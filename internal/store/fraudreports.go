package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onchainscore/scoringcore/internal/apperr"
	"github.com/onchainscore/scoringcore/pkg/types"
)

const maxReportsPerReporterTarget = 3
const maxFraudReportDetailsLen = 1000

// FileFraudReport inserts a fraud report after enforcing spec §3's
// invariants: at most 3 reports per (reporter, target) pair, details
// bounded to 1000 chars.
func (s *Store) FileFraudReport(r types.FraudReport) (types.FraudReport, error) {
	if len(r.Details) > maxFraudReportDetailsLen {
		return types.FraudReport{}, apperr.New(apperr.Validation, "details_too_long",
			"fraud report details must be 1000 characters or fewer")
	}

	target := strings.ToLower(r.Target)
	reporter := strings.ToLower(r.Reporter)

	var count int64
	if err := s.db.Model(&fraudReportRecord{}).
		Where("target = ? AND reporter = ?", target, reporter).
		Count(&count).Error; err != nil {
		return types.FraudReport{}, fmt.Errorf("file fraud report: count existing: %w", err)
	}
	if count >= maxReportsPerReporterTarget {
		return types.FraudReport{}, apperr.New(apperr.Precondition, "report_limit_reached",
			"reporter has already filed the maximum number of reports against this target")
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}

	rec := fraudReportRecord{
		ID:             r.ID,
		Target:         target,
		Reporter:       reporter,
		Reason:         r.Reason,
		Details:        r.Details,
		CreatedAt:      r.CreatedAt,
		PenaltyApplied: r.PenaltyApplied,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return types.FraudReport{}, fmt.Errorf("file fraud report: %w", err)
	}

	r.Target, r.Reporter = target, reporter
	return r, nil
}

// CountFraudReports returns the total number of fraud reports filed against
// target, used by the integrity multiplier's 0.90^fraud_reports term
// (spec §4.5.i).
func (s *Store) CountFraudReports(target string) (int, error) {
	var count int64
	if err := s.db.Model(&fraudReportRecord{}).
		Where("target = ?", strings.ToLower(target)).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count fraud reports: %w", err)
	}
	return int(count), nil
}

// FraudReportsFiledAfter returns fraud reports against target filed
// strictly after cutoff, used by C5 step 1's cache-hit dampening (only
// reports newer than the cached computed_at dampen a fresh read, per
// spec §4.5 step 1 and the §9 open-question fix for double counting).
func (s *Store) FraudReportsFiledAfter(target string, cutoff time.Time) ([]types.FraudReport, error) {
	var recs []fraudReportRecord
	err := s.db.Where("target = ? AND created_at > ?", strings.ToLower(target), cutoff).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("fraud reports filed after: %w", err)
	}
	out := make([]types.FraudReport, len(recs))
	for i, r := range recs {
		out[i] = types.FraudReport{
			ID:             r.ID,
			Target:         r.Target,
			Reporter:       r.Reporter,
			Reason:         r.Reason,
			Details:        r.Details,
			CreatedAt:      r.CreatedAt,
			PenaltyApplied: r.PenaltyApplied,
		}
	}
	return out, nil
}
