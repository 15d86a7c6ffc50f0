package calibration

import (
	"fmt"
	"time"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// OutcomeWindow bounds how long after a paid query the matcher looks for
// subsequent chain activity or a fraud report before labelling the query
// "no_activity".
const OutcomeWindow = 7 * 24 * time.Hour

// MatchOutcomes joins every paid query logged at or after since with
// whatever happened afterward — a subsequent transfer touching the
// queried wallet, multiple such transfers, or a fraud report — and
// persists one Outcome row per query via an upsert keyed on
// (wallet, query_at), so running the matcher twice over the same window
// yields the same set of rows (spec §4.8, §8 invariant 7).
func MatchOutcomes(st *store.Store, since time.Time) (int, error) {
	queries, err := st.QueriesSince(since)
	if err != nil {
		return 0, fmt.Errorf("outcome matcher: queries since: %w", err)
	}

	now := time.Now().UTC()
	matched := 0
	for _, q := range queries {
		windowEnd := q.QueryAt.Add(OutcomeWindow)
		if now.Before(windowEnd) {
			// Window hasn't closed yet; skip rather than prematurely
			// labelling it no_activity.
			continue
		}

		outcomeType, err := classifyOutcome(st, q.Wallet, q.QueryAt, windowEnd)
		if err != nil {
			return matched, fmt.Errorf("outcome matcher: classify %s: %w", q.Wallet, err)
		}

		if err := st.RecordOutcome(types.Outcome{
			Wallet:    q.Wallet,
			QueryAt:   q.QueryAt,
			Type:      outcomeType,
			MatchedAt: now,
		}); err != nil {
			return matched, fmt.Errorf("outcome matcher: record outcome: %w", err)
		}
		matched++
	}
	return matched, nil
}

func classifyOutcome(st *store.Store, wallet string, queryAt, windowEnd time.Time) (types.OutcomeType, error) {
	reports, err := st.FraudReportsFiledAfter(wallet, queryAt)
	if err != nil {
		return "", fmt.Errorf("fraud reports filed after: %w", err)
	}
	for _, r := range reports {
		if !r.CreatedAt.After(windowEnd) {
			return types.OutcomeFraudReport, nil
		}
	}

	transfers, err := st.TransfersForWallet(wallet, 0)
	if err != nil {
		return "", fmt.Errorf("transfers for wallet: %w", err)
	}
	successCount := 0
	for _, t := range transfers {
		if t.Timestamp.After(queryAt) && !t.Timestamp.After(windowEnd) {
			successCount++
		}
	}

	switch {
	case successCount >= 2:
		return types.OutcomeMultipleSuccessfulTx, nil
	case successCount == 1:
		return types.OutcomeSuccessfulTx, nil
	default:
		return types.OutcomeNoActivity, nil
	}
}
