package calibration

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "scoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func upsertScore(t *testing.T, s *store.Store, wallet string, composite int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.UpsertScore(&types.Score{
		Wallet: wallet, Composite: composite,
		Dimensions: types.Dimensions{
			Reliability: types.DimensionScore{Score: composite},
			Viability:   types.DimensionScore{Score: composite},
		},
		Tier:                types.TierForComposite(composite, types.DefaultTierThresholds),
		ModelVersion:        "v1",
		IntegrityMultiplier: 1,
		ComputedAt:          now,
		ExpiresAt:           now.Add(time.Hour),
	}))
}

func TestMatchOutcomesIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	wallet := "0xaaa"
	queryAt := time.Now().UTC().Add(-10 * 24 * time.Hour)
	require.NoError(t, s.RecordQuery(wallet, queryAt))
	require.NoError(t, s.IndexTransferBatch([]types.Transfer{{
		TxHash: "0x1", BlockNumber: 1, From: "0xbbb", To: wallet,
		Amount: big.NewRat(1, 1), Timestamp: queryAt.Add(time.Hour),
	}}))

	n1, err := MatchOutcomes(s, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, n1)

	n2, err := MatchOutcomes(s, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, n2)

	outcomes, err := s.OutcomesSince(time.Time{})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, types.OutcomeSuccessfulTx, outcomes[0].Type)
}

func TestMatchOutcomesSkipsOpenWindow(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordQuery("0xaaa", time.Now().UTC()))

	n, err := MatchOutcomes(s, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRunOutcomeWeightDriftGatedBySampleSize(t *testing.T) {
	s := newTestStore(t)
	_, ran, err := RunOutcomeWeightDrift(s, 10, 2)
	require.NoError(t, err)
	require.False(t, ran)
}

func TestRunOutcomeWeightDriftStaysWithinDriftCap(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 60; i++ {
		wallet := "0xaaa"
		upsertScore(t, s, wallet, 10) // low reliability/viability
		queryAt := time.Now().UTC().Add(-30 * 24 * time.Hour)
		require.NoError(t, s.RecordQuery(wallet, queryAt))
		require.NoError(t, s.RecordOutcome(types.Outcome{
			Wallet: wallet, QueryAt: queryAt.Add(time.Duration(i) * time.Second),
			Type: types.OutcomeFraudReport, MatchedAt: time.Now().UTC(),
		}))
	}

	weights, ran, err := RunOutcomeWeightDrift(s, 50, 5)
	require.NoError(t, err)
	require.True(t, ran)
	require.InDelta(t, types.DefaultWeights.Reliability, weights.Reliability, WeightTotalDriftCap+1e-9)
	require.GreaterOrEqual(t, weights.Reliability, types.DefaultWeights.Reliability-WeightTotalDriftCap-1e-9)
}

func TestRunTierThresholdTuningGatedBySampleSize(t *testing.T) {
	s := newTestStore(t)
	thresholds, ran, err := RunTierThresholdTuning(s, 10)
	require.NoError(t, err)
	require.False(t, ran)
	require.Nil(t, thresholds)
}

func TestRunTierThresholdTuningProducesMonotonicThresholds(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 20; i++ {
		upsertScore(t, s, walletFor(i), i*5)
	}

	thresholds, ran, err := RunTierThresholdTuning(s, 10)
	require.NoError(t, err)
	require.True(t, ran)
	require.Greater(t, thresholds.Elite, thresholds.Trusted)
	require.Greater(t, thresholds.Trusted, thresholds.Established)
	require.Greater(t, thresholds.Established, thresholds.Emerging)
}

func walletFor(i int) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 40)
	for j := range b {
		b[j] = '0'
	}
	s := []byte{}
	n := i
	if n == 0 {
		s = []byte{'0'}
	}
	for n > 0 {
		s = append([]byte{hex[n%16]}, s...)
		n /= 16
	}
	copy(b[40-len(s):], s)
	return "0x" + string(b)
}
