package store

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/onchainscore/scoringcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scoring.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIndexTransferBatchIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	transfer := types.Transfer{
		TxHash:      "0xabc",
		BlockNumber: 100,
		From:        "0x0000000000000000000000000000000000000a",
		To:          "0x0000000000000000000000000000000000000b",
		Amount:      big.NewRat(10, 1),
		Timestamp:   time.Now().UTC(),
	}

	require.NoError(t, s.IndexTransferBatch([]types.Transfer{transfer}))
	require.NoError(t, s.IndexTransferBatch([]types.Transfer{transfer})) // re-index

	var count int64
	require.NoError(t, s.db.Model(&transferRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	w, err := s.GetWallet(transfer.From)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.TotalTxCount)

	rels, err := s.Relationships(transfer.From)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, int64(1), rels[0].TxCountAToB+rels[0].TxCountBToA)
}

func TestRecentlyActiveWalletsExcludesTransfersBeforeCutoff(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.IndexTransferBatch([]types.Transfer{
		{
			TxHash: "0x1", BlockNumber: 1,
			From: "0x0000000000000000000000000000000000000a", To: "0x0000000000000000000000000000000000000b",
			Amount: big.NewRat(1, 1), Timestamp: now.Add(-2 * time.Hour),
		},
		{
			TxHash: "0x2", BlockNumber: 2,
			From: "0x0000000000000000000000000000000000000a", To: "0x0000000000000000000000000000000000000c",
			Amount: big.NewRat(1, 1), Timestamp: now.Add(-time.Minute),
		},
		{
			TxHash: "0x3", BlockNumber: 3,
			From: "0x0000000000000000000000000000000000000d", To: "0x0000000000000000000000000000000000000e",
			Amount: big.NewRat(1, 1), Timestamp: now.Add(-72 * time.Hour),
		},
	}))

	wallets, err := s.RecentlyActiveWallets(now.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"0x0000000000000000000000000000000000000a",
		"0x0000000000000000000000000000000000000c",
	}, wallets)
}

func TestRecentlyActiveWalletsRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.IndexTransferBatch([]types.Transfer{
		{
			TxHash: "0x1", BlockNumber: 1,
			From: "0x0000000000000000000000000000000000000a", To: "0x0000000000000000000000000000000000000b",
			Amount: big.NewRat(1, 1), Timestamp: now,
		},
		{
			TxHash: "0x2", BlockNumber: 2,
			From: "0x0000000000000000000000000000000000000c", To: "0x0000000000000000000000000000000000000d",
			Amount: big.NewRat(1, 1), Timestamp: now,
		},
	}))

	wallets, err := s.RecentlyActiveWallets(now.Add(-time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, wallets, 1)
}

func TestUpsertScorePrunesHistoryTo50(t *testing.T) {
	s := newTestStore(t)
	wallet := "0x0000000000000000000000000000000000000a"

	for i := 0; i < 60; i++ {
		sc := &types.Score{
			Wallet:     wallet,
			Composite:  i % 100,
			Tier:       types.TierUnverified,
			ComputedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute),
			ExpiresAt:  time.Now().UTC().Add(time.Hour),
		}
		require.NoError(t, s.UpsertScore(sc))
	}

	var count int64
	require.NoError(t, s.db.Model(&scoreHistoryRecord{}).Where("wallet = ?", wallet).Count(&count).Error)
	assert.LessOrEqual(t, count, int64(maxHistoryPerWallet))

	hist, err := s.GetHistory(wallet, nil, nil, 100)
	require.NoError(t, err)
	require.NotEmpty(t, hist)
	assert.Equal(t, hist[len(hist)-1].Score, 59%100)
}

func TestFraudReportLimitPerReporter(t *testing.T) {
	s := newTestStore(t)
	target := "0x0000000000000000000000000000000000000a"
	reporter := "0x0000000000000000000000000000000000000b"

	for i := 0; i < 3; i++ {
		_, err := s.FileFraudReport(types.FraudReport{Target: target, Reporter: reporter, Reason: "scam"})
		require.NoError(t, err)
	}

	_, err := s.FileFraudReport(types.FraudReport{Target: target, Reporter: reporter, Reason: "scam"})
	assert.Error(t, err)

	count, err := s.CountFraudReports(target)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestFraudReportDetailsLengthValidated(t *testing.T) {
	s := newTestStore(t)
	details := make([]byte, 1001)
	for i := range details {
		details[i] = 'a'
	}
	_, err := s.FileFraudReport(types.FraudReport{
		Target: "0xa", Reporter: "0xb", Details: string(details),
	})
	assert.Error(t, err)
}

func TestWebhookAutoDisablesAfter5Failures(t *testing.T) {
	s := newTestStore(t)
	wh, err := s.CreateWebhook(types.Webhook{Wallet: "0xa", URL: "https://example.com/hook", Secret: "s", Events: []string{"score.updated"}})
	require.NoError(t, err)

	require.NoError(t, s.EnqueueDelivery(types.WebhookDelivery{WebhookID: wh.ID, EventType: "score.updated", Payload: []byte("{}")}))
	due, err := s.DueDeliveries(10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.MarkFailed(due[0].ID, 500, nil))
	}

	got, err := s.GetWebhook(wh.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 5, got.ConsecutiveFailures)
}

func TestScoreFreshnessMonotonic(t *testing.T) {
	computedAt := time.Now().UTC()
	sc := &types.Score{ComputedAt: computedAt, ExpiresAt: computedAt.Add(time.Hour)}

	f0 := sc.Freshness(computedAt)
	f1 := sc.Freshness(computedAt.Add(30 * time.Minute))
	f2 := sc.Freshness(computedAt.Add(time.Hour))

	assert.InDelta(t, 1.0, f0, 0.001)
	assert.InDelta(t, 0.5, f1, 0.001)
	assert.InDelta(t, 0.0, f2, 0.001)
	assert.GreaterOrEqual(t, f0, f1)
	assert.GreaterOrEqual(t, f1, f2)
}

func TestCloneDoesNotShareSlices(t *testing.T) {
	original := &types.Score{
		SybilIndicators: []types.SybilIndicator{types.SybilTightCluster},
	}
	clone := original.Clone()
	clone.SybilIndicators[0] = types.SybilWashTrading

	assert.Equal(t, types.SybilTightCluster, original.SybilIndicators[0])
}
