package scoring

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainscore/scoringcore/internal/calibration"
	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/internal/testutil"
	"github.com/onchainscore/scoringcore/pkg/types"
)

func newTestStoreForEngine(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scoring.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEngine(t *testing.T, rpc *testutil.FakeRPCClient) (*Engine, *store.Store) {
	t.Helper()
	st := newTestStoreForEngine(t)
	calib := calibration.NewCache(st)
	eng := NewEngine(st, rpc, calib, WithTimeout(5*time.Second))
	return eng, st
}

func TestGetOrCalculateBrandNewWallet(t *testing.T) {
	rpc := testutil.NewFakeRPCClient()
	eng, _ := newTestEngine(t, rpc)

	sc, err := eng.GetOrCalculate(context.Background(), "0x00000000000000000000000000000000000001", false)
	require.NoError(t, err)

	assert.Equal(t, 0, sc.Composite)
	assert.Equal(t, types.TierUnverified, sc.Tier)
	assert.Equal(t, types.RecommendationInsufficientHistory, sc.Recommendation)
	assert.Equal(t, float64(0), sc.Confidence)
}

func TestGetOrCalculateActiveWalletReachesElite(t *testing.T) {
	rpc := testutil.NewFakeRPCClient()
	wallet := "0x0000000000000000000000000000000000a002"
	stableToken := "0x0000000000000000000000000000000000b001"
	// a lone, tiny, one-off funder 400 days back establishes wallet age
	// without making the relationship graph look sybil-funded: the bulk of
	// the wallet's volume comes from four separate partners below.
	earlyFunder := "0x00000000000000000000000000000000000faf"

	now := time.Now().UTC()
	rpc.BlockNumber = 5_000_020
	rpc.TxCounts[wallet] = 2015
	rpc.Balances[wallet] = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1_000_000_000_000_000_000)) // 1000 native units
	rpc.CallResponses[stableToken] = big.NewInt(5_000_000_000_000).Bytes()                            // 5,000,000 stablecoin units at 6dp

	st := newTestStoreForEngine(t)
	calib := calibration.NewCache(st)
	eng := NewEngine(st, rpc, calib,
		WithTimeout(5*time.Second),
		WithStablecoinToken(stableToken),
		WithIdentityResolver(&testutil.FakeIdentityResolver{
			Registrations: map[string]struct {
				SelfRegistered bool
				CodeHostHandle string
			}{
				wallet: {SelfRegistered: true, CodeHostHandle: "octocat"},
			},
		}),
		WithCodeHost(&testutil.FakeCodeHostFetcher{
			Profiles: map[string]types.CodeHostProfile{
				"octocat": {Verified: true, Stars: 600, LastPushedAt: now},
			},
		}),
		WithBasename(&testutil.FakeBasenameResolver{Owners: map[string]bool{wallet: true}}),
	)

	var transfers []types.Transfer
	nextHash := 0
	newHash := func() string { nextHash++; return randomHash(nextHash) }

	transfers = append(transfers, types.Transfer{
		TxHash:      newHash(),
		BlockNumber: 4_000_000,
		From:        earlyFunder,
		To:          wallet,
		Amount:      big.NewRat(1, 1),
		Timestamp:   now.Add(-400 * 24 * time.Hour),
		Settlement:  true,
	})

	bulkPartners := []string{
		"0x0000000000000000000000000000000000b101",
		"0x0000000000000000000000000000000000b102",
		"0x0000000000000000000000000000000000b103",
		"0x0000000000000000000000000000000000b104",
	}
	const bulkCount = 2000
	for i := 0; i < bulkCount; i++ {
		dayOffset := 1 + (i*83)%378 // spread across the year, always younger than earlyFunder's 400 days
		hourOffset := (i * 37) % 24 // cycles through all 24 hours for entropy
		transfers = append(transfers, types.Transfer{
			TxHash:      newHash(),
			BlockNumber: uint64(4_900_000 + i),
			From:        bulkPartners[i%len(bulkPartners)],
			To:          wallet,
			Amount:      big.NewRat(150, 1),
			Timestamp:   now.Add(-time.Duration(dayOffset)*24*time.Hour + time.Duration(hourOffset)*time.Hour),
			Settlement:  true,
		})
	}

	// fourteen straight days of inbound revenue, heaviest in the most
	// recent five, each from a distinct counterparty.
	for d := 0; d < 14; d++ {
		amount := int64(500)
		if d < 5 {
			amount = 100_000
		}
		transfers = append(transfers, types.Transfer{
			TxHash:      newHash(),
			BlockNumber: uint64(5_000_019 - d),
			From:        fmt.Sprintf("0x00000000000000000000000000000000c%05d", d),
			To:          wallet,
			Amount:      big.NewRat(amount, 1),
			Timestamp:   now.Add(-time.Duration(d) * 24 * time.Hour),
			Settlement:  true,
		})
	}

	require.NoError(t, st.IndexTransferBatch(transfers))
	for i := 0; i < 20; i++ {
		require.NoError(t, st.RecordQuery(wallet, now.Add(-time.Duration(i)*time.Hour)))
	}

	sc, err := eng.GetOrCalculate(context.Background(), wallet, false)
	require.NoError(t, err)

	assert.False(t, sc.SybilFlag)
	assert.GreaterOrEqual(t, sc.Composite, 0)
	assert.NotEmpty(t, sc.Dimensions.Reliability.Points)
	assert.Equal(t, types.TierElite, sc.Tier)
	assert.Equal(t, types.RecommendationProceed, sc.Recommendation)
}

func TestGetOrCalculateCacheHitAppliesFraudDampeningOnly(t *testing.T) {
	rpc := testutil.NewFakeRPCClient()
	eng, st := newTestEngine(t, rpc)
	wallet := "0x00000000000000000000000000000000000004"

	computedAt := time.Now().UTC().Add(-10 * time.Minute)
	cached := &types.Score{
		Wallet:     wallet,
		Composite:  80,
		Tier:       types.TierTrusted,
		ComputedAt: computedAt,
		ExpiresAt:  computedAt.Add(time.Hour),
	}
	require.NoError(t, st.UpsertScore(cached))

	_, err := st.FileFraudReport(types.FraudReport{Target: wallet, Reporter: "0xreporter1", Reason: "scam"})
	require.NoError(t, err)
	_, err = st.FileFraudReport(types.FraudReport{Target: wallet, Reporter: "0xreporter2", Reason: "scam"})
	require.NoError(t, err)

	sc, err := eng.GetOrCalculate(context.Background(), wallet, false)
	require.NoError(t, err)

	assert.Equal(t, int(80*0.9*0.9+0.5), sc.Composite) // rounded, matches DampenForFraudReports
	assert.Equal(t, types.TierForComposite(sc.Composite, types.DefaultTierThresholds), sc.Tier)
}

func TestGetOrCalculateStaleReturnsMarkerAndTriggersRefresh(t *testing.T) {
	rpc := testutil.NewFakeRPCClient()
	eng, st := newTestEngine(t, rpc)
	wallet := "0x00000000000000000000000000000000000005"

	computedAt := time.Now().UTC().Add(-2 * time.Hour)
	cached := &types.Score{
		Wallet:     wallet,
		Composite:  60,
		Tier:       types.TierEstablished,
		ComputedAt: computedAt,
		ExpiresAt:  computedAt.Add(time.Hour),
	}
	require.NoError(t, st.UpsertScore(cached))

	sc, err := eng.GetOrCalculate(context.Background(), wallet, false)
	require.NoError(t, err)
	assert.True(t, sc.Stale)
	assert.Equal(t, 60, sc.Composite)
}

func randomHash(i int) string {
	return fmt.Sprintf("0x%064x", i+1)
}
