package publisher

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/internal/testutil"
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

func mustUpsert(t *testing.T, s *store.Store, wallet string, composite int, confidence float64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.UpsertScore(&types.Score{
		Wallet:              wallet,
		Composite:           composite,
		Confidence:          confidence,
		Tier:                types.TierForComposite(composite, types.DefaultTierThresholds),
		ModelVersion:        "v1",
		IntegrityMultiplier: 1,
		ComputedAt:          now,
		ExpiresAt:           now.Add(time.Hour),
	}))
}

func TestPublisherSkipsBelowBalanceFloor(t *testing.T) {
	s := newTestStore(t)
	mustUpsert(t, s, "0xaaa", 80, 0.9)

	writer := &testutil.FakeChainWriter{Balance: big.NewInt(1)}
	p := New(s, writer, Config{MinConfidence: 0.5, MinNativeBalance: big.NewInt(1000)})
	require.NoError(t, p.Run(context.Background()))
	require.Empty(t, writer.Published)
}

func TestPublisherPublishesEligibleAndSkipsUnchanged(t *testing.T) {
	s := newTestStore(t)
	mustUpsert(t, s, "0xaaa", 80, 0.9)
	mustUpsert(t, s, "0xbbb", 40, 0.2) // below confidence floor

	writer := &testutil.FakeChainWriter{Balance: big.NewInt(1000)}
	p := New(s, writer, Config{MinConfidence: 0.5, MinDelta: 5, BatchLimit: 10, MinNativeBalance: big.NewInt(1)})
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, writer.Published, 1)
	require.Equal(t, "0xaaa", writer.Published[0].Wallet)

	pub, err := s.GetPublication("0xaaa")
	require.NoError(t, err)
	require.NotNil(t, pub)
	require.Equal(t, 80, pub.LastPublishedScore)

	// a second run with no score change should not re-publish (delta 0 < minDelta)
	require.NoError(t, p.Run(context.Background()))
	require.Len(t, writer.Published, 1)
}
