package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/onchainscore/scoringcore/pkg/types"
)

func TestDetectGamingBalanceWindowDressing(t *testing.T) {
	now := time.Now().UTC()
	f := GamingFacts{
		ComputedAt: now,
		BalanceHistory: []BalanceSnapshot{
			{At: now.Add(-2 * time.Hour), Balance: 1000},
			{At: now.Add(-72 * time.Hour), Balance: 100},
			{At: now.Add(-96 * time.Hour), Balance: 120},
			{At: now.Add(-120 * time.Hour), Balance: 110},
		},
	}
	res := DetectGaming(f)
	assert.Contains(t, res.Indicators, types.GamingBalanceWindowDressing)
	assert.True(t, res.UseAvgBalance)
	assert.Equal(t, 10, res.Penalties.Viability)
}

func TestDetectGamingBurstAndStop(t *testing.T) {
	now := time.Now().UTC()
	start := now.Add(-30 * 24 * time.Hour)
	f := GamingFacts{
		ComputedAt: now,
		TransferTimestamps: []time.Time{
			start, start.Add(time.Hour), start.Add(2 * time.Hour), start.Add(20 * time.Hour),
		},
	}
	res := DetectGaming(f)
	assert.Contains(t, res.Indicators, types.GamingBurstAndStop)
}

func TestDetectGamingNonceInflation(t *testing.T) {
	f := GamingFacts{CurrentNonce: 500, ExpectedNonceFromTxCount: 50}
	res := DetectGaming(f)
	assert.Contains(t, res.Indicators, types.GamingNonceInflation)
}

func TestDetectGamingCleanWallet(t *testing.T) {
	now := time.Now().UTC()
	f := GamingFacts{
		ComputedAt:               now,
		CurrentNonce:             10,
		ExpectedNonceFromTxCount: 10,
		TransferTimestamps: []time.Time{
			now.Add(-time.Hour), now.Add(-2 * time.Hour), now.Add(-3 * time.Hour),
		},
	}
	res := DetectGaming(f)
	assert.Empty(t, res.Indicators)
}
