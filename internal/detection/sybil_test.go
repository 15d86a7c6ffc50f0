package detection

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/onchainscore/scoringcore/pkg/types"
)

func TestDetectSybilTightCluster(t *testing.T) {
	facts := WalletFacts{
		Wallet: "0xaaa",
		Partners: []PartnerFact{
			{Address: "0x1", VolumeOut: 100, PartnerOfPartners: 2},
			{Address: "0x2", VolumeOut: 90, PartnerOfPartners: 1},
			{Address: "0x3", VolumeOut: 80, PartnerOfPartners: 0},
		},
	}
	res := DetectSybil(facts)
	assert.Contains(t, res.Indicators, types.SybilTightCluster)
	assert.Equal(t, 40, res.Caps.Reliability)
}

func TestDetectSybilWashTrading(t *testing.T) {
	now := time.Now().UTC()
	facts := WalletFacts{
		Wallet: "0xaaa",
		RecentTransfers: []types.Transfer{
			{From: "0xaaa", To: "0xbbb", Amount: big.NewRat(100, 1), Timestamp: now},
			{From: "0xbbb", To: "0xaaa", Amount: big.NewRat(100, 1), Timestamp: now.Add(time.Hour)},
		},
	}
	res := DetectSybil(facts)
	assert.Contains(t, res.Indicators, types.SybilWashTrading)
}

func TestDetectSybilNoIndicatorsForCleanWallet(t *testing.T) {
	facts := WalletFacts{
		Wallet: "0xaaa",
		Partners: []PartnerFact{
			{Address: "0x1", VolumeOut: 10, TxCountOut: 5},
			{Address: "0x2", VolumeOut: 10, TxCountOut: 5},
			{Address: "0x3", VolumeOut: 10, TxCountOut: 5},
			{Address: "0x4", VolumeOut: 10, TxCountOut: 5},
		},
	}
	res := DetectSybil(facts)
	assert.Empty(t, res.Indicators)
	assert.False(t, res.Flagged())
}

func TestDetectSybilVolumeWithoutDiversity(t *testing.T) {
	facts := WalletFacts{
		Wallet: "0xaaa",
		Partners: []PartnerFact{
			{Address: "0x1", VolumeOut: 1000, TxCountOut: 5},
			{Address: "0x2", VolumeOut: 900, TxCountOut: 5},
		},
	}
	res := DetectSybil(facts)
	assert.Contains(t, res.Indicators, types.SybilVolumeWithoutDiversity)
}
