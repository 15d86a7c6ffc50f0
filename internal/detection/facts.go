// Package detection implements the sybil and gaming heuristics (C3): pure
// functions over store-read facts, producing indicator tags that cap or
// multiply dimension scores (spec §4.3). Stateless — no I/O of its own.
package detection

import (
	"time"

	"github.com/onchainscore/scoringcore/pkg/types"
)

// WalletFacts bundles the relational facts the detectors need, gathered by
// the scoring engine from the store before detection runs.
type WalletFacts struct {
	Wallet         string
	FirstSeen      time.Time
	Partners       []PartnerFact
	RecentTransfers []types.Transfer // last 7 days, both directions
	Nonce          uint64
}

// PartnerFact summarizes one relationship edge from the target wallet's
// point of view.
type PartnerFact struct {
	Address       string
	FirstSeen     time.Time
	TxCountOut    int64
	TxCountIn     int64
	VolumeOut     float64
	VolumeIn      float64
	PartnerOfPartners int // how many of this partner's other partners are also the target's partners
}

func (p PartnerFact) TotalTxCount() int64 { return p.TxCountOut + p.TxCountIn }
func (p PartnerFact) TotalVolume() float64 { return p.VolumeOut + p.VolumeIn }
