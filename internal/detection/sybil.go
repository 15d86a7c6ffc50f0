package detection

import (
	"sort"
	"time"

	"github.com/onchainscore/scoringcore/pkg/types"
)

// DimensionCaps ceilings a dimension score can be clamped to. Zero means
// uncapped.
type DimensionCaps struct {
	Reliability int
	Identity    int
}

// SybilResult is the output of sybil detection: the indicator tags found
// plus the caps and multiplicative factors they carry (spec §4.3 table).
type SybilResult struct {
	Indicators []types.SybilIndicator
	Caps       DimensionCaps
	Factors    []float64 // one per triggered indicator, applied as a product
}

func (r SybilResult) Flagged() bool { return len(r.Indicators) > 0 }

const topPartnerWindow = 5

// DetectSybil inspects the relationship graph and funding history for
// facts.Wallet and returns the indicators it trips, per the table in
// spec §4.3.
func DetectSybil(facts WalletFacts) SybilResult {
	var res SybilResult

	partners := append([]PartnerFact(nil), facts.Partners...)
	sort.Slice(partners, func(i, j int) bool {
		return partners[i].TotalVolume() > partners[j].TotalVolume()
	})

	topN := partners
	if len(topN) > topPartnerWindow {
		topN = topN[:topPartnerWindow]
	}

	if tightCluster(topN) {
		res.Indicators = append(res.Indicators, types.SybilTightCluster)
		res.Caps.Reliability = capMin(res.Caps.Reliability, 40)
		res.Factors = append(res.Factors, 0.55)
	}

	if symmetricTransactions(partners) {
		res.Indicators = append(res.Indicators, types.SybilSymmetricTransactions)
		res.Factors = append(res.Factors, 0.60)
	}

	if washTrading(facts.RecentTransfers, facts.Wallet) {
		res.Indicators = append(res.Indicators, types.SybilWashTrading)
		res.Caps.Reliability = capMin(res.Caps.Reliability, 30)
		res.Factors = append(res.Factors, 0.50)
	}

	if len(partners) > 0 {
		primary := partners[0]
		if coordinatedCreation(facts.FirstSeen, primary.FirstSeen) {
			res.Indicators = append(res.Indicators, types.SybilCoordinatedCreation)
			res.Caps.Identity = capMin(res.Caps.Identity, 35)
			res.Factors = append(res.Factors, 0.65)
		}
	}

	if earliestInboundIsLargestPartner(partners) {
		res.Indicators = append(res.Indicators, types.SybilFundedByTopPartner)
		res.Caps.Identity = capMin(res.Caps.Identity, 30)
		res.Caps.Reliability = capMin(res.Caps.Reliability, 50)
		res.Factors = append(res.Factors, 0.60)
	}

	if singleSourceFunding(partners) {
		res.Indicators = append(res.Indicators, types.SybilSingleSourceFunding)
		res.Caps.Identity = capMin(res.Caps.Identity, 30)
		res.Caps.Reliability = capMin(res.Caps.Reliability, 50)
		res.Factors = append(res.Factors, 0.75)
	}

	if singlePartnerDominates(partners) {
		res.Indicators = append(res.Indicators, types.SybilSinglePartner)
		res.Factors = append(res.Factors, 0.75)
	}

	if volumeWithoutDiversity(partners) {
		res.Indicators = append(res.Indicators, types.SybilVolumeWithoutDiversity)
		res.Factors = append(res.Factors, 0.80)
	}

	return res
}

func capMin(existing, candidate int) int {
	if existing == 0 || candidate < existing {
		return candidate
	}
	return existing
}

// tightCluster trips when more than half the wallet's top-N partners by
// volume also transact heavily among each other.
func tightCluster(topN []PartnerFact) bool {
	if len(topN) < 2 {
		return false
	}
	mutual := 0
	for _, p := range topN {
		if p.PartnerOfPartners > 0 {
			mutual++
		}
	}
	return float64(mutual)/float64(len(topN)) > 0.5
}

func symmetricTransactions(partners []PartnerFact) bool {
	if len(partners) == 0 {
		return false
	}
	symmetric := 0
	for _, p := range partners {
		total := p.TotalVolume()
		if total == 0 {
			continue
		}
		diff := p.VolumeOut - p.VolumeIn
		if diff < 0 {
			diff = -diff
		}
		if diff/total <= 0.10 {
			symmetric++
		}
	}
	return float64(symmetric)/float64(len(partners)) > 0.5
}

// washTrading trips when more than 40% of 7-day volume round-trips
// A -> B -> A within 24h.
func washTrading(transfers []types.Transfer, wallet string) bool {
	var totalVolume, roundTripVolume float64
	outbound := map[string][]types.Transfer{}

	for _, t := range transfers {
		vol, _ := t.Amount.Float64()
		totalVolume += vol
		if equalAddr(t.From, wallet) {
			outbound[t.To] = append(outbound[t.To], t)
		}
	}
	if totalVolume == 0 {
		return false
	}

	for _, t := range transfers {
		if !equalAddr(t.To, wallet) {
			continue
		}
		sent, ok := outbound[t.From]
		if !ok {
			continue
		}
		for _, s := range sent {
			if t.Timestamp.Sub(s.Timestamp) >= 0 && t.Timestamp.Sub(s.Timestamp) <= 24*time.Hour {
				vol, _ := t.Amount.Float64()
				roundTripVolume += vol
				break
			}
		}
	}

	return roundTripVolume/totalVolume > 0.40
}

func coordinatedCreation(walletFirstSeen, partnerFirstSeen time.Time) bool {
	if walletFirstSeen.IsZero() || partnerFirstSeen.IsZero() {
		return false
	}
	diff := walletFirstSeen.Sub(partnerFirstSeen)
	if diff < 0 {
		diff = -diff
	}
	return diff <= 24*time.Hour
}

func earliestInboundIsLargestPartner(partners []PartnerFact) bool {
	if len(partners) == 0 {
		return false
	}
	var earliest PartnerFact
	var earliestSet bool
	for _, p := range partners {
		if p.TxCountIn == 0 {
			continue
		}
		if !earliestSet || p.FirstSeen.Before(earliest.FirstSeen) {
			earliest = p
			earliestSet = true
		}
	}
	if !earliestSet {
		return false
	}
	largest := partners[0]
	for _, p := range partners {
		if p.TotalVolume() > largest.TotalVolume() {
			largest = p
		}
	}
	return earliest.Address == largest.Address
}

// singleSourceFunding trips when every inbound transfer the wallet has ever
// received came from exactly one partner and the wallet has at least one
// other partner (a wallet with a single partner never trips it) — a narrower pattern
// than funded_by_top_partner (which only requires the earliest inbound
// sender to also be the largest partner by volume).
func singleSourceFunding(partners []PartnerFact) bool {
	fundingSources := 0
	for _, p := range partners {
		if p.TxCountIn > 0 {
			fundingSources++
		}
	}
	return fundingSources == 1 && len(partners) > 1
}

func singlePartnerDominates(partners []PartnerFact) bool {
	if len(partners) == 0 {
		return false
	}
	var total int64
	var max int64
	for _, p := range partners {
		total += p.TotalTxCount()
		if p.TotalTxCount() > max {
			max = p.TotalTxCount()
		}
	}
	if total == 0 {
		return false
	}
	return float64(max)/float64(total) > 0.80
}

func volumeWithoutDiversity(partners []PartnerFact) bool {
	var total float64
	for _, p := range partners {
		total += p.TotalVolume()
	}
	return total > 0 && len(partners) < 3
}

func equalAddr(a, b string) bool {
	return len(a) == len(b) && asciiEqualFold(a, b)
}

func asciiEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
