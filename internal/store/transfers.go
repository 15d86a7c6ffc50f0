package store

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/onchainscore/scoringcore/internal/util"
	"github.com/onchainscore/scoringcore/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IndexTransferBatch persists a chunk's transfers, wallet aggregate updates,
// and relationship edges in one transaction (spec §4.2/§4.1). Duplicate
// tx hashes are ignored via INSERT OR IGNORE semantics (ON CONFLICT DO
// NOTHING on the unique tx_hash index), giving idempotent re-indexing
// (spec §8 invariant 6) and letting two independent indexers race safely
// (spec §5 ordering).
func (s *Store) IndexTransferBatch(transfers []types.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	return s.txn(func(tx *gorm.DB) error {
		for _, t := range transfers {
			rec := transferRecord{
				TxHash:      t.TxHash,
				BlockNumber: t.BlockNumber,
				From:        strings.ToLower(t.From),
				To:          strings.ToLower(t.To),
				Amount:      util.FormatAmount(t.Amount),
				Timestamp:   t.Timestamp,
				Settlement:  t.Settlement,
			}

			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "tx_hash"}},
				DoNothing: true,
			}).Create(&rec)
			if result.Error != nil {
				return fmt.Errorf("index transfer %s: %w", t.TxHash, result.Error)
			}
			if result.RowsAffected == 0 {
				// Already indexed by this or the other indexer; skip the
				// aggregate updates too so re-runs stay idempotent.
				continue
			}

			if err := upsertWalletAggregate(tx, rec.From, rec.Amount, true, t.Timestamp); err != nil {
				return err
			}
			if err := upsertWalletAggregate(tx, rec.To, rec.Amount, false, t.Timestamp); err != nil {
				return err
			}
			if err := upsertRelationship(tx, rec.From, rec.To, t.Amount, t.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertWalletAggregate(tx *gorm.DB, addr, amount string, outbound bool, ts time.Time) error {
	var w walletRecord
	err := tx.Where("address = ?", addr).First(&w).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		w = walletRecord{
			Address:      addr,
			FirstSeen:    ts,
			LastSeen:     ts,
			TotalTxCount: 1,
		}
	case err != nil:
		return fmt.Errorf("load wallet %s: %w", addr, err)
	default:
		w.TotalTxCount++
		if ts.Before(w.FirstSeen) {
			w.FirstSeen = ts
		}
		if ts.After(w.LastSeen) {
			w.LastSeen = ts
		}
	}

	amt, _ := util.ParseAmount(amount)
	if outbound {
		cur, _ := util.ParseAmount(w.VolumeOut)
		w.VolumeOut = util.FormatAmount(util.AddAmounts(cur, amt))
	} else {
		cur, _ := util.ParseAmount(w.VolumeIn)
		w.VolumeIn = util.FormatAmount(util.AddAmounts(cur, amt))
	}

	if err := tx.Save(&w).Error; err != nil {
		return fmt.Errorf("save wallet %s: %w", addr, err)
	}
	return nil
}

func orderedPair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

func upsertRelationship(tx *gorm.DB, from, to string, amount *big.Rat, ts time.Time) error {
	a, b := orderedPair(from, to)

	var rel relationshipRecord
	err := tx.Where("wallet_a = ? AND wallet_b = ?", a, b).First(&rel).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		rel = relationshipRecord{
			WalletA:       a,
			WalletB:       b,
			FirstInteract: ts,
			LastInteract:  ts,
		}
	case err != nil:
		return fmt.Errorf("load relationship %s/%s: %w", a, b, err)
	default:
		if ts.Before(rel.FirstInteract) {
			rel.FirstInteract = ts
		}
		if ts.After(rel.LastInteract) {
			rel.LastInteract = ts
		}
	}

	if from == a {
		rel.TxCountAToB++
		cur, _ := util.ParseAmount(rel.VolumeAToB)
		rel.VolumeAToB = util.FormatAmount(util.AddAmounts(cur, amount))
	} else {
		rel.TxCountBToA++
		cur, _ := util.ParseAmount(rel.VolumeBToA)
		rel.VolumeBToA = util.FormatAmount(util.AddAmounts(cur, amount))
	}

	if err := tx.Save(&rel).Error; err != nil {
		return fmt.Errorf("save relationship %s/%s: %w", a, b, err)
	}
	return nil
}

// GetWallet returns the wallet aggregate row, or (nil, nil) if unseen.
func (s *Store) GetWallet(addr string) (*types.Wallet, error) {
	var w walletRecord
	err := s.db.Where("address = ?", strings.ToLower(addr)).First(&w).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	in, _ := util.ParseAmount(w.VolumeIn)
	out, _ := util.ParseAmount(w.VolumeOut)
	return &types.Wallet{
		Address:      w.Address,
		FirstSeen:    w.FirstSeen,
		LastSeen:     w.LastSeen,
		TotalTxCount: w.TotalTxCount,
		VolumeIn:     in,
		VolumeOut:    out,
		Scored:       w.Scored,
	}, nil
}

// Relationships returns every relationship edge touching wallet.
func (s *Store) Relationships(wallet string) ([]types.RelationshipEdge, error) {
	wallet = strings.ToLower(wallet)
	var recs []relationshipRecord
	err := s.db.Where("wallet_a = ? OR wallet_b = ?", wallet, wallet).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("relationships: %w", err)
	}
	out := make([]types.RelationshipEdge, len(recs))
	for i, r := range recs {
		aToB, _ := util.ParseAmount(r.VolumeAToB)
		bToA, _ := util.ParseAmount(r.VolumeBToA)
		out[i] = types.RelationshipEdge{
			WalletA:       r.WalletA,
			WalletB:       r.WalletB,
			TxCountAToB:   r.TxCountAToB,
			TxCountBToA:   r.TxCountBToA,
			VolumeAToB:    aToB,
			VolumeBToA:    bToA,
			FirstInteract: r.FirstInteract,
			LastInteract:  r.LastInteract,
		}
	}
	return out, nil
}

// PartnerOverlapCounts returns, for each of wallet's partners, how many of
// that partner's own partners also appear in wallet's partner set — the
// relational-join form of "top-N partners transact heavily among
// themselves" the tight-cluster sybil check needs, without materializing
// an in-memory graph (spec §9).
func (s *Store) PartnerOverlapCounts(wallet string, partners []string) (map[string]int, error) {
	wallet = strings.ToLower(wallet)
	partnerSet := make(map[string]bool, len(partners))
	for _, p := range partners {
		partnerSet[strings.ToLower(p)] = true
	}

	out := make(map[string]int, len(partners))
	for _, p := range partners {
		edges, err := s.Relationships(p)
		if err != nil {
			return nil, fmt.Errorf("partner overlap counts: %w", err)
		}
		count := 0
		for _, e := range edges {
			other := e.WalletA
			if strings.EqualFold(other, p) {
				other = e.WalletB
			}
			if strings.EqualFold(other, wallet) {
				continue
			}
			if partnerSet[strings.ToLower(other)] {
				count++
			}
		}
		out[strings.ToLower(p)] = count
	}
	return out, nil
}

// TransfersForWallet returns every transfer touching wallet, newest first,
// bounded by limit (0 = unbounded), used by the behaviour dimension and
// RPC-free fallbacks.
func (s *Store) TransfersForWallet(wallet string, limit int) ([]types.Transfer, error) {
	wallet = strings.ToLower(wallet)
	q := s.db.Where(`"from" = ? OR "to" = ?`, wallet, wallet).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []transferRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("transfers for wallet: %w", err)
	}
	out := make([]types.Transfer, len(recs))
	for i, r := range recs {
		amt, _ := util.ParseAmount(r.Amount)
		out[i] = types.Transfer{
			TxHash:      r.TxHash,
			BlockNumber: r.BlockNumber,
			From:        r.From,
			To:          r.To,
			Amount:      amt,
			Timestamp:   r.Timestamp,
			Settlement:  r.Settlement,
		}
	}
	return out, nil
}

// RecentlyActiveWallets returns up to limit distinct wallet addresses that
// appeared as either side of a transfer at or after since, newest first —
// the candidate pool the sybil-monitor and anomaly-detector jobs scan for
// force-recompute (spec §4.7).
func (s *Store) RecentlyActiveWallets(since time.Time, limit int) ([]string, error) {
	var recs []transferRecord
	q := s.db.Where("timestamp >= ?", since).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit * 4) // over-fetch rows since each yields up to two wallets
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("recently active wallets: %w", err)
	}

	seen := make(map[string]bool)
	out := make([]string, 0, limit)
	for _, r := range recs {
		for _, addr := range []string{r.From, r.To} {
			if seen[addr] {
				continue
			}
			seen[addr] = true
			out = append(out, addr)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}
