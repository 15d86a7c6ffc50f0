package scoring

import (
	"context"
	"encoding/hex"
	"math/big"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onchainscore/scoringcore/internal/detection"
	"github.com/onchainscore/scoringcore/internal/indexer"
	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/internal/util"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// nativeDecimals is the L2 native token's decimal precision (wei-style),
// used to scale the raw *big.Int balance RPC reads return into a float the
// viability dimension can consume.
const nativeDecimals = 18

// balanceOfSelector is the 4-byte selector for ERC20 balanceOf(address),
// used to read the configured stablecoin token's balance over eth_call
// (spec §6 lists eth_call among the RPC surface the core depends on).
var balanceOfSelector = [4]byte{0x70, 0xa0, 0x82, 0x31}

// rpcWindowBlocks bounds the live transfer-window RPC read in step 3b to a
// small recent range — the store already holds the full indexed history;
// this fetch only needs to catch the handful of blocks between an
// indexer's last tick and "now".
const rpcWindowBlocks = 2000

// liveFacts bundles the parallel RPC reads of C5 step 3b. Wallet age and the
// gaming-detection inputs are derived from it later, in computeAndPersist.
type liveFacts struct {
	CurrentBlock      uint64
	Nonce             uint64
	NativeBalance     float64
	StablecoinBalance float64
	OwnsBasename      bool
	RecentLiveTxs     []types.Transfer // best-effort, from the live RPC window
	RPCErr            error
}

// gatherLiveFacts runs the parallel RPC fan-out spec §4.5 step 3b describes:
// chain transfer window, current block, tx count, native balance, basename
// flag. The legs share one errgroup context, so the first leg to fail
// cancels the others and its error is returned in RPCErr; the caller then
// treats the whole compute as failed.
func (e *Engine) gatherLiveFacts(ctx context.Context, wallet string) liveFacts {
	var lf liveFacts
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := e.rpc.GetBlockNumber(gctx)
		if err != nil {
			return err
		}
		lf.CurrentBlock = n
		return nil
	})
	g.Go(func() error {
		n, err := e.rpc.GetTransactionCount(gctx, wallet)
		if err != nil {
			return err
		}
		lf.Nonce = n
		return nil
	})
	g.Go(func() error {
		bal, err := e.rpc.GetBalance(gctx, wallet)
		if err != nil {
			return err
		}
		lf.NativeBalance = scaleDownFloat(bal, nativeDecimals)
		return nil
	})
	if e.stablecoinToken != "" {
		g.Go(func() error {
			out, err := e.rpc.Call(gctx, e.stablecoinToken, encodeBalanceOf(wallet))
			if err != nil {
				return err
			}
			lf.StablecoinBalance = scaleDownFloat(new(big.Int).SetBytes(out), util.AmountScale)
			return nil
		})
	}
	if e.basename != nil {
		g.Go(func() error {
			owns, err := e.basename.Owns(gctx, wallet)
			if err != nil {
				return err
			}
			lf.OwnsBasename = owns
			return nil
		})
	}
	g.Go(func() error {
		txs, err := e.fetchLiveTransferWindow(gctx, wallet)
		if err != nil {
			return err
		}
		lf.RecentLiveTxs = txs
		return nil
	})

	lf.RPCErr = g.Wait()
	return lf
}

// fetchLiveTransferWindow pulls the most recent rpcWindowBlocks of the
// configured token's Transfer logs and keeps only the ones touching wallet,
// giving a best-effort look at activity the indexers haven't caught up to
// yet (spec §4.5 step 3b "chain transfer window").
func (e *Engine) fetchLiveTransferWindow(ctx context.Context, wallet string) ([]types.Transfer, error) {
	if e.stablecoinToken == "" {
		return nil, nil
	}
	tip, err := e.rpc.GetBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	from := uint64(0)
	if tip > rpcWindowBlocks {
		from = tip - rpcWindowBlocks
	}
	logs, err := e.rpc.GetLogs(ctx, from, tip, e.stablecoinToken, []string{indexer.TransferEventTopic0})
	if err != nil {
		return nil, err
	}
	anchor := indexer.ResolveAnchor(ctx, e.rpc, from, e.genesisBlock, e.genesisTime)

	out := make([]types.Transfer, 0, len(logs))
	for _, l := range logs {
		t, err := indexer.DecodeTransferLog(l, anchor)
		if err != nil {
			continue
		}
		if equalFold(t.From, wallet) || equalFold(t.To, wallet) {
			out = append(out, t)
		}
	}
	return out, nil
}

// walletAge computes C5 step 3c's "maximum of the three first-seen
// candidates": the most conservative (latest, most-confirmed) of the
// RPC-scan, micro-payment-indexer, and generic-indexer first-seen signals,
// so age is never over-credited off a single noisy source.
func walletAge(rpcFirstSeen, microFirstSeen, genericFirstSeen time.Time, now time.Time) (time.Time, float64) {
	best := genericFirstSeen
	for _, t := range []time.Time{rpcFirstSeen, microFirstSeen} {
		if !t.IsZero() && (best.IsZero() || t.After(best)) {
			best = t
		}
	}
	if best.IsZero() {
		return best, 0
	}
	return best, now.Sub(best).Hours() / 24
}

// firstSeenCandidates derives the three first-seen signals from store-held
// transfer history: the generic-indexer signal is the wallet aggregate's
// FirstSeen (populated by either indexer since both write the shared
// transfers/wallets tables), the micro-payment signal is the earliest
// settlement-flagged transfer, and the RPC signal is the earliest transfer
// observed in the best-effort live window fetch.
func firstSeenCandidates(wallet types.Wallet, transfers []types.Transfer, liveTxs []types.Transfer) (rpcFirstSeen, microFirstSeen, genericFirstSeen time.Time) {
	genericFirstSeen = wallet.FirstSeen
	for _, t := range transfers {
		if t.Settlement && (microFirstSeen.IsZero() || t.Timestamp.Before(microFirstSeen)) {
			microFirstSeen = t.Timestamp
		}
	}
	for _, t := range liveTxs {
		if rpcFirstSeen.IsZero() || t.Timestamp.Before(rpcFirstSeen) {
			rpcFirstSeen = t.Timestamp
		}
	}
	return
}

// buildWalletFacts gathers the store-only facts the sybil detector needs
// (spec §4.5 step 3a runs before the RPC fan-out).
func buildWalletFacts(st *store.Store, wallet types.Wallet, now time.Time) (detection.WalletFacts, error) {
	edges, err := st.Relationships(wallet.Address)
	if err != nil {
		return detection.WalletFacts{}, err
	}

	partnerAddrs := make([]string, 0, len(edges))
	byAddr := map[string]*detection.PartnerFact{}
	for _, e := range edges {
		other := e.WalletA
		volOut, volIn := e.VolumeBToA, e.VolumeAToB
		txOut, txIn := e.TxCountBToA, e.TxCountAToB
		firstInteract := e.FirstInteract
		if equalFold(other, wallet.Address) {
			other = e.WalletB
			volOut, volIn = e.VolumeAToB, e.VolumeBToA
			txOut, txIn = e.TxCountAToB, e.TxCountBToA
		}
		byAddr[other] = &detection.PartnerFact{
			Address:    other,
			FirstSeen:  firstInteract,
			TxCountOut: txOut,
			TxCountIn:  txIn,
			VolumeOut:  util.AmountToFloat64(volOut),
			VolumeIn:   util.AmountToFloat64(volIn),
		}
		partnerAddrs = append(partnerAddrs, other)
	}

	overlap, err := st.PartnerOverlapCounts(wallet.Address, partnerAddrs)
	if err != nil {
		return detection.WalletFacts{}, err
	}
	for addr, count := range overlap {
		if pf, ok := byAddr[addr]; ok {
			pf.PartnerOfPartners = count
		}
	}

	partners := make([]detection.PartnerFact, 0, len(byAddr))
	for _, pf := range byAddr {
		partners = append(partners, *pf)
	}
	sort.Slice(partners, func(i, j int) bool { return partners[i].Address < partners[j].Address })

	recentCutoff := now.Add(-7 * 24 * time.Hour)
	transfers, err := st.TransfersForWallet(wallet.Address, 0)
	if err != nil {
		return detection.WalletFacts{}, err
	}
	recent := transfers[:0:0]
	for _, t := range transfers {
		if !t.Timestamp.Before(recentCutoff) {
			recent = append(recent, t)
		}
	}

	return detection.WalletFacts{
		Wallet:          wallet.Address,
		FirstSeen:       wallet.FirstSeen,
		Partners:        partners,
		RecentTransfers: recent,
	}, nil
}

// transferTimestamps extracts ascending timestamps for the behaviour
// dimension and the gaming burst-and-stop check.
func transferTimestamps(transfers []types.Transfer) []time.Time {
	out := make([]time.Time, len(transfers))
	for i, t := range transfers {
		out[i] = t.Timestamp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// rollingFlows sums the wallet's inflow and outflow over transfers at or
// after now-window and counts the distinct counterparties among them — a
// relational substitute for the §3 "Wallet stats" pre-rolled aggregate,
// computed at read time from the transfers the store already holds. The
// income/burn ratio is derived by the caller and the trend by
// classifyTrend.
func rollingFlows(wallet string, transfers []types.Transfer, now time.Time, window time.Duration) (inflow, outflow float64, uniquePartners int) {
	cutoff := now.Add(-window)
	partners := map[string]bool{}
	for _, t := range transfers {
		if t.Timestamp.Before(cutoff) {
			continue
		}
		amt := util.AmountToFloat64(t.Amount)
		if equalFold(t.From, wallet) {
			outflow += amt
			partners[normalizeAddr(t.To)] = true
		} else if equalFold(t.To, wallet) {
			inflow += amt
			partners[normalizeAddr(t.From)] = true
		}
	}
	return inflow, outflow, len(partners)
}

// classifyTrend compares the most recent half of the 30-day window against
// the earlier half to label the wallet's flow trajectory.
func classifyTrend(transfers []types.Transfer, wallet string, now time.Time) types.TrendDirection {
	window := 30 * 24 * time.Hour
	mid := now.Add(-window / 2)
	start := now.Add(-window)

	var recentNet, priorNet float64
	for _, t := range transfers {
		if t.Timestamp.Before(start) {
			continue
		}
		amt := util.AmountToFloat64(t.Amount)
		signed := amt
		if equalFold(t.From, wallet) {
			signed = -amt
		}
		if t.Timestamp.Before(mid) {
			priorNet += signed
		} else {
			recentNet += signed
		}
	}

	switch {
	case priorNet == 0 && recentNet == 0:
		return types.TrendStable
	case recentNet <= 0 && priorNet > 0:
		return types.TrendFreefall
	case recentNet < priorNet*0.8:
		return types.TrendDeclining
	case recentNet > priorNet*1.2:
		return types.TrendRising
	default:
		return types.TrendStable
	}
}

func scaleDownFloat(v *big.Int, decimals int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Rat).SetInt(v)
	f.Quo(f, new(big.Rat).SetInt(pow10(decimals)))
	out, _ := f.Float64()
	return out
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// encodeBalanceOf builds the calldata for ERC20 balanceOf(address): the
// 4-byte selector followed by the 20-byte address left-padded into a
// 32-byte word, per the standard ABI encoding rules.
func encodeBalanceOf(wallet string) []byte {
	out := make([]byte, 4+32)
	copy(out[:4], balanceOfSelector[:])
	addr := normalizeAddr(wallet)
	if len(addr) >= 2 && addr[:2] == "0x" {
		addr = addr[2:]
	}
	if len(addr) == 40 {
		if raw, err := hex.DecodeString(addr); err == nil {
			copy(out[4+12:], raw)
		}
	}
	return out
}

func equalFold(a, b string) bool {
	return normalizeAddr(a) == normalizeAddr(b)
}

func normalizeAddr(a string) string {
	out := make([]byte, len(a))
	for i := 0; i < len(a); i++ {
		c := a[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
