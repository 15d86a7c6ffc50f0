package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/pkg/types"
)

const (
	defaultAuthorizationThreshold = 100
	facilitatorLookupConcurrency  = 8
)

// MicropaymentConfig parameterizes the micro-payment indexer. Values come
// from the daemon's yaml config; there is no hardcoded default token or
// facilitator address since both are deployment-specific.
type MicropaymentConfig struct {
	TokenAddress        string
	AuthEventAddress    string
	AuthEventTopic0     string
	FacilitatorAddress  string
	AmountCeiling       *big.Rat
	AuthorizationThresh int // default 100 if zero

	ChunkSize      uint64
	MinChunkSize   uint64
	BackfillOffset uint64
	CatchUpCeiling uint64
	PollInterval   time.Duration
	RetryDelay     time.Duration

	GenesisBlock uint64
	GenesisTime  time.Time
}

// MicropaymentIndexer classifies standard token transfers as micro-payment
// settlements by cross-referencing authorization-use events and a
// configured facilitator address (spec §4.2).
type MicropaymentIndexer struct {
	cfg    MicropaymentConfig
	rpc    types.RPCClient
	poller *chunkedPoller
}

func NewMicropaymentIndexer(rpc types.RPCClient, st *store.Store, cfg MicropaymentConfig) *MicropaymentIndexer {
	if cfg.AuthorizationThresh <= 0 {
		cfg.AuthorizationThresh = defaultAuthorizationThreshold
	}
	idx := &MicropaymentIndexer{cfg: cfg, rpc: rpc}
	idx.poller = &chunkedPoller{
		name:           "micropayment",
		stateKey:       stateKeyFor(string(types.IndexerMicropayment)),
		rpc:            rpc,
		store:          st,
		fetch:          idx.fetchChunk,
		chunkSize:      cfg.ChunkSize,
		minChunkSize:   cfg.MinChunkSize,
		backfillOffset: cfg.BackfillOffset,
		catchUpCeiling: cfg.CatchUpCeiling,
		pollInterval:   cfg.PollInterval,
		retryDelay:     cfg.RetryDelay,
	}
	return idx
}

// Run walks chain history forever, cooperating with ctx cancellation.
func (idx *MicropaymentIndexer) Run(ctx context.Context) error {
	return idx.poller.Run(ctx)
}

func (idx *MicropaymentIndexer) fetchChunk(ctx context.Context, fromBlock, toBlock uint64) ([]types.Transfer, error) {
	transferLogs, err := idx.rpc.GetLogs(ctx, fromBlock, toBlock, idx.cfg.TokenAddress, []string{transferEventTopic0})
	if err != nil {
		return nil, fmt.Errorf("transfer logs: %w", err)
	}
	if len(transferLogs) == 0 {
		return nil, nil
	}

	var authLogs []types.Log
	if idx.cfg.AuthEventAddress != "" {
		authLogs, err = idx.rpc.GetLogs(ctx, fromBlock, toBlock, idx.cfg.AuthEventAddress, []string{idx.cfg.AuthEventTopic0})
		if err != nil {
			return nil, fmt.Errorf("authorization-use logs: %w", err)
		}
	}

	anchor := resolveAnchor(ctx, idx.rpc, fromBlock, idx.cfg.GenesisBlock, idx.cfg.GenesisTime)

	transfers := make([]types.Transfer, 0, len(transferLogs))
	for _, l := range transferLogs {
		t, err := decodeTransferLog(l, anchor)
		if err != nil {
			continue
		}
		transfers = append(transfers, t)
	}

	authTxHashes := make(map[string]bool, len(authLogs))
	for _, l := range authLogs {
		authTxHashes[l.TxHash] = true
	}

	relyOnAmountCeilingOnly := len(authLogs) > idx.cfg.AuthorizationThresh
	if err := idx.classifySettlements(ctx, transfers, authTxHashes, relyOnAmountCeilingOnly); err != nil {
		return nil, err
	}

	settlements := transfers[:0]
	for _, t := range transfers {
		if t.Settlement {
			settlements = append(settlements, t)
		}
	}
	return settlements, nil
}

// classifySettlements marks each transfer's Settlement flag per spec §4.2
// and the glossary's definition of a settlement ("a transfer whose
// on-chain proof-of-authorisation event was emitted"): having a tx hash
// present in authTxHashes is required in every case. Under the amount
// ceiling is also always required; when the authorization-use set for the
// chunk is small enough, additionally require the tx sender to be the
// configured facilitator (one RPC per candidate, capped in parallel).
func (idx *MicropaymentIndexer) classifySettlements(ctx context.Context, transfers []types.Transfer, authTxHashes map[string]bool, amountCeilingOnly bool) error {
	underCeiling := make([]int, 0, len(transfers))
	for i, t := range transfers {
		if !authTxHashes[t.TxHash] {
			continue
		}
		if idx.cfg.AmountCeiling == nil || t.Amount.Cmp(idx.cfg.AmountCeiling) <= 0 {
			underCeiling = append(underCeiling, i)
		}
	}

	if amountCeilingOnly || idx.cfg.FacilitatorAddress == "" {
		for _, i := range underCeiling {
			transfers[i].Settlement = true
		}
		return nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(facilitatorLookupConcurrency)

	for _, i := range underCeiling {
		i := i
		g.Go(func() error {
			tx, err := idx.rpc.GetTransaction(gctx, transfers[i].TxHash)
			if err != nil {
				return nil // best-effort: skip classification for this tx rather than fail the chunk
			}
			if tx.From == idx.cfg.FacilitatorAddress {
				mu.Lock()
				transfers[i].Settlement = true
				mu.Unlock()
			}
			return nil
		})
	}
	return g.Wait()
}
