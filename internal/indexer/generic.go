package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// GenericTransferConfig parameterizes the generic transfer indexer.
type GenericTransferConfig struct {
	TokenAddress string

	ChunkSize      uint64
	MinChunkSize   uint64
	BackfillOffset uint64
	CatchUpCeiling uint64
	PollInterval   time.Duration
	RetryDelay     time.Duration
	InterCallDelay time.Duration

	GenesisBlock uint64
	GenesisTime  time.Time
}

// GenericTransferIndexer records every transfer of the configured token,
// unfiltered, throttled by a fixed inter-call delay and run with smaller
// chunks to bound memory (spec §4.2). Used as the broad wallet-activity
// feed the dimension scorers read from, distinct from the micro-payment
// indexer's narrower settlement feed.
type GenericTransferIndexer struct {
	cfg    GenericTransferConfig
	rpc    types.RPCClient
	poller *chunkedPoller
}

func NewGenericTransferIndexer(rpc types.RPCClient, st *store.Store, cfg GenericTransferConfig) *GenericTransferIndexer {
	idx := &GenericTransferIndexer{cfg: cfg, rpc: rpc}
	idx.poller = &chunkedPoller{
		name:           "generic_transfer",
		stateKey:       stateKeyFor(string(types.IndexerGenericTransfer)),
		rpc:            rpc,
		store:          st,
		fetch:          idx.fetchChunk,
		chunkSize:      cfg.ChunkSize,
		minChunkSize:   cfg.MinChunkSize,
		backfillOffset: cfg.BackfillOffset,
		catchUpCeiling: cfg.CatchUpCeiling,
		pollInterval:   cfg.PollInterval,
		retryDelay:     cfg.RetryDelay,
		interCallDelay: cfg.InterCallDelay,
	}
	return idx
}

func (idx *GenericTransferIndexer) Run(ctx context.Context) error {
	return idx.poller.Run(ctx)
}

// CatchingUp reports whether checkpoint is more than catchUpCeiling blocks
// behind the current tip; it always reports false when no ceiling is
// configured. No job in this repository calls it.
func (idx *GenericTransferIndexer) CatchingUp(ctx context.Context, checkpoint uint64) (bool, error) {
	if idx.cfg.CatchUpCeiling == 0 {
		return false, nil
	}
	tip, err := idx.rpc.GetBlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("catching up: block number: %w", err)
	}
	return tip > checkpoint && tip-checkpoint > idx.cfg.CatchUpCeiling, nil
}

func (idx *GenericTransferIndexer) fetchChunk(ctx context.Context, fromBlock, toBlock uint64) ([]types.Transfer, error) {
	logs, err := idx.rpc.GetLogs(ctx, fromBlock, toBlock, idx.cfg.TokenAddress, []string{transferEventTopic0})
	if err != nil {
		return nil, fmt.Errorf("transfer logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}

	anchor := resolveAnchor(ctx, idx.rpc, fromBlock, idx.cfg.GenesisBlock, idx.cfg.GenesisTime)

	transfers := make([]types.Transfer, 0, len(logs))
	for _, l := range logs {
		t, err := decodeTransferLog(l, anchor)
		if err != nil {
			continue
		}
		transfers = append(transfers, t)
	}
	return transfers, nil
}
