// Package indexer implements the chain event indexers (C2): cooperating
// pollers that walk chain history in fixed-size chunks, writing transfers
// to the store via a single idempotent transaction per chunk.
package indexer

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// fetchFunc fetches and classifies transfers for a block range. Indexers
// differ only in how they implement this.
type fetchFunc func(ctx context.Context, fromBlock, toBlock uint64) ([]types.Transfer, error)

// chunkedPoller is the checkpoint/tip/chunk-size/yield loop shared by the
// micro-payment and generic transfer indexers (spec §4.2).
type chunkedPoller struct {
	name           string
	stateKey       string
	rpc            types.RPCClient
	store          *store.Store
	fetch          fetchFunc
	chunkSize      uint64
	minChunkSize   uint64
	backfillOffset uint64
	catchUpCeiling uint64
	pollInterval   time.Duration
	retryDelay     time.Duration
	interCallDelay time.Duration
}

func stateKeyFor(indexerName string) string {
	return store.KeyLastIndexedBlockPrefix + indexerName
}

// Run walks chain history forever, cooperating with ctx cancellation
// between chunks and during the idle-at-tip sleep.
func (p *chunkedPoller) Run(ctx context.Context) error {
	checkpoint, err := p.loadCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("%s: load checkpoint: %w", p.name, err)
	}

	chunkSize := p.chunkSize

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tip, err := p.rpc.GetBlockNumber(ctx)
		if err != nil {
			log.Printf("indexer %s: get block number: %v", p.name, err)
			if !sleepCtx(ctx, p.retryDelay) {
				return ctx.Err()
			}
			continue
		}

		if p.catchUpCeiling > 0 && tip > checkpoint && tip-checkpoint > p.catchUpCeiling {
			log.Printf("indexer %s: checkpoint %d is %d blocks behind tip %d (ceiling %d), skipping to tip",
				p.name, checkpoint, tip-checkpoint, tip, p.catchUpCeiling)
			checkpoint = tip
		}

		if checkpoint >= tip {
			if !sleepCtx(ctx, p.pollInterval) {
				return ctx.Err()
			}
			continue
		}

		from := checkpoint + 1
		to := from + chunkSize - 1
		if to > tip {
			to = tip
		}

		transfers, err := p.fetch(ctx, from, to)
		if err != nil {
			if isRangeTooLargeErr(err) && chunkSize > p.minChunkSize {
				chunkSize = halve(chunkSize, p.minChunkSize)
				log.Printf("indexer %s: range %d-%d too large, halving chunk size to %d", p.name, from, to, chunkSize)
				continue
			}
			log.Printf("indexer %s: fetch %d-%d: %v", p.name, from, to, err)
			if !sleepCtx(ctx, p.retryDelay) {
				return ctx.Err()
			}
			continue
		}
		chunkSize = p.chunkSize

		if len(transfers) > 0 {
			if err := p.store.IndexTransferBatch(transfers); err != nil {
				log.Printf("indexer %s: index batch %d-%d: %v", p.name, from, to, err)
				if !sleepCtx(ctx, p.retryDelay) {
					return ctx.Err()
				}
				continue
			}
		}

		checkpoint = to
		if err := p.store.SetState(p.stateKey, strconv.FormatUint(checkpoint, 10)); err != nil {
			log.Printf("indexer %s: persist checkpoint %d: %v", p.name, checkpoint, err)
		}

		if p.interCallDelay > 0 {
			if !sleepCtx(ctx, p.interCallDelay) {
				return ctx.Err()
			}
		}
	}
}

func (p *chunkedPoller) loadCheckpoint(ctx context.Context) (uint64, error) {
	raw, ok, err := p.store.GetState(p.stateKey)
	if err != nil {
		return 0, err
	}
	if ok {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse stored checkpoint %q: %w", raw, err)
		}
		return v, nil
	}

	tip, err := p.rpc.GetBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if tip <= p.backfillOffset {
		return 0, nil
	}
	return tip - p.backfillOffset, nil
}

func halve(chunkSize, floor uint64) uint64 {
	half := chunkSize / 2
	if half < floor {
		return floor
	}
	return half
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// isRangeTooLargeErr matches the handful of "too many results" phrasings
// common JSON-RPC providers return for eth_getLogs over a wide range.
func isRangeTooLargeErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "query returned more than") ||
		strings.Contains(msg, "exceeds the range") ||
		strings.Contains(msg, "block range is too large") ||
		strings.Contains(msg, "result window too large") ||
		strings.Contains(msg, "more than 10000 results")
}
