// Package publisher implements the reputation publisher (C9): a periodic
// job that batches eligible scores and writes them on-chain through a
// types.ChainWriter, throttling between transactions and skipping entirely
// when the signing wallet's native balance is under its floor, per
// spec §4.9.
package publisher

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// Config parameterizes the publisher job.
type Config struct {
	MinConfidence     float64
	MinDelta          int
	BatchLimit        int
	InterTxDelay      time.Duration
	ConfirmTimeout    time.Duration
	MinNativeBalance  *big.Int
}

// Publisher runs the periodic eligible-score publication job.
type Publisher struct {
	store  *store.Store
	writer types.ChainWriter
	cfg    Config
}

// New builds a Publisher.
func New(st *store.Store, writer types.ChainWriter, cfg Config) *Publisher {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 20
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.MinNativeBalance == nil {
		cfg.MinNativeBalance = big.NewInt(0)
	}
	return &Publisher{store: st, writer: writer, cfg: cfg}
}

// Run executes one publication cycle (spec §4.9): enumerate eligible
// scores, publish up to BatchLimit of them, throttled by InterTxDelay.
func (p *Publisher) Run(ctx context.Context) error {
	balance, err := p.writer.NativeBalance(ctx)
	if err != nil {
		return fmt.Errorf("publisher: native balance: %w", err)
	}
	if balance.Cmp(p.cfg.MinNativeBalance) < 0 {
		log.Printf("[publisher] signing wallet balance %s below floor %s, skipping cycle", balance, p.cfg.MinNativeBalance)
		return nil
	}

	candidates, err := p.store.PublishCandidates(p.cfg.MinConfidence, p.cfg.BatchLimit*4)
	if err != nil {
		return fmt.Errorf("publisher: publish candidates: %w", err)
	}

	published := 0
	for _, cand := range candidates {
		if published >= p.cfg.BatchLimit {
			break
		}
		if !eligible(cand, p.cfg.MinDelta) {
			continue
		}
		if err := p.publishOne(ctx, cand.Score); err != nil {
			log.Printf("[publisher] publish %s: %v", cand.Score.Wallet, err)
			continue
		}
		published++
		if p.cfg.InterTxDelay > 0 && published < p.cfg.BatchLimit {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.InterTxDelay):
			}
		}
	}
	return nil
}

// eligible reports whether a candidate satisfies spec §4.9's selection
// rule: never published, or differs from the last published score by at
// least minDelta.
func eligible(cand store.PublishablesCandidate, minDelta int) bool {
	if cand.LastPublishedScore == nil {
		return true
	}
	diff := cand.Score.Composite - *cand.LastPublishedScore
	if diff < 0 {
		diff = -diff
	}
	return diff >= minDelta
}

func (p *Publisher) publishOne(ctx context.Context, sc types.Score) error {
	txHash, err := p.writer.PublishScore(ctx, sc.Wallet, sc.Composite, sc.ModelVersion)
	if err != nil {
		return fmt.Errorf("publish score: %w", err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()
	if _, err := p.writer.WaitForConfirmation(confirmCtx, txHash, p.cfg.ConfirmTimeout); err != nil {
		return fmt.Errorf("wait for confirmation %s: %w", txHash, err)
	}

	pub := types.ReputationPublication{
		Wallet:             sc.Wallet,
		LastPublishedScore: sc.Composite,
		ModelVersion:       sc.ModelVersion,
		TxHash:             txHash,
		PublishedAt:        time.Now().UTC(),
	}
	if err := p.store.RecordPublication(pub); err != nil {
		return fmt.Errorf("record publication: %w", err)
	}
	return nil
}
