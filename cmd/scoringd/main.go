// Command scoringd runs the wallet trust scoring core's background
// pipeline: the two transfer indexers, the scoring engine (served through
// whatever process embeds it, e.g. the payment middleware named in spec
// §1's out-of-scope list), the calibration loop, the reputation publisher,
// and webhook delivery — wired together the way the teacher's cmd/main.go
// wires ethclient, config, and the strategy runner.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/onchainscore/scoringcore/configs"
	"github.com/onchainscore/scoringcore/internal/calibration"
	"github.com/onchainscore/scoringcore/internal/chain"
	"github.com/onchainscore/scoringcore/internal/indexer"
	"github.com/onchainscore/scoringcore/internal/publisher"
	"github.com/onchainscore/scoringcore/internal/scheduler"
	"github.com/onchainscore/scoringcore/internal/scoring"
	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/internal/webhook"
)

func main() {
	configPath := "configs/config.yml"
	if v := os.Getenv("SCORINGD_CONFIG"); v != "" {
		configPath = v
	}
	cfg, err := configs.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	env := os.Getenv("SCORINGD_ENV")
	secrets, err := configs.LoadEnvSecrets(env)
	if err != nil {
		panic(err)
	}
	rpcURL := cfg.RPC
	if secrets.RPCURL != "" {
		rpcURL = secrets.RPCURL
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	rpc, err := chain.Dial(rpcURL)
	if err != nil {
		panic(err)
	}
	defer rpc.Close()

	calib := calibration.NewCache(st)

	engine := scoring.NewEngine(st, rpc, calib,
		scoring.WithStablecoinToken(cfg.Token.Address),
		scoring.WithTimeout(time.Duration(cfg.Scoring.TimeoutSec)*time.Second),
		scoring.WithTTL(time.Duration(cfg.Scoring.TTLMinutes)*time.Minute),
		scoring.WithMaxConcurrentRefresh(cfg.Scoring.MaxConcurrentRefresh),
		scoring.WithModelVersion(cfg.Scoring.ModelVersion),
	)

	micropaymentCfg, err := cfg.ToMicropaymentConfig(secrets.FacilitatorAddress)
	if err != nil {
		panic(err)
	}
	micropaymentIdx := indexer.NewMicropaymentIndexer(rpc, st, micropaymentCfg)

	genericCfg, err := cfg.ToGenericIndexerConfig()
	if err != nil {
		panic(err)
	}
	genericIdx := indexer.NewGenericTransferIndexer(rpc, st, genericCfg)

	sender := webhook.NewHTTPSender(time.Duration(cfg.Webhook.DeliveryTimeoutSec) * time.Second)
	deliverer := webhook.NewDeliverer(st, sender,
		webhook.WithBatchSize(cfg.Webhook.BatchSize),
		webhook.WithRetryBackoff(backoffDurations(cfg.Webhook.RetryBackoffSec)),
		webhook.WithMaxAttempts(cfg.Webhook.MaxAttempts),
	)

	jobs := []scheduler.Job{
		{
			// Hourly score refresh (spec §4.7 job table).
			Name:   "scoring:hourly-refresh",
			Period: time.Hour,
			Run: func(ctx context.Context) error {
				return refreshExpired(ctx, st, engine)
			},
		},
		{
			// Anomaly detector (spec §4.7 job table).
			Name:   "scoring:anomaly-detector",
			Period: 15 * time.Minute,
			Run: func(ctx context.Context) error {
				return rescoreRecentlyActive(ctx, st, engine, 15*time.Minute, 200)
			},
		},
		{
			// Sybil monitor (spec §4.7 job table).
			Name:   "scoring:sybil-monitor",
			Period: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				return rescoreRecentlyActive(ctx, st, engine, 5*time.Minute, 200)
			},
		},
		{
			// Daily aggregator: "once/day, checked hourly" (spec §4.7) —
			// the job fires every hour and runDailyAggregation gates the
			// actual work on KeyLastAggregationDate.
			Name:   "calibration:daily-aggregator",
			Period: time.Hour,
			Run: func(ctx context.Context) error {
				return runDailyAggregation(st, cfg.Calibration)
			},
		},
		{
			// Outcome matcher (spec §4.7 job table).
			Name:         "calibration:outcome-matcher",
			Period:       6 * time.Hour,
			StartupDelay: 90 * time.Second,
			Run: func(ctx context.Context) error {
				return runOutcomeCalibration(st, cfg.Calibration)
			},
		},
		{
			Name:         "webhook:deliverer",
			Period:       30 * time.Second,
			StartupDelay: 0,
			Run:          deliverer.Tick,
		},
	}

	if secrets.PublisherPrivateKey != "" && cfg.Publisher.RegistryAddress != "" {
		pub, err := buildPublisher(rpc, st, secrets.PublisherPrivateKey, cfg.Publisher)
		if err != nil {
			panic(err)
		}
		jobs = append(jobs, scheduler.Job{
			Name:         "publisher:reputation",
			Period:       4 * time.Hour,
			StartupDelay: 150 * time.Second,
			Run:          pub.Run,
		})
	} else {
		log.Printf("[main] PUBLISHER_PRIVATE_KEY or publisher.registryAddress unset, on-chain publication disabled")
	}

	sched := scheduler.New(jobs, scheduler.WithShutdownTimeout(
		time.Duration(cfg.Scheduler.ShutdownTimeoutSec)*time.Second,
	))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The two indexers are long-running chunked pollers, not periodic
	// ticks, so they run on their own goroutines outside the scheduler's
	// single-flight job registry, exactly like the teacher's tx listener
	// running alongside (not inside) the strategy loop.
	go func() {
		if err := micropaymentIdx.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[indexer:micropayment] stopped: %v", err)
		}
	}()
	go func() {
		if err := genericIdx.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[indexer:generic] stopped: %v", err)
		}
	}()

	log.Printf("[main] scoringd starting, %d scheduled jobs registered", len(jobs))
	sched.Start(ctx)
	log.Printf("[main] scoringd stopped")
}

// refreshExpired force-recomputes up to 200 scores whose cache entry has
// expired per run, keeping the stale-while-revalidate window tight even for
// wallets nobody has queried recently (spec §4.6).
func refreshExpired(ctx context.Context, st *store.Store, engine *scoring.Engine) error {
	expired, err := st.ListExpired(200)
	if err != nil {
		return fmt.Errorf("hourly refresh: list expired: %w", err)
	}
	for _, wallet := range expired {
		if _, err := engine.GetOrCalculate(ctx, wallet, true); err != nil {
			log.Printf("[scoring] hourly refresh %s: %v", wallet, err)
		}
	}
	return nil
}

// rescoreRecentlyActive force-recomputes every wallet that has moved funds
// within window, so newly-forming sybil/gaming indicators (C3) surface
// sooner than the hourly TTL-driven refresh would catch them.
func rescoreRecentlyActive(ctx context.Context, st *store.Store, engine *scoring.Engine, window time.Duration, limit int) error {
	wallets, err := st.RecentlyActiveWallets(time.Now().UTC().Add(-window), limit)
	if err != nil {
		return fmt.Errorf("rescore recently active: %w", err)
	}
	for _, wallet := range wallets {
		if _, err := engine.GetOrCalculate(ctx, wallet, true); err != nil {
			log.Printf("[scoring] rescore %s: %v", wallet, err)
		}
	}
	return nil
}

// runDailyAggregation refreshes the population-statistics snapshot and
// re-tunes the tier thresholds, gated by the last-aggregation-date state
// key so a restart mid-day doesn't re-run it.
func runDailyAggregation(st *store.Store, cfg configs.CalibrationYAML) error {
	today := time.Now().UTC().Format("2006-01-02")
	last, ok, err := st.GetState(store.KeyLastAggregationDate)
	if err != nil {
		return fmt.Errorf("daily aggregation: get state: %w", err)
	}
	if ok && last == today {
		return nil
	}

	minWallets := int64(orDefault(cfg.MinWalletsForPopulationStats, 30))
	if _, err := calibration.RunPopulationStats(st, minWallets); err != nil {
		return fmt.Errorf("daily aggregation: population stats: %w", err)
	}
	if _, _, err := calibration.RunTierThresholdTuning(st, minWallets); err != nil {
		return fmt.Errorf("daily aggregation: tier threshold tuning: %w", err)
	}
	if err := st.SetState(store.KeyLastAggregationDate, today); err != nil {
		return fmt.Errorf("daily aggregation: set state: %w", err)
	}
	return nil
}

// runOutcomeCalibration matches newly-closed paid queries against their
// outcomes and, once enough evidence has accumulated, drifts dimension
// weights toward what the outcomes actually supported (spec §4.8).
func runOutcomeCalibration(st *store.Store, cfg configs.CalibrationYAML) error {
	matched, err := calibration.MatchOutcomes(st, time.Time{})
	if err != nil {
		return fmt.Errorf("outcome calibration: match outcomes: %w", err)
	}
	if matched > 0 {
		log.Printf("[calibration] matched %d outcomes", matched)
	}

	minOutcomes := orDefault(cfg.MinOutcomes, calibration.DefaultMinOutcomes)
	minNegative := orDefault(cfg.MinNegativeOutcomes, calibration.DefaultMinNegativeOutcomes)
	if _, ran, err := calibration.RunOutcomeWeightDrift(st, minOutcomes, minNegative); err != nil {
		return fmt.Errorf("outcome calibration: weight drift: %w", err)
	} else if ran {
		log.Printf("[calibration] outcome-driven weight drift applied")
	}
	return nil
}

// buildPublisher parses the signing key and wires a publisher.Publisher
// bound to the configured registry contract.
func buildPublisher(rpc *chain.Client, st *store.Store, rawKey string, cfg configs.PublisherYAML) (*publisher.Publisher, error) {
	key, err := parsePrivateKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("publisher: parse private key: %w", err)
	}
	writer, err := chain.NewWriter(rpc.Raw(), key, cfg.RegistryAddress, cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("publisher: new writer: %w", err)
	}

	minBalance := big.NewInt(0)
	if cfg.MinNativeBalance != "" {
		if _, ok := minBalance.SetString(cfg.MinNativeBalance, 10); !ok {
			return nil, fmt.Errorf("publisher: invalid minNativeBalance %q", cfg.MinNativeBalance)
		}
	}

	return publisher.New(st, writer, publisher.Config{
		MinConfidence:    cfg.MinConfidence,
		MinDelta:         cfg.MinDelta,
		BatchLimit:       cfg.BatchLimit,
		InterTxDelay:     time.Duration(orDefault(cfg.InterTxDelaySec, 5)) * time.Second,
		ConfirmTimeout:   time.Duration(orDefault(cfg.ConfirmTimeoutSec, 60)) * time.Second,
		MinNativeBalance: minBalance,
	}), nil
}

// parsePrivateKey accepts a hex-encoded secp256k1 key with or without the
// "0x" prefix, mirroring the teacher's ENC_PK/KEY env-var loading but
// without the symmetric-encryption step this daemon's deployment model
// doesn't require (see DESIGN.md).
func parsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := raw
	if len(clean) > 1 && clean[0:2] == "0x" {
		clean = clean[2:]
	}
	return crypto.HexToECDSA(clean)
}

func backoffDurations(secs []int) []time.Duration {
	if len(secs) == 0 {
		return nil
	}
	out := make([]time.Duration, len(secs))
	for i, s := range secs {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
