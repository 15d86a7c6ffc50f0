package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/onchainscore/scoringcore/internal/calibration"
	"github.com/onchainscore/scoringcore/internal/detection"
	"github.com/onchainscore/scoringcore/internal/scoring/dimensions"
	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/internal/util"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// EngineOption configures an Engine's optional collaborators, mirroring the
// teacher's functional-options constructor pattern.
type EngineOption func(*Engine)

// WithStablecoinToken sets the ERC20 token address the viability dimension
// reads a balanceOf() balance from.
func WithStablecoinToken(addr string) EngineOption {
	return func(e *Engine) { e.stablecoinToken = addr }
}

// WithGenesisAnchor sets the block/time pair used to extrapolate block
// timestamps when an RPC timestamp lookup fails (indexer.ResolveAnchor).
func WithGenesisAnchor(block uint64, at time.Time) EngineOption {
	return func(e *Engine) { e.genesisBlock, e.genesisTime = block, at }
}

// WithCodeHost sets the collaborator used to look up code-host metadata
// for the identity dimension.
func WithCodeHost(f types.CodeHostFetcher) EngineOption {
	return func(e *Engine) { e.codeHost = f }
}

// WithBasename sets the collaborator used to check basename ownership.
func WithBasename(b types.BasenameResolver) EngineOption {
	return func(e *Engine) { e.basename = b }
}

// WithIdentityResolver sets the collaborator resolving self-registration
// and code-host handle linkage.
func WithIdentityResolver(r types.IdentityResolver) EngineOption {
	return func(e *Engine) { e.identity = r }
}

// WithTimeout overrides the default synchronous compute timeout (75s).
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithTTL overrides the default cache freshness window (60 minutes).
func WithTTL(d time.Duration) EngineOption {
	return func(e *Engine) { e.ttl = d }
}

// WithMaxConcurrentRefresh overrides the default background-refresh
// concurrency cap (5).
func WithMaxConcurrentRefresh(n int) EngineOption {
	return func(e *Engine) { e.maxConcurrentRefresh = n }
}

// WithModelVersion overrides the default model version tag ("v1").
func WithModelVersion(v string) EngineOption {
	return func(e *Engine) { e.modelVersion = v }
}

// Engine implements the scoring engine (C5): the sole public entry point
// GetOrCalculate, and the synchronous compute pipeline behind it.
type Engine struct {
	store *store.Store
	rpc   types.RPCClient
	calib *calibration.Cache

	codeHost types.CodeHostFetcher
	basename types.BasenameResolver
	identity types.IdentityResolver

	stablecoinToken string
	genesisBlock    uint64
	genesisTime     time.Time

	timeout               time.Duration
	ttl                   time.Duration
	maxConcurrentRefresh  int
	modelVersion          string

	refresh *refreshCoordinator
}

// NewEngine builds an Engine. st, rpc, and calib are required; everything
// else is optional and degrades gracefully when unset (no code-host
// fetcher means the identity dimension just scores 0 for that signal).
func NewEngine(st *store.Store, rpc types.RPCClient, calib *calibration.Cache, opts ...EngineOption) *Engine {
	e := &Engine{
		store:                st,
		rpc:                  rpc,
		calib:                calib,
		timeout:              75 * time.Second,
		ttl:                  60 * time.Minute,
		maxConcurrentRefresh: 5,
		modelVersion:         "v1",
	}
	for _, opt := range opts {
		opt(e)
	}
	e.refresh = newRefreshCoordinator(e.maxConcurrentRefresh)
	return e
}

// GetOrCalculate is the sole public entry point (spec §4.5). force skips the
// cache read (a cached copy is still served if the forced compute fails); a
// zero force reads cache-first with stale-while-revalidate semantics.
func (e *Engine) GetOrCalculate(ctx context.Context, wallet string, force bool) (*types.Score, error) {
	wallet = normalizeAddr(wallet)
	now := time.Now().UTC()

	cached, err := e.store.GetScore(wallet)
	if err != nil {
		return nil, fmt.Errorf("get cached score: %w", err)
	}

	if cached != nil && !force {
		if IsFresh(cached, now) {
			return e.serveCacheHit(cached, now)
		}
		stale := cached.Clone()
		stale.Stale = true
		e.refresh.Trigger(wallet, func(bgCtx context.Context) {
			computeCtx, cancel := context.WithTimeout(bgCtx, e.timeout)
			defer cancel()
			if _, err := e.computeAndPersist(computeCtx, wallet); err != nil {
				log.Printf("scoring: background refresh %s: %v", wallet, err)
			}
		})
		return stale, nil
	}

	computeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	sc, err := e.computeAndPersist(computeCtx, wallet)
	if err == nil {
		return sc, nil
	}

	if cached != nil {
		log.Printf("scoring: synchronous compute failed for %s, serving cached score: %v", wallet, err)
		return cached, nil
	}
	log.Printf("scoring: synchronous compute failed for %s, falling back to identity-only: %v", wallet, err)
	partial, perr := e.computeIdentityOnly(ctx, wallet, now)
	if perr != nil {
		return nil, perr
	}
	return partial, nil
}

// serveCacheHit applies step 1's cache-hit-only fraud dampening: only
// reports filed strictly after computed_at count, since the cached
// composite already embeds the integrity multiplier from compute time.
func (e *Engine) serveCacheHit(cached *types.Score, now time.Time) (*types.Score, error) {
	reports, err := e.store.FraudReportsFiledAfter(cached.Wallet, cached.ComputedAt)
	if err != nil {
		return nil, fmt.Errorf("fraud reports filed after: %w", err)
	}
	if len(reports) == 0 {
		return cached, nil
	}
	dampened := DampenForFraudReports(cached, len(reports))
	dampened.Tier = types.TierForComposite(dampened.Composite, e.calib.Thresholds())
	return dampened, nil
}

// computeAndPersist runs the full synchronous compute pipeline (spec §4.5
// step 3) and persists the result in one transaction plus any triggered
// webhook enqueues.
func (e *Engine) computeAndPersist(ctx context.Context, wallet string) (*types.Score, error) {
	now := time.Now().UTC()

	wrec, err := e.store.GetWallet(wallet)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	if wrec == nil {
		wrec = &types.Wallet{Address: wallet}
	}

	// step a: sybil detection (store-only)
	wf, err := buildWalletFacts(e.store, *wrec, now)
	if err != nil {
		return nil, fmt.Errorf("build wallet facts: %w", err)
	}
	sybil := detection.DetectSybil(wf)

	transfers, err := e.store.TransfersForWallet(wallet, 0)
	if err != nil {
		return nil, fmt.Errorf("transfers for wallet: %w", err)
	}

	// step b: parallel RPC fan-out
	lf := e.gatherLiveFacts(ctx, wallet)
	if lf.RPCErr != nil {
		return nil, fmt.Errorf("gather live facts: %w", lf.RPCErr)
	}

	// step c: wallet age from max of three first-seen candidates
	rpcFirstSeen, microFirstSeen, genericFirstSeen := firstSeenCandidates(*wrec, transfers, lf.RecentLiveTxs)
	firstSeen, ageDays := walletAge(rpcFirstSeen, microFirstSeen, genericFirstSeen, now)

	// step d: gaming detection
	gf := detection.GamingFacts{
		ComputedAt:               now,
		TransferTimestamps:       transferTimestamps(transfers),
		CurrentNonce:             lf.Nonce,
		ExpectedNonceFromTxCount: uint64(wrec.TotalTxCount),
		RevenueByDay:             revenueByDay(transfers, wallet, now, 14),
	}
	gaming := detection.DetectGaming(gf)

	nativeBalance := lf.NativeBalance
	if gaming.UseAvgBalance {
		nativeBalance = gf.AverageBalance24h
	}

	inflow30, outflow30, uniquePartners := rollingFlows(wallet, transfers, now, 30*24*time.Hour)
	incomeBurnRatio := 0.0
	if outflow30 > 0 {
		incomeBurnRatio = inflow30 / outflow30
	} else if inflow30 > 0 {
		incomeBurnRatio = 2.0
	}

	everDrained := walletEverDrained(transfers, wallet)
	trend := classifyTrend(transfers, wallet, now)

	selfRegistered, codeHostHandle := false, ""
	if e.identity != nil {
		selfRegistered, codeHostHandle, _ = e.identity.Resolve(ctx, wallet)
	}
	var hostProfile types.CodeHostProfile
	if e.codeHost != nil && codeHostHandle != "" {
		hostProfile, _ = e.codeHost.Fetch(ctx, codeHostHandle)
	}

	// step e: five dimension scores
	weights := e.calib.Weights()

	successRateProxy := 0.0
	if lf.Nonce > 0 {
		successRateProxy = util.Clamp(float64(wrec.TotalTxCount)/float64(lf.Nonce), 0, 1)
	}
	relScore, relPoints := dimensions.ScoreReliability(dimensions.ReliabilityFacts{
		TxCount:           wrec.TotalTxCount,
		Nonce:             lf.Nonce,
		SuccessRateProxy:  successRateProxy,
		UptimeSpanRatio:   util.Clamp(ageDays/14, 0, 1),
		BlocksSinceLastTx: blocksSinceLastTx(lf.CurrentBlock, transfers),
	})
	viaScore, viaPoints := dimensions.ScoreViability(dimensions.ViabilityFacts{
		NativeBalance:     nativeBalance,
		StablecoinBalance: lf.StablecoinBalance,
		IncomeBurnRatio:   incomeBurnRatio,
		WalletAgeDays:     ageDays,
		Trend:             trend,
		EverDrained:       everDrained,
	})
	idnScore, idnPoints := dimensions.ScoreIdentity(dimensions.IdentityFacts{
		SelfRegistered:   selfRegistered,
		OwnsBasename:     lf.OwnsBasename,
		CodeHostVerified: hostProfile.Verified,
		RepoStars:        hostProfile.Stars,
		LastPushedAt:     hostProfile.LastPushedAt,
		WalletAgeDays:    ageDays,
		Now:              now,
	})
	capScore, capPoints := dimensions.ScoreCapability(dimensions.CapabilityFacts{
		TxCount:      wrec.TotalTxCount,
		RevenueDaily: dailyAverage(gf.RevenueByDay),
	})
	behScore, behPoints := dimensions.ScoreBehaviour(transferTimestamps(transfers))

	dims := types.Dimensions{
		Reliability: types.DimensionScore{Name: "reliability", Score: relScore, Points: relPoints},
		Viability:   types.DimensionScore{Name: "viability", Score: viaScore, Points: viaPoints},
		Identity:    types.DimensionScore{Name: "identity", Score: idnScore, Points: idnPoints},
		Capability:  types.DimensionScore{Name: "capability", Score: capScore, Points: capPoints},
		Behaviour:   types.DimensionScore{Name: "behaviour", Score: behScore, Points: behPoints},
	}

	// step f: sybil caps
	if sybil.Caps.Reliability > 0 {
		dims.Reliability.Score = min(dims.Reliability.Score, sybil.Caps.Reliability)
	}
	if sybil.Caps.Identity > 0 {
		dims.Identity.Score = min(dims.Identity.Score, sybil.Caps.Identity)
	}

	// step g: gaming penalties
	dims.Reliability.Score = max(0, dims.Reliability.Score-gaming.Penalties.Reliability)
	dims.Viability.Score = max(0, dims.Viability.Score-gaming.Penalties.Viability)
	dims.Behaviour.Score = max(0, dims.Behaviour.Score-gaming.Penalties.Behaviour)

	// step h: raw composite
	rawComposite := int(math.Round(
		weights.Reliability*float64(dims.Reliability.Score) +
			weights.Viability*float64(dims.Viability.Score) +
			weights.Identity*float64(dims.Identity.Score) +
			weights.Behaviour*float64(dims.Behaviour.Score) +
			weights.Capability*float64(dims.Capability.Score),
	))

	// step i: integrity multiplier
	fraudCount, err := e.store.CountFraudReports(wallet)
	if err != nil {
		return nil, fmt.Errorf("count fraud reports: %w", err)
	}
	integrityMultiplier := 1.0
	for _, f := range sybil.Factors {
		integrityMultiplier *= f
	}
	for _, f := range gaming.Factors {
		integrityMultiplier *= f
	}
	for i := 0; i < fraudCount; i++ {
		integrityMultiplier *= 0.90
	}
	integrityMultiplier = util.Clamp(integrityMultiplier, 0.10, 1.00)

	// step j: composite and tier
	composite := int(math.Round(float64(rawComposite) * integrityMultiplier))
	composite = util.ClampInt(composite, 0, 100)
	thresholds := e.calib.Thresholds()
	tier := types.TierForComposite(composite, thresholds)

	// step k: confidence
	confidence, err := e.computeConfidence(wallet, wrec.TotalTxCount, ageDays, uniquePartners, now)
	if err != nil {
		return nil, fmt.Errorf("compute confidence: %w", err)
	}

	// step l: recommendation
	recommendation := deriveRecommendation(sybil.Flagged() || gaming.Flagged(), confidence, composite)

	snapshot, _ := json.Marshal(struct {
		Sybil  detection.SybilResult  `json:"sybil"`
		Gaming detection.GamingResult `json:"gaming"`
	}{sybil, gaming})

	sc := &types.Score{
		Wallet:              wallet,
		Composite:           composite,
		RawComposite:        rawComposite,
		Dimensions:          dims,
		Tier:                tier,
		Confidence:          confidence,
		Recommendation:      recommendation,
		ModelVersion:        e.modelVersion,
		SybilFlag:           sybil.Flagged(),
		SybilIndicators:     sybil.Indicators,
		GamingIndicators:    gaming.Indicators,
		IntegrityMultiplier: integrityMultiplier,
		RawSnapshot:         snapshot,
		ComputedAt:          now,
		ExpiresAt:           now.Add(e.ttl),
	}

	// step m: persist + enqueue webhooks
	if err := e.store.UpsertScore(sc); err != nil {
		return nil, fmt.Errorf("upsert score: %w", err)
	}
	_ = firstSeen // derived for age only; not persisted separately (wallet.FirstSeen owned by indexers)
	e.enqueueWebhooks(wallet, "score.updated", sc)

	return sc, nil
}

// computeIdentityOnly implements step 4: a DB-only partial score computed
// with no RPC, used when the synchronous compute path times out or an RPC
// call fails and there is no cached value to fall back to serving stale.
// Per spec, the result is cached only when the composite is > 0 — a hard
// zero should retry the full scan on the next request rather than being
// remembered as a permanent zero.
func (e *Engine) computeIdentityOnly(ctx context.Context, wallet string, now time.Time) (*types.Score, error) {
	wrec, err := e.store.GetWallet(wallet)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	if wrec == nil {
		wrec = &types.Wallet{Address: wallet}
	}

	selfRegistered, codeHostHandle := false, ""
	if e.identity != nil {
		selfRegistered, codeHostHandle, _ = e.identity.Resolve(ctx, wallet)
	}
	var hostProfile types.CodeHostProfile
	if e.codeHost != nil && codeHostHandle != "" {
		hostProfile, _ = e.codeHost.Fetch(ctx, codeHostHandle)
	}

	ageDays := 0.0
	if !wrec.FirstSeen.IsZero() {
		ageDays = now.Sub(wrec.FirstSeen).Hours() / 24
	}

	idnScore, idnPoints := dimensions.ScoreIdentity(dimensions.IdentityFacts{
		SelfRegistered:   selfRegistered,
		CodeHostVerified: hostProfile.Verified,
		RepoStars:        hostProfile.Stars,
		LastPushedAt:     hostProfile.LastPushedAt,
		WalletAgeDays:    ageDays,
		Now:              now,
	})

	dims := types.Dimensions{
		Identity: types.DimensionScore{Name: "identity", Score: idnScore, Points: idnPoints},
	}
	composite := int(math.Round(float64(idnScore) * e.calib.Weights().Identity))
	composite = util.ClampInt(composite, 0, 100)

	sc := &types.Score{
		Wallet:              wallet,
		Composite:           composite,
		RawComposite:        composite,
		Dimensions:          dims,
		Tier:                types.TierForComposite(composite, e.calib.Thresholds()),
		Confidence:          0,
		Recommendation:      types.RecommendationRPCUnavailable,
		ModelVersion:        e.modelVersion,
		IntegrityMultiplier: 1.0,
		ComputedAt:          now,
		ExpiresAt:           now.Add(5 * time.Minute),
	}

	if composite > 0 {
		if err := e.store.UpsertScore(sc); err != nil {
			return nil, fmt.Errorf("upsert identity-only score: %w", err)
		}
	}
	return sc, nil
}

// computeConfidence implements step k: a weighted sum of {tx count, wallet
// age, unique partners, prior-query count, trajectory stability}, clamped
// to [0,1]. Trajectory stability is zeroed when history has fewer than 2
// entries so brand-new wallets score confidence 0 rather than inheriting a
// default "stable" value (scenario A).
func (e *Engine) computeConfidence(wallet string, txCount int64, ageDays float64, uniquePartners int, now time.Time) (float64, error) {
	history, err := e.store.GetHistory(wallet, nil, nil, 50)
	if err != nil {
		return 0, fmt.Errorf("get history: %w", err)
	}

	queries, err := e.store.QueriesSince(now.Add(-90 * 24 * time.Hour))
	if err != nil {
		return 0, fmt.Errorf("queries since: %w", err)
	}
	queryCount := 0
	for _, q := range queries {
		if equalFold(q.Wallet, wallet) {
			queryCount++
		}
	}

	txSignal := util.Clamp(float64(txCount)/100, 0, 1)
	ageSignal := util.Clamp(ageDays/90, 0, 1)
	partnerSignal := util.Clamp(float64(uniquePartners)/10, 0, 1)
	querySignal := util.Clamp(float64(queryCount)/20, 0, 1)

	var stabilitySignal float64
	if len(history) >= 2 {
		vol, err := e.store.HistoryVolatility(wallet, 50)
		if err != nil {
			return 0, fmt.Errorf("history volatility: %w", err)
		}
		stabilitySignal = util.Clamp(1-vol/25, 0, 1)
	}

	confidence := 0.25*txSignal + 0.20*ageSignal + 0.15*partnerSignal + 0.15*querySignal + 0.25*stabilitySignal
	return util.Clamp(confidence, 0, 1), nil
}

// deriveRecommendation applies step l's priority ordering.
func deriveRecommendation(flagged bool, confidence float64, composite int) types.Recommendation {
	switch {
	case flagged:
		return types.RecommendationFlaggedForReview
	case confidence < 0.3:
		return types.RecommendationInsufficientHistory
	case composite < 25 && confidence >= 0.5:
		return types.RecommendationHighRisk
	case composite >= 50 && confidence >= 0.5:
		return types.RecommendationProceed
	default:
		return types.RecommendationProceedWithCaution
	}
}

// enqueueWebhooks looks up active subscribers for eventType and enqueues a
// delivery row per spec §4.5 step m / §4.10's wire format.
func (e *Engine) enqueueWebhooks(wallet, eventType string, sc *types.Score) {
	hooks, err := e.store.ActiveWebhooksForEvent(wallet, eventType)
	if err != nil {
		log.Printf("scoring: active webhooks for %s: %v", wallet, err)
		return
	}
	if len(hooks) == 0 {
		return
	}
	body, err := json.Marshal(struct {
		Event     string      `json:"event"`
		Timestamp time.Time   `json:"timestamp"`
		Data      *types.Score `json:"data"`
	}{eventType, sc.ComputedAt, sc})
	if err != nil {
		log.Printf("scoring: marshal webhook payload for %s: %v", wallet, err)
		return
	}
	for _, h := range hooks {
		if err := e.store.EnqueueDelivery(types.WebhookDelivery{
			WebhookID: h.ID,
			EventType: eventType,
			Payload:   body,
		}); err != nil {
			log.Printf("scoring: enqueue delivery for webhook %s: %v", h.ID, err)
		}
	}
}


// neverActiveBlocks is returned by blocksSinceLastTx for a wallet with no
// prior transfers, placing it beyond the reliability dimension's recency
// breakpoint table so it scores no recency points rather than being
// misread as freshly active.
const neverActiveBlocks = 1_000_000

func blocksSinceLastTx(currentBlock uint64, transfers []types.Transfer) uint64 {
	if len(transfers) == 0 || currentBlock == 0 {
		return neverActiveBlocks
	}
	last := transfers[0].BlockNumber
	for _, t := range transfers {
		if t.BlockNumber > last {
			last = t.BlockNumber
		}
	}
	if currentBlock <= last {
		return 0
	}
	return currentBlock - last
}

func walletEverDrained(transfers []types.Transfer, wallet string) bool {
	var running float64
	peak := 0.0
	for i := len(transfers) - 1; i >= 0; i-- {
		t := transfers[i]
		amt := amountFloat(t)
		if equalFold(t.From, wallet) {
			running -= amt
		} else if equalFold(t.To, wallet) {
			running += amt
		}
		if running > peak {
			peak = running
		}
		if peak > 0 && running <= peak*0.05 {
			return true
		}
	}
	return false
}

func amountFloat(t types.Transfer) float64 {
	if t.Amount == nil {
		return 0
	}
	f, _ := t.Amount.Float64()
	return f
}

func revenueByDay(transfers []types.Transfer, wallet string, now time.Time, days int) []float64 {
	out := make([]float64, days)
	for _, t := range transfers {
		if !equalFold(t.To, wallet) {
			continue
		}
		d := int(now.Sub(t.Timestamp).Hours() / 24)
		if d < 0 || d >= days {
			continue
		}
		out[days-1-d] += amountFloat(t)
	}
	return out
}

func dailyAverage(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
