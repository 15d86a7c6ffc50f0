// Package types holds the data structures and small collaborator interfaces
// shared across the scoring core: tiers, indicators, recommendations, and
// the RPC/identity/webhook/chain-writer seams the engine depends on.
package types

// Tier is the discrete reputation bucket derived from a wallet's composite
// score. Thresholds are adjustable by calibration (see calibration.Thresholds)
// but the ordering and names are fixed.
type Tier string

const (
	TierElite       Tier = "elite"
	TierTrusted     Tier = "trusted"
	TierEstablished Tier = "established"
	TierEmerging    Tier = "emerging"
	TierUnverified  Tier = "unverified"
)

// TierThresholds holds the composite-score cutoffs for each tier. Calibration
// (C8) may nudge these within bounded drift; a short-lived cache fronts the
// store-backed copy so the tier computation stays cheap (see calibration.Cache).
type TierThresholds struct {
	Elite, Trusted, Established, Emerging int
}

// DefaultTierThresholds are the §3 defaults before any calibration drift.
var DefaultTierThresholds = TierThresholds{
	Elite:       90,
	Trusted:     75,
	Established: 50,
	Emerging:    25,
}

// TierForComposite maps a composite score to a tier using the supplied
// thresholds (so callers can pass either the defaults or a calibrated set).
func TierForComposite(composite int, thresholds TierThresholds) Tier {
	switch {
	case composite >= thresholds.Elite:
		return TierElite
	case composite >= thresholds.Trusted:
		return TierTrusted
	case composite >= thresholds.Established:
		return TierEstablished
	case composite >= thresholds.Emerging:
		return TierEmerging
	default:
		return TierUnverified
	}
}

// Recommendation is the engine's closed-set verdict about whether a
// counterparty should be transacted with.
type Recommendation string

const (
	RecommendationProceed             Recommendation = "proceed"
	RecommendationProceedWithCaution  Recommendation = "proceed_with_caution"
	RecommendationHighRisk            Recommendation = "high_risk"
	RecommendationInsufficientHistory Recommendation = "insufficient_history"
	RecommendationFlaggedForReview    Recommendation = "flagged_for_review"
	RecommendationRPCUnavailable      Recommendation = "rpc_unavailable"
)

// DataSource tags where a served score actually came from.
type DataSource string

const (
	DataSourceLive      DataSource = "live"
	DataSourceCached    DataSource = "cached"
	DataSourceUnavailable DataSource = "unavailable"
)

// TrendDirection classifies a wallet's recent flow trend.
type TrendDirection string

const (
	TrendRising    TrendDirection = "rising"
	TrendStable    TrendDirection = "stable"
	TrendDeclining TrendDirection = "declining"
	TrendFreefall  TrendDirection = "freefall"
)

// HistoryTrendDirection classifies the trend of a wallet's score history,
// distinct from TrendDirection (which classifies balance flow).
type HistoryTrendDirection string

const (
	HistoryImproving HistoryTrendDirection = "improving"
	HistoryStable    HistoryTrendDirection = "stable"
	HistoryDeclining HistoryTrendDirection = "declining"
)

// BehaviourClass classifies the transaction-timing pattern of a wallet.
type BehaviourClass string

const (
	BehaviourOrganic    BehaviourClass = "organic"
	BehaviourMixed      BehaviourClass = "mixed"
	BehaviourAutomated  BehaviourClass = "automated"
	BehaviourSuspicious BehaviourClass = "suspicious"
)

// SybilIndicator is a closed tag describing a detected sybil pattern.
type SybilIndicator string

const (
	SybilTightCluster          SybilIndicator = "tight_cluster"
	SybilSymmetricTransactions SybilIndicator = "symmetric_transactions"
	SybilWashTrading           SybilIndicator = "wash_trading"
	SybilCoordinatedCreation   SybilIndicator = "coordinated_creation"
	SybilFundedByTopPartner    SybilIndicator = "funded_by_top_partner"
	SybilSingleSourceFunding   SybilIndicator = "single_source_funding"
	SybilSinglePartner         SybilIndicator = "single_partner"
	SybilVolumeWithoutDiversity SybilIndicator = "volume_without_diversity"
)

// GamingIndicator is a closed tag describing a detected gaming pattern.
type GamingIndicator string

const (
	GamingBalanceWindowDressing GamingIndicator = "balance_window_dressing"
	GamingBurstAndStop          GamingIndicator = "burst_and_stop"
	GamingNonceInflation        GamingIndicator = "nonce_inflation"
	GamingRevenueRecycling      GamingIndicator = "revenue_recycling"
)

// OutcomeType is the closed set of outcomes the outcome matcher can label a
// prior paid query with.
type OutcomeType string

const (
	OutcomeSuccessfulTx         OutcomeType = "successful_tx"
	OutcomeMultipleSuccessfulTx OutcomeType = "multiple_successful_tx"
	OutcomeFraudReport          OutcomeType = "fraud_report"
	OutcomeNoActivity           OutcomeType = "no_activity"
)

// IndexerName distinguishes the two cooperating chain indexers when reading
// or writing indexer_state checkpoints.
type IndexerName string

const (
	IndexerMicropayment    IndexerName = "micropayment"
	IndexerGenericTransfer IndexerName = "generic_transfer"
)

// IndexerState is the lifecycle of a single chain indexer's poll loop.
type IndexerState string

const (
	IndexerStateInit      IndexerState = "init"
	IndexerStateBackfill  IndexerState = "backfill"
	IndexerStateTail      IndexerState = "tail"
	IndexerStateRetryWait IndexerState = "retry_wait"
)
