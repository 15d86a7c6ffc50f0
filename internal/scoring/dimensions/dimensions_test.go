package dimensions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/onchainscore/scoringcore/pkg/types"
)

func TestScoreReliabilityRange(t *testing.T) {
	score, points := ScoreReliability(ReliabilityFacts{
		TxCount:           500,
		Nonce:             500,
		SuccessRateProxy:  0.98,
		UptimeSpanRatio:   1.0,
		BlocksSinceLastTx: 10,
	})
	assert.GreaterOrEqual(t, score, 0)
	assert.LessOrEqual(t, score, 100)
	assert.NotEmpty(t, points)
}

func TestScoreReliabilityZeroActivity(t *testing.T) {
	score, _ := ScoreReliability(ReliabilityFacts{BlocksSinceLastTx: 1_000_000})
	assert.Equal(t, 0, score)
}

func TestScoreViabilityDrainedPenaltyApplies(t *testing.T) {
	withoutDrain, _ := ScoreViability(ViabilityFacts{NativeBalance: 5, StablecoinBalance: 500, WalletAgeDays: 200, Trend: types.TrendStable})
	withDrain, _ := ScoreViability(ViabilityFacts{NativeBalance: 5, StablecoinBalance: 500, WalletAgeDays: 200, Trend: types.TrendStable, EverDrained: true})
	assert.Equal(t, withoutDrain-15, withDrain)
}

func TestScoreViabilityTrendAdjustment(t *testing.T) {
	rising, _ := ScoreViability(ViabilityFacts{Trend: types.TrendRising})
	freefall, _ := ScoreViability(ViabilityFacts{Trend: types.TrendFreefall})
	assert.Greater(t, rising, freefall)
}

func TestScoreIdentityFullSignals(t *testing.T) {
	now := time.Now().UTC()
	score, points := ScoreIdentity(IdentityFacts{
		SelfRegistered:   true,
		OwnsBasename:     true,
		CodeHostVerified: true,
		RepoStars:        50,
		LastPushedAt:     now.Add(-5 * 24 * time.Hour),
		WalletAgeDays:    365,
		Now:              now,
	})
	assert.Equal(t, 95, score)
	assert.Contains(t, points, "recency_bonus")
}

func TestScoreIdentityNoSignals(t *testing.T) {
	score, _ := ScoreIdentity(IdentityFacts{})
	assert.Equal(t, 0, score)
}

func TestScoreCapabilityFallbackHeuristic(t *testing.T) {
	score, points := ScoreCapability(CapabilityFacts{TxCount: 500})
	assert.Greater(t, score, 0)
	assert.Contains(t, points, "active_services")
}

func TestScoreBehaviourInsufficientHistory(t *testing.T) {
	score, points := ScoreBehaviour(nil)
	assert.Equal(t, 50, score)
	assert.Contains(t, points, "insufficient_history")

	score, _ = ScoreBehaviour([]time.Time{time.Now()})
	assert.Equal(t, 50, score)
}

func TestScoreBehaviourBlendsPartialHistory(t *testing.T) {
	now := time.Now().UTC()
	timestamps := []time.Time{now.Add(-2 * time.Hour), now.Add(-1 * time.Hour), now}
	score, points := ScoreBehaviour(timestamps)
	assert.GreaterOrEqual(t, score, 0)
	assert.LessOrEqual(t, score, 100)
	assert.Contains(t, points, "blended_with_insufficient_baseline")
}

func TestClassifyBehaviourThresholds(t *testing.T) {
	assert.Equal(t, types.BehaviourOrganic, ClassifyBehaviour(80))
	assert.Equal(t, types.BehaviourMixed, ClassifyBehaviour(50))
	assert.Equal(t, types.BehaviourAutomated, ClassifyBehaviour(30))
	assert.Equal(t, types.BehaviourSuspicious, ClassifyBehaviour(10))
}
