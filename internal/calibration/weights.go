package calibration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// DefaultMinOutcomes and DefaultMinNegativeOutcomes are the sample-size
// floors the outcome-driven weight loop uses when its caller passes zero;
// below them the loop does not run at all.
const (
	DefaultMinOutcomes         = 50
	DefaultMinNegativeOutcomes = 5
)

// WeightStepCap bounds how far a single dimension's weight may move in one
// calibration cycle (spec §4.8: "by at most ±0.02").
const WeightStepCap = 0.02

// WeightTotalDriftCap bounds how far a dimension's weight may have drifted
// from its spec default across all cycles combined (spec §4.8: "a total
// drift cap of ±0.05 from defaults").
const WeightTotalDriftCap = 0.05

// outcomeSign weights an outcome as evidence that the wallet deserved its
// score at query time: multiple successful txs +1.0, one successful tx
// +0.5, no activity -0.25, a fraud report -1.0, anything else 0.
func outcomeSign(t types.OutcomeType) float64 {
	switch t {
	case types.OutcomeSuccessfulTx:
		return 0.5
	case types.OutcomeMultipleSuccessfulTx:
		return 1.0
	case types.OutcomeFraudReport:
		return -1.0
	case types.OutcomeNoActivity:
		return -0.25
	default:
		return 0
	}
}

// RunOutcomeWeightDrift implements spec §4.8's outcome-driven weight loop:
// gated by sample-size floors, it correlates each dimension's score
// against whether the outcome was positive
// or negative, and nudges that dimension's weight a bounded step in the
// supported direction, clamped to the total drift cap from the spec
// defaults.
//
// The per-query dimension breakdown isn't retained once a wallet is
// rescored (only the latest Score row and its RawSnapshot survive) so this
// loop correlates outcomes against each wallet's *current* dimension
// scores as the best available proxy for "what the dimensions said about
// this wallet" — see DESIGN.md for why a per-query snapshot table wasn't
// added for this.
func RunOutcomeWeightDrift(st *store.Store, minOutcomes, minNegative int) (types.Weights, bool, error) {
	if minOutcomes <= 0 {
		minOutcomes = DefaultMinOutcomes
	}
	if minNegative <= 0 {
		minNegative = DefaultMinNegativeOutcomes
	}

	outcomes, err := st.OutcomesSince(time.Time{})
	if err != nil {
		return types.Weights{}, false, fmt.Errorf("outcome weight drift: outcomes since: %w", err)
	}
	if len(outcomes) < minOutcomes {
		return types.Weights{}, false, nil
	}
	negatives := 0
	for _, o := range outcomes {
		if outcomeSign(o.Type) < 0 {
			negatives++
		}
	}
	if negatives < minNegative {
		return types.Weights{}, false, nil
	}

	var corrRel, corrVia, corrIdn, corrCap, corrBeh float64
	var n float64
	for _, o := range outcomes {
		sc, err := st.GetScore(o.Wallet)
		if err != nil {
			return types.Weights{}, false, fmt.Errorf("outcome weight drift: get score %s: %w", o.Wallet, err)
		}
		if sc == nil {
			continue
		}
		sign := outcomeSign(o.Type)
		corrRel += sign * float64(sc.Dimensions.Reliability.Score)
		corrVia += sign * float64(sc.Dimensions.Viability.Score)
		corrIdn += sign * float64(sc.Dimensions.Identity.Score)
		corrCap += sign * float64(sc.Dimensions.Capability.Score)
		corrBeh += sign * float64(sc.Dimensions.Behaviour.Score)
		n++
	}
	if n == 0 {
		return types.Weights{}, false, nil
	}

	current := loadPersistedWeights(st)
	next := types.Weights{
		Reliability: driftedWeight(current.Reliability, types.DefaultWeights.Reliability, corrRel/n),
		Viability:   driftedWeight(current.Viability, types.DefaultWeights.Viability, corrVia/n),
		Identity:    driftedWeight(current.Identity, types.DefaultWeights.Identity, corrIdn/n),
		Capability:  driftedWeight(current.Capability, types.DefaultWeights.Capability, corrCap/n),
		Behaviour:   driftedWeight(current.Behaviour, types.DefaultWeights.Behaviour, corrBeh/n),
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return types.Weights{}, false, fmt.Errorf("outcome weight drift: marshal weights: %w", err)
	}
	if err := st.SetState(store.KeyAdaptiveWeightAdjustments, string(raw)); err != nil {
		return types.Weights{}, false, fmt.Errorf("outcome weight drift: persist weights: %w", err)
	}
	return next, true, nil
}

// driftedWeight nudges current toward (or away from) its default by up to
// WeightStepCap in the direction of corr's sign, clamped so the total
// distance from def never exceeds WeightTotalDriftCap.
func driftedWeight(current, def, corr float64) float64 {
	step := WeightStepCap
	if corr < 0 {
		step = -WeightStepCap
	}
	if corr == 0 {
		step = 0
	}
	next := current + step
	if next > def+WeightTotalDriftCap {
		next = def + WeightTotalDriftCap
	}
	if next < def-WeightTotalDriftCap {
		next = def - WeightTotalDriftCap
	}
	return next
}

func loadPersistedWeights(st *store.Store) types.Weights {
	raw, ok, err := st.GetState(store.KeyAdaptiveWeightAdjustments)
	if err != nil || !ok {
		return types.DefaultWeights
	}
	var w types.Weights
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return types.DefaultWeights
	}
	return w
}
