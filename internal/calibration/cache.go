// Package calibration implements the three adaptive-calibration loops (C8):
// population statistics, outcome-driven weight drift, and tier-threshold
// tuning, plus the outcome matcher that feeds the weight loop. All three
// are gated by sample-size floors; the weight loop is also bounded by
// per-cycle and total drift caps, per spec §4.8.
package calibration

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/pkg/types"
)

const cacheTTL = 60 * time.Second

// Cache fronts the store-backed tier-threshold and dimension-weight
// adjustments with a short-lived cache, per spec §4.8's "the tier
// computation reads these via a short-lived (60s) cache."
type Cache struct {
	store *store.Store

	mu         sync.Mutex
	thresholds types.TierThresholds
	weights    types.Weights
	loadedAt   time.Time
}

// NewCache builds a Cache reading from st, defaulting to the spec-mandated
// thresholds/weights until the first calibration cycle persists an
// adjustment.
func NewCache(st *store.Store) *Cache {
	return &Cache{store: st, thresholds: types.DefaultTierThresholds, weights: types.DefaultWeights}
}

// Thresholds returns the current tier thresholds, refreshing from the store
// if the cached copy is older than 60s.
func (c *Cache) Thresholds() types.TierThresholds {
	c.refreshIfStale()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thresholds
}

// Weights returns the current dimension weights, refreshing from the store
// if the cached copy is older than 60s.
func (c *Cache) Weights() types.Weights {
	c.refreshIfStale()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weights
}

func (c *Cache) refreshIfStale() {
	c.mu.Lock()
	if !c.loadedAt.IsZero() && time.Since(c.loadedAt) < cacheTTL {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	thresholds := types.DefaultTierThresholds
	if raw, ok, err := c.store.GetState(store.KeyTierThresholdAdjustments); err == nil && ok {
		_ = json.Unmarshal([]byte(raw), &thresholds)
	}

	weights := types.DefaultWeights
	if raw, ok, err := c.store.GetState(store.KeyAdaptiveWeightAdjustments); err == nil && ok {
		_ = json.Unmarshal([]byte(raw), &weights)
	}

	c.mu.Lock()
	c.thresholds = thresholds
	c.weights = weights
	c.loadedAt = time.Now().UTC()
	c.mu.Unlock()
}
