package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tieredRuleFile = `
parameter_sets:
  exact_catch_all:
    tier: EXACT
    rules: {reentry_enabled: true, max_generation: 2, lot_multiplier: 0.5, confidence_threshold: 0.8}
  tier1_one_field:
    tier: TIER1
    match: {outcome: L1}
    rules: {reentry_enabled: true, max_generation: 2, lot_multiplier: 0.6, confidence_threshold: 0.6}
  tier2_full:
    tier: TIER2
    match: {outcome: L1, duration: QUICK, proximity: AT_EVENT, calendar: "CAL8_USD_*", symbol: "EURUSD"}
    rules: {reentry_enabled: true, max_generation: 3, lot_multiplier: 0.7, confidence_threshold: 0.9}
`

func queryL1() Query {
	return Query{
		Outcome:    "L1",
		Duration:   "QUICK",
		Proximity:  "AT_EVENT",
		Calendar:   "CAL8_USD_NFP_H",
		Symbol:     "EURUSD",
		Generation: 1,
	}
}

func TestTierOrderDominatesSpecificity(t *testing.T) {
	body := `
parameter_sets:
  tier1_one_field:
    tier: TIER1
    match: {outcome: L1}
    rules: {reentry_enabled: true, max_generation: 2, lot_multiplier: 0.6}
  tier2_full:
    tier: TIER2
    match: {outcome: L1, duration: QUICK, proximity: AT_EVENT, calendar: "CAL8_USD_*", symbol: "EURUSD"}
    rules: {reentry_enabled: true, max_generation: 3, lot_multiplier: 0.7}
`
	rs := NewResolver(newRegistry(t, body))

	res := rs.Resolve(queryL1())
	assert.Equal(t, TierOne, res.Tier)
	assert.Equal(t, "tier1_one_field", res.SetID)
	assert.InDelta(t, 0.2, res.Specificity, 1e-9)
	assert.False(t, res.Emergency)
}

func TestLowSpecificityExactBeatsEverything(t *testing.T) {
	rs := NewResolver(newRegistry(t, tieredRuleFile))

	res := rs.Resolve(queryL1())
	assert.Equal(t, TierExact, res.Tier)
	assert.Equal(t, "exact_catch_all", res.SetID)
	assert.Zero(t, res.Specificity)
}

func TestSpecificityOrderingWithinTier(t *testing.T) {
	body := `
parameter_sets:
  exact_one_field:
    tier: EXACT
    match: {outcome: L1}
    rules: {reentry_enabled: true, max_generation: 2, lot_multiplier: 0.4}
  exact_three_fields:
    tier: EXACT
    match: {outcome: L1, duration: QUICK, symbol: "EUR*"}
    rules: {reentry_enabled: true, max_generation: 2, lot_multiplier: 0.9}
`
	rs := NewResolver(newRegistry(t, body))

	res := rs.Resolve(queryL1())
	assert.Equal(t, "exact_three_fields", res.SetID)
	assert.InDelta(t, 0.6, res.Specificity, 1e-9)
}

func TestEqualSpecificityBreaksByAscendingID(t *testing.T) {
	body := `
parameter_sets:
  bravo:
    tier: TIER1
    match: {outcome: L1, duration: QUICK}
    rules: {reentry_enabled: true, max_generation: 2, lot_multiplier: 0.3}
  alpha:
    tier: TIER1
    match: {outcome: L1, proximity: AT_EVENT}
    rules: {reentry_enabled: true, max_generation: 2, lot_multiplier: 0.8}
`
	rs := NewResolver(newRegistry(t, body))

	res := rs.Resolve(queryL1())
	assert.Equal(t, "alpha", res.SetID)
}

func TestLiteralStarIsUndeclared(t *testing.T) {
	body := `
parameter_sets:
  starry:
    tier: TIER1
    match: {outcome: L1, calendar: "*", symbol: "*"}
    rules: {reentry_enabled: true, max_generation: 2, lot_multiplier: 0.3}
  narrow:
    tier: TIER1
    match: {outcome: L1, duration: QUICK}
    rules: {reentry_enabled: true, max_generation: 2, lot_multiplier: 0.8}
`
	rs := NewResolver(newRegistry(t, body))

	res := rs.Resolve(queryL1())
	assert.Equal(t, "narrow", res.SetID)
	assert.InDelta(t, 0.4, res.Specificity, 1e-9)
}

func TestDisabledSetsAreSkipped(t *testing.T) {
	body := `
parameter_sets:
  switched_off:
    tier: EXACT
    disabled: true
    match: {outcome: L1}
    rules: {reentry_enabled: true, max_generation: 2, lot_multiplier: 0.5}
  fallback:
    tier: GLOBAL
    rules: {reentry_enabled: true, max_generation: 3, lot_multiplier: 1.0}
`
	rs := NewResolver(newRegistry(t, body))

	res := rs.Resolve(queryL1())
	assert.Equal(t, TierGlobal, res.Tier)
	assert.Equal(t, "fallback", res.SetID)
}

func TestEmergencyFallback(t *testing.T) {
	body := `
parameter_sets:
  wins_only:
    tier: GLOBAL
    match: {outcome: W1}
    rules: {reentry_enabled: true, max_generation: 3, lot_multiplier: 1.0}
`
	rs := NewResolver(newRegistry(t, body))

	fired := make(chan Query, 1)
	rs.OnExhausted(func(q Query) { fired <- q })

	res := rs.Resolve(queryL1())
	assert.True(t, res.Emergency)
	assert.Equal(t, TierEmergency, res.Tier)
	assert.False(t, res.ReentryEnabled)
	assert.Empty(t, res.SetID)
	assert.Equal(t, int64(1), rs.EmergencyCount())

	select {
	case q := <-fired:
		assert.Equal(t, "L1", q.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("exhaustion handler never fired")
	}
}

func TestResolutionCarriesValuesAndGenerationBound(t *testing.T) {
	rs := NewResolver(newRegistry(t, goodRuleFile))

	q := queryL1()
	res := rs.Resolve(q)
	require.Equal(t, "nfp_losses", res.SetID)
	assert.Equal(t, TierExact, res.Tier)
	assert.Equal(t, 1.0, res.Specificity)
	assert.Equal(t, 0.5, res.LotMultiplier)
	assert.Equal(t, 15.0, res.StopLossPips)
	assert.Equal(t, 30.0, res.TakeProfitPips)
	assert.Equal(t, 0.7, res.ConfidenceThreshold)
	assert.Equal(t, 120, res.MinWaitSeconds)
	assert.Equal(t, 600, res.MaxWaitSeconds)
	assert.True(t, res.WithinMaxGeneration)

	q.Generation = 3
	res = rs.Resolve(q)
	assert.False(t, res.WithinMaxGeneration, "generation 3 exceeds the set's max of 2")
}
