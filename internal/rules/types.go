// Package rules holds the tiered parameter sets that size and permit
// re-entries. A Registry loads and hot-reloads the rule file; a Resolver
// answers queries against the registry's current snapshot.
package rules

import (
	"fmt"

	"reentry/internal/pkg/wildcard"
)

// Tier is a priority bucket. Earlier tiers always outrank later ones
// regardless of how specific the later match is.
type Tier string

const (
	TierExact  Tier = "EXACT"
	TierOne    Tier = "TIER1"
	TierTwo    Tier = "TIER2"
	TierThree  Tier = "TIER3"
	TierGlobal Tier = "GLOBAL"

	// TierEmergency labels the fallback resolution when no set matches.
	// It is never a legal load target.
	TierEmergency Tier = "EMERGENCY"
)

var tierOrder = []Tier{TierExact, TierOne, TierTwo, TierThree, TierGlobal}

// TierOrder returns the hierarchy from most to least specific.
func TierOrder() []Tier {
	return append([]Tier(nil), tierOrder...)
}

// ParseTier accepts only loadable tier names.
func ParseTier(s string) (Tier, error) {
	for _, t := range tierOrder {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// criteriaSlots is the number of match dimensions a set can declare;
// specificity is declared-and-matched slots over this total.
const criteriaSlots = 5

// Criteria is a set's match predicate. Empty fields are wildcards.
// Outcome, duration and proximity compare exactly; calendar and symbol
// accept the wildcard pattern forms.
type Criteria struct {
	Outcome   string `mapstructure:"outcome" yaml:"outcome"`
	Duration  string `mapstructure:"duration" yaml:"duration"`
	Proximity string `mapstructure:"proximity" yaml:"proximity"`
	Calendar  string `mapstructure:"calendar" yaml:"calendar"`
	Symbol    string `mapstructure:"symbol" yaml:"symbol"`
}

// match reports whether q satisfies every declared field, and how many
// fields were declared (all of which matched when ok). A field left empty
// or set to the literal "*" is undeclared and contributes nothing to
// specificity.
func (c Criteria) match(q Query) (ok bool, declared int) {
	exact := []struct{ want, got string }{
		{c.Outcome, q.Outcome},
		{c.Duration, q.Duration},
		{c.Proximity, q.Proximity},
	}
	for _, f := range exact {
		if isWildcard(f.want) {
			continue
		}
		if f.want != f.got {
			return false, 0
		}
		declared++
	}
	patterns := []struct{ want, got string }{
		{c.Calendar, q.Calendar},
		{c.Symbol, q.Symbol},
	}
	for _, f := range patterns {
		if isWildcard(f.want) {
			continue
		}
		if !wildcard.Match(f.want, f.got) {
			return false, 0
		}
		declared++
	}
	return true, declared
}

func isWildcard(field string) bool {
	return field == "" || field == "*"
}

// Values are the resolved knobs a matching set hands to the processor.
type Values struct {
	ReentryEnabled      bool    `mapstructure:"reentry_enabled" yaml:"reentry_enabled"`
	MaxGeneration       int     `mapstructure:"max_generation" yaml:"max_generation"`
	LotMultiplier       float64 `mapstructure:"lot_multiplier" yaml:"lot_multiplier"`
	StopLossPips        float64 `mapstructure:"stop_loss_pips" yaml:"stop_loss_pips"`
	TakeProfitPips      float64 `mapstructure:"take_profit_pips" yaml:"take_profit_pips"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	MinWaitSeconds      int     `mapstructure:"min_wait_seconds" yaml:"min_wait_seconds"`
	MaxWaitSeconds      int     `mapstructure:"max_wait_seconds" yaml:"max_wait_seconds"`
}

// ParameterSet is one named, tiered rule.
type ParameterSet struct {
	ID       string   `mapstructure:"id" yaml:"id"`
	Tier     Tier     `mapstructure:"tier" yaml:"tier"`
	Disabled bool     `mapstructure:"disabled" yaml:"disabled"`
	Match    Criteria `mapstructure:"match" yaml:"match"`
	Values   Values   `mapstructure:"rules" yaml:"rules"`
}

// Query is one resolution request. Symbol is expected in canonical form.
type Query struct {
	Outcome    string
	Duration   string
	Proximity  string
	Calendar   string
	Symbol     string
	Generation int
}

// Resolution is the resolver's answer. Emergency results carry
// ReentryEnabled=false and TierEmergency; everything else echoes the
// matched set.
type Resolution struct {
	ReentryEnabled      bool
	MaxGeneration       int
	LotMultiplier       float64
	StopLossPips        float64
	TakeProfitPips      float64
	ConfidenceThreshold float64
	MinWaitSeconds      int
	MaxWaitSeconds      int

	Tier        Tier
	SetID       string
	Specificity float64
	// WithinMaxGeneration reports whether the requested generation does
	// not exceed the matched set's max.
	WithinMaxGeneration bool
	Emergency           bool
}
