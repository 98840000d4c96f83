package rules

import (
	"sync"
	"sync/atomic"

	"reentry/internal/logger"
)

// ExhaustionHandler fires when no tier matched a query. Handlers run on
// their own goroutine; a panicking handler cannot take the resolver down.
type ExhaustionHandler func(Query)

// Resolver answers queries against the registry's current snapshot. A
// query that matches nothing degrades to an emergency resolution instead
// of failing, and raises the exhaustion signal: an unmatched context means
// the rule file has a coverage gap, never that re-entry should quietly use
// defaults.
type Resolver struct {
	registry *Registry

	mu          sync.RWMutex
	onExhausted ExhaustionHandler
	emergencies atomic.Int64
}

func NewResolver(reg *Registry) *Resolver {
	return &Resolver{registry: reg}
}

// OnExhausted installs the handler invoked on emergency fallbacks.
func (rs *Resolver) OnExhausted(fn ExhaustionHandler) {
	rs.mu.Lock()
	rs.onExhausted = fn
	rs.mu.Unlock()
}

// EmergencyCount returns how many queries have fallen through every tier
// since process start.
func (rs *Resolver) EmergencyCount() int64 {
	return rs.emergencies.Load()
}

// Resolve walks the tier hierarchy in order. Within a tier the match with
// the most declared criteria wins; at equal specificity the lowest set id
// wins (sets are stored sorted, so the first best seen is kept). The first
// tier holding any match decides: a weak EXACT match still beats a
// perfect TIER1 match.
func (rs *Resolver) Resolve(q Query) Resolution {
	snap := rs.registry.current()
	for _, tier := range tierOrder {
		var best *ParameterSet
		bestDeclared := -1
		candidates := snap.byTier[tier]
		for i := range candidates {
			set := &candidates[i]
			if set.Disabled {
				continue
			}
			ok, declared := set.Match.match(q)
			if !ok {
				continue
			}
			if declared > bestDeclared {
				best, bestDeclared = set, declared
			}
		}
		if best != nil {
			return resolutionFrom(*best, bestDeclared, q)
		}
	}

	rs.emergencies.Add(1)
	logger.Errorf("no parameter set matched outcome=%s duration=%s proximity=%s calendar=%s symbol=%s generation=%d, returning emergency fallback",
		q.Outcome, q.Duration, q.Proximity, q.Calendar, q.Symbol, q.Generation)
	rs.mu.RLock()
	fn := rs.onExhausted
	rs.mu.RUnlock()
	if fn != nil {
		go func() {
			defer safeRecover("resolver exhaustion handler")
			fn(q)
		}()
	}
	return Resolution{Tier: TierEmergency, Emergency: true}
}

func resolutionFrom(set ParameterSet, declared int, q Query) Resolution {
	vals := set.Values
	return Resolution{
		ReentryEnabled:      vals.ReentryEnabled,
		MaxGeneration:       vals.MaxGeneration,
		LotMultiplier:       vals.LotMultiplier,
		StopLossPips:        vals.StopLossPips,
		TakeProfitPips:      vals.TakeProfitPips,
		ConfidenceThreshold: vals.ConfidenceThreshold,
		MinWaitSeconds:      vals.MinWaitSeconds,
		MaxWaitSeconds:      vals.MaxWaitSeconds,
		Tier:                set.Tier,
		SetID:               set.ID,
		Specificity:         float64(declared) / criteriaSlots,
		WithinMaxGeneration: q.Generation <= vals.MaxGeneration,
	}
}
