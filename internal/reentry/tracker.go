package reentry

import (
	"context"
	"sync"
	"time"

	"reentry/internal/logger"
)

const dayLayout = "2006-01-02"

// SymbolState is the per-symbol gate bookkeeping: when the symbol leaves its
// post-decision cooldown, and how many re-entry decisions it has consumed on
// the current UTC day.
type SymbolState struct {
	CooldownUntil time.Time `json:"cooldown_until"`
	AttemptDate   string    `json:"attempt_date"`
	Attempts      int       `json:"attempts"`
}

// StateStore persists SymbolState across restarts. A nil store keeps the
// tracker purely in memory.
type StateStore interface {
	Load(ctx context.Context) (map[string]SymbolState, error)
	Save(ctx context.Context, symbol string, state SymbolState) error
}

// tracker serializes all cooldown/attempt-count accesses behind one mutex.
// Decisions are short, so the coarse lock is cheaper than per-symbol locks.
type tracker struct {
	mu     sync.Mutex
	states map[string]SymbolState
	store  StateStore
}

func newTracker(ctx context.Context, store StateStore) (*tracker, error) {
	t := &tracker{states: make(map[string]SymbolState), store: store}
	if store == nil {
		return t, nil
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	for sym, st := range loaded {
		t.states[sym] = st
	}
	if len(loaded) > 0 {
		logger.Infof("tracker restored state for %d symbols", len(loaded))
	}
	return t, nil
}

// gate returns the skip reason blocking the symbol right now, or "" when the
// symbol may proceed.
func (t *tracker) gate(symbol string, now time.Time, dailyCap int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[symbol]
	if !ok {
		return ""
	}
	if now.Before(st.CooldownUntil) {
		return SkipCooldownActive
	}
	if dailyCap > 0 && st.AttemptDate == now.UTC().Format(dayLayout) && st.Attempts >= dailyCap {
		return SkipDailyCapReached
	}
	return ""
}

// commit records one consumed decision: the symbol enters its cooldown and
// its daily attempt counter advances, rolling over on UTC date change. The
// store write is best-effort; the ledger row is already durable by the time
// commit runs.
func (t *tracker) commit(ctx context.Context, symbol string, now time.Time, cooldown time.Duration) {
	t.mu.Lock()
	st := t.states[symbol]
	day := now.UTC().Format(dayLayout)
	if st.AttemptDate != day {
		st.AttemptDate = day
		st.Attempts = 0
	}
	st.Attempts++
	st.CooldownUntil = now.Add(cooldown)
	t.states[symbol] = st
	t.mu.Unlock()

	if t.store == nil {
		return
	}
	if err := t.store.Save(ctx, symbol, st); err != nil {
		logger.Warnf("persist symbol state %s failed: %v", symbol, err)
	}
}

// snapshot returns a copy of the current state table.
func (t *tracker) snapshot() map[string]SymbolState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]SymbolState, len(t.states))
	for sym, st := range t.states {
		out[sym] = st
	}
	return out
}

// sweep drops entries that can no longer influence a gate check: cooldown
// expired and attempt counter from an earlier UTC day. Returns how many
// entries were removed.
func (t *tracker) sweep(now time.Time) int {
	day := now.UTC().Format(dayLayout)
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for sym, st := range t.states {
		if now.Before(st.CooldownUntil) || st.AttemptDate == day {
			continue
		}
		delete(t.states, sym)
		removed++
	}
	return removed
}
