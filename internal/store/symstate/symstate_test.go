package symstate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "symbol_state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("   ")
	assert.Error(t, err)
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	eur := SymbolState{
		CooldownUntil: time.Date(2025, 3, 7, 12, 0, 0, 250_000_000, time.UTC),
		AttemptDate:   "2025-03-07",
		Attempts:      3,
	}
	gbp := SymbolState{Attempts: 1, AttemptDate: "2025-03-06"}

	require.NoError(t, s.Save(ctx, "EURUSD", eur))
	require.NoError(t, s.Save(ctx, "gbpusd", gbp))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.WithinDuration(t, eur.CooldownUntil, got["EURUSD"].CooldownUntil, 0)
	assert.Equal(t, "2025-03-07", got["EURUSD"].AttemptDate)
	assert.Equal(t, 3, got["EURUSD"].Attempts)

	// Symbol key is normalized to upper case on the way in.
	assert.True(t, got["GBPUSD"].CooldownUntil.IsZero())
	assert.Equal(t, 1, got["GBPUSD"].Attempts)
}

func TestSaveUpdatesExistingRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "EURUSD", SymbolState{Attempts: 1, AttemptDate: "2025-03-07"}))
	require.NoError(t, s.Save(ctx, "EURUSD", SymbolState{Attempts: 2, AttemptDate: "2025-03-07"}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got["EURUSD"].Attempts)
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "USDJPY", SymbolState{Attempts: 4, AttemptDate: "2025-03-07"}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, got["USDJPY"].Attempts)
}

func TestPruneKeepsActiveRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)

	// Cooldown still running: kept.
	require.NoError(t, s.Save(ctx, "EURUSD", SymbolState{CooldownUntil: now.Add(5 * time.Minute)}))
	// Cooldown lapsed but attempts counted today: kept.
	require.NoError(t, s.Save(ctx, "GBPUSD", SymbolState{CooldownUntil: now.Add(-time.Hour), AttemptDate: "2025-03-07", Attempts: 2}))
	// Cooldown lapsed, attempts from yesterday: pruned.
	require.NoError(t, s.Save(ctx, "USDJPY", SymbolState{CooldownUntil: now.Add(-time.Hour), AttemptDate: "2025-03-06", Attempts: 5}))
	// No cooldown, no attempt date: pruned.
	require.NoError(t, s.Save(ctx, "XAUUSD", SymbolState{Attempts: 1}))

	removed, err := s.Prune(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got, "EURUSD")
	assert.Contains(t, got, "GBPUSD")
}

func TestSaveRejectsEmptySymbol(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Save(context.Background(), "  ", SymbolState{}))
}

func TestClosedStoreErrors(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	assert.Error(t, s.Save(context.Background(), "EURUSD", SymbolState{}))
	_, err := s.Load(context.Background())
	assert.Error(t, err)
}
