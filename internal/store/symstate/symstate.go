// Package symstate persists per-symbol gate state (cooldown deadlines and
// daily attempt counters) in a sqlite file. The in-memory tracker is the
// working copy; this store is the durable mirror it reloads on restart.
package symstate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"reentry/internal/reentry"

	_ "modernc.org/sqlite"
)

// SymbolState mirrors the tracker's per-symbol record.
type SymbolState = reentry.SymbolState

// Store wraps a sqlite database holding one row per symbol.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

var _ reentry.StateStore = (*Store)(nil)

// Open opens or creates the sqlite database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("symstate: storage path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Single writer keeps sqlite lock contention out of the picture; the
	// tracker serializes access above us anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying db.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path reports the backing file.
func (s *Store) Path() string {
	return s.path
}

// Save upserts the state row for one symbol.
func (s *Store) Save(ctx context.Context, symbol string, state SymbolState) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("symstate: symbol is empty")
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO symbol_state(symbol, cooldown_until, attempt_date, attempts, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			cooldown_until=excluded.cooldown_until,
			attempt_date=excluded.attempt_date,
			attempts=excluded.attempts,
			updated_at=excluded.updated_at;
	`, symbol, timeToMillis(state.CooldownUntil), nullIfEmpty(state.AttemptDate), state.Attempts, time.Now().UnixMilli())
	return err
}

// Load returns every persisted symbol row.
func (s *Store) Load(ctx context.Context) (map[string]SymbolState, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT symbol, cooldown_until, attempt_date, attempts FROM symbol_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]SymbolState)
	for rows.Next() {
		var (
			symbol   string
			cooldown sql.NullInt64
			date     sql.NullString
			attempts int
		)
		if err := rows.Scan(&symbol, &cooldown, &date, &attempts); err != nil {
			return nil, err
		}
		st := SymbolState{Attempts: attempts}
		if cooldown.Valid && cooldown.Int64 > 0 {
			st.CooldownUntil = time.UnixMilli(cooldown.Int64).UTC()
		}
		if date.Valid {
			st.AttemptDate = date.String
		}
		out[symbol] = st
	}
	return out, rows.Err()
}

// Prune deletes rows whose cooldown has lapsed and whose attempt date is
// older than now's UTC day. Mirrors the tracker's in-memory sweep so the
// file does not accrete one row per symbol ever traded.
func (s *Store) Prune(ctx context.Context, now time.Time) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	day := now.UTC().Format("2006-01-02")
	res, err := db.ExecContext(ctx, `
		DELETE FROM symbol_state
		WHERE cooldown_until <= ? AND (attempt_date IS NULL OR attempt_date < ?);
	`, now.UnixMilli(), day)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("symstate: store is closed")
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS symbol_state (
			symbol TEXT PRIMARY KEY,
			cooldown_until INTEGER NOT NULL DEFAULT 0,
			attempt_date TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_symbol_state_cooldown ON symbol_state(cooldown_until);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func nullIfEmpty(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
