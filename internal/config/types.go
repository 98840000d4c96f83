package config

import (
	"strings"
	"time"

	"reentry/internal/scheduler"
)

// Config is the top-level configuration carrier for the re-entry engine.
type Config struct {
	// Include lists further files merged before this one; consumed by Load.
	Include []string `toml:"include"`

	App         AppConfig         `toml:"app"`
	Ledger      LedgerConfig      `toml:"ledger"`
	Vocab       VocabConfig       `toml:"vocab"`
	Rules       RulesConfig       `toml:"rules"`
	Decision    DecisionConfig    `toml:"decision"`
	Instruments InstrumentsConfig `toml:"instruments"`
	Journal     JournalConfig     `toml:"journal"`
	State       StateConfig       `toml:"state"`
	Notify      NotifyConfig      `toml:"notify"`
	Feed        FeedConfig        `toml:"feed"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// LedgerConfig locates the durable decision ledger.
type LedgerConfig struct {
	Dir           string `toml:"dir"`
	VerifyWorkers int    `toml:"verify_workers"`
}

// VocabConfig points at an optional token-override file; empty means the
// built-in vocabulary.
type VocabConfig struct {
	Path string `toml:"path"`
}

// RulesConfig locates the parameter-set file and controls hot reload.
type RulesConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// DecisionConfig carries the gate, classification and confidence knobs of
// the decision processor. loss_pips and big_loss_pips are negative
// thresholds; big_win_pips/big_loss_pips of 0 disable the W2/L2 tiers.
type DecisionConfig struct {
	RequireClosed   bool `toml:"require_closed"`
	MinHoldSeconds  int  `toml:"min_hold_seconds"`
	CooldownSeconds int  `toml:"cooldown_seconds"`
	DailyCap        int  `toml:"daily_cap"`

	WinPips     float64 `toml:"win_pips"`
	LossPips    float64 `toml:"loss_pips"`
	BigWinPips  float64 `toml:"big_win_pips"`
	BigLossPips float64 `toml:"big_loss_pips"`

	FlashMinutes float64 `toml:"flash_minutes"`
	QuickMinutes float64 `toml:"quick_minutes"`
	LongMinutes  float64 `toml:"long_minutes"`

	SpecificityWeight float64 `toml:"specificity_weight"`
	WinBonus          float64 `toml:"win_bonus"`
	LossPenalty       float64 `toml:"loss_penalty"`
	GenerationPenalty float64 `toml:"generation_penalty"`
}

// InstrumentSpec is one symbol's lot constraints.
type InstrumentSpec struct {
	LotStep float64 `toml:"lot_step"`
	MinLot  float64 `toml:"min_lot"`
	MaxLot  float64 `toml:"max_lot"`
}

// InstrumentsConfig maps symbols to lot constraints with a shared default.
type InstrumentsConfig struct {
	Default   InstrumentSpec            `toml:"default"`
	Overrides map[string]InstrumentSpec `toml:"overrides"`
}

// JournalConfig controls the queryable decision mirror (sqlite via gorm).
// The CSV ledger stays the durable authority; the journal only serves
// reporting and can be disabled.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// StateConfig locates the per-symbol gate state database. Empty keeps the
// cooldown/attempt tracking in memory only.
type StateConfig struct {
	Path string `toml:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// FeedConfig describes the drop-directory bridge that delivers closed-trade
// files from the trading terminals.
type FeedConfig struct {
	Dir         string `toml:"dir"`
	ArchiveDir  string `toml:"archive_dir"`
	FailDir     string `toml:"fail_dir"`
	PollSeconds int    `toml:"poll_seconds"`
	Workers     int    `toml:"workers"`
}

// MaintenanceConfig paces the nightly sweep that drops lapsed cooldowns
// and stale attempt counters. Cadences use the short "1d"/"5m" form.
type MaintenanceConfig struct {
	SweepEvery  string `toml:"sweep_every"`
	SweepOffset string `toml:"sweep_offset"`
}

// SweepSchedule returns the parsed cadence. Load has already validated
// both fields, so parse failures fall back to zero durations.
func (m MaintenanceConfig) SweepSchedule() (every, offset time.Duration) {
	every, _ = scheduler.ParseEvery(m.SweepEvery)
	offset, _ = scheduler.ParseEvery(m.SweepOffset)
	return every, offset
}

// keySet tracks the field paths explicitly present in the loaded files, so
// defaults never override a deliberate zero.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
