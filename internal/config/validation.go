package config

import (
	"fmt"
	"strings"

	"reentry/internal/scheduler"
)

var logLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// validate fails fast on any section that cannot drive a safe decision run.
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Ledger.validate(); err != nil {
		return err
	}
	if err := c.Rules.validate(); err != nil {
		return err
	}
	if err := c.Decision.validate(); err != nil {
		return err
	}
	if err := c.Instruments.validate(); err != nil {
		return err
	}
	if err := c.Journal.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Feed.validate(); err != nil {
		return err
	}
	return c.Maintenance.validate()
}

func (a *AppConfig) validate() error {
	if !logLevels[strings.ToLower(strings.TrimSpace(a.LogLevel))] {
		return fmt.Errorf("app.log_level %q is not one of debug/info/warn/error", a.LogLevel)
	}
	return nil
}

func (l *LedgerConfig) validate() error {
	if strings.TrimSpace(l.Dir) == "" {
		return fmt.Errorf("ledger.dir cannot be empty")
	}
	if l.VerifyWorkers < 1 {
		return fmt.Errorf("ledger.verify_workers must be >= 1")
	}
	return nil
}

func (r *RulesConfig) validate() error {
	if strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("rules.path cannot be empty")
	}
	return nil
}

func (d *DecisionConfig) validate() error {
	if d.WinPips <= 0 {
		return fmt.Errorf("decision.win_pips must be > 0")
	}
	if d.LossPips >= 0 {
		return fmt.Errorf("decision.loss_pips must be < 0")
	}
	if d.BigWinPips > 0 && d.BigWinPips < d.WinPips {
		return fmt.Errorf("decision.big_win_pips must be >= win_pips when set")
	}
	if d.BigLossPips < 0 && d.BigLossPips > d.LossPips {
		return fmt.Errorf("decision.big_loss_pips must be <= loss_pips when set")
	}
	if d.FlashMinutes <= 0 || d.QuickMinutes <= d.FlashMinutes || d.LongMinutes <= d.QuickMinutes {
		return fmt.Errorf("decision duration thresholds must satisfy 0 < flash < quick < long")
	}
	if d.MinHoldSeconds < 0 || d.CooldownSeconds < 0 || d.DailyCap < 0 {
		return fmt.Errorf("decision gate settings must be >= 0")
	}
	if d.SpecificityWeight < 0 || d.WinBonus < 0 || d.LossPenalty < 0 || d.GenerationPenalty < 0 {
		return fmt.Errorf("decision confidence adjustments must be >= 0")
	}
	return nil
}

func (i *InstrumentsConfig) validate() error {
	if err := checkInstrument("instruments.default", i.Default); err != nil {
		return err
	}
	for sym, spec := range i.Overrides {
		if err := checkInstrument("instruments.overrides."+sym, spec); err != nil {
			return err
		}
	}
	return nil
}

func checkInstrument(name string, spec InstrumentSpec) error {
	if spec.LotStep <= 0 {
		return fmt.Errorf("%s.lot_step must be > 0", name)
	}
	if spec.MinLot <= 0 {
		return fmt.Errorf("%s.min_lot must be > 0", name)
	}
	if spec.MaxLot < spec.MinLot {
		return fmt.Errorf("%s.max_lot must be >= min_lot", name)
	}
	return nil
}

func (j *JournalConfig) validate() error {
	if j.Enabled && strings.TrimSpace(j.Path) == "" {
		return fmt.Errorf("journal.path cannot be empty while journal is enabled")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

func (f *FeedConfig) validate() error {
	if strings.TrimSpace(f.Dir) == "" {
		return fmt.Errorf("feed.dir cannot be empty")
	}
	if f.PollSeconds < 1 {
		return fmt.Errorf("feed.poll_seconds must be >= 1")
	}
	if f.Workers < 1 {
		return fmt.Errorf("feed.workers must be >= 1")
	}
	for name, dir := range map[string]string{"feed.archive_dir": f.ArchiveDir, "feed.fail_dir": f.FailDir} {
		if strings.TrimSpace(dir) == f.Dir {
			return fmt.Errorf("%s must differ from feed.dir", name)
		}
	}
	return nil
}

func (m *MaintenanceConfig) validate() error {
	if _, ok := scheduler.ParseEvery(m.SweepEvery); !ok {
		return fmt.Errorf("maintenance.sweep_every %q is not a valid cadence", m.SweepEvery)
	}
	if _, ok := scheduler.ParseEvery(m.SweepOffset); !ok {
		return fmt.Errorf("maintenance.sweep_offset %q is not a valid cadence", m.SweepOffset)
	}
	return nil
}
