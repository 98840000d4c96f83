package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"

	defaultLedgerDir     = "/data/ledger"
	defaultVerifyWorkers = 4

	defaultRulesPath = "configs/parameter_sets.yaml"

	defaultMinHoldSeconds  = 60
	defaultCooldownSeconds = 300
	defaultDailyCap        = 5
	defaultWinPips         = 10
	defaultLossPips        = -10
	defaultFlashMinutes    = 10
	defaultQuickMinutes    = 60
	defaultLongMinutes     = 240
	defaultSpecWeight      = 0.1
	defaultWinBonus        = 0.05
	defaultLossPenalty     = 0.05
	defaultGenPenalty      = 0.02

	defaultLotStep = 0.01
	defaultMinLot  = 0.01
	defaultMaxLot  = 100

	defaultJournalPath = "/data/db/journal.db"
	defaultStatePath   = "/data/db/symbol_state.db"

	defaultFeedDir     = "/data/feed/incoming"
	defaultFeedArchive = "/data/feed/processed"
	defaultFeedFail    = "/data/feed/rejected"
	defaultFeedPoll    = 5
	defaultFeedWorkers = 4

	defaultSweepEvery  = "1d"
	defaultSweepOffset = "5m"
)

// applyDefaults fills every section, honoring keys the files set explicitly.
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Ledger.applyDefaults(keys)
	c.Rules.applyDefaults(keys)
	c.Decision.applyDefaults(keys)
	c.Instruments.applyDefaults(keys)
	c.Journal.applyDefaults(keys)
	c.State.applyDefaults(keys)
	c.Feed.applyDefaults(keys)
	c.Maintenance.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
	)
}

func (l *LedgerConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ledger.dir", &l.Dir, defaultLedgerDir),
		fieldDefault{
			key:   "ledger.verify_workers",
			need:  func() bool { return l.VerifyWorkers <= 0 },
			apply: func() { l.VerifyWorkers = defaultVerifyWorkers },
		},
	)
}

func (r *RulesConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("rules.path", &r.Path, defaultRulesPath),
		boolFieldDefault("rules.watch", &r.Watch, true),
	)
}

func (d *DecisionConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("decision.require_closed", &d.RequireClosed, true),
		fieldDefault{
			key:   "decision.min_hold_seconds",
			need:  func() bool { return d.MinHoldSeconds <= 0 },
			apply: func() { d.MinHoldSeconds = defaultMinHoldSeconds },
		},
		fieldDefault{
			key:   "decision.cooldown_seconds",
			need:  func() bool { return d.CooldownSeconds <= 0 },
			apply: func() { d.CooldownSeconds = defaultCooldownSeconds },
		},
		fieldDefault{
			key:   "decision.daily_cap",
			need:  func() bool { return d.DailyCap <= 0 },
			apply: func() { d.DailyCap = defaultDailyCap },
		},
		fieldDefault{
			key:   "decision.win_pips",
			need:  func() bool { return d.WinPips == 0 },
			apply: func() { d.WinPips = defaultWinPips },
		},
		fieldDefault{
			key:   "decision.loss_pips",
			need:  func() bool { return d.LossPips == 0 },
			apply: func() { d.LossPips = defaultLossPips },
		},
		fieldDefault{
			key:   "decision.flash_minutes",
			need:  func() bool { return d.FlashMinutes <= 0 },
			apply: func() { d.FlashMinutes = defaultFlashMinutes },
		},
		fieldDefault{
			key:   "decision.quick_minutes",
			need:  func() bool { return d.QuickMinutes <= 0 },
			apply: func() { d.QuickMinutes = defaultQuickMinutes },
		},
		fieldDefault{
			key:   "decision.long_minutes",
			need:  func() bool { return d.LongMinutes <= 0 },
			apply: func() { d.LongMinutes = defaultLongMinutes },
		},
		fieldDefault{
			key:   "decision.specificity_weight",
			need:  func() bool { return d.SpecificityWeight == 0 },
			apply: func() { d.SpecificityWeight = defaultSpecWeight },
		},
		fieldDefault{
			key:   "decision.win_bonus",
			need:  func() bool { return d.WinBonus == 0 },
			apply: func() { d.WinBonus = defaultWinBonus },
		},
		fieldDefault{
			key:   "decision.loss_penalty",
			need:  func() bool { return d.LossPenalty == 0 },
			apply: func() { d.LossPenalty = defaultLossPenalty },
		},
		fieldDefault{
			key:   "decision.generation_penalty",
			need:  func() bool { return d.GenerationPenalty == 0 },
			apply: func() { d.GenerationPenalty = defaultGenPenalty },
		},
	)
	// magnitude tiers stay disabled unless configured
	if d.BigWinPips < 0 {
		d.BigWinPips = 0
	}
	if d.BigLossPips > 0 {
		d.BigLossPips = -d.BigLossPips
	}
}

func (i *InstrumentsConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "instruments.default.lot_step",
			need:  func() bool { return i.Default.LotStep <= 0 },
			apply: func() { i.Default.LotStep = defaultLotStep },
		},
		fieldDefault{
			key:   "instruments.default.min_lot",
			need:  func() bool { return i.Default.MinLot <= 0 },
			apply: func() { i.Default.MinLot = defaultMinLot },
		},
		fieldDefault{
			key:   "instruments.default.max_lot",
			need:  func() bool { return i.Default.MaxLot <= 0 },
			apply: func() { i.Default.MaxLot = defaultMaxLot },
		},
	)
	if len(i.Overrides) == 0 {
		return
	}
	normalized := make(map[string]InstrumentSpec, len(i.Overrides))
	for sym, spec := range i.Overrides {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if spec.LotStep <= 0 {
			spec.LotStep = i.Default.LotStep
		}
		if spec.MinLot <= 0 {
			spec.MinLot = i.Default.MinLot
		}
		if spec.MaxLot <= 0 {
			spec.MaxLot = i.Default.MaxLot
		}
		normalized[sym] = spec
	}
	i.Overrides = normalized
}

func (j *JournalConfig) applyDefaults(keys keySet) {
	if j == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("journal.enabled", &j.Enabled, true),
		stringFieldDefault("journal.path", &j.Path, defaultJournalPath),
	)
}

func (s *StateConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("state.path", &s.Path, defaultStatePath),
	)
}

func (f *FeedConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("feed.dir", &f.Dir, defaultFeedDir),
		stringFieldDefault("feed.archive_dir", &f.ArchiveDir, defaultFeedArchive),
		stringFieldDefault("feed.fail_dir", &f.FailDir, defaultFeedFail),
		fieldDefault{
			key:   "feed.poll_seconds",
			need:  func() bool { return f.PollSeconds <= 0 },
			apply: func() { f.PollSeconds = defaultFeedPoll },
		},
		fieldDefault{
			key:   "feed.workers",
			need:  func() bool { return f.Workers <= 0 },
			apply: func() { f.Workers = defaultFeedWorkers },
		},
	)
}

func (m *MaintenanceConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("maintenance.sweep_every", &m.SweepEvery, defaultSweepEvery),
		stringFieldDefault("maintenance.sweep_offset", &m.SweepOffset, defaultSweepOffset),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
