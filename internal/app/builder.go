package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reentry/internal/config"
	"reentry/internal/feed"
	"reentry/internal/ledger"
	"reentry/internal/logger"
	"reentry/internal/notifier"
	"reentry/internal/reentry"
	"reentry/internal/rules"
	"reentry/internal/store/journal"
	"reentry/internal/store/symstate"
	"reentry/internal/vocab"
)

// AppBuilder assembles the engine from configuration. Construction steps
// are injectable so tests can swap a store or notifier without touching
// the wiring order.
type AppBuilder struct {
	cfg *config.Config

	vocabFn    func(config.VocabConfig) (*vocab.Vocabulary, error)
	stateFn    func(string) (*symstate.Store, error)
	journalFn  func(string) (*journal.Store, error)
	notifierFn func(config.TelegramConfig) notifier.Notifier
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		vocabFn:    loadVocabulary,
		stateFn:    symstate.Open,
		journalFn:  journal.Open,
		notifierFn: buildNotifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func loadVocabulary(cfg config.VocabConfig) (*vocab.Vocabulary, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return vocab.Default(), nil
	}
	return vocab.Load(cfg.Path)
}

func buildNotifier(cfg config.TelegramConfig) notifier.Notifier {
	if !cfg.Enabled {
		return notifier.Nop{}
	}
	return notifier.NewTelegram(cfg.BotToken, cfg.ChatID)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	voc, err := b.vocabFn(cfg.Vocab)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary failed: %w", err)
	}
	genMin, genMax := voc.GenerationRange()
	logger.Infof("✓ vocabulary ready: %s, generations %d..%d", vocabSource(cfg.Vocab), genMin, genMax)

	registry, err := rules.NewRegistry(cfg.Rules.Path, voc, cfg.Rules.Watch)
	if err != nil {
		return nil, fmt.Errorf("loading parameter sets failed: %w", err)
	}
	snap := registry.Snapshot()
	logger.Infof("✓ parameter sets loaded: %d sets, version %d, watch=%v", len(snap.Sets), snap.Version, cfg.Rules.Watch)

	notify := b.notifierFn(cfg.Notify.Telegram)
	resolver := rules.NewResolver(registry)
	resolver.OnExhausted(func(q rules.Query) {
		if err := notify.SendText(exhaustionAlert(q)); err != nil {
			logger.Warnf("exhaustion alert not delivered: %v", err)
		}
	})

	writer, err := ledger.NewWriter(cfg.Ledger.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening ledger failed: %w", err)
	}
	logger.Infof("✓ decision ledger at %s", cfg.Ledger.Dir)

	stores, err := b.resolveStores(cfg)
	if err != nil {
		return nil, err
	}

	// A typed nil pointer must not reach the interface parameters: the
	// processor and feed test against the nil interface to decide whether
	// the concern is wired at all.
	var stateStore reentry.StateStore
	if stores.state != nil {
		stateStore = stores.state
	}
	proc, err := reentry.NewProcessor(ctx, decisionConfig(cfg.Decision), voc, resolver, writer, buildInstrumentBook(cfg.Instruments), stateStore)
	if err != nil {
		return nil, fmt.Errorf("building decision processor failed: %w", err)
	}

	var mirror feed.Mirror
	if stores.journal != nil {
		mirror = stores.journal
	}
	tradeFeed, err := feed.New(proc, mirror, feed.Options{
		Dir:        cfg.Feed.Dir,
		ArchiveDir: cfg.Feed.ArchiveDir,
		FailDir:    cfg.Feed.FailDir,
		Poll:       time.Duration(cfg.Feed.PollSeconds) * time.Second,
		Workers:    cfg.Feed.Workers,
		Alert: func(msg string) {
			if err := notify.SendText(msg); err != nil {
				logger.Warnf("feed alert not delivered: %v", err)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("building trade feed failed: %w", err)
	}
	logger.Infof("✓ trade feed on %s (%d workers, %ds poll)", cfg.Feed.Dir, cfg.Feed.Workers, cfg.Feed.PollSeconds)

	sweepEvery, sweepOffset := cfg.Maintenance.SweepSchedule()
	sweepTask := buildSweepTask(proc, stores.state)

	services := []Service{
		&rulesService{reg: registry},
		&ledgerService{dir: cfg.Ledger.Dir},
	}
	if stores.state != nil {
		services = append(services, &stateService{store: stores.state})
	}
	if stores.journal != nil {
		services = append(services, &journalService{store: stores.journal})
	}
	services = append(services,
		&feedService{feed: tradeFeed, dir: cfg.Feed.Dir},
		&sweepService{every: sweepEvery, offset: sweepOffset, task: sweepTask},
	)

	return &App{
		cfg:      cfg,
		proc:     proc,
		feed:     tradeFeed,
		registry: registry,
		writer:   writer,
		states:   stores.state,
		journal:  stores.journal,
		services: services,
		Summary:  buildSummary(cfg, snap, voc),
	}, nil
}

type storeSetup struct {
	state   *symstate.Store
	journal *journal.Store
}

// resolveStores opens the optional sqlite stores. An empty state.path keeps
// gate state in memory; a disabled journal leaves the mirror nil.
func (b *AppBuilder) resolveStores(cfg *config.Config) (storeSetup, error) {
	var out storeSetup
	if path := strings.TrimSpace(cfg.State.Path); path != "" {
		st, err := b.stateFn(path)
		if err != nil {
			return storeSetup{}, fmt.Errorf("opening symbol state store failed: %w", err)
		}
		out.state = st
		logger.Infof("✓ symbol state persisted at %s", path)
	} else {
		logger.Warnf("state.path is empty; cooldowns and attempt counters reset on restart")
	}
	if cfg.Journal.Enabled {
		js, err := b.journalFn(cfg.Journal.Path)
		if err != nil {
			return storeSetup{}, fmt.Errorf("opening decision journal failed: %w", err)
		}
		out.journal = js
		logger.Infof("✓ decision journal at %s", cfg.Journal.Path)
	}
	return out, nil
}

// buildSweepTask clears lapsed gate entries in memory and, when state is
// persisted, prunes the matching rows.
func buildSweepTask(proc *reentry.Processor, states *symstate.Store) func() {
	return func() {
		swept := proc.SweepGate()
		var pruned int64
		if states != nil {
			n, err := states.Prune(context.Background(), time.Now())
			if err != nil {
				logger.Warnf("symbol state prune failed: %v", err)
			} else {
				pruned = n
			}
		}
		if swept > 0 || pruned > 0 {
			logger.Infof("maintenance sweep: %d gate entries cleared, %d state rows pruned", swept, pruned)
		}
	}
}

func decisionConfig(d config.DecisionConfig) reentry.Config {
	return reentry.Config{
		RequireClosed:   d.RequireClosed,
		MinHoldSeconds:  d.MinHoldSeconds,
		CooldownSeconds: d.CooldownSeconds,
		DailyCap:        d.DailyCap,

		WinPips:     d.WinPips,
		LossPips:    d.LossPips,
		BigWinPips:  d.BigWinPips,
		BigLossPips: d.BigLossPips,

		FlashMinutes: d.FlashMinutes,
		QuickMinutes: d.QuickMinutes,
		LongMinutes:  d.LongMinutes,

		SpecificityWeight: d.SpecificityWeight,
		WinBonus:          d.WinBonus,
		LossPenalty:       d.LossPenalty,
		GenerationPenalty: d.GenerationPenalty,
	}
}

func buildInstrumentBook(cfg config.InstrumentsConfig) reentry.StaticBook {
	book := reentry.StaticBook{Fallback: instrumentFrom(cfg.Default)}
	if len(cfg.Overrides) > 0 {
		book.BySymbol = make(map[string]reentry.Instrument, len(cfg.Overrides))
		for sym, spec := range cfg.Overrides {
			book.BySymbol[sym] = instrumentFrom(spec)
		}
	}
	return book
}

func instrumentFrom(spec config.InstrumentSpec) reentry.Instrument {
	return reentry.Instrument{LotStep: spec.LotStep, MinLot: spec.MinLot, MaxLot: spec.MaxLot}
}

// exhaustionAlert formats the Telegram message raised when no parameter
// set matched a decision context. Telegram renders it as Markdown.
func exhaustionAlert(q rules.Query) string {
	return fmt.Sprintf(
		"*Rule coverage gap*\nNo parameter set matched, emergency NO_REENTRY issued.\nContext: `%s %s %s %s` symbol=%s generation=%d",
		q.Outcome, q.Duration, q.Proximity, q.Calendar, q.Symbol, q.Generation)
}

func vocabSource(cfg config.VocabConfig) string {
	if strings.TrimSpace(cfg.Path) == "" {
		return "built-in"
	}
	return cfg.Path
}

func buildSummary(cfg *config.Config, snap rules.Snapshot, voc *vocab.Vocabulary) *StartupSummary {
	genMin, genMax := voc.GenerationRange()
	sweepEvery, sweepOffset := cfg.Maintenance.SweepSchedule()
	tiers := make([]TierCount, 0, len(rules.TierOrder()))
	byTier := make(map[rules.Tier]int, len(snap.Sets))
	for _, set := range snap.Sets {
		byTier[set.Tier]++
	}
	for _, tier := range rules.TierOrder() {
		if n := byTier[tier]; n > 0 {
			tiers = append(tiers, TierCount{Tier: string(tier), Sets: n})
		}
	}
	return &StartupSummary{
		Env: cfg.App.Env,
		Ledger: LedgerSummary{
			Dir: cfg.Ledger.Dir,
		},
		Rules: RulesSummary{
			Path:    cfg.Rules.Path,
			Watch:   cfg.Rules.Watch,
			Version: strconv.FormatInt(snap.Version, 10),
			Sets:    len(snap.Sets),
			Tiers:   tiers,
		},
		Vocab: VocabSummary{
			Source:      vocabSource(cfg.Vocab),
			Proximities: len(voc.Tokens(vocab.DimProximity)),
			Durations:   len(voc.Tokens(vocab.DimDuration)),
			Outcomes:    len(voc.Tokens(vocab.DimOutcome)),
			GenMin:      genMin,
			GenMax:      genMax,
		},
		Feed: FeedSummary{
			Dir:        cfg.Feed.Dir,
			ArchiveDir: cfg.Feed.ArchiveDir,
			FailDir:    cfg.Feed.FailDir,
			Workers:    cfg.Feed.Workers,
			Poll:       time.Duration(cfg.Feed.PollSeconds) * time.Second,
		},
		StatePath:   strings.TrimSpace(cfg.State.Path),
		JournalPath: journalPath(cfg.Journal),
		Telegram:    cfg.Notify.Telegram.Enabled,
		Sweep: SweepSummary{
			Every:  sweepEvery,
			Offset: sweepOffset,
		},
	}
}

func journalPath(cfg config.JournalConfig) string {
	if !cfg.Enabled {
		return ""
	}
	return cfg.Path
}

func WithVocabulary(fn func(config.VocabConfig) (*vocab.Vocabulary, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.vocabFn = fn
		}
	}
}

func WithStateStore(fn func(string) (*symstate.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.stateFn = fn
		}
	}
}

func WithJournal(fn func(string) (*journal.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.journalFn = fn
		}
	}
}

func WithNotifier(fn func(config.TelegramConfig) notifier.Notifier) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.notifierFn = fn
		}
	}
}
