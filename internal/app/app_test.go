package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reentry/internal/config"
	"reentry/internal/notifier"
	"reentry/internal/reentry"
	"reentry/internal/rules"
)

const appRules = `
parameter_sets:
  global_default:
    tier: GLOBAL
    rules:
      reentry_enabled: true
      max_generation: 3
      lot_multiplier: 1.0
      stop_loss_pips: 20
      take_profit_pips: 40
      confidence_threshold: 0.5
      min_wait_seconds: 60
      max_wait_seconds: 600
`

// narrowRules matches exactly one context, so any other query walks every
// tier without a hit and degrades to an emergency resolution.
const narrowRules = `
parameter_sets:
  nfp_exact_only:
    tier: EXACT
    match:
      outcome: W1
      duration: QUICK
      proximity: AT_EVENT
      calendar: CAL8_USD_NFP_H
      symbol: EURUSD
    rules:
      reentry_enabled: true
      max_generation: 3
      lot_multiplier: 1.5
      stop_loss_pips: 15
      take_profit_pips: 45
      confidence_threshold: 0.6
      min_wait_seconds: 120
      max_wait_seconds: 900
`

func appConfigYAML(root, persistence string) string {
	return fmt.Sprintf(`app:
  env: test
  log_level: info

ledger:
  dir: %[1]s/ledger

rules:
  path: %[1]s/rules.yaml
  watch: false

feed:
  dir: %[1]s/feed/incoming
  archive_dir: %[1]s/feed/processed
  fail_dir: %[1]s/feed/rejected
  poll_seconds: 1
  workers: 2

%[2]s`, root, persistence)
}

func durablePersistence(root string) string {
	return fmt.Sprintf("journal:\n  enabled: true\n  path: %[1]s/db/journal.db\nstate:\n  path: %[1]s/db/state.db\n", root)
}

const memoryPersistence = "journal:\n  enabled: false\nstate:\n  path: \"\"\n"

func writeAppConfig(t *testing.T, root, rulesYAML, persistence string) *config.Config {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "rules.yaml"), []byte(rulesYAML), 0o644))
	cfgPath := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(appConfigYAML(root, persistence)), 0o644))
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	return cfg
}

func buildTestApp(t *testing.T, persistence func(string) string) (*App, string) {
	t.Helper()
	root := t.TempDir()
	cfg := writeAppConfig(t, root, appRules, persistence(root))
	app, err := NewApp(cfg)
	require.NoError(t, err)
	t.Cleanup(app.stopAll)
	return app, root
}

func closedTrade(tradeID, symbol string, pips float64) reentry.TradeContext {
	now := time.Now().UTC()
	return reentry.TradeContext{
		TradeID:    tradeID,
		Symbol:     symbol,
		Direction:  "LONG",
		Proximity:  "AT_EVENT",
		Calendar:   "CAL8_USD_NFP_H",
		Generation: 1,
		LotSize:    0.10,
		ProfitPips: pips,
		OpenTime:   now.Add(-16 * time.Minute),
		CloseTime:  now.Add(-time.Minute),
	}
}

type capturingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *capturingNotifier) SendText(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *capturingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts)
}

func (n *capturingNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.texts) == 0 {
		return ""
	}
	return n.texts[len(n.texts)-1]
}

func TestNewAppBuildsFullStack(t *testing.T) {
	app, root := buildTestApp(t, durablePersistence)

	require.NotNil(t, app.Summary)
	assert.Equal(t, "test", app.Summary.Env)
	assert.Equal(t, filepath.Join(root, "ledger"), app.Summary.Ledger.Dir)
	assert.Equal(t, 1, app.Summary.Rules.Sets)
	assert.Equal(t, []TierCount{{Tier: "GLOBAL", Sets: 1}}, app.Summary.Rules.Tiers)
	assert.False(t, app.Summary.Rules.Watch)
	assert.Equal(t, "built-in", app.Summary.Vocab.Source)
	assert.Equal(t, 1, app.Summary.Vocab.GenMin)
	assert.Equal(t, 3, app.Summary.Vocab.GenMax)
	assert.Equal(t, 2, app.Summary.Feed.Workers)
	assert.Equal(t, time.Second, app.Summary.Feed.Poll)
	assert.Equal(t, filepath.Join(root, "db/state.db"), app.Summary.StatePath)
	assert.Equal(t, filepath.Join(root, "db/journal.db"), app.Summary.JournalPath)
	assert.False(t, app.Summary.Telegram)
	assert.Equal(t, 24*time.Hour, app.Summary.Sweep.Every)
	assert.Equal(t, 5*time.Minute, app.Summary.Sweep.Offset)

	report := app.HealthReport(context.Background())
	assert.Equal(t, []string{
		"feed: ok",
		"journal: ok",
		"ledger: ok",
		"rules: ok",
		"state: ok",
		"sweep: ok",
	}, report)
}

func TestNewAppMemoryOnlyVariant(t *testing.T) {
	app, _ := buildTestApp(t, func(string) string { return memoryPersistence })

	assert.Nil(t, app.states)
	assert.Nil(t, app.journal)
	assert.Empty(t, app.Summary.StatePath)
	assert.Empty(t, app.Summary.JournalPath)

	health := app.Health(context.Background())
	assert.Len(t, health, 4)
	assert.NotContains(t, health, "state")
	assert.NotContains(t, health, "journal")

	// The processor must treat the absent store as no store at all.
	resp, err := app.Processor().Process(context.Background(), closedTrade("T6001", "EURUSD", 25))
	require.NoError(t, err)
	assert.Equal(t, reentry.StatusProcessed, resp.Status)
	assert.Equal(t, "global_default", resp.ParameterSetID)
}

func TestRunProcessesDroppedTrade(t *testing.T) {
	app, root := buildTestApp(t, durablePersistence)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	// Give the feed watcher a moment to come up before the drop.
	time.Sleep(150 * time.Millisecond)
	payload, err := json.Marshal(closedTrade("T9001", "EURUSD", 25))
	require.NoError(t, err)
	incoming := filepath.Join(root, "feed", "incoming")
	require.NoError(t, os.MkdirAll(incoming, 0o755))
	tmp := filepath.Join(incoming, ".t9001.json.tmp")
	require.NoError(t, os.WriteFile(tmp, payload, 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(incoming, "t9001.json")))

	require.Eventually(t, func() bool {
		counts, err := app.journal.CountByStatus(ctx)
		return err == nil && counts[reentry.StatusProcessed] == 1
	}, 5*time.Second, 25*time.Millisecond, "journal never saw the decision")

	archived, err := os.ReadDir(filepath.Join(root, "feed", "processed"))
	require.NoError(t, err)
	names := make([]string, 0, len(archived))
	for _, e := range archived {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"t9001.json", "t9001.response.json"}, names)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestExhaustionAlertReachesNotifier(t *testing.T) {
	root := t.TempDir()
	cfg := writeAppConfig(t, root, narrowRules, memoryPersistence)

	capture := &capturingNotifier{}
	app, err := NewAppBuilder(cfg, WithNotifier(func(config.TelegramConfig) notifier.Notifier {
		return capture
	})).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(app.stopAll)

	// A losing trade cannot match the single W1 set.
	resp, err := app.Processor().Process(context.Background(), closedTrade("T5001", "EURUSD", -25))
	require.NoError(t, err)
	assert.Equal(t, reentry.StatusProcessed, resp.Status)
	assert.Equal(t, reentry.ActionNoReentry, resp.ReentryAction)
	assert.Equal(t, string(rules.TierEmergency), resp.ResolvedTier)

	require.Eventually(t, func() bool { return capture.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, capture.last(), "Rule coverage gap")
	assert.Contains(t, capture.last(), "EURUSD")
}

func TestNewAppRejectsNilConfig(t *testing.T) {
	_, err := NewApp(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil config")
}

func TestBuildFailsWhenRuleFileMissing(t *testing.T) {
	root := t.TempDir()
	cfg := writeAppConfig(t, root, appRules, memoryPersistence)
	cfg.Rules.Path = filepath.Join(root, "no-such-rules.yaml")

	_, err := NewApp(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parameter sets")
}

func TestRunOnNilApp(t *testing.T) {
	var app *App
	err := app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestStateSurvivesRebuild(t *testing.T) {
	root := t.TempDir()
	cfg := writeAppConfig(t, root, appRules, durablePersistence(root))

	first, err := NewApp(cfg)
	require.NoError(t, err)
	resp, err := first.Processor().Process(context.Background(), closedTrade("T3001", "EURUSD", 25))
	require.NoError(t, err)
	require.Equal(t, reentry.StatusProcessed, resp.Status)
	first.stopAll()

	second, err := NewApp(cfg)
	require.NoError(t, err)
	t.Cleanup(second.stopAll)

	// The cooldown committed by the first instance must gate the second.
	resp, err = second.Processor().Process(context.Background(), closedTrade("T3002", "EURUSD", 25))
	require.NoError(t, err)
	assert.Equal(t, reentry.StatusSkipped, resp.Status)
	assert.Equal(t, reentry.SkipCooldownActive, resp.Reason)
}
