package app

import (
	"fmt"
	"strings"
	"time"
)

// StartupSummary is the operator-facing snapshot printed once at boot.
type StartupSummary struct {
	Env    string
	Ledger LedgerSummary
	Rules  RulesSummary
	Vocab  VocabSummary
	Feed   FeedSummary

	// StatePath is empty when gate state lives in memory only;
	// JournalPath is empty when the journal mirror is disabled.
	StatePath   string
	JournalPath string

	Telegram bool
	Sweep    SweepSummary
}

type LedgerSummary struct {
	Dir string
}

type RulesSummary struct {
	Path    string
	Watch   bool
	Version string
	Sets    int
	Tiers   []TierCount
}

type TierCount struct {
	Tier string
	Sets int
}

type VocabSummary struct {
	Source      string
	Outcomes    int
	Durations   int
	Proximities int
	GenMin      int
	GenMax      int
}

type FeedSummary struct {
	Dir        string
	ArchiveDir string
	FailDir    string
	Workers    int
	Poll       time.Duration
}

type SweepSummary struct {
	Every  time.Duration
	Offset time.Duration
}

func (s *StartupSummary) Print() {
	title := fmt.Sprintf("RE-ENTRY ENGINE STARTUP (%s)", s.Env)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len(title)/2, title)
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[DECISION LEDGER]")
	fmt.Printf("  dir: %s\n", s.Ledger.Dir)
	fmt.Println()

	fmt.Println("[PARAMETER SETS]")
	fmt.Printf("  file: %s\n", s.Rules.Path)
	fmt.Printf("  sets: %d (version %s)\n", s.Rules.Sets, s.Rules.Version)
	fmt.Printf("  tiers: %s\n", formatTiers(s.Rules.Tiers))
	fmt.Printf("  hot reload: %s\n", onOff(s.Rules.Watch))
	fmt.Println()

	fmt.Println("[VOCABULARY]")
	fmt.Printf("  source: %s\n", s.Vocab.Source)
	fmt.Printf("  tokens: %d outcomes, %d durations, %d proximities\n",
		s.Vocab.Outcomes, s.Vocab.Durations, s.Vocab.Proximities)
	fmt.Printf("  generations: %d..%d\n", s.Vocab.GenMin, s.Vocab.GenMax)
	fmt.Println()

	fmt.Println("[TRADE FEED]")
	fmt.Printf("  incoming: %s\n", s.Feed.Dir)
	fmt.Printf("  archive:  %s\n", s.Feed.ArchiveDir)
	fmt.Printf("  rejected: %s\n", s.Feed.FailDir)
	fmt.Printf("  workers: %d, poll every %s\n", s.Feed.Workers, s.Feed.Poll)
	fmt.Println()

	fmt.Println("[PERSISTENCE]")
	fmt.Printf("  symbol state: %s\n", orFallback(s.StatePath, "memory only"))
	fmt.Printf("  decision journal: %s\n", orFallback(s.JournalPath, "disabled"))
	fmt.Println()

	fmt.Println("[ALERTS & MAINTENANCE]")
	fmt.Printf("  telegram: %s\n", onOff(s.Telegram))
	fmt.Printf("  gate sweep: every %s, offset %s\n", s.Sweep.Every, s.Sweep.Offset)
	fmt.Println(strings.Repeat("=", 80))
}

func formatTiers(tiers []TierCount) string {
	if len(tiers) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(tiers))
	for _, tc := range tiers {
		parts = append(parts, fmt.Sprintf("%s=%d", tc.Tier, tc.Sets))
	}
	return strings.Join(parts, " ")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func orFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
