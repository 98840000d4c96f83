package reentry

import (
	"fmt"
	"time"
)

// OutcomeClass is the coarse profit/loss bucket of a closed trade.
type OutcomeClass string

const (
	OutcomeWin       OutcomeClass = "WIN"
	OutcomeLoss      OutcomeClass = "LOSS"
	OutcomeBreakeven OutcomeClass = "BREAKEVEN"
)

// classifyOutcome buckets realized pips against the configured thresholds.
// Anything between the loss and win thresholds is breakeven.
func classifyOutcome(pips float64, cfg Config) OutcomeClass {
	switch {
	case pips >= cfg.WinPips:
		return OutcomeWin
	case pips <= cfg.LossPips:
		return OutcomeLoss
	default:
		return OutcomeBreakeven
	}
}

// outcomeToken maps an outcome class onto a vocabulary token. The magnitude
// tiers W2/L2 only fire when their thresholds are configured; with the
// defaults every win is W1 and every loss is L1.
func outcomeToken(class OutcomeClass, pips float64, cfg Config) string {
	switch class {
	case OutcomeWin:
		if cfg.BigWinPips > 0 && pips >= cfg.BigWinPips {
			return "W2"
		}
		return "W1"
	case OutcomeLoss:
		if cfg.BigLossPips < 0 && pips <= cfg.BigLossPips {
			return "L2"
		}
		return "L1"
	default:
		return "BE"
	}
}

// classifyDuration buckets the holding time by ascending minute thresholds.
// EXTENDED is everything at or above the LONG threshold.
func classifyDuration(held time.Duration, cfg Config) string {
	minutes := held.Minutes()
	switch {
	case minutes < cfg.FlashMinutes:
		return "FLASH"
	case minutes < cfg.QuickMinutes:
		return "QUICK"
	case minutes < cfg.LongMinutes:
		return "LONG"
	default:
		return "EXTENDED"
	}
}

// classification is the combined label stored on the ledger row, e.g.
// "WIN_QUICK".
func classification(class OutcomeClass, durationToken string) string {
	return fmt.Sprintf("%s_%s", class, durationToken)
}
