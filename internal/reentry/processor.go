// Package reentry orchestrates one re-entry decision end to end: gate the
// closed trade, classify it, resolve tiered parameters, mint the hybrid
// identifier, size the follow-up position and append the decision to the
// integrity ledger.
package reentry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reentry/internal/hybrid"
	"reentry/internal/ledger"
	"reentry/internal/logger"
	"reentry/internal/pkg/symbol"
	"reentry/internal/rules"
	"reentry/internal/vocab"
)

// ErrInvalidContext flags a decision context whose structural fields are
// missing or out of range.
var ErrInvalidContext = errors.New("invalid decision context")

// Response statuses.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
)

// Skip reasons produced by the eligibility gate.
const (
	SkipNotClosed        = "not_closed"
	SkipDurationTooShort = "duration_too_short"
	SkipCooldownActive   = "cooldown_active"
	SkipDailyCapReached  = "daily_cap_reached"
)

// Re-entry actions. Generations that may advance map onto R1/R2.
const (
	ActionNoReentry = "NO_REENTRY"
	ActionHold      = "HOLD"
)

// Config carries the gate, classification and confidence knobs.
type Config struct {
	// Gate.
	RequireClosed   bool
	MinHoldSeconds  int
	CooldownSeconds int
	DailyCap        int

	// Outcome thresholds in pips. LossPips and BigLossPips are negative;
	// a zero BigWinPips/BigLossPips disables the W2/L2 magnitude tiers.
	WinPips     float64
	LossPips    float64
	BigWinPips  float64
	BigLossPips float64

	// Duration thresholds in minutes, ascending.
	FlashMinutes float64
	QuickMinutes float64
	LongMinutes  float64

	// Confidence adjustments.
	SpecificityWeight float64
	WinBonus          float64
	LossPenalty       float64
	GenerationPenalty float64
}

// DefaultConfig returns the baseline decision knobs.
func DefaultConfig() Config {
	return Config{
		RequireClosed:   true,
		MinHoldSeconds:  60,
		CooldownSeconds: 300,
		DailyCap:        5,

		WinPips:  10,
		LossPips: -10,

		FlashMinutes: 10,
		QuickMinutes: 60,
		LongMinutes:  240,

		SpecificityWeight: 0.1,
		WinBonus:          0.05,
		LossPenalty:       0.05,
		GenerationPenalty: 0.02,
	}
}

// TradeContext is one closed (or closing) trade presented for a decision.
// LotSize is the closed position's lot, ProfitPips the realized pips.
// CloseTime stays zero while the position is still open.
type TradeContext struct {
	TradeID    string    `json:"trade_id"`
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"`
	Proximity  string    `json:"proximity"`
	Calendar   string    `json:"calendar"`
	Generation int       `json:"generation"`
	LotSize    float64   `json:"lot_size"`
	ProfitPips float64   `json:"profit_pips"`
	OpenTime   time.Time `json:"open_time"`
	CloseTime  time.Time `json:"close_time"`
}

// Response is the decision outcome handed back to the caller. Skipped
// decisions carry only the status, reason and trade echo.
type Response struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`

	TradeID         string  `json:"trade_id"`
	Symbol          string  `json:"symbol"`
	Classification  string  `json:"classification,omitempty"`
	Identifier      string  `json:"identifier,omitempty"`
	ReentryAction   string  `json:"reentry_action,omitempty"`
	ParameterSetID  string  `json:"parameter_set_id,omitempty"`
	ResolvedTier    string  `json:"resolved_tier,omitempty"`
	ChainPosition   string  `json:"chain_position,omitempty"`
	LotSize         float64 `json:"lot_size,omitempty"`
	StopLoss        float64 `json:"stop_loss,omitempty"`
	TakeProfit      float64 `json:"take_profit,omitempty"`
	ConfidenceScore float64 `json:"confidence_score,omitempty"`
	LedgerSeq       uint64  `json:"ledger_seq,omitempty"`
}

// Processor runs the decision pipeline. Safe for concurrent use.
type Processor struct {
	cfg      Config
	voc      *vocab.Vocabulary
	codec    *hybrid.Codec
	resolver *rules.Resolver
	writer   *ledger.Writer
	book     InstrumentBook
	track    *tracker
	now      func() time.Time
}

// NewProcessor wires the pipeline. store may be nil for purely in-memory
// gate tracking; book may be nil to fall back to default instrument limits.
func NewProcessor(ctx context.Context, cfg Config, voc *vocab.Vocabulary, resolver *rules.Resolver, writer *ledger.Writer, book InstrumentBook, store StateStore) (*Processor, error) {
	if voc == nil || resolver == nil || writer == nil {
		return nil, errors.New("processor requires vocabulary, resolver and ledger writer")
	}
	if book == nil {
		book = StaticBook{}
	}
	track, err := newTracker(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("restore gate state: %w", err)
	}
	return &Processor{
		cfg:      cfg,
		voc:      voc,
		codec:    hybrid.NewCodec(voc),
		resolver: resolver,
		writer:   writer,
		book:     book,
		track:    track,
		now:      time.Now,
	}, nil
}

// Process runs one decision. Skips are reported in the response, not as
// errors. The ledger append is the only suspension point; once it begins the
// decision always completes, so an abandoned caller never leaves a sequence
// gap.
func (p *Processor) Process(ctx context.Context, trade TradeContext) (Response, error) {
	if err := p.normalize(&trade); err != nil {
		return Response{}, err
	}

	now := p.now()
	if reason := p.gate(trade, now); reason != "" {
		logger.Infof("decision skipped trade=%s symbol=%s reason=%s", trade.TradeID, trade.Symbol, reason)
		return Response{Status: StatusSkipped, Reason: reason, TradeID: trade.TradeID, Symbol: trade.Symbol}, nil
	}

	class := classifyOutcome(trade.ProfitPips, p.cfg)
	durationTok := classifyDuration(p.holdTime(trade, now), p.cfg)
	outcomeTok := outcomeToken(class, trade.ProfitPips, p.cfg)

	res := p.resolver.Resolve(rules.Query{
		Outcome:    outcomeTok,
		Duration:   durationTok,
		Proximity:  trade.Proximity,
		Calendar:   trade.Calendar,
		Symbol:     trade.Symbol,
		Generation: trade.Generation,
	})

	id, err := p.codec.Compose(outcomeTok, durationTok, trade.Proximity, trade.Calendar, trade.Direction, trade.Generation, "")
	if err != nil {
		return Response{}, fmt.Errorf("compose identifier: %w", err)
	}
	position, err := hybrid.ChainPosition(trade.Generation)
	if err != nil {
		return Response{}, err
	}

	action := reentryAction(res, trade.Generation)
	lot := sizeLot(trade.LotSize, res.LotMultiplier, p.book.Lookup(trade.Symbol))
	score := p.confidence(res, class, trade.Generation)
	label := classification(class, durationTok)

	wres, err := p.writer.Append(ctx, ledger.Record{
		Type: ledger.DecisionSchema.RecordType,
		Fields: map[string]string{
			"trade_id":         trade.TradeID,
			"hybrid_id":        id.String(),
			"symbol":           trade.Symbol,
			"classification":   label,
			"action":           action,
			"tier":             string(res.Tier),
			"chain_position":   position,
			"lot_size":         formatFloat(lot),
			"stop_loss_pips":   formatFloat(res.StopLossPips),
			"take_profit_pips": formatFloat(res.TakeProfitPips),
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("persist decision: %w", err)
	}

	p.track.commit(ctx, trade.Symbol, now, time.Duration(p.cfg.CooldownSeconds)*time.Second)

	logger.Infof("decision trade=%s id=%s action=%s tier=%s set=%s seq=%d",
		trade.TradeID, id, action, res.Tier, res.SetID, wres.Seq)

	return Response{
		Status:          StatusProcessed,
		TradeID:         trade.TradeID,
		Symbol:          trade.Symbol,
		Classification:  label,
		Identifier:      id.String(),
		ReentryAction:   action,
		ParameterSetID:  res.SetID,
		ResolvedTier:    string(res.Tier),
		ChainPosition:   position,
		LotSize:         lot,
		StopLoss:        res.StopLossPips,
		TakeProfit:      res.TakeProfitPips,
		ConfidenceScore: score,
		LedgerSeq:       wres.Seq,
	}, nil
}

// normalize trims and upper-cases the token fields, canonicalizes the
// symbol, then checks every structural field, collecting all problems into
// a single ErrInvalidContext.
func (p *Processor) normalize(trade *TradeContext) error {
	trade.TradeID = strings.TrimSpace(trade.TradeID)
	trade.Symbol = symbol.Normalize(trade.Symbol)
	trade.Direction = strings.ToUpper(strings.TrimSpace(trade.Direction))
	trade.Proximity = strings.ToUpper(strings.TrimSpace(trade.Proximity))
	trade.Calendar = strings.ToUpper(strings.TrimSpace(trade.Calendar))
	if trade.Calendar == "" {
		trade.Calendar = vocab.CalendarNone
	}

	var reasons []string
	if trade.TradeID == "" {
		reasons = append(reasons, "trade_id is required")
	}
	if trade.Symbol == "" {
		reasons = append(reasons, "symbol is required")
	}
	if !p.voc.IsDirection(trade.Direction) {
		reasons = append(reasons, fmt.Sprintf("direction %q is not a legal token", trade.Direction))
	}
	if !p.voc.IsProximity(trade.Proximity) {
		reasons = append(reasons, fmt.Sprintf("proximity %q is not a legal token", trade.Proximity))
	}
	if !p.voc.IsCalendar(trade.Calendar) {
		reasons = append(reasons, fmt.Sprintf("calendar %q is not a legal token", trade.Calendar))
	}
	if !p.voc.IsGeneration(trade.Generation) {
		lo, hi := p.voc.GenerationRange()
		reasons = append(reasons, fmt.Sprintf("generation %d outside %d..%d", trade.Generation, lo, hi))
	}
	if trade.LotSize <= 0 {
		reasons = append(reasons, "lot_size must be positive")
	}
	if trade.OpenTime.IsZero() {
		reasons = append(reasons, "open_time is required")
	}
	if !trade.CloseTime.IsZero() && trade.CloseTime.Before(trade.OpenTime) {
		reasons = append(reasons, "close_time precedes open_time")
	}
	if len(reasons) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidContext, strings.Join(reasons, "; "))
	}
	return nil
}

// gate applies the eligibility checks in order; the first failure wins.
func (p *Processor) gate(trade TradeContext, now time.Time) string {
	if trade.CloseTime.IsZero() && p.cfg.RequireClosed {
		return SkipNotClosed
	}
	if p.holdTime(trade, now) < time.Duration(p.cfg.MinHoldSeconds)*time.Second {
		return SkipDurationTooShort
	}
	return p.track.gate(trade.Symbol, now, p.cfg.DailyCap)
}

// holdTime measures the holding period, using now for a still-open trade.
func (p *Processor) holdTime(trade TradeContext, now time.Time) time.Duration {
	end := trade.CloseTime
	if end.IsZero() {
		end = now
	}
	return end.Sub(trade.OpenTime)
}

// confidence starts from the matched set's base threshold and nudges it by
// match specificity, outcome and chain depth, clamped into [0,1].
func (p *Processor) confidence(res rules.Resolution, class OutcomeClass, generation int) float64 {
	score := res.ConfidenceThreshold + res.Specificity*p.cfg.SpecificityWeight
	switch class {
	case OutcomeWin:
		score += p.cfg.WinBonus
	case OutcomeLoss:
		score -= p.cfg.LossPenalty
	}
	score -= float64(generation-1) * p.cfg.GenerationPenalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// reentryAction names the follow-up: NO_REENTRY when the matched set forbids
// it or the chain is at its maximum, otherwise the label of the next
// generation.
func reentryAction(res rules.Resolution, generation int) string {
	if !res.ReentryEnabled || generation >= res.MaxGeneration {
		return ActionNoReentry
	}
	switch generation + 1 {
	case 2:
		return "R1"
	case 3:
		return "R2"
	default:
		return ActionHold
	}
}

// SweepGate drops stale per-symbol gate entries; the scheduler calls it at
// the UTC day rollover.
func (p *Processor) SweepGate() int {
	return p.track.sweep(p.now())
}

// GateState exposes a copy of the per-symbol gate table for inspection.
func (p *Processor) GateState() map[string]SymbolState {
	return p.track.snapshot()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
