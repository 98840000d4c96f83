// Package vocab is the static registry of legal decision tokens. Every
// component that touches an identifier dimension (codec, resolver,
// processor) validates against one Vocabulary instance loaded at startup.
package vocab

import (
	"fmt"
	"sort"
	"strings"

	"reentry/internal/pkg/wildcard"
)

// Dimension names used in validation reasons and config files.
const (
	DimOutcome   = "outcome"
	DimDuration  = "duration"
	DimProximity = "proximity"
	DimCalendar  = "calendar"
	DimDirection = "direction"
)

// CalendarNone is the literal calendar token for trades with no scheduled
// event in range.
const CalendarNone = "NONE"

// Built-in defaults. Overridable through a vocabulary file; the shipped
// pipeline runs on these.
var (
	defaultOutcomes    = []string{"W2", "W1", "BE", "L1", "L2"}
	defaultDurations   = []string{"FLASH", "QUICK", "LONG", "EXTENDED"}
	defaultProximities = []string{"PRE_1H", "AT_EVENT", "POST_30M"}
	defaultDirections  = []string{"LONG", "SHORT", "ANY"}

	// Calendar families carried by the economic-calendar feed. Matching
	// uses the same wildcard semantics as the resolver.
	defaultCalendarPatterns = []string{"CAL8_*", "CAL5_*"}
)

const (
	defaultGenerationMin = 1
	defaultGenerationMax = 3
)

// Vocabulary holds the legal token sets. Immutable after construction.
type Vocabulary struct {
	outcomes    []string
	durations   []string
	proximities []string
	directions  []string

	outcomeSet   map[string]struct{}
	durationSet  map[string]struct{}
	proximitySet map[string]struct{}
	directionSet map[string]struct{}

	calendarPatterns []string

	genMin int
	genMax int
}

// Default returns the built-in vocabulary.
func Default() *Vocabulary {
	v, err := build(defaultOutcomes, defaultDurations, defaultProximities,
		defaultDirections, defaultCalendarPatterns, defaultGenerationMin, defaultGenerationMax)
	if err != nil {
		// The built-in tables are static; failing to build them is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return v
}

func build(outcomes, durations, proximities, directions, calendarPatterns []string, genMin, genMax int) (*Vocabulary, error) {
	v := &Vocabulary{
		outcomes:         append([]string(nil), outcomes...),
		durations:        append([]string(nil), durations...),
		proximities:      append([]string(nil), proximities...),
		directions:       append([]string(nil), directions...),
		calendarPatterns: append([]string(nil), calendarPatterns...),
		genMin:           genMin,
		genMax:           genMax,
	}
	var err error
	if v.outcomeSet, err = tokenSet(DimOutcome, v.outcomes, false); err != nil {
		return nil, err
	}
	if v.durationSet, err = tokenSet(DimDuration, v.durations, false); err != nil {
		return nil, err
	}
	// Proximity tokens may embed "_" (PRE_1H); the codec handles the
	// segmentation.
	if v.proximitySet, err = tokenSet(DimProximity, v.proximities, true); err != nil {
		return nil, err
	}
	if v.directionSet, err = tokenSet(DimDirection, v.directions, false); err != nil {
		return nil, err
	}
	for _, p := range v.calendarPatterns {
		if err := wildcard.Validate(p); err != nil {
			return nil, fmt.Errorf("calendar pattern: %w", err)
		}
	}
	if genMin < 1 || genMax < genMin {
		return nil, fmt.Errorf("generation range %d..%d is not usable", genMin, genMax)
	}
	return v, nil
}

// tokenSet indexes tokens and rejects shapes the identifier grammar cannot
// carry. Only proximity tokens may contain the "_" delimiter.
func tokenSet(dim string, tokens []string, allowDelimiter bool) (map[string]struct{}, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%s: empty token list", dim)
	}
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			return nil, fmt.Errorf("%s: empty token", dim)
		}
		if tok != strings.ToUpper(tok) {
			return nil, fmt.Errorf("%s: token %q must be uppercase", dim, tok)
		}
		if !allowDelimiter && strings.Contains(tok, "_") {
			return nil, fmt.Errorf("%s: token %q may not contain %q", dim, tok, "_")
		}
		if _, dup := set[tok]; dup {
			return nil, fmt.Errorf("%s: duplicate token %q", dim, tok)
		}
		set[tok] = struct{}{}
	}
	return set, nil
}

// Tokens returns the legal tokens for a dimension, sorted, as a copy.
// Calendar has no finite token list; it returns the accepted patterns plus
// the NONE literal.
func (v *Vocabulary) Tokens(dimension string) []string {
	var src []string
	switch dimension {
	case DimOutcome:
		src = v.outcomes
	case DimDuration:
		src = v.durations
	case DimProximity:
		src = v.proximities
	case DimDirection:
		src = v.directions
	case DimCalendar:
		src = append([]string{CalendarNone}, v.calendarPatterns...)
	default:
		return nil
	}
	out := append([]string(nil), src...)
	sort.Strings(out)
	return out
}

// GenerationRange returns the inclusive bounds for the generation dimension.
func (v *Vocabulary) GenerationRange() (min, max int) {
	return v.genMin, v.genMax
}

func (v *Vocabulary) IsOutcome(tok string) bool {
	_, ok := v.outcomeSet[tok]
	return ok
}

func (v *Vocabulary) IsDuration(tok string) bool {
	_, ok := v.durationSet[tok]
	return ok
}

func (v *Vocabulary) IsProximity(tok string) bool {
	_, ok := v.proximitySet[tok]
	return ok
}

func (v *Vocabulary) IsDirection(tok string) bool {
	_, ok := v.directionSet[tok]
	return ok
}

// IsCalendar accepts the NONE literal or any token matching one of the
// configured calendar family patterns.
func (v *Vocabulary) IsCalendar(tok string) bool {
	if tok == CalendarNone {
		return true
	}
	for _, p := range v.calendarPatterns {
		if wildcard.Match(p, tok) {
			return true
		}
	}
	return false
}

func (v *Vocabulary) IsGeneration(g int) bool {
	return g >= v.genMin && g <= v.genMax
}

// Proximities returns the proximity tokens in declaration order. The codec
// needs the raw list for multi-segment matching.
func (v *Vocabulary) Proximities() []string {
	return append([]string(nil), v.proximities...)
}

// ValidateContext checks one full decision context against the vocabulary.
// It never panics; reasons are human-readable and safe to surface to
// operators.
func (v *Vocabulary) ValidateContext(outcome, duration, proximity, calendar, direction string, generation int) (bool, []string) {
	var reasons []string
	if !v.IsOutcome(outcome) {
		reasons = append(reasons, fmt.Sprintf("outcome %q is not a legal token", outcome))
	}
	if !v.IsDuration(duration) {
		reasons = append(reasons, fmt.Sprintf("duration %q is not a legal token", duration))
	}
	if !v.IsProximity(proximity) {
		reasons = append(reasons, fmt.Sprintf("proximity %q is not a legal token", proximity))
	}
	if !v.IsCalendar(calendar) {
		reasons = append(reasons, fmt.Sprintf("calendar %q is neither %s nor a known family", calendar, CalendarNone))
	}
	if !v.IsDirection(direction) {
		reasons = append(reasons, fmt.Sprintf("direction %q is not a legal token", direction))
	}
	if !v.IsGeneration(generation) {
		reasons = append(reasons, fmt.Sprintf("generation %d outside range %d..%d", generation, v.genMin, v.genMax))
	}
	return len(reasons) == 0, reasons
}
