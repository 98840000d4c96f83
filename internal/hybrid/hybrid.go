// Package hybrid implements the hybrid identifier codec: the compact
// underscore-joined string encoding the six decision dimensions of one
// re-entry decision. Compose/Parse/Validate are pure; the only state a
// Codec carries is the vocabulary it validates against.
//
// Grammar: OUTCOME_DURATION_PROXIMITY_CALENDAR_DIRECTION_GENERATION with an
// optional six-character suffix segment. Proximity and calendar tokens may
// themselves contain the underscore delimiter, so parsing locates the
// generation by scanning segments from the end and reassembles the variable
// middle around it.
package hybrid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"reentry/internal/vocab"
)

const delimiter = "_"

var (
	ErrInvalidComponent    = errors.New("invalid identifier component")
	ErrInvalidSuffix       = errors.New("invalid identifier suffix")
	ErrMalformedIdentifier = errors.New("malformed identifier")
	ErrInvalidGeneration   = errors.New("generation outside chain range")
)

var suffixRe = regexp.MustCompile(`^[a-z0-9]{6}$`)

// Identifier is the decoded form. Immutable by convention: produced by
// Compose or Parse, never mutated.
type Identifier struct {
	Outcome    string
	Duration   string
	Proximity  string
	Calendar   string
	Direction  string
	Generation int
	Suffix     string
}

// String renders the canonical wire form.
func (id Identifier) String() string {
	parts := []string{
		id.Outcome, id.Duration, id.Proximity, id.Calendar,
		id.Direction, strconv.Itoa(id.Generation),
	}
	if id.Suffix != "" {
		parts = append(parts, id.Suffix)
	}
	return strings.Join(parts, delimiter)
}

// Hash returns the six-character comment hash of the canonical form.
func (id Identifier) Hash() string {
	return CommentHash(id.String())
}

// Codec composes and parses identifiers against one vocabulary.
type Codec struct {
	vocab *vocab.Vocabulary
}

func NewCodec(v *vocab.Vocabulary) *Codec {
	return &Codec{vocab: v}
}

// Compose builds an identifier from its components. Components must be
// legal vocabulary tokens; a non-empty suffix must be exactly six lowercase
// alphanumeric characters.
func (c *Codec) Compose(outcome, duration, proximity, calendar, direction string, generation int, suffix string) (Identifier, error) {
	ok, reasons := c.vocab.ValidateContext(outcome, duration, proximity, calendar, direction, generation)
	if !ok {
		return Identifier{}, fmt.Errorf("%w: %s", ErrInvalidComponent, strings.Join(reasons, "; "))
	}
	if suffix != "" && !suffixRe.MatchString(suffix) {
		return Identifier{}, fmt.Errorf("%w: %q does not match ^[a-z0-9]{6}$", ErrInvalidSuffix, suffix)
	}
	return Identifier{
		Outcome:    outcome,
		Duration:   duration,
		Proximity:  proximity,
		Calendar:   calendar,
		Direction:  direction,
		Generation: generation,
		Suffix:     suffix,
	}, nil
}

// Parse inverts Compose for every legal identifier. The generation segment
// anchors the layout: scanning from the end, the first canonical integer
// within the vocabulary generation range is the generation; at most one
// segment may follow it and must then be a valid suffix. The segment before
// the generation is the direction; proximity is the longest vocabulary
// token assembled from segment index 2 onward; the remainder between the
// two is the calendar token.
//
// Parse checks structure only: unknown tokens in outcome/duration/
// proximity/calendar/direction positions still parse, so Validate can
// report them as component failures rather than a blunt parse error.
func (c *Codec) Parse(text string) (Identifier, error) {
	segs := strings.Split(text, delimiter)
	if len(segs) < 6 {
		return Identifier{}, fmt.Errorf("%w: %q has %d segments, need at least 6", ErrMalformedIdentifier, text, len(segs))
	}

	genIdx := -1
	generation := 0
	for i := len(segs) - 1; i >= 0; i-- {
		if n, ok := c.generationSegment(segs[i]); ok {
			genIdx, generation = i, n
			break
		}
	}
	if genIdx < 0 {
		return Identifier{}, fmt.Errorf("%w: %q has no generation segment in range", ErrMalformedIdentifier, text)
	}

	suffix := ""
	switch len(segs) - genIdx {
	case 1:
		// generation is the final segment
	case 2:
		suffix = segs[len(segs)-1]
		if !suffixRe.MatchString(suffix) {
			return Identifier{}, fmt.Errorf("%w: trailing segment %q is not a valid suffix", ErrMalformedIdentifier, suffix)
		}
	default:
		return Identifier{}, fmt.Errorf("%w: %q has %d segments after the generation", ErrMalformedIdentifier, text, len(segs)-genIdx-1)
	}

	dirIdx := genIdx - 1
	// outcome, duration, proximity and calendar all precede the direction
	if dirIdx < 4 {
		return Identifier{}, fmt.Errorf("%w: %q leaves no room for calendar before the direction", ErrMalformedIdentifier, text)
	}

	proxLen := c.proximityLength(segs, dirIdx)
	return Identifier{
		Outcome:    segs[0],
		Duration:   segs[1],
		Proximity:  strings.Join(segs[2:2+proxLen], delimiter),
		Calendar:   strings.Join(segs[2+proxLen:dirIdx], delimiter),
		Direction:  segs[dirIdx],
		Generation: generation,
		Suffix:     suffix,
	}, nil
}

// Validate reports whether text parses and every component is a legal
// vocabulary token. It never returns an error.
func (c *Codec) Validate(text string) bool {
	id, err := c.Parse(text)
	if err != nil {
		return false
	}
	ok, _ := c.vocab.ValidateContext(id.Outcome, id.Duration, id.Proximity, id.Calendar, id.Direction, id.Generation)
	return ok
}

// generationSegment accepts only the canonical decimal form (no sign, no
// leading zeros) of an in-range generation, so calendar fragments like
// "30M" or a six-character suffix can never be mistaken for one.
func (c *Codec) generationSegment(seg string) (int, bool) {
	n, err := strconv.Atoi(seg)
	if err != nil || strconv.Itoa(n) != seg {
		return 0, false
	}
	if !c.vocab.IsGeneration(n) {
		return 0, false
	}
	return n, true
}

// proximityLength returns how many segments starting at index 2 form the
// proximity token: the longest vocabulary match that still leaves at least
// one segment for the calendar, falling back to a single segment when
// nothing matches.
func (c *Codec) proximityLength(segs []string, dirIdx int) int {
	best := 1
	for _, tok := range c.vocab.Proximities() {
		n := strings.Count(tok, delimiter) + 1
		if n <= best || 2+n > dirIdx-1 {
			continue
		}
		if strings.Join(segs[2:2+n], delimiter) == tok {
			best = n
		}
	}
	return best
}
