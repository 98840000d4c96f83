// Package symbol normalizes broker symbol spellings to the canonical
// uppercase form used across the pipeline. Brokers decorate the same
// instrument in many ways ("eurusd.r", "EURUSD_pro", "EUR/USD"); rule
// matching and state tracking need one spelling.
package symbol

import (
	"strings"
)

// suffix markers begin a broker decoration ("EURUSD.r", "EURUSD-ecn").
const suffixMarkers = ".#!_-"

var quoteCurrencies = []string{"USD", "EUR", "JPY", "GBP", "CHF", "CAD", "AUD", "NZD"}

type Symbol struct {
	Base  string
	Quote string
}

// Canonical returns the six-letter pair form ("EURUSD"), or "" when the
// pair is unknown.
func (s Symbol) Canonical() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Display returns the slash form ("EUR/USD") for logs and reports.
func (s Symbol) Display() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

func clean(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if idx := strings.IndexAny(s, suffixMarkers); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// Parse splits a broker spelling into base and quote. It understands the
// separator forms "EUR/USD" and "EUR-USD", plain six-letter pairs, and
// longer spellings ending in a known quote currency ("XAUUSD" included).
// Index and basket instruments without a currency quote parse to the zero
// Symbol.
func Parse(s string) Symbol {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if idx := strings.IndexAny(raw, "/-"); idx >= 0 {
		base, quote := clean(raw[:idx]), clean(raw[idx+1:])
		if len(base) == 3 && len(quote) == 3 {
			return Symbol{Base: base, Quote: quote}
		}
	}
	c := clean(raw)
	if c == "" {
		return Symbol{}
	}
	if len(c) == 6 {
		return Symbol{Base: c[:3], Quote: c[3:]}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(c, quote) && len(c) > len(quote) {
			return Symbol{Base: c[:len(c)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

// Normalize returns the canonical spelling for any broker input. Pairs
// collapse to their six-letter form; instruments Parse cannot split
// (indices, commodities quoted in points) keep their cleaned spelling so
// they still match rules and state keys consistently.
func Normalize(s string) string {
	if c := Parse(s).Canonical(); c != "" {
		return c
	}
	return clean(s)
}

// NormalizeList normalizes and dedupes, preserving first-seen order.
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

// IsPair reports whether the spelling resolves to a base/quote pair.
func IsPair(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
