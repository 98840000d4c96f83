// Package text holds small string helpers for the alerting path.
package text

import "unicode/utf8"

// Clip shortens s to at most max runes, replacing the cut tail with an
// ellipsis. Counting runes rather than bytes keeps multi-byte symbols
// from being split mid-sequence. Non-positive max returns s unchanged.
func Clip(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
