package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// ParseEvery parses a cadence like "30m", "4h", "1d" or "1w" into a
// duration. Returns (0, false) on invalid input.
func ParseEvery(every string) (time.Duration, bool) {
	every = strings.ToLower(strings.TrimSpace(every))
	if every == "" {
		return 0, false
	}
	unit := every[len(every)-1]
	numStr := strings.TrimSpace(every[:len(every)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
