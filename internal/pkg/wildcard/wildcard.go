// Package wildcard implements the restricted pattern language used by the
// rule matcher: "*" matches anything, "X*" matches by prefix, "*X" matches
// by suffix, and any other pattern matches only itself.
package wildcard

import (
	"fmt"
	"strings"
)

// Match reports whether value satisfies pattern. The empty pattern is
// treated as "*" so callers can leave criteria unset.
func Match(pattern, value string) bool {
	switch {
	case pattern == "" || pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*") && !strings.HasPrefix(pattern, "*"):
		return strings.HasPrefix(value, pattern[:len(pattern)-1])
	case strings.HasPrefix(pattern, "*") && !strings.HasSuffix(pattern, "*"):
		return strings.HasSuffix(value, pattern[1:])
	default:
		return pattern == value
	}
}

// IsExact reports whether pattern contains no wildcard and therefore
// matches exactly one value.
func IsExact(pattern string) bool {
	return pattern != "" && !strings.Contains(pattern, "*")
}

// Validate rejects patterns outside the supported grammar: at most one
// "*", and only in the leading or trailing position.
func Validate(pattern string) error {
	n := strings.Count(pattern, "*")
	if n == 0 {
		return nil
	}
	if n > 1 {
		return fmt.Errorf("pattern %q: multiple wildcards not supported", pattern)
	}
	if !strings.HasPrefix(pattern, "*") && !strings.HasSuffix(pattern, "*") {
		return fmt.Errorf("pattern %q: wildcard must lead or trail", pattern)
	}
	return nil
}
