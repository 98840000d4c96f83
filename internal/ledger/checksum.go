package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Checksum implements the row-checksum contract shared with the
// terminal-side tooling: take every field except checksum_sha256, sort the
// field NAMES lexicographically, join the corresponding string values with
// "|", SHA-256 the UTF-8 bytes, lowercase hex. Sorting by name makes the
// value independent of column order, so either side can reorder its schema
// without breaking verification.
func Checksum(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if name == FieldChecksum {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]string, len(names))
	for i, name := range names {
		values[i] = fields[name]
	}
	sum := sha256.Sum256([]byte(strings.Join(values, "|")))
	return hex.EncodeToString(sum[:])
}

// checksumShape reports whether s looks like a produced checksum: exactly
// 64 lowercase hex characters.
func checksumShape(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return false
		}
	}
	return true
}
