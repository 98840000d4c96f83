package hybrid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const commentHashLen = 6

// CommentHash derives the six-character short form embedded in terminal
// order comments. The terminal-side implementation computes the same value
// independently, so the construction is frozen: SHA-256 over the UTF-8
// bytes of the identifier, then scan the lowercase hex digest keeping
// characters in [0-9a-z] until six are collected, re-hashing the digest
// itself should it ever run out. Total and deterministic for any input.
func CommentHash(identifier string) string {
	out := make([]byte, 0, commentHashLen)
	input := identifier
	for {
		sum := sha256.Sum256([]byte(input))
		digest := hex.EncodeToString(sum[:])
		for i := 0; i < len(digest) && len(out) < commentHashLen; i++ {
			ch := digest[i]
			if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'z') {
				out = append(out, ch)
			}
		}
		if len(out) == commentHashLen {
			return string(out)
		}
		input = digest
	}
}

// ChainPosition labels a generation for humans: the original entry is "O",
// re-entries are "R1" and "R2". The mapping is fixed by the downstream
// reporting contract regardless of any vocabulary override.
func ChainPosition(generation int) (string, error) {
	switch generation {
	case 1:
		return "O", nil
	case 2:
		return "R1", nil
	case 3:
		return "R2", nil
	default:
		return "", fmt.Errorf("%w: %d", ErrInvalidGeneration, generation)
	}
}
