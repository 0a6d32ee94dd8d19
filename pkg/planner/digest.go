package planner

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestString returns the hex sha256 digest of s, a fingerprint for a
// rendered prompt. The Tick Engine does not call it, and no model call is
// skipped when a prompt's digest repeats.
func DigestString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
