package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex-encoded SHA-256 digest of raw file bytes.
// It identifies duplicate uploads before any extraction or embedding work runs.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TruncateRunes cuts s to at most n runes. Multi-byte text is cut on a rune
// boundary, never mid-codepoint.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
