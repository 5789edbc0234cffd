package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashFingerprint hashes request parts into a stable hex digest.
func HashFingerprint(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}
