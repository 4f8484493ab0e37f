package source

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashHex derives a filesystem-safe cache key from an arbitrary URL.
func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
