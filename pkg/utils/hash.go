package utils

import (
	"crypto/sha256"
	"fmt"
)

// Fingerprint returns a stable hex digest used for cache keys and chunk IDs.
func Fingerprint(input string) string {
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash)
}
