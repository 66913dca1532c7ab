package htmlconv

import (
	"crypto/sha256"
	"encoding/hex"
)

// GenerateETag implements the ETag Generator (C13): a fixed-width hex
// digest of the final Markdown bytes, quoted in HTTP ETag form. It is a
// pure function of its input, matching the teacher's cache key hash
// (internal/cache.keyFor) in choice of algorithm.
func GenerateETag(markdown []byte) string {
	sum := sha256.Sum256(markdown)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
