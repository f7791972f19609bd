// Package sha256 provides SHA-256 hashing for query identity.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher produces hex digests. The history store keys searches by the digest
// of the normalized query so duplicate queries aggregate in SQL regardless of
// the raw user input.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashQuery lower-cases and trims the query before hashing so "Elden Ring"
// and "elden ring " map to the same digest.
func (h *Hasher) HashQuery(query string) string {
	return h.Hash([]byte(strings.ToLower(strings.TrimSpace(query))))
}
