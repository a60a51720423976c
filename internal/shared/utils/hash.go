package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher computes content hashes for encoded state documents
type Hasher struct{}

// DefaultHasher returns the SHA-256 hasher state hashes are defined with
func DefaultHasher() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data
func (h *Hasher) Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash truncates a hash to 8 characters for logs
func ShortHash(fullHash string) string {
	if len(fullHash) < 8 {
		return fullHash
	}
	return fullHash[:8]
}
