// Package integrity provides deterministic content hashing for tamper detection
package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// DigestSize is the size of a SHA-256 digest in bytes
const DigestSize = sha256.Size

// Hasher implements interfaces.Hasher using SHA-256
type Hasher struct{}

// NewHasher creates a new SHA-256 hasher
func NewHasher() *Hasher {
	return &Hasher{}
}

// Sum returns the raw digest of data
func (h *Hasher) Sum(data []byte) [DigestSize]byte {
	return sha256.Sum256(data)
}

// Hash returns the hex encoded digest of data
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashParts hashes each part behind an 8-byte big-endian length prefix,
// so ("ab", "c") and ("a", "bc") never collide.
func (h *Hasher) HashParts(parts ...[]byte) string {
	d := sha256.New()
	writeParts(d, parts)
	return hex.EncodeToString(d.Sum(nil))
}

// Verify re-hashes data and compares it against expected in constant time
func (h *Hasher) Verify(data []byte, expected string) bool {
	sum := sha256.Sum256(data)
	return equalDigest(sum[:], expected)
}

// VerifyParts is Verify for digests produced by HashParts
func (h *Hasher) VerifyParts(expected string, parts ...[]byte) bool {
	d := sha256.New()
	writeParts(d, parts)
	return equalDigest(d.Sum(nil), expected)
}

func writeParts(d hash.Hash, parts [][]byte) {
	var prefix [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(p)))
		d.Write(prefix[:])
		d.Write(p)
	}
}

// equalDigest decodes expected and compares in constant time.
// Malformed or wrong-length digests never match.
func equalDigest(actual []byte, expected string) bool {
	want, err := hex.DecodeString(expected)
	if err != nil || len(want) != DigestSize {
		return false
	}
	return subtle.ConstantTimeCompare(actual, want) == 1
}
