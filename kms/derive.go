package kms

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters for passphrase-configured sealers
const (
	DefaultSalt      = "healthchain_salt"
	DeriveIterations = 100000
)

// DeriveKey stretches passphrase into an AES-256 key with PBKDF2-SHA256.
// An empty salt uses DefaultSalt.
func DeriveKey(passphrase, salt string) []byte {
	if salt == "" {
		salt = DefaultSalt
	}
	return pbkdf2.Key([]byte(passphrase), []byte(salt), DeriveIterations, AeadKeySize, sha256.New)
}
