// Package symmetric seals configuration secrets in ENC[...] envelopes using AES-256-GCM
package symmetric

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
)

const (
	// KeySize is the AES-256 key length
	KeySize = 32

	envelopePrefix = "ENC["
	envelopeSuffix = "]"

	// minUniqueKeyBytes rejects keys such as all zeros or repeated patterns
	minUniqueKeyBytes = 16
)

// encryption implements interfaces.SymmetricEncryptor
type encryption struct {
	aead cipher.AEAD
}

var _ interfaces.SymmetricEncryptor = (*encryption)(nil)

// NewEncryption creates an encryptor from a key of at least KeySize bytes.
// Only the first KeySize bytes are used.
func NewEncryption(key []byte) (interfaces.SymmetricEncryptor, error) {
	if len(key) < KeySize {
		return nil, fmt.Errorf("encryption key must be at least %d bytes", KeySize)
	}
	key = key[:KeySize]
	if !validateKeyEntropy(key) {
		return nil, fmt.Errorf("key has insufficient entropy")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &encryption{aead: gcm}, nil
}

// NewEncryptionFromBase64 decodes a standard base64 key and creates an encryptor
func NewEncryptionFromBase64(encoded string) (interfaces.SymmetricEncryptor, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credentials key: %w", err)
	}
	return NewEncryption(key)
}

func validateKeyEntropy(key []byte) bool {
	unique := make(map[byte]struct{}, len(key))
	for _, b := range key {
		unique[b] = struct{}{}
	}
	return len(unique) >= minUniqueKeyBytes
}

// IsEncrypted reports whether s is an ENC[...] envelope
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, envelopePrefix) && strings.HasSuffix(s, envelopeSuffix)
}

// Encrypt seals plaintext; envelopes are returned unchanged
func (e *encryption) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext cannot be empty")
	}
	if IsEncrypted(plaintext) {
		return plaintext, nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return envelopePrefix + base64.URLEncoding.EncodeToString(sealed) + envelopeSuffix, nil
}

// Decrypt opens an envelope; plain values are returned unchanged
func (e *encryption) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("ciphertext cannot be empty")
	}
	if !IsEncrypted(ciphertext) {
		return ciphertext, nil
	}

	body := strings.TrimSuffix(strings.TrimPrefix(ciphertext, envelopePrefix), envelopeSuffix)
	decoded, err := base64.URLEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(decoded) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	plaintext, err := e.aead.Open(nil, decoded[:nonceSize], decoded[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
