package kms

import (
	"context"
	"fmt"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"google.golang.org/protobuf/proto"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
)

// Sealer encrypts record payloads through a KMS wrapper.
// The owner id is bound as additional authenticated data, so a blob
// cannot be opened under another owner.
type Sealer struct {
	wrapper wrapping.Wrapper
}

var _ interfaces.Sealer = (*Sealer)(nil)

// NewSealer creates a sealer over provider's wrapper
func NewSealer(provider Provider) *Sealer {
	return &Sealer{wrapper: provider.GetWrapper()}
}

// Seal encrypts plaintext. The ciphertext is the serialized wrapper blob;
// the nonce is the blob's IV when the wrapper reports one separately.
func (s *Sealer) Seal(ctx context.Context, ownerID string, plaintext []byte) ([]byte, []byte, error) {
	if ownerID == "" {
		return nil, nil, fmt.Errorf("owner id is required to seal a record")
	}
	blob, err := s.wrapper.Encrypt(ctx, plaintext, wrapping.WithAad([]byte(ownerID)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seal record: %w", err)
	}

	nonce := blob.Iv
	blob.Iv = nil
	ciphertext, err := proto.Marshal(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode sealed record: %w", err)
	}
	return ciphertext, nonce, nil
}

// Open reverses Seal for the same owner
func (s *Sealer) Open(ctx context.Context, ownerID string, ciphertext, nonce []byte) ([]byte, error) {
	blob := &wrapping.BlobInfo{}
	if err := proto.Unmarshal(ciphertext, blob); err != nil {
		return nil, fmt.Errorf("failed to decode sealed record: %w", err)
	}
	if len(nonce) > 0 {
		blob.Iv = nonce
	}
	plaintext, err := s.wrapper.Decrypt(ctx, blob, wrapping.WithAad([]byte(ownerID)))
	if err != nil {
		return nil, fmt.Errorf("failed to open record: %w", err)
	}
	return plaintext, nil
}
