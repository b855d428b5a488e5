// Package record stores encrypted record blobs with a content hash computed at write time
package record

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/audit"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// Store is the record service. It does not enforce access control; callers
// run the access evaluator before Get.
type Store struct {
	backend interfaces.RecordStore
	trail   *audit.Trail
	hasher  interfaces.Hasher
	clock   func() time.Time
	logger  zerolog.Logger
}

// NewStore creates a record service over backend
func NewStore(backend interfaces.RecordStore, trail *audit.Trail, hasher interfaces.Hasher) *Store {
	return &Store{
		backend: backend,
		trail:   trail,
		hasher:  hasher,
		clock:   time.Now,
		logger:  log.With().Str("component", "record_store").Logger(),
	}
}

// WithClock overrides the clock used for createdAt
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

type putOptions struct {
	category types.RecordCategory
	authorID string
}

// PutOption customizes Put
type PutOption func(*putOptions)

// WithCategory sets the record category. Defaults to general.
func WithCategory(category types.RecordCategory) PutOption {
	return func(o *putOptions) { o.category = category }
}

// WithAuthor records the identity that created the record on the owner's behalf
func WithAuthor(authorID string) PutOption {
	return func(o *putOptions) { o.authorID = authorID }
}

// Put stores ciphertext and nonce for ownerID. The content hash covers both.
func (s *Store) Put(ctx context.Context, ownerID string, ciphertext, nonce []byte, opts ...PutOption) (*types.Record, error) {
	if ownerID == "" {
		return nil, types.ErrInvalidOwner
	}
	o := putOptions{category: types.CategoryGeneral}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", types.ErrInvalidRecord, o.category)
	}

	record := &types.Record{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		AuthorID:    o.authorID,
		Category:    o.category,
		Ciphertext:  append([]byte(nil), ciphertext...),
		Nonce:       append([]byte(nil), nonce...),
		ContentHash: s.hasher.HashParts(ciphertext, nonce),
		CreatedAt:   s.clock().UTC(),
	}

	actorID := ownerID
	if o.authorID != "" {
		actorID = o.authorID
	}
	entry := audit.NewEntry(actorID, types.ActionRecordAdded, record.ID, map[string]interface{}{
		audit.MetaOwnerID:     ownerID,
		audit.MetaCategory:    string(record.Category),
		audit.MetaContentHash: record.ContentHash,
	})

	err := audit.Apply(ctx, s.trail, s.backend, entry, func(ctx context.Context, backend interfaces.RecordStore) error {
		return backend.InsertRecord(ctx, record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store record: %w", err)
	}

	s.logger.Debug().
		Str("recordId", record.ID).
		Str("ownerId", ownerID).
		Str("category", string(record.Category)).
		Int("size", len(ciphertext)).
		Msg("Record stored")
	return record, nil
}

// Get returns the record or types.ErrNotFound
func (s *Store) Get(ctx context.Context, recordID string) (*types.Record, error) {
	return s.backend.GetRecord(ctx, recordID)
}

// ListByOwner returns the owner's records, newest first
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*types.Record, error) {
	return s.backend.ListRecordsByOwner(ctx, ownerID)
}

// Verify re-hashes the stored ciphertext and nonce and compares against the stored
// content hash. The outcome is appended to the audit trail as record_verified.
func (s *Store) Verify(ctx context.Context, actorID, recordID string) (bool, error) {
	record, err := s.backend.GetRecord(ctx, recordID)
	if err != nil {
		return false, err
	}

	ok := s.hasher.VerifyParts(record.ContentHash, record.Ciphertext, record.Nonce)
	if !ok {
		s.logger.Warn().
			Str("recordId", recordID).
			Str("ownerId", record.OwnerID).
			Msg("Record content hash mismatch")
	}

	_, err = s.trail.Record(ctx, actorID, types.ActionRecordVerified, recordID, map[string]interface{}{
		audit.MetaOwnerID:     record.OwnerID,
		audit.MetaContentHash: record.ContentHash,
		audit.MetaOK:          ok,
	})
	if err != nil {
		return false, fmt.Errorf("failed to audit verification: %w", err)
	}
	return ok, nil
}
