// Package memory provides an in-memory Store used as a fallback backend and in tests
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// Store implements interfaces.Store with maps guarded by a single RWMutex.
// Values are cloned on the way in and out so callers never share memory with the store.
type Store struct {
	mu          sync.RWMutex
	records     map[string]*types.Record
	permissions map[string]*types.Permission
	audit       []*types.AuditEntry
	seq         map[string]uint64 // insertion order, breaks timestamp ties
	next        uint64
	closed      bool
	logger      zerolog.Logger
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	logger := log.With().Str("component", "memory_store").Logger()
	s := &Store{
		records:     make(map[string]*types.Record),
		permissions: make(map[string]*types.Permission),
		audit:       make([]*types.AuditEntry, 0, 64),
		seq:         make(map[string]uint64),
		logger:      logger,
	}
	logger.Debug().Msg("Memory store initialized")
	return s
}

var _ interfaces.Store = (*Store)(nil)

var errClosed = errors.New("memory store is closed")

// nextSeq records insertion order for id
// IMPORTANT: Caller MUST hold s.mu write lock
func (s *Store) nextSeq(id string) {
	s.next++
	s.seq[id] = s.next
}

// newerFirst orders by timestamp descending, then by insertion descending
// IMPORTANT: Caller MUST hold s.mu (read or write)
func (s *Store) newerFirst(ti, tj time.Time, idi, idj string) bool {
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return s.seq[idi] > s.seq[idj]
}

func (s *Store) check(ctx context.Context, op string) error {
	if ctx.Err() != nil {
		return types.NewStorageError(op, ctx.Err())
	}
	if s.closed {
		return types.NewStorageError(op, errClosed)
	}
	return nil
}

// InsertRecord stores a copy of record
func (s *Store) InsertRecord(ctx context.Context, record *types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, "insert record"); err != nil {
		return err
	}
	if _, exists := s.records[record.ID]; exists {
		return types.NewStorageError("insert record", errors.New("duplicate record id "+record.ID))
	}
	s.records[record.ID] = record.Clone()
	s.nextSeq(record.ID)

	s.logger.Trace().Str("recordId", record.ID).Msg("Record stored")
	return nil
}

// GetRecord returns a copy of the record with id
func (s *Store) GetRecord(ctx context.Context, id string) (*types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "get record"); err != nil {
		return nil, err
	}
	record, exists := s.records[id]
	if !exists {
		return nil, types.ErrNotFound
	}
	return record.Clone(), nil
}

// ListRecordsByOwner returns the owner's records, newest first
func (s *Store) ListRecordsByOwner(ctx context.Context, ownerID string) ([]*types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "list records"); err != nil {
		return nil, err
	}
	result := make([]*types.Record, 0)
	for _, record := range s.records {
		if record.OwnerID == ownerID {
			result = append(result, record.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return s.newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})
	return result, nil
}

// CountRecords returns the number of stored records
func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "count records"); err != nil {
		return 0, err
	}
	return int64(len(s.records)), nil
}

// InsertPermission stores a copy of permission
func (s *Store) InsertPermission(ctx context.Context, permission *types.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, "insert permission"); err != nil {
		return err
	}
	if _, exists := s.permissions[permission.ID]; exists {
		return types.NewStorageError("insert permission", errors.New("duplicate permission id "+permission.ID))
	}
	s.permissions[permission.ID] = permission.Clone()
	s.nextSeq(permission.ID)
	return nil
}

// GetPermission returns a copy of the permission with id
func (s *Store) GetPermission(ctx context.Context, id string) (*types.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "get permission"); err != nil {
		return nil, err
	}
	permission, exists := s.permissions[id]
	if !exists {
		return nil, types.ErrNotFound
	}
	return permission.Clone(), nil
}

// MarkRevoked moves an active permission to revoked under the write lock
func (s *Store) MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, "revoke permission"); err != nil {
		return err
	}
	permission, exists := s.permissions[id]
	if !exists {
		return types.ErrNotFound
	}
	if permission.Status == types.PermissionRevoked {
		return types.ErrAlreadyRevoked
	}
	t := revokedAt
	permission.Status = types.PermissionRevoked
	permission.RevokedAt = &t
	return nil
}

func (s *Store) listPermissions(match func(*types.Permission) bool) []*types.Permission {
	result := make([]*types.Permission, 0)
	for _, permission := range s.permissions {
		if match(permission) {
			result = append(result, permission.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return s.newerFirst(result[i].GrantedAt, result[j].GrantedAt, result[i].ID, result[j].ID)
	})
	return result
}

// ListPermissionsByOwner returns every grant issued by ownerID, newest first
func (s *Store) ListPermissionsByOwner(ctx context.Context, ownerID string) ([]*types.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "list permissions"); err != nil {
		return nil, err
	}
	return s.listPermissions(func(p *types.Permission) bool {
		return p.OwnerID == ownerID
	}), nil
}

// ListPermissionsByPair returns every grant from ownerID to granteeID, newest first
func (s *Store) ListPermissionsByPair(ctx context.Context, ownerID, granteeID string) ([]*types.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "list permissions"); err != nil {
		return nil, err
	}
	return s.listPermissions(func(p *types.Permission) bool {
		return p.OwnerID == ownerID && p.GranteeID == granteeID
	}), nil
}

// CountPermissions returns the number of stored grants
func (s *Store) CountPermissions(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "count permissions"); err != nil {
		return 0, err
	}
	return int64(len(s.permissions)), nil
}

// AppendEntry appends a copy of entry to the trail
func (s *Store) AppendEntry(ctx context.Context, entry *types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, "append audit entry"); err != nil {
		return err
	}
	s.audit = append(s.audit, entry.Clone())
	s.nextSeq(entry.ID)
	return nil
}

// ListEntries returns matching entries, newest first
func (s *Store) ListEntries(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "list audit entries"); err != nil {
		return nil, err
	}
	result := make([]*types.AuditEntry, 0)
	for _, entry := range s.audit {
		if filter.Matches(entry) {
			result = append(result, entry.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return s.newerFirst(result[i].Timestamp, result[j].Timestamp, result[i].ID, result[j].ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// CountEntries returns the number of audit entries
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "count audit entries"); err != nil {
		return 0, err
	}
	return int64(len(s.audit)), nil
}

// Close marks the store closed; later calls fail with a StorageError
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.logger.Debug().
		Int("records", len(s.records)).
		Int("permissions", len(s.permissions)).
		Int("auditEntries", len(s.audit)).
		Msg("Memory store closed")
	return nil
}
