// Package interfaces defines all service interfaces for the application.
// IMPORTANT: This is the single source of truth for service interfaces.
// Do not define interfaces in other files.
package interfaces

import (
	"context"
	"time"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// Store Interfaces
// RecordStore persists encrypted records
type RecordStore interface {
	// InsertRecord persists a new record
	InsertRecord(ctx context.Context, record *types.Record) error

	// GetRecord returns types.ErrNotFound when no record has the id
	GetRecord(ctx context.Context, id string) (*types.Record, error)

	// ListRecordsByOwner returns the owner's records, newest first
	ListRecordsByOwner(ctx context.Context, ownerID string) ([]*types.Record, error)

	// CountRecords returns the number of stored records
	CountRecords(ctx context.Context) (int64, error)
}

// PermissionStore persists access grants
type PermissionStore interface {
	// InsertPermission persists a new grant
	InsertPermission(ctx context.Context, permission *types.Permission) error

	// GetPermission returns types.ErrNotFound when no grant has the id
	GetPermission(ctx context.Context, id string) (*types.Permission, error)

	// MarkRevoked atomically moves an active grant to revoked.
	// Returns types.ErrNotFound or types.ErrAlreadyRevoked when the transition is not possible.
	MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error

	// ListPermissionsByOwner returns every grant issued by the owner, newest first
	ListPermissionsByOwner(ctx context.Context, ownerID string) ([]*types.Permission, error)

	// ListPermissionsByPair returns every grant from owner to grantee, newest first
	ListPermissionsByPair(ctx context.Context, ownerID, granteeID string) ([]*types.Permission, error)

	// CountPermissions returns the number of stored grants
	CountPermissions(ctx context.Context) (int64, error)
}

// AuditStore persists the append-only audit trail
type AuditStore interface {
	// AppendEntry persists a new audit entry. Entries are never updated or deleted.
	AppendEntry(ctx context.Context, entry *types.AuditEntry) error

	// ListEntries returns matching entries, newest first
	ListEntries(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error)

	// CountEntries returns the number of stored entries
	CountEntries(ctx context.Context) (int64, error)
}

// Store combines every persistence concern behind one backend
type Store interface {
	RecordStore
	PermissionStore
	AuditStore

	// Close releases backend resources
	Close(ctx context.Context) error
}

// Atomic is implemented by stores that can apply an audit append and a mutation as one unit.
// fn receives a Store bound to the unit of work; returning an error discards every write made through it.
type Atomic interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Audit Interfaces
// AuditLogger defines the interface for audit logging
type AuditLogger interface {
	// LogEvent durably appends an audit entry
	LogEvent(ctx context.Context, entry *types.AuditEntry) error

	// GetEvents retrieves audit entries, newest first
	GetEvents(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error)
}

// Integrity Interfaces
// Hasher produces and checks content digests
type Hasher interface {
	// Hash returns the hex digest of data
	Hash(data []byte) string

	// HashParts returns the hex digest of an unambiguous framing of parts
	HashParts(parts ...[]byte) string

	// Verify re-hashes data and compares against expected in constant time
	Verify(data []byte, expected string) bool

	// VerifyParts is Verify for HashParts digests
	VerifyParts(expected string, parts ...[]byte) bool
}

// Access Interfaces
// GrantReader exposes the read side of the grant ledger used by access decisions
type GrantReader interface {
	// ActiveGrantsFor returns grants that are active and unexpired at evaluation time
	ActiveGrantsFor(ctx context.Context, ownerID, granteeID string) ([]*types.Permission, error)
}

// ScopePolicy maps a grant's access type onto record categories
type ScopePolicy interface {
	// Covers reports whether grant authorizes reading record at now
	Covers(grant *types.Permission, record *types.Record, now time.Time) bool
}

// Sealing Interfaces
// Sealer encrypts record payloads before they reach the record store
type Sealer interface {
	// Seal encrypts plaintext bound to ownerID and returns opaque ciphertext and nonce
	Seal(ctx context.Context, ownerID string, plaintext []byte) (ciphertext, nonce []byte, err error)

	// Open reverses Seal
	Open(ctx context.Context, ownerID string, ciphertext, nonce []byte) ([]byte, error)
}

// SymmetricEncryptor protects configuration secrets at rest
type SymmetricEncryptor interface {
	// Encrypt returns an ENC[...] envelope; already encrypted input is returned unchanged
	Encrypt(plaintext string) (string, error)

	// Decrypt opens an ENC[...] envelope; plain input is returned unchanged
	Decrypt(ciphertext string) (string, error)
}

// CredentialsManager protects KMS credentials held in configuration
type CredentialsManager interface {
	// EncryptCredentials replaces every credential value with its encrypted envelope
	EncryptCredentials(config *types.SealerConfig) error

	// DecryptCredentials restores plaintext credential values for provider initialization
	DecryptCredentials(config *types.SealerConfig) error

	// MaskCredentials returns a copy of the config safe to print or log
	MaskCredentials(config types.SealerConfig) types.SealerConfig
}
