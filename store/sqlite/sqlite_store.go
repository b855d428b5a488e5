// Package sqlite provides an embedded single-file Store on modernc.org/sqlite
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/store/sqlite/migrations"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// Store implements interfaces.Store and interfaces.Atomic on a SQLite database
type Store struct {
	db     *sql.DB
	q      DBTX // db, or the open transaction inside RunAtomic
	inTx   bool
	logger zerolog.Logger
}

var (
	_ interfaces.Store  = (*Store)(nil)
	_ interfaces.Atomic = (*Store)(nil)
)

// gooseUpContext is a seam for testing goose.UpContext
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Open creates or opens the database at path and applies pending migrations
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers; RunAtomic holds it for the whole unit
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{
		db:     db,
		q:      db,
		logger: log.With().Str("component", "sqlite_store").Logger(),
	}
	if err := s.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("SQLite store opened")
	return s, nil
}

// RunMigrations sets up goose with the embedded migrations and runs them
func (s *Store) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, s.db, ".")
}

// RunAtomic runs fn inside a single transaction. Nested calls reuse the open transaction.
func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx interfaces.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, &Store{db: s.db, q: tx, inTx: true, logger: s.logger})
	})
	if err != nil {
		var storageErr *types.StorageError
		if errors.As(err, &storageErr) || !isDriverError(err) {
			return err
		}
		return types.NewStorageError("transaction", err)
	}
	return nil
}

// isDriverError reports whether err came from the database rather than from fn's domain logic
func isDriverError(err error) bool {
	for _, sentinel := range []error{
		types.ErrNotFound, types.ErrForbidden, types.ErrAlreadyRevoked,
		types.ErrInvalidDuration, types.ErrInvalidGrantee, types.ErrInvalidAccessType,
		types.ErrInvalidOwner, types.ErrInvalidRecord, types.ErrUnauthorizedRole,
	} {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	return true
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

// storable reports whether UnixNano round-trips t
func storable(t time.Time) bool {
	return !t.Before(time.Unix(0, math.MinInt64)) && !t.After(types.MaxExpiry)
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

const recordColumns = `id, owner_id, author_id, category, ciphertext, nonce, content_hash, created_at`

func scanRecord(row scanner) (*types.Record, error) {
	var (
		r         types.Record
		category  string
		createdAt int64
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &r.AuthorID, &category, &r.Ciphertext, &r.Nonce, &r.ContentHash, &createdAt); err != nil {
		return nil, err
	}
	r.Category = types.RecordCategory(category)
	r.CreatedAt = fromNanos(createdAt)
	return &r, nil
}

// InsertRecord persists a new record
func (s *Store) InsertRecord(ctx context.Context, record *types.Record) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.OwnerID, record.AuthorID, string(record.Category),
		nonNil(record.Ciphertext), nonNil(record.Nonce), record.ContentHash, toNanos(record.CreatedAt),
	)
	return types.NewStorageError("insert record", err)
}

// nonNil keeps NOT NULL blob columns satisfied for empty payloads
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// GetRecord returns types.ErrNotFound when no record has the id
func (s *Store) GetRecord(ctx context.Context, id string) (*types.Record, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, types.NewStorageError("get record", err)
	}
	return record, nil
}

// ListRecordsByOwner returns the owner's records, newest first
func (s *Store) ListRecordsByOwner(ctx context.Context, ownerID string) ([]*types.Record, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC`, ownerID)
	if err != nil {
		return nil, types.NewStorageError("list records", err)
	}
	defer rows.Close()

	result := make([]*types.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, types.NewStorageError("list records", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStorageError("list records", err)
	}
	return result, nil
}

// CountRecords returns the number of stored records
func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	return s.count(ctx, "records")
}

func (s *Store) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, types.NewStorageError("count "+table, err)
	}
	return n, nil
}

const permissionColumns = `id, owner_id, grantee_id, access_type, record_ids, granted_at, expires_at, status, revoked_at`

func scanPermission(row scanner) (*types.Permission, error) {
	var (
		p          types.Permission
		accessType string
		recordIDs  string
		grantedAt  int64
		expiresAt  int64
		status     string
		revokedAt  sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.GranteeID, &accessType, &recordIDs, &grantedAt, &expiresAt, &status, &revokedAt); err != nil {
		return nil, err
	}
	p.AccessType = types.AccessType(accessType)
	p.GrantedAt = fromNanos(grantedAt)
	p.ExpiresAt = fromNanos(expiresAt)
	p.Status = types.PermissionStatus(status)
	if revokedAt.Valid {
		t := fromNanos(revokedAt.Int64)
		p.RevokedAt = &t
	}
	if recordIDs != "" && recordIDs != "[]" {
		if err := json.Unmarshal([]byte(recordIDs), &p.RecordIDs); err != nil {
			return nil, fmt.Errorf("decoding record ids: %w", err)
		}
	}
	return &p, nil
}

// InsertPermission persists a new grant
func (s *Store) InsertPermission(ctx context.Context, permission *types.Permission) error {
	recordIDs := []string{}
	if permission.RecordIDs != nil {
		recordIDs = permission.RecordIDs
	}
	encoded, err := json.Marshal(recordIDs)
	if err != nil {
		return types.NewStorageError("insert permission", err)
	}

	if !storable(permission.GrantedAt) || !storable(permission.ExpiresAt) {
		return types.NewStorageError("insert permission", fmt.Errorf("timestamps out of range: granted %s, expires %s",
			permission.GrantedAt.Format(time.RFC3339), permission.ExpiresAt.Format(time.RFC3339)))
	}

	var revokedAt sql.NullInt64
	if permission.RevokedAt != nil {
		revokedAt = sql.NullInt64{Int64: toNanos(*permission.RevokedAt), Valid: true}
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO permissions (`+permissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		permission.ID, permission.OwnerID, permission.GranteeID, string(permission.AccessType), string(encoded),
		toNanos(permission.GrantedAt), toNanos(permission.ExpiresAt), string(permission.Status), revokedAt,
	)
	return types.NewStorageError("insert permission", err)
}

// GetPermission returns types.ErrNotFound when no grant has the id
func (s *Store) GetPermission(ctx context.Context, id string) (*types.Permission, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = ?`, id)
	permission, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, types.NewStorageError("get permission", err)
	}
	return permission, nil
}

// MarkRevoked is a conditional update on status = 'active'
func (s *Store) MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE permissions SET status = ?, revoked_at = ? WHERE id = ? AND status = ?`,
		string(types.PermissionRevoked), toNanos(revokedAt), id, string(types.PermissionActive),
	)
	if err != nil {
		return types.NewStorageError("revoke permission", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return types.NewStorageError("revoke permission", err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing matched: tell a missing grant apart from one revoked concurrently
	if _, err := s.GetPermission(ctx, id); err != nil {
		return err
	}
	return types.ErrAlreadyRevoked
}

func (s *Store) queryPermissions(ctx context.Context, where string, args ...any) ([]*types.Permission, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE `+where+` ORDER BY granted_at DESC, rowid DESC`, args...)
	if err != nil {
		return nil, types.NewStorageError("list permissions", err)
	}
	defer rows.Close()

	result := make([]*types.Permission, 0)
	for rows.Next() {
		permission, err := scanPermission(rows)
		if err != nil {
			return nil, types.NewStorageError("list permissions", err)
		}
		result = append(result, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStorageError("list permissions", err)
	}
	return result, nil
}

// ListPermissionsByOwner returns every grant issued by the owner, newest first
func (s *Store) ListPermissionsByOwner(ctx context.Context, ownerID string) ([]*types.Permission, error) {
	return s.queryPermissions(ctx, `owner_id = ?`, ownerID)
}

// ListPermissionsByPair returns every grant from owner to grantee, newest first
func (s *Store) ListPermissionsByPair(ctx context.Context, ownerID, granteeID string) ([]*types.Permission, error) {
	return s.queryPermissions(ctx, `owner_id = ? AND grantee_id = ?`, ownerID, granteeID)
}

// CountPermissions returns the number of stored grants
func (s *Store) CountPermissions(ctx context.Context) (int64, error) {
	return s.count(ctx, "permissions")
}

// AppendEntry persists a new audit entry
func (s *Store) AppendEntry(ctx context.Context, entry *types.AuditEntry) error {
	meta := entry.Meta
	if meta == nil {
		meta = map[string]interface{}{}
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return types.NewStorageError("append audit entry", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO audit_logs (id, actor_id, action, target_id, timestamp, meta) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ActorID, string(entry.Action), entry.TargetID, toNanos(entry.Timestamp), string(encoded),
	)
	return types.NewStorageError("append audit entry", err)
}

// ListEntries returns matching entries, newest first
func (s *Store) ListEntries(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.ActorID != "" {
		clauses = append(clauses, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.TargetID != "" {
		clauses = append(clauses, "target_id = ?")
		args = append(args, filter.TargetID)
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, action := range filter.Actions {
			placeholders[i] = "?"
			args = append(args, string(action))
		}
		clauses = append(clauses, "action IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, toNanos(filter.Since))
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "timestamp < ?")
		args = append(args, toNanos(filter.Until))
	}

	query := `SELECT id, actor_id, action, target_id, timestamp, meta FROM audit_logs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.NewStorageError("list audit entries", err)
	}
	defer rows.Close()

	result := make([]*types.AuditEntry, 0)
	for rows.Next() {
		var (
			e         types.AuditEntry
			action    string
			timestamp int64
			meta      string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &action, &e.TargetID, &timestamp, &meta); err != nil {
			return nil, types.NewStorageError("list audit entries", err)
		}
		e.Action = types.AuditAction(action)
		e.Timestamp = fromNanos(timestamp)
		e.Meta = make(map[string]interface{})
		if err := json.Unmarshal([]byte(meta), &e.Meta); err != nil {
			return nil, types.NewStorageError("list audit entries", fmt.Errorf("decoding meta: %w", err))
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStorageError("list audit entries", err)
	}
	return result, nil
}

// CountEntries returns the number of stored entries
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	return s.count(ctx, "audit_logs")
}

// Close closes the database. It is a no-op on a transaction-bound store.
func (s *Store) Close(ctx context.Context) error {
	if s.inTx {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return types.NewStorageError("close", err)
	}
	s.logger.Debug().Msg("SQLite store closed")
	return nil
}
