// Package ledger implements the access grant ledger: time-bounded grants that
// owners issue to grantees and may revoke. Expiry is derived at query time.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/audit"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// maxDurationHours is the longest duration representable as a time.Duration
var maxDurationHours = float64(math.MaxInt64) / float64(time.Hour)

// Ledger owns the Permission lifecycle and its audit entries
type Ledger struct {
	backend interfaces.PermissionStore
	trail   *audit.Trail
	clock   func() time.Time
	logger  zerolog.Logger
}

var _ interfaces.GrantReader = (*Ledger)(nil)

// NewLedger creates a ledger over backend, auditing through trail
func NewLedger(backend interfaces.PermissionStore, trail *audit.Trail) *Ledger {
	return &Ledger{
		backend: backend,
		trail:   trail,
		clock:   time.Now,
		logger:  log.With().Str("component", "grant_ledger").Logger(),
	}
}

// WithClock overrides the clock used for grant, revoke and expiry evaluation
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Now returns the ledger's current time
func (l *Ledger) Now() time.Time {
	return l.clock().UTC()
}

type grantOptions struct {
	recordIDs []string
}

// GrantOption customizes Grant
type GrantOption func(*grantOptions)

// WithRecords lists the records a specific grant covers
func WithRecords(recordIDs ...string) GrantOption {
	return func(o *grantOptions) {
		o.recordIDs = append(o.recordIDs, recordIDs...)
	}
}

// Duration converts a positive number of hours into a time.Duration
func Duration(hours float64) (time.Duration, error) {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 || hours >= maxDurationHours {
		return 0, fmt.Errorf("%w: %v hours", types.ErrInvalidDuration, hours)
	}
	d := time.Duration(hours * float64(time.Hour))
	if d <= 0 {
		return 0, fmt.Errorf("%w: %v hours", types.ErrInvalidDuration, hours)
	}
	return d, nil
}

// Grant issues a permission from ownerID to granteeID valid for durationHours.
// The expiry may not pass types.MaxExpiry. An empty accessType means full access.
// Several active grants for the same pair may coexist.
func (l *Ledger) Grant(ctx context.Context, ownerID, granteeID string, accessType types.AccessType, durationHours float64, opts ...GrantOption) (*types.Permission, error) {
	if ownerID == "" {
		return nil, types.ErrInvalidOwner
	}
	if granteeID == "" {
		return nil, fmt.Errorf("%w: grantee is required", types.ErrInvalidGrantee)
	}
	if granteeID == ownerID {
		return nil, fmt.Errorf("%w: cannot grant access to yourself", types.ErrInvalidGrantee)
	}
	if accessType == "" {
		accessType = types.AccessFull
	}
	if !accessType.Valid() {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidAccessType, accessType)
	}
	duration, err := Duration(durationHours)
	if err != nil {
		return nil, err
	}

	o := grantOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	switch {
	case accessType == types.AccessSpecific && len(o.recordIDs) == 0:
		return nil, fmt.Errorf("%w: specific access requires record ids", types.ErrInvalidAccessType)
	case accessType != types.AccessSpecific && len(o.recordIDs) > 0:
		return nil, fmt.Errorf("%w: record ids only apply to specific access", types.ErrInvalidAccessType)
	}

	now := l.Now()
	if now.Add(duration).After(types.MaxExpiry) {
		return nil, fmt.Errorf("%w: expiry after %s", types.ErrInvalidDuration, types.MaxExpiry.Format(time.RFC3339))
	}
	permission := &types.Permission{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		GranteeID:  granteeID,
		AccessType: accessType,
		RecordIDs:  o.recordIDs,
		GrantedAt:  now,
		ExpiresAt:  now.Add(duration),
		Status:     types.PermissionActive,
	}

	meta := map[string]interface{}{
		audit.MetaOwnerID:      ownerID,
		audit.MetaGranteeID:    granteeID,
		audit.MetaAccessType:   string(accessType),
		audit.MetaExpiresAt:    permission.ExpiresAt.Format(time.RFC3339Nano),
		audit.MetaPermissionID: permission.ID,
	}
	entry := audit.NewEntry(ownerID, types.ActionAccessGranted, permission.ID, meta)

	err = audit.Apply(ctx, l.trail, l.backend, entry, func(ctx context.Context, backend interfaces.PermissionStore) error {
		return backend.InsertPermission(ctx, permission)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to grant access: %w", err)
	}

	l.logger.Info().
		Str("permissionId", permission.ID).
		Str("ownerId", ownerID).
		Str("granteeId", granteeID).
		Str("accessType", string(accessType)).
		Time("expiresAt", permission.ExpiresAt).
		Msg("Access granted")
	return permission.Clone(), nil
}

// Revoke moves an active permission to revoked. It fails with ErrNotFound,
// ErrForbidden when ownerID did not issue the grant, or ErrAlreadyRevoked.
// Revoking an expired grant still succeeds.
func (l *Ledger) Revoke(ctx context.Context, ownerID, permissionID string) (*types.Permission, error) {
	permission, err := l.backend.GetPermission(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if permission.OwnerID != ownerID {
		l.logger.Warn().
			Str("permissionId", permissionID).
			Str("callerId", ownerID).
			Msg("Revoke rejected: caller does not own the grant")
		return nil, types.ErrForbidden
	}
	if permission.Status == types.PermissionRevoked {
		return nil, types.ErrAlreadyRevoked
	}

	now := l.Now()
	entry := audit.NewEntry(ownerID, types.ActionAccessRevoked, permissionID, map[string]interface{}{
		audit.MetaOwnerID:      ownerID,
		audit.MetaGranteeID:    permission.GranteeID,
		audit.MetaAccessType:   string(permission.AccessType),
		audit.MetaPermissionID: permissionID,
		audit.MetaRevokedAt:    now.Format(time.RFC3339Nano),
	})

	err = audit.Apply(ctx, l.trail, l.backend, entry, func(ctx context.Context, backend interfaces.PermissionStore) error {
		return backend.MarkRevoked(ctx, permissionID, now)
	})
	if err != nil {
		if errors.Is(err, types.ErrAlreadyRevoked) || errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to revoke access: %w", err)
	}

	permission.Status = types.PermissionRevoked
	permission.RevokedAt = &now

	l.logger.Info().
		Str("permissionId", permissionID).
		Str("ownerId", ownerID).
		Str("granteeId", permission.GranteeID).
		Msg("Access revoked")
	return permission, nil
}

// ActiveGrantsFor returns the grants from ownerID to granteeID that are active
// and unexpired now, newest first. Nothing is cached.
func (l *Ledger) ActiveGrantsFor(ctx context.Context, ownerID, granteeID string) ([]*types.Permission, error) {
	all, err := l.backend.ListPermissionsByPair(ctx, ownerID, granteeID)
	if err != nil {
		return nil, err
	}
	now := l.Now()
	active := make([]*types.Permission, 0, len(all))
	for _, p := range all {
		if p.ValidAt(now) {
			active = append(active, p)
		}
	}
	return active, nil
}

// ListForOwner returns every grant ownerID issued, in any state, newest first
func (l *Ledger) ListForOwner(ctx context.Context, ownerID string) ([]*types.Permission, error) {
	return l.backend.ListPermissionsByOwner(ctx, ownerID)
}

// Get returns the permission or ErrNotFound
func (l *Ledger) Get(ctx context.Context, permissionID string) (*types.Permission, error) {
	return l.backend.GetPermission(ctx, permissionID)
}
