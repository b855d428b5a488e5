package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// Trail implements interfaces.AuditLogger on top of an append-only audit store.
// Every durable append is also emitted as a structured log event.
type Trail struct {
	store  interfaces.AuditStore
	logger zerolog.Logger
	clock  func() time.Time
}

// NewTrail creates a new audit trail writing to store
func NewTrail(store interfaces.AuditStore) *Trail {
	return &Trail{
		store:  store,
		logger: log.With().Str("component", "audit_trail").Logger(),
		clock:  time.Now,
	}
}

// WithClock overrides the clock used for entry timestamps
func (t *Trail) WithClock(clock func() time.Time) *Trail {
	t.clock = clock
	return t
}

// Bind returns a trail that appends through store but shares this trail's clock and logger.
// Used to write audit entries inside an atomic unit of work.
func (t *Trail) Bind(store interfaces.AuditStore) *Trail {
	return &Trail{store: store, logger: t.logger, clock: t.clock}
}

// NewEntry creates an audit entry with essential fields
func NewEntry(actorID string, action types.AuditAction, targetID string, meta map[string]interface{}) *types.AuditEntry {
	if meta == nil {
		meta = make(map[string]interface{})
	}
	return &types.AuditEntry{
		ID:       uuid.New().String(),
		ActorID:  actorID,
		Action:   action,
		TargetID: targetID,
		Meta:     meta,
	}
}

// Record builds and appends an entry in one call
func (t *Trail) Record(ctx context.Context, actorID string, action types.AuditAction, targetID string, meta map[string]interface{}) (*types.AuditEntry, error) {
	entry := NewEntry(actorID, action, targetID, meta)
	if err := t.LogEvent(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// LogEvent durably appends the entry, filling ID, timestamp and request context when missing
func (t *Trail) LogEvent(ctx context.Context, entry *types.AuditEntry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if t.store == nil {
		return fmt.Errorf("fail-closed: audit store not configured")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.clock().UTC()
	}
	if entry.Meta == nil {
		entry.Meta = make(map[string]interface{})
	}
	for k, v := range contextValues(ctx) {
		if _, exists := entry.Meta[k]; !exists {
			entry.Meta[k] = v
		}
	}

	if err := t.store.AppendEntry(ctx, entry); err != nil {
		t.logger.Error().
			Err(err).
			Str("auditId", entry.ID).
			Str("action", string(entry.Action)).
			Msg("Failed to append audit entry")
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	logEvent := t.logger.Info().
		Str("auditId", entry.ID).
		Time("timestamp", entry.Timestamp).
		Str("actorId", entry.ActorID).
		Str("action", string(entry.Action)).
		Str("targetId", entry.TargetID)
	if reason, ok := entry.Meta[MetaReason].(string); ok {
		logEvent = logEvent.Str("reason", reason)
	}
	for k, v := range contextValues(ctx) {
		logEvent = logEvent.Str(k, v)
	}
	logEvent.Msg("Audit event")

	return nil
}

// GetEvents returns entries matching filter, newest first
func (t *Trail) GetEvents(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error) {
	if t.store == nil {
		return nil, fmt.Errorf("fail-closed: audit store not configured")
	}
	entries, err := t.store.ListEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
