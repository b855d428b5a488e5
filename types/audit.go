package types

import (
	"time"
)

// AuditAction identifies the kind of security-relevant event
type AuditAction string

const (
	ActionRecordAdded    AuditAction = "record_added"
	ActionAccessGranted  AuditAction = "access_granted"
	ActionAccessRevoked  AuditAction = "access_revoked"
	ActionAccessDenied   AuditAction = "access_denied"
	ActionAccessVerified AuditAction = "access_verified"
	ActionRecordVerified AuditAction = "record_verified"
)

// AuditEntry is an immutable record of a security-relevant action
type AuditEntry struct {
	ID        string                 `json:"id" bson:"_id"`
	ActorID   string                 `json:"actorId" bson:"actorId"`
	Action    AuditAction            `json:"action" bson:"action"`
	TargetID  string                 `json:"targetId" bson:"targetId"`
	Timestamp time.Time              `json:"timestamp" bson:"timestamp"`
	Meta      map[string]interface{} `json:"meta,omitempty" bson:"meta,omitempty"`
}

// Clone returns a copy of the entry with its own meta map
func (e *AuditEntry) Clone() *AuditEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Meta != nil {
		c.Meta = make(map[string]interface{}, len(e.Meta))
		for k, v := range e.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

// AuditFilter narrows an audit query. Zero values match everything.
type AuditFilter struct {
	ActorID  string        `json:"actorId,omitempty"`
	TargetID string        `json:"targetId,omitempty"`
	Actions  []AuditAction `json:"actions,omitempty"`
	Since    time.Time     `json:"since,omitempty"` // Inclusive
	Until    time.Time     `json:"until,omitempty"` // Exclusive
	Limit    int           `json:"limit,omitempty"`
}

// Matches reports whether e passes the filter. Limit is not considered.
func (f AuditFilter) Matches(e *AuditEntry) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.TargetID != "" && e.TargetID != f.TargetID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	return true
}
