package types

import (
	"math"
	"time"
)

// MaxExpiry is the latest expiry every store can persist: nanosecond Unix time in an int64
var MaxExpiry = time.Unix(0, math.MaxInt64).UTC()

// AccessType scopes which of an owner's records a grant covers
type AccessType string

const (
	AccessFull     AccessType = "full"
	AccessRecent   AccessType = "recent"
	AccessSpecific AccessType = "specific"
	AccessLabs     AccessType = "labs"
)

// Valid reports whether a is one of the known access types
func (a AccessType) Valid() bool {
	switch a {
	case AccessFull, AccessRecent, AccessSpecific, AccessLabs:
		return true
	}
	return false
}

// PermissionStatus is the stored status of a grant. Expiry is derived, never stored.
type PermissionStatus string

const (
	// PermissionActive is the initial status of every grant
	PermissionActive PermissionStatus = "active"

	// PermissionRevoked is terminal
	PermissionRevoked PermissionStatus = "revoked"
)

// PermissionState is the validity of a grant at a point in time
type PermissionState string

const (
	StateActive  PermissionState = "active"
	StateRevoked PermissionState = "revoked"
	StateExpired PermissionState = "expired"
)

// Permission is a time-bounded access grant from an owner to a grantee
type Permission struct {
	ID         string           `json:"id" bson:"_id"`
	OwnerID    string           `json:"ownerId" bson:"ownerId"`
	GranteeID  string           `json:"granteeId" bson:"granteeId"`
	AccessType AccessType       `json:"accessType" bson:"accessType"`
	RecordIDs  []string         `json:"recordIds,omitempty" bson:"recordIds,omitempty"` // Only meaningful for AccessSpecific
	GrantedAt  time.Time        `json:"grantedAt" bson:"grantedAt"`
	ExpiresAt  time.Time        `json:"expiresAt" bson:"expiresAt"`
	Status     PermissionStatus `json:"status" bson:"status"`
	RevokedAt  *time.Time       `json:"revokedAt,omitempty" bson:"revokedAt,omitempty"`
}

// ValidAt reports whether the grant is active and unexpired at now
func (p *Permission) ValidAt(now time.Time) bool {
	return p.Status == PermissionActive && now.Before(p.ExpiresAt)
}

// StateAt derives the grant's state at now. Revocation takes precedence over expiry.
func (p *Permission) StateAt(now time.Time) PermissionState {
	switch {
	case p.Status == PermissionRevoked:
		return StateRevoked
	case !now.Before(p.ExpiresAt):
		return StateExpired
	default:
		return StateActive
	}
}

// CoversRecord reports whether recordID is listed on the grant
func (p *Permission) CoversRecord(recordID string) bool {
	for _, id := range p.RecordIDs {
		if id == recordID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the permission
func (p *Permission) Clone() *Permission {
	if p == nil {
		return nil
	}
	c := *p
	if p.RecordIDs != nil {
		c.RecordIDs = append([]string(nil), p.RecordIDs...)
	}
	if p.RevokedAt != nil {
		t := *p.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
