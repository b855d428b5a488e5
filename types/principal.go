package types

import "time"

// Role represents the role of an authenticated identity
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Capability is an operation a role may be allowed to perform
type Capability string

const (
	CapStoreRecords   Capability = "records:store"
	CapReadRecords    Capability = "records:read"
	CapVerifyRecords  Capability = "records:verify"
	CapManageGrants   Capability = "grants:manage"
	CapViewGrants     Capability = "grants:view"
	CapViewOwnAudit   Capability = "audit:view_own"
	CapViewAllAudit   Capability = "audit:view_all"
	CapViewStatistics Capability = "stats:view"
)

var roleCapabilities = map[Role][]Capability{
	RolePatient: {CapStoreRecords, CapReadRecords, CapVerifyRecords, CapManageGrants, CapViewGrants, CapViewOwnAudit},
	RoleDoctor:  {CapStoreRecords, CapReadRecords, CapVerifyRecords, CapViewOwnAudit},
	RoleAdmin:   {CapVerifyRecords, CapViewOwnAudit, CapViewAllAudit, CapViewStatistics},
}

// Principal is the authenticated caller of an operation
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Can reports whether the principal's role grants capability c
func (p Principal) Can(c Capability) bool {
	for _, have := range roleCapabilities[p.Role] {
		if have == c {
			return true
		}
	}
	return false
}

// Stats holds counts across the ledger's collections
type Stats struct {
	Records      int64     `json:"records" bson:"records"`
	Permissions  int64     `json:"permissions" bson:"permissions"`
	AuditEntries int64     `json:"auditEntries" bson:"auditEntries"`
	GeneratedAt  time.Time `json:"generatedAt" bson:"generatedAt"`
}
