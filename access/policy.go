package access

import (
	"time"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// DefaultRecentWindow is how far back a recent grant reaches
const DefaultRecentWindow = 30 * 24 * time.Hour

// DefaultPolicy maps access types onto records:
// full covers everything, labs covers lab records, recent covers records
// created within RecentWindow before now, and specific covers the listed record ids.
type DefaultPolicy struct {
	RecentWindow time.Duration
}

var _ interfaces.ScopePolicy = DefaultPolicy{}

// NewDefaultPolicy creates a policy with the given recent window, or DefaultRecentWindow when zero
func NewDefaultPolicy(recentWindow time.Duration) DefaultPolicy {
	if recentWindow <= 0 {
		recentWindow = DefaultRecentWindow
	}
	return DefaultPolicy{RecentWindow: recentWindow}
}

// Covers reports whether grant authorizes reading record at now
func (p DefaultPolicy) Covers(grant *types.Permission, record *types.Record, now time.Time) bool {
	if grant == nil || record == nil {
		return false
	}
	switch grant.AccessType {
	case types.AccessFull:
		return true
	case types.AccessLabs:
		return record.Category == types.CategoryLab
	case types.AccessRecent:
		window := p.RecentWindow
		if window <= 0 {
			window = DefaultRecentWindow
		}
		return !record.CreatedAt.Before(now.Add(-window))
	case types.AccessSpecific:
		return grant.CoversRecord(record.ID)
	}
	return false
}
