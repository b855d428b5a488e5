// Package access decides whether a requester may read an owner's records.
// The Evaluator is read-only; the Guard writes the audit entry for each decision.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// Reason explains a deny decision
type Reason string

const (
	// ReasonNoActiveGrant means the owner has no active, unexpired grant to the requester
	ReasonNoActiveGrant Reason = "NoActiveGrant"

	// ReasonScopeMismatch means grants exist but none covers the record
	ReasonScopeMismatch Reason = "ScopeMismatch"

	// ReasonOwnerMismatch means the record does not belong to the claimed owner
	ReasonOwnerMismatch Reason = "OwnerMismatch"
)

// Decision is the outcome of an access check
type Decision struct {
	Allowed bool              `json:"allowed"`
	Reason  Reason            `json:"reason,omitempty"`
	Grant   *types.Permission `json:"grant,omitempty"` // Covering grant; nil for owners and denials
}

// Allow returns an allow decision backed by grant, which may be nil
func Allow(grant *types.Permission) Decision {
	return Decision{Allowed: true, Grant: grant}
}

// Deny returns a deny decision with reason
func Deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

func (d Decision) String() string {
	if d.Allowed {
		return "Allow"
	}
	return fmt.Sprintf("Deny(%s)", d.Reason)
}

// Evaluator decides access from the grant ledger and a scope policy
type Evaluator struct {
	grants interfaces.GrantReader
	policy interfaces.ScopePolicy
	clock  func() time.Time
}

// NewEvaluator creates an evaluator. A nil policy lets any active grant cover any record.
func NewEvaluator(grants interfaces.GrantReader, policy interfaces.ScopePolicy) *Evaluator {
	return &Evaluator{
		grants: grants,
		policy: policy,
		clock:  time.Now,
	}
}

// WithClock overrides the clock passed to the scope policy
func (e *Evaluator) WithClock(clock func() time.Time) *Evaluator {
	e.clock = clock
	return e
}

// CanAccess decides whether requesterID may read record, owned by ownerID.
// Owners always see their own records; a record that is not ownerID's is denied first.
// A nil record checks only for an active grant.
func (e *Evaluator) CanAccess(ctx context.Context, requesterID, ownerID string, record *types.Record) (Decision, error) {
	if record != nil && record.OwnerID != ownerID {
		return Deny(ReasonOwnerMismatch), nil
	}
	if requesterID == ownerID {
		return Allow(nil), nil
	}

	grants, err := e.grants.ActiveGrantsFor(ctx, ownerID, requesterID)
	if err != nil {
		return Decision{}, err
	}
	if len(grants) == 0 {
		return Deny(ReasonNoActiveGrant), nil
	}
	if record == nil {
		return Allow(grants[0]), nil
	}

	if grant := e.covering(grants, record, e.clock().UTC()); grant != nil {
		return Allow(grant), nil
	}
	return Deny(ReasonScopeMismatch), nil
}

// Visible filters records down to those requesterID may read, using one grant lookup.
// The decision is Allow when at least one record is visible or the list is empty.
func (e *Evaluator) Visible(ctx context.Context, requesterID, ownerID string, records []*types.Record) ([]*types.Record, Decision, error) {
	if requesterID == ownerID {
		return records, Allow(nil), nil
	}

	grants, err := e.grants.ActiveGrantsFor(ctx, ownerID, requesterID)
	if err != nil {
		return nil, Decision{}, err
	}
	if len(grants) == 0 {
		return nil, Deny(ReasonNoActiveGrant), nil
	}

	now := e.clock().UTC()
	visible := make([]*types.Record, 0, len(records))
	for _, r := range records {
		if r.OwnerID != ownerID {
			continue
		}
		if e.covering(grants, r, now) != nil {
			visible = append(visible, r)
		}
	}
	if len(visible) == 0 && len(records) > 0 {
		return visible, Deny(ReasonScopeMismatch), nil
	}
	return visible, Allow(grants[0]), nil
}

func (e *Evaluator) covering(grants []*types.Permission, record *types.Record, now time.Time) *types.Permission {
	for _, g := range grants {
		if e.policy == nil || e.policy.Covers(g, record, now) {
			return g
		}
	}
	return nil
}
