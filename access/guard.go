package access

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/audit"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// Guard runs the evaluator in front of the record store and audits every decision.
// Ciphertext is released only on Allow.
type Guard struct {
	evaluator *Evaluator
	records   interfaces.RecordStore
	trail     *audit.Trail
	logger    zerolog.Logger
}

// NewGuard creates a guard over records
func NewGuard(evaluator *Evaluator, records interfaces.RecordStore, trail *audit.Trail) *Guard {
	return &Guard{
		evaluator: evaluator,
		records:   records,
		trail:     trail,
		logger:    log.With().Str("component", "access_guard").Logger(),
	}
}

// Check evaluates access to an owner's records without reading any of them.
// With a non-empty recordID the record is loaded and scoped; the decision is audited.
func (g *Guard) Check(ctx context.Context, requesterID, ownerID, recordID string) (Decision, error) {
	var record *types.Record
	target := ownerID
	if recordID != "" {
		r, err := g.records.GetRecord(ctx, recordID)
		if err != nil {
			return Decision{}, err
		}
		record = r
		target = recordID
	}

	decision, err := g.evaluator.CanAccess(ctx, requesterID, ownerID, record)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate access: %w", err)
	}
	if err := g.audit(ctx, requesterID, ownerID, target, recordID, decision); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// ReadRecord returns the record when requesterID may read it. Denials return a nil record and no error.
func (g *Guard) ReadRecord(ctx context.Context, requesterID, recordID string) (*types.Record, Decision, error) {
	record, err := g.records.GetRecord(ctx, recordID)
	if err != nil {
		return nil, Decision{}, err
	}

	decision, err := g.evaluator.CanAccess(ctx, requesterID, record.OwnerID, record)
	if err != nil {
		return nil, Decision{}, fmt.Errorf("failed to evaluate access: %w", err)
	}
	if err := g.audit(ctx, requesterID, record.OwnerID, recordID, recordID, decision); err != nil {
		return nil, Decision{}, err
	}
	if !decision.Allowed {
		return nil, decision, nil
	}
	return record, decision, nil
}

// ListRecords returns the owner's records visible to requesterID, newest first
func (g *Guard) ListRecords(ctx context.Context, requesterID, ownerID string) ([]*types.Record, Decision, error) {
	records, err := g.records.ListRecordsByOwner(ctx, ownerID)
	if err != nil {
		return nil, Decision{}, err
	}

	visible, decision, err := g.evaluator.Visible(ctx, requesterID, ownerID, records)
	if err != nil {
		return nil, Decision{}, fmt.Errorf("failed to evaluate access: %w", err)
	}
	if err := g.audit(ctx, requesterID, ownerID, ownerID, "", decision); err != nil {
		return nil, Decision{}, err
	}
	if !decision.Allowed {
		return nil, decision, nil
	}
	return visible, decision, nil
}

// audit appends access_verified or access_denied. Audit failure fails the read.
func (g *Guard) audit(ctx context.Context, requesterID, ownerID, targetID, recordID string, decision Decision) error {
	meta := map[string]interface{}{
		audit.MetaOwnerID: ownerID,
	}
	if recordID != "" {
		meta[audit.MetaRecordID] = recordID
	}

	action := types.ActionAccessVerified
	if decision.Allowed {
		if decision.Grant != nil {
			meta[audit.MetaPermissionID] = decision.Grant.ID
			meta[audit.MetaAccessType] = string(decision.Grant.AccessType)
		}
	} else {
		action = types.ActionAccessDenied
		meta[audit.MetaReason] = string(decision.Reason)
		g.logger.Warn().
			Str("requesterId", requesterID).
			Str("ownerId", ownerID).
			Str("targetId", targetID).
			Str("reason", string(decision.Reason)).
			Msg("Access denied")
	}

	if _, err := g.trail.Record(ctx, requesterID, action, targetID, meta); err != nil {
		return fmt.Errorf("failed to audit access decision: %w", err)
	}
	return nil
}
