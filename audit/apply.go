package audit

import (
	"context"
	"fmt"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// Apply makes a mutation durable together with its audit entry.
//
// When backend implements interfaces.Atomic the entry and mutate run in one unit of work.
// Otherwise the entry is appended first and mutate runs afterwards, so a failure leaves
// an audited-but-not-applied trail rather than an unaudited change.
func Apply[S any](ctx context.Context, t *Trail, backend S, entry *types.AuditEntry, mutate func(ctx context.Context, store S) error) error {
	if atomic, ok := any(backend).(interfaces.Atomic); ok {
		return atomic.RunAtomic(ctx, func(ctx context.Context, tx interfaces.Store) error {
			bound, ok := any(tx).(S)
			if !ok {
				return fmt.Errorf("atomic store %T does not satisfy %T", tx, backend)
			}
			if err := t.Bind(tx).LogEvent(ctx, entry); err != nil {
				return err
			}
			return mutate(ctx, bound)
		})
	}

	if err := t.LogEvent(ctx, entry); err != nil {
		return err
	}
	if err := mutate(ctx, backend); err != nil {
		t.logger.Error().
			Err(err).
			Str("auditId", entry.ID).
			Str("action", string(entry.Action)).
			Str("targetId", entry.TargetID).
			Msg("Audited operation was not applied")
		return err
	}
	return nil
}
