package healthchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/access"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/audit"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/config"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/integrity"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/ledger"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/record"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// ErrSealerNotConfigured is returned by plaintext operations when no sealer provider is configured
var ErrSealerNotConfigured = errors.New("record sealer not configured")

// Service is the role-checked entry point to records, grants, access decisions and the audit trail
type Service struct {
	store     interfaces.Store
	trail     *audit.Trail
	records   *record.Store
	ledger    *ledger.Ledger
	evaluator *access.Evaluator
	guard     *access.Guard
	sealer    interfaces.Sealer
	grants    types.GrantsConfig
	clock     func() time.Time
	logger    zerolog.Logger
}

type serviceOptions struct {
	clock  func() time.Time
	sealer interfaces.Sealer
	policy interfaces.ScopePolicy
}

// Option customizes NewService
type Option func(*serviceOptions)

// WithClock injects the clock shared by every component
func WithClock(clock func() time.Time) Option {
	return func(o *serviceOptions) {
		o.clock = clock
	}
}

// WithSealer enables plaintext put and open operations
func WithSealer(sealer interfaces.Sealer) Option {
	return func(o *serviceOptions) {
		o.sealer = sealer
	}
}

// WithPolicy replaces the default scope policy
func WithPolicy(policy interfaces.ScopePolicy) Option {
	return func(o *serviceOptions) {
		o.policy = policy
	}
}

// NewService wires the components over store. A nil cfg uses config.DefaultConfig.
func NewService(store interfaces.Store, cfg *types.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	o := serviceOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.policy == nil {
		o.policy = access.NewDefaultPolicy(time.Duration(cfg.Policy.RecentWindowHours) * time.Hour)
	}

	trail := audit.NewTrail(store).WithClock(o.clock)
	grantLedger := ledger.NewLedger(store, trail).WithClock(o.clock)
	evaluator := access.NewEvaluator(grantLedger, o.policy).WithClock(o.clock)

	s := &Service{
		store:     store,
		trail:     trail,
		records:   record.NewStore(store, trail, integrity.NewHasher()).WithClock(o.clock),
		ledger:    grantLedger,
		evaluator: evaluator,
		guard:     access.NewGuard(evaluator, store, trail),
		sealer:    o.sealer,
		grants:    cfg.Grants,
		clock:     o.clock,
		logger:    log.With().Str("component", "healthchain_service").Logger(),
	}

	s.logger.Info().
		Bool("sealer", s.sealer != nil).
		Float64("defaultGrantHours", s.grants.DefaultDurationHours).
		Float64("maxGrantHours", s.grants.MaxDurationHours).
		Msg("HealthChain service initialized")
	return s
}

// Now returns the service clock's current time
func (s *Service) Now() time.Time {
	return s.clock()
}

// authorize checks the principal's capability and tags ctx with its role for auditing
func (s *Service) authorize(ctx context.Context, p types.Principal, c types.Capability) (context.Context, error) {
	if p.ID == "" {
		return ctx, fmt.Errorf("%w: principal id is required", types.ErrUnauthorizedRole)
	}
	if !p.Can(c) {
		s.logger.Warn().
			Str("principalId", p.ID).
			Str("role", string(p.Role)).
			Str("capability", string(c)).
			Msg("Role not authorized")
		return ctx, fmt.Errorf("%w: %s cannot %s", types.ErrUnauthorizedRole, p.Role, c)
	}
	return audit.WithRole(ctx, string(p.Role)), nil
}

// PutSealed stores an already sealed payload for ownerID.
// Patients store their own records; other authors need an active grant from the owner.
func (s *Service) PutSealed(ctx context.Context, p types.Principal, ownerID string, ciphertext, nonce []byte, category types.RecordCategory) (*types.Record, error) {
	ctx, ownerID, opts, err := s.authorizePut(ctx, p, ownerID, category)
	if err != nil {
		return nil, err
	}
	return s.records.Put(ctx, ownerID, ciphertext, nonce, opts...)
}

// PutPlaintext seals plaintext for ownerID and stores it.
// Nothing reaches the sealer until the principal may store for ownerID.
func (s *Service) PutPlaintext(ctx context.Context, p types.Principal, ownerID string, plaintext []byte, category types.RecordCategory) (*types.Record, error) {
	if s.sealer == nil {
		return nil, ErrSealerNotConfigured
	}
	ctx, ownerID, opts, err := s.authorizePut(ctx, p, ownerID, category)
	if err != nil {
		return nil, err
	}
	ciphertext, nonce, err := s.sealer.Seal(ctx, ownerID, plaintext)
	if err != nil {
		return nil, err
	}
	return s.records.Put(ctx, ownerID, ciphertext, nonce, opts...)
}

// authorizePut resolves the owner and the record options for a store by p
func (s *Service) authorizePut(ctx context.Context, p types.Principal, ownerID string, category types.RecordCategory) (context.Context, string, []record.PutOption, error) {
	ctx, err := s.authorize(ctx, p, types.CapStoreRecords)
	if err != nil {
		return ctx, "", nil, err
	}
	if ownerID == "" {
		ownerID = p.ID
	}

	var opts []record.PutOption
	if category != "" {
		opts = append(opts, record.WithCategory(category))
	}
	if ownerID != p.ID {
		if p.Role == types.RolePatient {
			return ctx, "", nil, fmt.Errorf("%w: patients store only their own records", types.ErrForbidden)
		}
		decision, err := s.evaluator.CanAccess(ctx, p.ID, ownerID, nil)
		if err != nil {
			return ctx, "", nil, err
		}
		if !decision.Allowed {
			return ctx, "", nil, fmt.Errorf("%w: no active grant from %s (%s)", types.ErrForbidden, ownerID, decision.Reason)
		}
		opts = append(opts, record.WithAuthor(p.ID))
	}
	return ctx, ownerID, opts, nil
}

// ReadRecord returns the record when the principal may read it. Denials return a nil record and no error.
func (s *Service) ReadRecord(ctx context.Context, p types.Principal, recordID string) (*types.Record, access.Decision, error) {
	ctx, err := s.authorize(ctx, p, types.CapReadRecords)
	if err != nil {
		return nil, access.Decision{}, err
	}
	return s.guard.ReadRecord(ctx, p.ID, recordID)
}

// OpenRecord reads and unseals a record. Denials return nil plaintext and no error.
func (s *Service) OpenRecord(ctx context.Context, p types.Principal, recordID string) ([]byte, access.Decision, error) {
	if s.sealer == nil {
		return nil, access.Decision{}, ErrSealerNotConfigured
	}
	rec, decision, err := s.ReadRecord(ctx, p, recordID)
	if err != nil || !decision.Allowed {
		return nil, decision, err
	}
	plaintext, err := s.sealer.Open(ctx, rec.OwnerID, rec.Ciphertext, rec.Nonce)
	if err != nil {
		return nil, decision, err
	}
	return plaintext, decision, nil
}

// ListRecords returns ownerID's records visible to the principal, newest first
func (s *Service) ListRecords(ctx context.Context, p types.Principal, ownerID string) ([]*types.Record, access.Decision, error) {
	ctx, err := s.authorize(ctx, p, types.CapReadRecords)
	if err != nil {
		return nil, access.Decision{}, err
	}
	if ownerID == "" {
		ownerID = p.ID
	}
	return s.guard.ListRecords(ctx, p.ID, ownerID)
}

// CheckAccess evaluates and audits whether the principal may read ownerID's records
func (s *Service) CheckAccess(ctx context.Context, p types.Principal, ownerID, recordID string) (access.Decision, error) {
	ctx, err := s.authorize(ctx, p, types.CapReadRecords)
	if err != nil {
		return access.Decision{}, err
	}
	return s.guard.Check(ctx, p.ID, ownerID, recordID)
}

// VerifyRecord re-hashes a stored record. Admins verify any record; others need read access.
func (s *Service) VerifyRecord(ctx context.Context, p types.Principal, recordID string) (bool, error) {
	ctx, err := s.authorize(ctx, p, types.CapVerifyRecords)
	if err != nil {
		return false, err
	}
	if p.Role != types.RoleAdmin {
		rec, err := s.records.Get(ctx, recordID)
		if err != nil {
			return false, err
		}
		decision, err := s.evaluator.CanAccess(ctx, p.ID, rec.OwnerID, rec)
		if err != nil {
			return false, err
		}
		if !decision.Allowed {
			return false, fmt.Errorf("%w: %s", types.ErrForbidden, decision.Reason)
		}
	}
	return s.records.Verify(ctx, p.ID, recordID)
}

// GrantDuration applies the configured default to zero and enforces the configured maximum
func (s *Service) GrantDuration(hours float64) (float64, error) {
	if hours == 0 {
		hours = s.grants.DefaultDurationHours
	}
	if s.grants.MaxDurationHours > 0 && hours > s.grants.MaxDurationHours {
		return 0, fmt.Errorf("%w: %v hours exceeds the maximum of %v", types.ErrInvalidDuration, hours, s.grants.MaxDurationHours)
	}
	return hours, nil
}

// Grant issues a permission from the principal to granteeID.
// Zero durationHours uses the configured default.
func (s *Service) Grant(ctx context.Context, p types.Principal, granteeID string, accessType types.AccessType, durationHours float64, recordIDs ...string) (*types.Permission, error) {
	ctx, err := s.authorize(ctx, p, types.CapManageGrants)
	if err != nil {
		return nil, err
	}
	hours, err := s.GrantDuration(durationHours)
	if err != nil {
		return nil, err
	}
	var opts []ledger.GrantOption
	if len(recordIDs) > 0 {
		opts = append(opts, ledger.WithRecords(recordIDs...))
	}
	return s.ledger.Grant(ctx, p.ID, granteeID, accessType, hours, opts...)
}

// Revoke revokes one of the principal's grants
func (s *Service) Revoke(ctx context.Context, p types.Principal, permissionID string) (*types.Permission, error) {
	ctx, err := s.authorize(ctx, p, types.CapManageGrants)
	if err != nil {
		return nil, err
	}
	return s.ledger.Revoke(ctx, p.ID, permissionID)
}

// ListGrants returns every grant the principal issued, newest first
func (s *Service) ListGrants(ctx context.Context, p types.Principal) ([]*types.Permission, error) {
	ctx, err := s.authorize(ctx, p, types.CapViewGrants)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListForOwner(ctx, p.ID)
}

// ActiveGrants returns the principal's active grants to granteeID
func (s *Service) ActiveGrants(ctx context.Context, p types.Principal, granteeID string) ([]*types.Permission, error) {
	ctx, err := s.authorize(ctx, p, types.CapViewGrants)
	if err != nil {
		return nil, err
	}
	return s.ledger.ActiveGrantsFor(ctx, p.ID, granteeID)
}

// AuditEntries queries the trail, newest first.
// Without the view-all capability the query is restricted to entries the principal acted in.
func (s *Service) AuditEntries(ctx context.Context, p types.Principal, filter types.AuditFilter) ([]*types.AuditEntry, error) {
	ctx, err := s.authorize(ctx, p, types.CapViewOwnAudit)
	if err != nil {
		return nil, err
	}
	if !p.Can(types.CapViewAllAudit) {
		if filter.ActorID != "" && filter.ActorID != p.ID {
			return nil, fmt.Errorf("%w: audit entries of other actors", types.ErrForbidden)
		}
		filter.ActorID = p.ID
	}
	return s.trail.GetEvents(ctx, filter)
}

// Stats counts records, grants and audit entries
func (s *Service) Stats(ctx context.Context, p types.Principal) (*types.Stats, error) {
	ctx, err := s.authorize(ctx, p, types.CapViewStatistics)
	if err != nil {
		return nil, err
	}

	records, err := s.store.CountRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	permissions, err := s.store.CountPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count permissions: %w", err)
	}
	entries, err := s.store.CountEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}

	return &types.Stats{
		Records:      records,
		Permissions:  permissions,
		AuditEntries: entries,
		GeneratedAt:  s.clock().UTC(),
	}, nil
}

// Close releases the underlying store
func (s *Service) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}
