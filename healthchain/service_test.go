package healthchain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/access"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/config"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/kms"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/store/memory"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

var (
	t0      = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	patient = types.Principal{ID: "P1", Role: types.RolePatient}
	other   = types.Principal{ID: "P2", Role: types.RolePatient}
	doctor  = types.Principal{ID: "D1", Role: types.RoleDoctor}
	admin   = types.Principal{ID: "A1", Role: types.RoleAdmin}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testSealer(t *testing.T) *kms.Sealer {
	t.Helper()
	p, err := kms.NewAeadProvider(context.Background(), kms.DeriveKey("test passphrase", ""), "test")
	require.NoError(t, err)
	return kms.NewSealer(p)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.Store, *testClock) {
	t.Helper()
	clock := &testClock{now: t0}
	backend := memory.NewStore()
	opts = append([]Option{WithClock(clock.Now), WithSealer(testSealer(t))}, opts...)
	svc := NewService(backend, config.DefaultConfig(), opts...)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc, backend, clock
}

func TestRoleChecks(t *testing.T) {
	svc, backend, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{name: "admin cannot grant", call: func() error {
			_, err := svc.Grant(ctx, admin, "D1", types.AccessFull, 1)
			return err
		}},
		{name: "doctor cannot grant", call: func() error {
			_, err := svc.Grant(ctx, doctor, "P1", types.AccessFull, 1)
			return err
		}},
		{name: "admin cannot store", call: func() error {
			_, err := svc.PutSealed(ctx, admin, "P1", []byte("c"), []byte("n"), "")
			return err
		}},
		{name: "patient cannot view stats", call: func() error {
			_, err := svc.Stats(ctx, patient)
			return err
		}},
		{name: "unknown role", call: func() error {
			_, _, err := svc.ListRecords(ctx, types.Principal{ID: "X", Role: "nurse"}, "P1")
			return err
		}},
		{name: "missing principal id", call: func() error {
			_, err := svc.ListGrants(ctx, types.Principal{Role: types.RolePatient})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), types.ErrUnauthorizedRole)
		})
	}

	count, err := backend.CountEntries(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "rejected calls must not reach the audit trail")
}

func TestShareReadRevokeFlow(t *testing.T) {
	svc, backend, clock := newTestService(t)
	ctx := context.Background()

	rec, err := svc.PutPlaintext(ctx, patient, "", []byte("blood panel"), types.CategoryLab)
	require.NoError(t, err)
	assert.Equal(t, "P1", rec.OwnerID)
	assert.NotContains(t, string(rec.Ciphertext), "blood panel")

	plaintext, decision, err := svc.OpenRecord(ctx, doctor, rec.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, access.ReasonNoActiveGrant, decision.Reason)
	assert.Nil(t, plaintext)

	grant, err := svc.Grant(ctx, patient, "D1", types.AccessLabs, 2)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	plaintext, decision, err = svc.OpenRecord(ctx, doctor, rec.ID)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	assert.Equal(t, []byte("blood panel"), plaintext)

	_, err = svc.Revoke(ctx, patient, grant.ID)
	require.NoError(t, err)

	_, decision, err = svc.ReadRecord(ctx, doctor, rec.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// Role is carried into the audit meta
	entries, err := backend.ListEntries(ctx, types.AuditFilter{Actions: []types.AuditAction{types.ActionAccessGranted}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "patient", entries[0].Meta["role"])
}

func TestOwnerCannotRevokeOthersGrant(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, patient, "D1", types.AccessFull, 1)
	require.NoError(t, err)

	_, err = svc.Revoke(ctx, other, grant.ID)
	assert.ErrorIs(t, err, types.ErrForbidden)
}

func TestDoctorAuthorsRecordWithGrant(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.PutSealed(ctx, doctor, "P1", []byte("dx"), []byte("n"), types.CategoryDiagnosis)
	assert.ErrorIs(t, err, types.ErrForbidden)

	_, err = svc.Grant(ctx, patient, "D1", types.AccessFull, 24)
	require.NoError(t, err)

	rec, err := svc.PutSealed(ctx, doctor, "P1", []byte("dx"), []byte("n"), types.CategoryDiagnosis)
	require.NoError(t, err)
	assert.Equal(t, "P1", rec.OwnerID)
	assert.Equal(t, "D1", rec.AuthorID)
	assert.Equal(t, types.CategoryDiagnosis, rec.Category)

	// The owner sees the doctor's record
	records, decision, err := svc.ListRecords(ctx, patient, "")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)
}

func TestPatientStoresOnlyOwnRecords(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.PutSealed(context.Background(), patient, "P2", []byte("c"), nil, "")
	assert.ErrorIs(t, err, types.ErrForbidden)
}

func TestGrantDurationDefaults(t *testing.T) {
	svc, backend, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, patient, "D1", "", 0)
	require.NoError(t, err)
	assert.Equal(t, types.AccessFull, grant.AccessType)
	assert.Equal(t, t0.Add(24*time.Hour), grant.ExpiresAt)

	_, err = svc.Grant(ctx, patient, "D1", types.AccessFull, config.DefaultMaxGrantDurationHours+1)
	assert.ErrorIs(t, err, types.ErrInvalidDuration)

	_, err = svc.Grant(ctx, patient, "D1", types.AccessFull, -1)
	assert.ErrorIs(t, err, types.ErrInvalidDuration)

	count, err := backend.CountPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSpecificGrantThroughService(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	shared, err := svc.PutSealed(ctx, patient, "", []byte("a"), nil, "")
	require.NoError(t, err)
	private, err := svc.PutSealed(ctx, patient, "", []byte("b"), nil, "")
	require.NoError(t, err)

	_, err = svc.Grant(ctx, patient, "D1", types.AccessSpecific, 4, shared.ID)
	require.NoError(t, err)

	records, decision, err := svc.ListRecords(ctx, doctor, "P1")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Len(t, records, 1)
	assert.Equal(t, shared.ID, records[0].ID)

	decision, err = svc.CheckAccess(ctx, doctor, "P1", private.ID)
	require.NoError(t, err)
	assert.Equal(t, access.ReasonScopeMismatch, decision.Reason)
}

func TestAuditEntriesScoping(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, patient, "D1", types.AccessFull, 1)
	require.NoError(t, err)
	_, err = svc.Grant(ctx, other, "D1", types.AccessFull, 1)
	require.NoError(t, err)

	own, err := svc.AuditEntries(ctx, patient, types.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "P1", own[0].ActorID)

	_, err = svc.AuditEntries(ctx, patient, types.AuditFilter{ActorID: "P2"})
	assert.ErrorIs(t, err, types.ErrForbidden)

	all, err := svc.AuditEntries(ctx, admin, types.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestVerifyRecordThroughService(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.PutSealed(ctx, patient, "", []byte("c"), []byte("n"), "")
	require.NoError(t, err)

	ok, err := svc.VerifyRecord(ctx, patient, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.VerifyRecord(ctx, doctor, rec.ID)
	assert.ErrorIs(t, err, types.ErrForbidden)

	ok, err = svc.VerifyRecord(ctx, admin, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.VerifyRecord(ctx, patient, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStats(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.PutSealed(ctx, patient, "", []byte("c"), nil, "")
	require.NoError(t, err)
	_, err = svc.Grant(ctx, patient, "D1", types.AccessFull, 1)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Records)
	assert.Equal(t, int64(1), stats.Permissions)
	assert.Equal(t, int64(2), stats.AuditEntries)
	assert.Equal(t, t0, stats.GeneratedAt)
}

func TestPlaintextWithoutSealer(t *testing.T) {
	svc := NewService(memory.NewStore(), nil)
	ctx := context.Background()

	_, err := svc.PutPlaintext(ctx, patient, "", []byte("x"), "")
	assert.ErrorIs(t, err, ErrSealerNotConfigured)

	_, _, err = svc.OpenRecord(ctx, patient, "any")
	assert.ErrorIs(t, err, ErrSealerNotConfigured)
}

func TestCheckAccessRejectsSelfClaimedOwner(t *testing.T) {
	svc, backend, _ := newTestService(t)
	ctx := context.Background()
	stranger := types.Principal{ID: "D2", Role: types.RoleDoctor}

	rec, err := svc.PutSealed(ctx, patient, "", []byte("c"), []byte("n"), "")
	require.NoError(t, err)

	decision, err := svc.CheckAccess(ctx, stranger, "D2", rec.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, access.ReasonOwnerMismatch, decision.Reason)

	entries, err := backend.ListEntries(ctx, types.AuditFilter{ActorID: "D2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.ActionAccessDenied, entries[0].Action)
	assert.Equal(t, rec.ID, entries[0].TargetID)
}

type countingSealer struct {
	sealed int
}

func (c *countingSealer) Seal(ctx context.Context, ownerID string, plaintext []byte) ([]byte, []byte, error) {
	c.sealed++
	return append([]byte(nil), plaintext...), []byte("nonce"), nil
}

func (c *countingSealer) Open(ctx context.Context, ownerID string, ciphertext, nonce []byte) ([]byte, error) {
	return ciphertext, nil
}

func TestPutPlaintextAuthorizesBeforeSealing(t *testing.T) {
	sealer := &countingSealer{}
	svc, _, _ := newTestService(t, WithSealer(sealer))
	ctx := context.Background()

	_, err := svc.PutPlaintext(ctx, admin, "P1", []byte("x"), "")
	assert.ErrorIs(t, err, types.ErrUnauthorizedRole)

	_, err = svc.PutPlaintext(ctx, patient, "P2", []byte("x"), "")
	assert.ErrorIs(t, err, types.ErrForbidden)

	_, err = svc.PutPlaintext(ctx, doctor, "P1", []byte("x"), "")
	assert.ErrorIs(t, err, types.ErrForbidden)
	assert.Zero(t, sealer.sealed)

	rec, err := svc.PutPlaintext(ctx, patient, "", []byte("x"), types.CategoryLab)
	require.NoError(t, err)
	assert.Equal(t, 1, sealer.sealed)
	assert.Equal(t, types.CategoryLab, rec.Category)
}
