package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// staticGrants serves a fixed grant list
type staticGrants struct {
	grants []*types.Permission
	err    error
	calls  int
}

func (s *staticGrants) ActiveGrantsFor(ctx context.Context, ownerID, granteeID string) ([]*types.Permission, error) {
	s.calls++
	return s.grants, s.err
}

var evalNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newEvaluator(grants *staticGrants) *Evaluator {
	return NewEvaluator(grants, NewDefaultPolicy(DefaultRecentWindow)).WithClock(func() time.Time { return evalNow })
}

func TestOwnerAlwaysAllowed(t *testing.T) {
	grants := &staticGrants{err: errors.New("must not be called")}
	e := newEvaluator(grants)

	for _, record := range []*types.Record{nil, {ID: "r1", OwnerID: "P1", Category: types.CategoryLab}} {
		d, err := e.CanAccess(context.Background(), "P1", "P1", record)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, "Allow", d.String())
	}
	assert.Zero(t, grants.calls)
}

func TestSelfClaimedOwnerDeniedForOthersRecord(t *testing.T) {
	grants := &staticGrants{err: errors.New("must not be called")}
	e := newEvaluator(grants)

	d, err := e.CanAccess(context.Background(), "D2", "D2", &types.Record{ID: "r1", OwnerID: "P1", Category: types.CategoryLab})
	require.NoError(t, err)
	assert.Equal(t, Deny(ReasonOwnerMismatch), d)
	assert.Zero(t, grants.calls)
}

func TestCanAccess(t *testing.T) {
	labRecord := &types.Record{ID: "r1", OwnerID: "P1", Category: types.CategoryLab, CreatedAt: evalNow.Add(-time.Hour)}
	noteRecord := &types.Record{ID: "r2", OwnerID: "P1", Category: types.CategoryGeneral, CreatedAt: evalNow.Add(-time.Hour)}
	labsGrant := &types.Permission{ID: "g-labs", AccessType: types.AccessLabs}
	fullGrant := &types.Permission{ID: "g-full", AccessType: types.AccessFull}

	tests := []struct {
		name      string
		grants    []*types.Permission
		owner     string
		record    *types.Record
		want      Decision
		wantGrant string
	}{
		{name: "no grant", grants: nil, owner: "P1", record: labRecord, want: Deny(ReasonNoActiveGrant)},
		{name: "scope mismatch", grants: []*types.Permission{labsGrant}, owner: "P1", record: noteRecord, want: Deny(ReasonScopeMismatch)},
		{name: "scope match", grants: []*types.Permission{labsGrant}, owner: "P1", record: labRecord, want: Decision{Allowed: true}, wantGrant: "g-labs"},
		{name: "union of grants", grants: []*types.Permission{labsGrant, fullGrant}, owner: "P1", record: noteRecord, want: Decision{Allowed: true}, wantGrant: "g-full"},
		{name: "owner mismatch", grants: []*types.Permission{fullGrant}, owner: "P2", record: labRecord, want: Deny(ReasonOwnerMismatch)},
		{name: "grant check only", grants: []*types.Permission{labsGrant}, owner: "P1", record: nil, want: Decision{Allowed: true}, wantGrant: "g-labs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEvaluator(&staticGrants{grants: tt.grants})
			d, err := e.CanAccess(context.Background(), "D1", tt.owner, tt.record)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Allowed, d.Allowed)
			assert.Equal(t, tt.want.Reason, d.Reason)
			if tt.wantGrant != "" {
				require.NotNil(t, d.Grant)
				assert.Equal(t, tt.wantGrant, d.Grant.ID)
			}
		})
	}
}

func TestCanAccessNilPolicy(t *testing.T) {
	e := NewEvaluator(&staticGrants{grants: []*types.Permission{{ID: "g", AccessType: types.AccessLabs}}}, nil)
	d, err := e.CanAccess(context.Background(), "D1", "P1", &types.Record{ID: "r", OwnerID: "P1", Category: types.CategoryGeneral})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCanAccessPropagatesStorageError(t *testing.T) {
	e := newEvaluator(&staticGrants{err: types.NewStorageError("list permissions", errors.New("timeout"))})
	_, err := e.CanAccess(context.Background(), "D1", "P1", nil)
	assert.ErrorIs(t, err, types.ErrStorage)
}

func TestVisible(t *testing.T) {
	records := []*types.Record{
		{ID: "r1", OwnerID: "P1", Category: types.CategoryLab},
		{ID: "r2", OwnerID: "P1", Category: types.CategoryGeneral},
		{ID: "r3", OwnerID: "P1", Category: types.CategoryLab},
	}

	t.Run("owner sees all", func(t *testing.T) {
		visible, d, err := newEvaluator(&staticGrants{}).Visible(context.Background(), "P1", "P1", records)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Len(t, visible, 3)
	})

	t.Run("labs grant filters", func(t *testing.T) {
		grants := &staticGrants{grants: []*types.Permission{{ID: "g", AccessType: types.AccessLabs}}}
		visible, d, err := newEvaluator(grants).Visible(context.Background(), "D1", "P1", records)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		require.Len(t, visible, 2)
		assert.Equal(t, "r1", visible[0].ID)
		assert.Equal(t, "r3", visible[1].ID)
		assert.Equal(t, 1, grants.calls)
	})

	t.Run("no grant", func(t *testing.T) {
		visible, d, err := newEvaluator(&staticGrants{}).Visible(context.Background(), "D1", "P1", records)
		require.NoError(t, err)
		assert.Equal(t, Deny(ReasonNoActiveGrant), d)
		assert.Empty(t, visible)
	})

	t.Run("nothing in scope", func(t *testing.T) {
		grants := &staticGrants{grants: []*types.Permission{{ID: "g", AccessType: types.AccessSpecific, RecordIDs: []string{"other"}}}}
		_, d, err := newEvaluator(grants).Visible(context.Background(), "D1", "P1", records)
		require.NoError(t, err)
		assert.Equal(t, Deny(ReasonScopeMismatch), d)
		assert.Equal(t, "Deny(ScopeMismatch)", d.String())
	})
}
