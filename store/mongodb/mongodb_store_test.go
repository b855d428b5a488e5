package mongodb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// openTestStore connects to HEALTHCHAIN_TEST_MONGO_URI using a throwaway database
func openTestStore(t *testing.T) *MongoDBStore {
	t.Helper()
	uri := os.Getenv("HEALTHCHAIN_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("HEALTHCHAIN_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, types.MongoConfig{
		URI:      uri,
		Database: fmt.Sprintf("healthchain_test_%s", uuid.New().String()[:8]),
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestOpenValidatesConfig(t *testing.T) {
	_, err := Open(context.Background(), types.MongoConfig{Database: "x"})
	assert.Error(t, err)

	_, err = Open(context.Background(), types.MongoConfig{URI: "mongodb://localhost:27017"})
	assert.Error(t, err)
}

func TestNewestFirstBreaksTiesOnID(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}, newestFirst("timestamp"))
}

func TestAuditFilterDocument(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)

	tests := []struct {
		name   string
		filter types.AuditFilter
		want   bson.M
	}{
		{name: "empty", filter: types.AuditFilter{}, want: bson.M{}},
		{
			name:   "actor and target",
			filter: types.AuditFilter{ActorID: "p1", TargetID: "r1"},
			want:   bson.M{"actorId": "p1", "targetId": "r1"},
		},
		{
			name:   "actions",
			filter: types.AuditFilter{Actions: []types.AuditAction{types.ActionAccessDenied}},
			want:   bson.M{"action": bson.M{"$in": []types.AuditAction{types.ActionAccessDenied}}},
		},
		{
			name:   "window",
			filter: types.AuditFilter{Since: since, Until: until},
			want:   bson.M{"timestamp": bson.M{"$gte": since, "$lt": until}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auditFilterDocument(tt.filter))
		})
	}
}

func TestMongoRecordsAndPermissions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.InsertRecord(ctx, &types.Record{
		ID: "r1", OwnerID: "p1", Category: types.CategoryLab,
		Ciphertext: []byte{1, 2}, Nonce: []byte{3}, ContentHash: "h", CreatedAt: now,
	}))
	got, err := s.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, got.Ciphertext)

	_, err = s.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, s.InsertPermission(ctx, &types.Permission{
		ID: "perm1", OwnerID: "p1", GranteeID: "d1", AccessType: types.AccessFull,
		GrantedAt: now, ExpiresAt: now.Add(time.Hour), Status: types.PermissionActive,
	}))

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.MarkRevoked(ctx, "perm1", now.Add(time.Minute))
		}()
	}
	wg.Wait()
	close(errs)
	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, types.ErrAlreadyRevoked)
		}
	}
	assert.Equal(t, 1, wins)
	assert.ErrorIs(t, s.MarkRevoked(ctx, "missing", now), types.ErrNotFound)

	pair, err := s.ListPermissionsByPair(ctx, "p1", "d1")
	require.NoError(t, err)
	require.Len(t, pair, 1)
	assert.Equal(t, types.PermissionRevoked, pair[0].Status)
}

func TestMongoAuditEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for i, action := range []types.AuditAction{types.ActionRecordAdded, types.ActionAccessGranted, types.ActionAccessDenied} {
		require.NoError(t, s.AppendEntry(ctx, &types.AuditEntry{
			ID: uuid.New().String(), ActorID: "p1", Action: action, TargetID: "t",
			Timestamp: now.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := s.ListEntries(ctx, types.AuditFilter{ActorID: "p1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.ActionAccessDenied, entries[0].Action)
	assert.NotNil(t, entries[0].Meta)

	n, err := s.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMongoEqualTimestampsOrderByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for _, id := range []string{"e2", "e1", "e3"} {
		require.NoError(t, s.AppendEntry(ctx, &types.AuditEntry{
			ID: id, ActorID: "p1", Action: types.ActionAccessVerified, TargetID: "t",
			Timestamp: now,
		}))
	}

	for i := 0; i < 3; i++ {
		entries, err := s.ListEntries(ctx, types.AuditFilter{ActorID: "p1"})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, []string{"e3", "e2", "e1"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
	}
}
