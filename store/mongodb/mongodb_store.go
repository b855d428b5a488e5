// Package mongodb provides the MongoDB Store used in production deployments
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// Collection names
const (
	CollectionRecords     = "records"
	CollectionPermissions = "permissions"
	CollectionAuditLogs   = "audit_logs"
)

const defaultTimeout = 10 * time.Second

// MongoDBStore implements interfaces.Store on three MongoDB collections
type MongoDBStore struct {
	client      *mongo.Client // nil when the database was supplied by the caller
	db          *mongo.Database
	records     *mongo.Collection
	permissions *mongo.Collection
	audit       *mongo.Collection
	logger      zerolog.Logger
}

var _ interfaces.Store = (*MongoDBStore)(nil)

// NewMongoDBStore creates a store on an existing database handle. Close leaves the client open.
func NewMongoDBStore(db *mongo.Database) *MongoDBStore {
	return &MongoDBStore{
		db:          db,
		records:     db.Collection(CollectionRecords),
		permissions: db.Collection(CollectionPermissions),
		audit:       db.Collection(CollectionAuditLogs),
		logger:      log.With().Str("component", "mongodb_store").Str("database", db.Name()).Logger(),
	}
}

// Open connects to cfg.URI, verifies the connection and ensures indexes
func Open(ctx context.Context, cfg types.MongoConfig) (*MongoDBStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo database is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := NewMongoDBStore(client.Database(cfg.Database))
	s.client = client

	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s.logger.Info().Msg("MongoDB store opened")
	return s, nil
}

// EnsureIndexes creates the lookup indexes used by the list queries
func (s *MongoDBStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.records: {
			{Keys: append(bson.D{{Key: "ownerId", Value: 1}}, newestFirst("createdAt")...)},
		},
		s.permissions: {
			{Keys: append(bson.D{{Key: "ownerId", Value: 1}}, newestFirst("grantedAt")...)},
			{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "granteeId", Value: 1}, {Key: "status", Value: 1}}},
		},
		s.audit: {
			{Keys: append(bson.D{{Key: "actorId", Value: 1}}, newestFirst("timestamp")...)},
			{Keys: append(bson.D{{Key: "targetId", Value: 1}}, newestFirst("timestamp")...)},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return types.NewStorageError("create indexes on "+coll.Name(), err)
		}
	}
	return nil
}

// InsertRecord persists a new record
func (s *MongoDBStore) InsertRecord(ctx context.Context, record *types.Record) error {
	if _, err := s.records.InsertOne(ctx, record); err != nil {
		return types.NewStorageError("insert record", err)
	}
	return nil
}

// GetRecord returns types.ErrNotFound when no record has the id
func (s *MongoDBStore) GetRecord(ctx context.Context, id string) (*types.Record, error) {
	var record types.Record
	err := s.records.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, types.NewStorageError("get record", err)
	}
	return &record, nil
}

// ListRecordsByOwner returns the owner's records, newest first
func (s *MongoDBStore) ListRecordsByOwner(ctx context.Context, ownerID string) ([]*types.Record, error) {
	cursor, err := s.records.Find(ctx,
		bson.M{"ownerId": ownerID},
		options.Find().SetSort(newestFirst("createdAt")),
	)
	if err != nil {
		return nil, types.NewStorageError("list records", err)
	}
	defer cursor.Close(ctx)

	result := make([]*types.Record, 0)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, types.NewStorageError("decode records", err)
	}
	return result, nil
}

// CountRecords returns the number of stored records
func (s *MongoDBStore) CountRecords(ctx context.Context) (int64, error) {
	n, err := s.records.CountDocuments(ctx, bson.D{})
	return n, types.NewStorageError("count records", err)
}

// InsertPermission persists a new grant
func (s *MongoDBStore) InsertPermission(ctx context.Context, permission *types.Permission) error {
	if _, err := s.permissions.InsertOne(ctx, permission); err != nil {
		return types.NewStorageError("insert permission", err)
	}
	return nil
}

// GetPermission returns types.ErrNotFound when no grant has the id
func (s *MongoDBStore) GetPermission(ctx context.Context, id string) (*types.Permission, error) {
	var permission types.Permission
	err := s.permissions.FindOne(ctx, bson.M{"_id": id}).Decode(&permission)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, types.NewStorageError("get permission", err)
	}
	return &permission, nil
}

// MarkRevoked is a conditional update on status active, so concurrent revokes have one winner
func (s *MongoDBStore) MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error {
	res, err := s.permissions.UpdateOne(ctx,
		bson.M{"_id": id, "status": types.PermissionActive},
		bson.M{"$set": bson.M{
			"status":    types.PermissionRevoked,
			"revokedAt": revokedAt,
		}},
	)
	if err != nil {
		return types.NewStorageError("revoke permission", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	if _, err := s.GetPermission(ctx, id); err != nil {
		return err
	}
	s.logger.Debug().Str("permissionId", id).Msg("Revoke lost to an earlier revocation")
	return types.ErrAlreadyRevoked
}

func (s *MongoDBStore) findPermissions(ctx context.Context, filter bson.M) ([]*types.Permission, error) {
	cursor, err := s.permissions.Find(ctx, filter,
		options.Find().SetSort(newestFirst("grantedAt")),
	)
	if err != nil {
		return nil, types.NewStorageError("list permissions", err)
	}
	defer cursor.Close(ctx)

	result := make([]*types.Permission, 0)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, types.NewStorageError("decode permissions", err)
	}
	return result, nil
}

// ListPermissionsByOwner returns every grant issued by the owner, newest first
func (s *MongoDBStore) ListPermissionsByOwner(ctx context.Context, ownerID string) ([]*types.Permission, error) {
	return s.findPermissions(ctx, bson.M{"ownerId": ownerID})
}

// ListPermissionsByPair returns every grant from owner to grantee, newest first
func (s *MongoDBStore) ListPermissionsByPair(ctx context.Context, ownerID, granteeID string) ([]*types.Permission, error) {
	return s.findPermissions(ctx, bson.M{"ownerId": ownerID, "granteeId": granteeID})
}

// CountPermissions returns the number of stored grants
func (s *MongoDBStore) CountPermissions(ctx context.Context) (int64, error) {
	n, err := s.permissions.CountDocuments(ctx, bson.D{})
	return n, types.NewStorageError("count permissions", err)
}

// AppendEntry persists a new audit entry. The collection is only ever inserted into.
func (s *MongoDBStore) AppendEntry(ctx context.Context, entry *types.AuditEntry) error {
	if _, err := s.audit.InsertOne(ctx, entry); err != nil {
		return types.NewStorageError("append audit entry", err)
	}
	return nil
}

// newestFirst sorts by field descending. Equal values (BSON dates keep only milliseconds)
// fall back to _id descending so the order is stable across queries.
func newestFirst(field string) bson.D {
	return bson.D{{Key: field, Value: -1}, {Key: "_id", Value: -1}}
}

// auditFilterDocument translates an AuditFilter into a query document
func auditFilterDocument(filter types.AuditFilter) bson.M {
	doc := bson.M{}
	if filter.ActorID != "" {
		doc["actorId"] = filter.ActorID
	}
	if filter.TargetID != "" {
		doc["targetId"] = filter.TargetID
	}
	if len(filter.Actions) > 0 {
		doc["action"] = bson.M{"$in": filter.Actions}
	}
	window := bson.M{}
	if !filter.Since.IsZero() {
		window["$gte"] = filter.Since
	}
	if !filter.Until.IsZero() {
		window["$lt"] = filter.Until
	}
	if len(window) > 0 {
		doc["timestamp"] = window
	}
	return doc
}

// ListEntries returns matching entries, newest first
func (s *MongoDBStore) ListEntries(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error) {
	opts := options.Find().SetSort(newestFirst("timestamp"))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.audit.Find(ctx, auditFilterDocument(filter), opts)
	if err != nil {
		return nil, types.NewStorageError("list audit entries", err)
	}
	defer cursor.Close(ctx)

	result := make([]*types.AuditEntry, 0)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, types.NewStorageError("decode audit entries", err)
	}
	for _, entry := range result {
		if entry.Meta == nil {
			entry.Meta = make(map[string]interface{})
		}
	}
	return result, nil
}

// CountEntries returns the number of stored entries
func (s *MongoDBStore) CountEntries(ctx context.Context) (int64, error) {
	n, err := s.audit.CountDocuments(ctx, bson.D{})
	return n, types.NewStorageError("count audit entries", err)
}

// Close disconnects the client when the store opened it
func (s *MongoDBStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return types.NewStorageError("disconnect", err)
	}
	s.logger.Debug().Msg("MongoDB store closed")
	return nil
}
