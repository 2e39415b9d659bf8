// Package mongostore is a go.mongodb.org/mongo-driver-backed
// ObjectStore: one collection per entity kind, ReplaceOne(upsert: true)
// keyed on _id.
package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
)

// Store is a mongo-driver ObjectStore.
type Store struct {
	db *mongo.Database
}

// Open wires a Store against an already-connected mongo.Database.
func Open(db *mongo.Database) *Store {
	return &Store{db: db}
}

type document struct {
	ID        string   `bson:"_id"`
	ProjectID string   `bson:"project_id,omitempty"`
	OwnerID   string   `bson:"owner_id,omitempty"`
	Payload   bson.Raw `bson:"payload"`
}

func (s *Store) collection(kind store.EntityKind) *mongo.Collection {
	return s.db.Collection(string(kind))
}

// UpsertMany writes entities via a ReplaceOne(upsert: true) per entity.
// Each write is independently idempotent by _id.
func (s *Store) UpsertMany(ctx context.Context, kind store.EntityKind, entities []store.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	coll := s.collection(kind)
	for _, e := range entities {
		doc := document{ID: e.ID, ProjectID: e.ProjectID, OwnerID: e.OwnerID, Payload: bson.Raw(e.Payload)}
		_, err := coll.ReplaceOne(ctx, bson.M{"_id": e.ID}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("mongostore: upsert %s/%s: %w", kind, e.ID, err)
		}
	}
	return nil
}

func filterQuery(filter store.Filter) bson.M {
	query := bson.M{}
	if filter.ProjectID != "" {
		query["project_id"] = filter.ProjectID
	}
	if len(filter.IDs) > 0 {
		query["_id"] = bson.M{"$in": filter.IDs}
	}
	if len(filter.ExcludeIDs) > 0 {
		query["_id"] = bson.M{"$nin": filter.ExcludeIDs}
	}
	if len(filter.ExcludeOwnerIDs) > 0 {
		query["owner_id"] = bson.M{"$nin": filter.ExcludeOwnerIDs}
	}
	return query
}

// FindPage returns up to limit documents matching filter, skipping skip.
func (s *Store) FindPage(ctx context.Context, kind store.EntityKind, filter store.Filter, skip, limit int) ([]store.Entity, error) {
	opts := options.Find().SetSkip(int64(skip))
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := s.collection(kind).Find(ctx, filterQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: find %s: %w", kind, err)
	}
	defer cursor.Close(ctx)
	return decodeAll(ctx, cursor)
}

// FindByIDs returns the documents in ids that exist.
func (s *Store) FindByIDs(ctx context.Context, kind store.EntityKind, ids []string) ([]store.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.collection(kind).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("mongostore: find by ids %s: %w", kind, err)
	}
	defer cursor.Close(ctx)
	return decodeAll(ctx, cursor)
}

// DeleteMany deletes every document matching filter.
func (s *Store) DeleteMany(ctx context.Context, kind store.EntityKind, filter store.Filter) (int64, error) {
	result, err := s.collection(kind).DeleteMany(ctx, filterQuery(filter))
	if err != nil {
		return 0, fmt.Errorf("mongostore: delete %s: %w", kind, err)
	}
	return result.DeletedCount, nil
}

// Count returns the number of documents matching filter.
func (s *Store) Count(ctx context.Context, kind store.EntityKind, filter store.Filter) (int64, error) {
	count, err := s.collection(kind).CountDocuments(ctx, filterQuery(filter))
	if err != nil {
		return 0, fmt.Errorf("mongostore: count %s: %w", kind, err)
	}
	return count, nil
}

// Ping verifies the underlying connection is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]store.Entity, error) {
	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	entities := make([]store.Entity, 0, len(docs))
	for _, d := range docs {
		entities = append(entities, store.Entity{ID: d.ID, ProjectID: d.ProjectID, OwnerID: d.OwnerID, Payload: []byte(d.Payload)})
	}
	return entities, nil
}
