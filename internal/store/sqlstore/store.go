package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
)

// Store is a gorm-backed ObjectStore: every method builds a *gorm.DB
// query scoped to one physical table (tableNameFor(kind)) and translates
// driver errors through InterpretDBError at the storage boundary.
type Store struct {
	db *gorm.DB
}

// Open wires a Store against an already-connected *gorm.DB (built by the
// caller via gorm.Open with whichever dialector config.StoreDriver
// selects: postgres, mysql, or sqlite for tests) and ensures every known
// EntityKind has a backing table.
func Open(db *gorm.DB) (*Store, error) {
	s := &Store{db: db}
	for _, kind := range allKinds {
		if err := db.Table(tableNameFor(kind)).AutoMigrate(&Record{}); err != nil {
			return nil, fmt.Errorf("sqlstore: migrate table for %s: %w", kind, err)
		}
	}
	return s, nil
}

var allKinds = []store.EntityKind{
	store.KindCFMod, store.KindCFFile, store.KindCFFingerprint, store.KindCFCategory,
	store.KindMRProject, store.KindMRVersion, store.KindMRCategory, store.KindMRLoader, store.KindMRGameVersion,
}

func tableNameFor(kind store.EntityKind) string {
	return string(kind) + "s"
}

func (s *Store) table(ctx context.Context, kind store.EntityKind) *gorm.DB {
	return s.db.WithContext(ctx).Table(tableNameFor(kind))
}

// UpsertMany writes entities as a single batched INSERT with
// clause.OnConflict, so repeated writes of the same entities are
// idempotent.
func (s *Store) UpsertMany(ctx context.Context, kind store.EntityKind, entities []store.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	records := make([]Record, 0, len(entities))
	for _, e := range entities {
		records = append(records, Record{ID: e.ID, ProjectID: e.ProjectID, OwnerID: e.OwnerID, Object: e.Payload})
	}
	result := s.table(ctx, kind).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"project_id", "owner_id", "object", "synced_at"}),
	}).Create(&records)
	return InterpretDBError(string(kind), result.Error)
}

func applyFilter(db *gorm.DB, filter store.Filter) *gorm.DB {
	if filter.ProjectID != "" {
		db = db.Where("project_id = ?", filter.ProjectID)
	}
	if len(filter.IDs) > 0 {
		db = db.Where("id IN ?", filter.IDs)
	}
	if len(filter.ExcludeIDs) > 0 {
		db = db.Where("id NOT IN ?", filter.ExcludeIDs)
	}
	if len(filter.ExcludeOwnerIDs) > 0 {
		db = db.Where("owner_id NOT IN ?", filter.ExcludeOwnerIDs)
	}
	return db
}

// FindPage returns up to limit records matching filter, skipping skip.
func (s *Store) FindPage(ctx context.Context, kind store.EntityKind, filter store.Filter, skip, limit int) ([]store.Entity, error) {
	var records []Record
	db := applyFilter(s.table(ctx, kind), filter).Offset(skip)
	if limit > 0 {
		db = db.Limit(limit)
	}
	if result := db.Find(&records); result.Error != nil {
		return nil, InterpretDBError(string(kind), result.Error)
	}
	return toEntities(records), nil
}

// FindByIDs returns the records in ids that exist, in no particular
// order; missing ids are simply absent from the result.
func (s *Store) FindByIDs(ctx context.Context, kind store.EntityKind, ids []string) ([]store.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var records []Record
	if result := s.table(ctx, kind).Where("id IN ?", ids).Find(&records); result.Error != nil {
		return nil, InterpretDBError(string(kind), result.Error)
	}
	return toEntities(records), nil
}

// DeleteMany deletes every record matching filter and returns the count
// removed, used by the syncers' orphan prunes and the checker's deletion
// sweep.
func (s *Store) DeleteMany(ctx context.Context, kind store.EntityKind, filter store.Filter) (int64, error) {
	result := applyFilter(s.table(ctx, kind), filter).Delete(&Record{})
	if result.Error != nil {
		return 0, InterpretDBError(string(kind), result.Error)
	}
	return result.RowsAffected, nil
}

// Count returns the number of records matching filter.
func (s *Store) Count(ctx context.Context, kind store.EntityKind, filter store.Filter) (int64, error) {
	var count int64
	if result := applyFilter(s.table(ctx, kind), filter).Count(&count); result.Error != nil {
		return 0, InterpretDBError(string(kind), result.Error)
	}
	return count, nil
}

// Ping verifies the underlying connection is reachable; startup aborts
// when it fails.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toEntities(records []Record) []store.Entity {
	entities := make([]store.Entity, 0, len(records))
	for _, r := range records {
		entities = append(entities, store.Entity{ID: r.ID, ProjectID: r.ProjectID, OwnerID: r.OwnerID, Payload: r.Object})
	}
	return entities
}

// InterpretDBError translates a raw gorm/driver error into a sentinel
// ErrNotFound where applicable, so callers never branch on driver error
// types.
func InterpretDBError(kind string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("sqlstore: %s: %w", kind, ErrNotFound)
	}
	return fmt.Errorf("sqlstore: %s: %w", kind, err)
}

// ErrNotFound is returned when a Get-style lookup matches nothing.
var ErrNotFound = errors.New("sqlstore: record not found")
