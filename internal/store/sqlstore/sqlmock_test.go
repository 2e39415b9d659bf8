package sqlstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
)

// mockStore builds a Store over a sqlmock connection without running
// Open's migrations, so each test asserts exactly the statements its own
// call produces.
func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	return &Store{db: db}, mock
}

// TestUpsertManyGeneratesOnConflictStatement pins the upsert shape: one
// batched INSERT carrying every entity, with the duplicate-key update
// path that makes repeated syncs idempotent.
func TestUpsertManyGeneratesOnConflictStatement(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO .cf_mods. .*ON DUPLICATE KEY UPDATE`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.UpsertMany(context.Background(), store.KindCFMod, []store.Entity{
		{ID: "946010", Payload: []byte(`{"id":946010}`)},
		{ID: "946011", Payload: []byte(`{"id":946011}`)},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestDeleteManyGeneratesNotInPrune pins the orphan-prune shape of
// ProjectSync step 4: scoped to the owning project, excluding the fresh
// id set.
func TestDeleteManyGeneratesNotInPrune(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM .cf_files. WHERE project_id = .* AND id NOT IN`).
		WithArgs("946010", "f1", "f2").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	deleted, err := s.DeleteMany(context.Background(), store.KindCFFile, store.Filter{
		ProjectID:  "946010",
		ExcludeIDs: []string{"f1", "f2"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
