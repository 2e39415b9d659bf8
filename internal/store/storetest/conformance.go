// Package storetest is a table-driven conformance suite for ObjectStore
// implementations (sqlstore's tests run it), testing the storage layer
// against its public contract rather than its internals.
package storetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
)

// Run exercises objectStore against the common ObjectStore contract for
// a single EntityKind, which the caller must ensure is already
// migrated/created.
func Run(t *testing.T, objectStore store.ObjectStore, kind store.EntityKind) {
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, objectStore.Ping(ctx))
	})

	t.Run("upsert and find by ids", func(t *testing.T) {
		entities := []store.Entity{
			{ID: "a", ProjectID: "p1", Payload: []byte(`{"v":1}`)},
			{ID: "b", ProjectID: "p1", Payload: []byte(`{"v":2}`)},
		}
		require.NoError(t, objectStore.UpsertMany(ctx, kind, entities))

		found, err := objectStore.FindByIDs(ctx, kind, []string{"a", "b", "missing"})
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		entity := store.Entity{ID: "c", ProjectID: "p1", Payload: []byte(`{"v":1}`)}
		require.NoError(t, objectStore.UpsertMany(ctx, kind, []store.Entity{entity}))
		require.NoError(t, objectStore.UpsertMany(ctx, kind, []store.Entity{entity}))

		count, err := objectStore.Count(ctx, kind, store.Filter{IDs: []string{"c"}})
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})

	t.Run("upsert overwrites payload", func(t *testing.T) {
		require.NoError(t, objectStore.UpsertMany(ctx, kind, []store.Entity{{ID: "d", ProjectID: "p1", Payload: []byte(`{"v":1}`)}}))
		require.NoError(t, objectStore.UpsertMany(ctx, kind, []store.Entity{{ID: "d", ProjectID: "p1", Payload: []byte(`{"v":2}`)}}))

		found, err := objectStore.FindByIDs(ctx, kind, []string{"d"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.JSONEq(t, `{"v":2}`, string(found[0].Payload))
	})

	t.Run("find page filters by project", func(t *testing.T) {
		require.NoError(t, objectStore.UpsertMany(ctx, kind, []store.Entity{
			{ID: "e1", ProjectID: "p2", Payload: []byte(`{}`)},
			{ID: "e2", ProjectID: "p2", Payload: []byte(`{}`)},
			{ID: "e3", ProjectID: "p3", Payload: []byte(`{}`)},
		}))

		page, err := objectStore.FindPage(ctx, kind, store.Filter{ProjectID: "p2"}, 0, 0)
		require.NoError(t, err)
		ids := idsOf(page)
		sort.Strings(ids)
		assert.Equal(t, []string{"e1", "e2"}, ids)
	})

	t.Run("delete many prunes orphans", func(t *testing.T) {
		require.NoError(t, objectStore.UpsertMany(ctx, kind, []store.Entity{
			{ID: "f1", ProjectID: "p4", Payload: []byte(`{}`)},
			{ID: "f2", ProjectID: "p4", Payload: []byte(`{}`)},
		}))

		deleted, err := objectStore.DeleteMany(ctx, kind, store.Filter{ProjectID: "p4", ExcludeIDs: []string{"f1"}})
		require.NoError(t, err)
		assert.EqualValues(t, 1, deleted)

		remaining, err := objectStore.FindPage(ctx, kind, store.Filter{ProjectID: "p4"}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"f1"}, idsOf(remaining))
	})

	t.Run("delete many prunes by owner id, not record id", func(t *testing.T) {
		require.NoError(t, objectStore.UpsertMany(ctx, kind, []store.Entity{
			{ID: "fp1", ProjectID: "p5", OwnerID: "file1", Payload: []byte(`{}`)},
			{ID: "fp2", ProjectID: "p5", OwnerID: "file2", Payload: []byte(`{}`)},
		}))

		deleted, err := objectStore.DeleteMany(ctx, kind, store.Filter{ProjectID: "p5", ExcludeOwnerIDs: []string{"file1"}})
		require.NoError(t, err)
		assert.EqualValues(t, 1, deleted)

		remaining, err := objectStore.FindPage(ctx, kind, store.Filter{ProjectID: "p5"}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"fp1"}, idsOf(remaining))
	})
}

func idsOf(entities []store.Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	return ids
}
