package batchwriter_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store/batchwriter"
)

type fakeStore struct {
	mu       sync.Mutex
	batches  [][]store.Entity
	failNext bool
}

func (f *fakeStore) UpsertMany(_ context.Context, _ store.EntityKind, entities []store.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("boom")
	}
	f.batches = append(f.batches, entities)
	return nil
}

func (f *fakeStore) FindPage(context.Context, store.EntityKind, store.Filter, int, int) ([]store.Entity, error) {
	return nil, nil
}
func (f *fakeStore) FindByIDs(context.Context, store.EntityKind, []string) ([]store.Entity, error) {
	return nil, nil
}
func (f *fakeStore) DeleteMany(context.Context, store.EntityKind, store.Filter) (int64, error) {
	return 0, nil
}
func (f *fakeStore) Count(context.Context, store.EntityKind, store.Filter) (int64, error) { return 0, nil }
func (f *fakeStore) Ping(context.Context) error                                           { return nil }

func TestWriterFlushesOnBatchSize(t *testing.T) {
	fs := &fakeStore{}
	w := batchwriter.Open(context.Background(), fs, store.KindCFFile, batchwriter.WithBatchSize(2))

	w.Add(store.Entity{ID: "1"})
	w.Add(store.Entity{ID: "2"})
	w.Add(store.Entity{ID: "3"})

	require.NoError(t, w.Close())

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.batches, 2)
	assert.Len(t, fs.batches[0], 2)
	assert.Len(t, fs.batches[1], 1)
}

func TestWriterFlushesRemainingOnClose(t *testing.T) {
	fs := &fakeStore{}
	w := batchwriter.Open(context.Background(), fs, store.KindCFFile, batchwriter.WithBatchSize(100))
	w.Add(store.Entity{ID: "1"})
	require.NoError(t, w.Close())

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.batches, 1)
}

func TestWriterCloseReturnsFlushError(t *testing.T) {
	fs := &fakeStore{failNext: true}
	w := batchwriter.Open(context.Background(), fs, store.KindCFFile)
	w.Add(store.Entity{ID: "1"})

	err := w.Close()
	assert.Error(t, err)
}
