package checker_test

import (
	"context"
	"sync"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
)

// memStore is a minimal in-memory ObjectStore double shared by the checker
// tests, keyed by (kind, id) the same way sqlstore keys its tables.
type memStore struct {
	mu   sync.Mutex
	data map[store.EntityKind]map[string]store.Entity
}

func newMemStore() *memStore {
	return &memStore{data: map[store.EntityKind]map[string]store.Entity{}}
}

func (m *memStore) UpsertMany(_ context.Context, kind store.EntityKind, entities []store.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.data[kind]
	if !ok {
		bucket = map[string]store.Entity{}
		m.data[kind] = bucket
	}
	for _, e := range entities {
		bucket[e.ID] = e
	}
	return nil
}

func (m *memStore) FindPage(_ context.Context, kind store.EntityKind, _ store.Filter, _, _ int) ([]store.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Entity
	for _, e := range m.data[kind] {
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) FindByIDs(_ context.Context, kind store.EntityKind, ids []string) ([]store.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Entity
	for _, id := range ids {
		if e, ok := m.data[kind][id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) DeleteMany(_ context.Context, kind store.EntityKind, filter store.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.data[kind]
	var removed int64
	for id, e := range bucket {
		if len(filter.IDs) > 0 {
			match := false
			for _, want := range filter.IDs {
				if want == id {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if filter.ProjectID != "" && e.ProjectID != filter.ProjectID {
			continue
		}
		delete(bucket, id)
		removed++
	}
	return removed, nil
}

func (m *memStore) Count(_ context.Context, kind store.EntityKind, _ store.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data[kind])), nil
}

func (m *memStore) Ping(context.Context) error { return nil }
