package curseforge_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/httpclient"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	cfsyncer "github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/curseforge"
	cf "github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/curseforge"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

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

func (m *memStore) FindPage(context.Context, store.EntityKind, store.Filter, int, int) ([]store.Entity, error) {
	return nil, nil
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
	excluded := map[string]struct{}{}
	for _, id := range filter.ExcludeIDs {
		excluded[id] = struct{}{}
	}
	excludedOwners := map[string]struct{}{}
	for _, id := range filter.ExcludeOwnerIDs {
		excludedOwners[id] = struct{}{}
	}
	var removed int64
	for id, e := range bucket {
		if filter.ProjectID != "" && e.ProjectID != filter.ProjectID {
			continue
		}
		if _, keep := excluded[id]; keep {
			continue
		}
		if len(excludedOwners) > 0 {
			if _, keep := excludedOwners[e.OwnerID]; keep {
				continue
			}
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

func (m *memStore) ids(kind store.EntityKind) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id := range m.data[kind] {
		out = append(out, id)
	}
	return out
}

// cfServer builds an httptest.Server serving GetMod + a paged GetModFiles
// sequence from fixed file id ranges, the way CF's real API pages files.
func cfServer(t *testing.T, modID int, totalFiles int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == fmt.Sprintf("/v1/mods/%d", modID):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": cf.Mod{ID: modID, Name: "test-mod"},
			})
		case r.URL.Path == fmt.Sprintf("/v1/mods/%d/files", modID):
			index := 0
			pageSize := 50
			fmt.Sscanf(r.URL.Query().Get("index"), "%d", &index)
			fmt.Sscanf(r.URL.Query().Get("pageSize"), "%d", &pageSize)

			end := index + pageSize
			if end > totalFiles {
				end = totalFiles
			}
			var files []cf.File
			for i := index; i < end; i++ {
				files = append(files, cf.File{ID: 1000 + i, ModID: modID, FileFingerprint: int64(5000 + i)})
			}
			resultCount := len(files)
			require.NoError(t, json.NewEncoder(w).Encode(cf.FilesResponse{
				Data:       files,
				Pagination: cf.Pagination{Index: index, PageSize: pageSize, ResultCount: resultCount, TotalCount: totalFiles},
			}))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
}

// TestSyncModPagedTraversalAndPrune exercises SyncMod's two-page file walk
// (51 files across a 50-file page boundary) and confirms a previously
// stored orphan file not present in the fresh list is pruned.
func TestSyncModPagedTraversalAndPrune(t *testing.T) {
	const modID = 500000
	server := cfServer(t, modID, 51)
	defer server.Close()

	s := newMemStore()
	require.NoError(t, s.UpsertMany(context.Background(), store.KindCFFile, []store.Entity{
		{ID: "999999", ProjectID: fmt.Sprint(modID)},
	}))

	adapter := cf.New(httpclient.New(nil, testLog()), server.URL)
	syncer := cfsyncer.New(adapter, s, testLog())

	detail, err := syncer.SyncMod(context.Background(), modID)
	require.NoError(t, err)
	assert.Equal(t, "test-mod", detail.Name)
	assert.Equal(t, 51, detail.VersionCount)

	files := s.ids(store.KindCFFile)
	assert.Len(t, files, 51)
	assert.NotContains(t, files, "999999")
}

// TestSyncModPrunesFingerprintsByOwningFileNotFingerprintID confirms
// Fingerprint pruning keys off the owning file's id, not off the
// Fingerprint record's own id (the fingerprint hash, a disjoint numeric
// space from file ids). A freshly-synced file's fingerprint must survive
// even though its hash never equals a file id, and a stale fingerprint
// whose owning file is gone must be pruned.
func TestSyncModPrunesFingerprintsByOwningFileNotFingerprintID(t *testing.T) {
	const modID = 500002
	server := cfServer(t, modID, 1)
	defer server.Close()

	s := newMemStore()
	require.NoError(t, s.UpsertMany(context.Background(), store.KindCFFingerprint, []store.Entity{
		{ID: "9999", ProjectID: fmt.Sprint(modID), OwnerID: "123456"},
	}))

	adapter := cf.New(httpclient.New(nil, testLog()), server.URL)
	syncer := cfsyncer.New(adapter, s, testLog())

	_, err := syncer.SyncMod(context.Background(), modID)
	require.NoError(t, err)

	fingerprints := s.ids(store.KindCFFingerprint)
	assert.Len(t, fingerprints, 1)
	assert.Equal(t, []string{"5000"}, fingerprints)
}

// TestSyncModEmptyFilesIsSuspect mirrors the Modrinth suspect case for
// CurseForge: the mod's own latestFiles claims files exist but the files
// endpoint returns none.
func TestSyncModEmptyFilesIsSuspect(t *testing.T) {
	const modID = 500001
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == fmt.Sprintf("/v1/mods/%d", modID):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": cf.Mod{ID: modID, Name: "suspect-mod", LatestFiles: []cf.File{{ID: 1}}},
			})
		case r.URL.Path == fmt.Sprintf("/v1/mods/%d/files", modID):
			require.NoError(t, json.NewEncoder(w).Encode(cf.FilesResponse{
				Data:       nil,
				Pagination: cf.Pagination{Index: 0, PageSize: 50, ResultCount: 0, TotalCount: 0},
			}))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := cf.New(httpclient.New(nil, testLog()), server.URL)
	syncer := cfsyncer.New(adapter, newMemStore(), testLog())

	_, err := syncer.SyncMod(context.Background(), modID)
	assert.Error(t, err)
}

func TestSyncModRejectsLegacyID(t *testing.T) {
	adapter := cf.New(httpclient.New(nil, testLog()), "http://unused.invalid")
	syncer := cfsyncer.New(adapter, newMemStore(), testLog())

	_, err := syncer.SyncMod(context.Background(), 42)
	assert.Error(t, err)
}

// TestSyncModSingleShotUsesOneRoundTrip confirms the single-shot strategy
// succeeds off the first oversized-page request when resultCount,
// totalCount and len(data) all agree.
func TestSyncModSingleShotUsesOneRoundTrip(t *testing.T) {
	const modID = 600000
	var fileRequests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case fmt.Sprintf("/v1/mods/%d", modID):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": cf.Mod{ID: modID, Name: "shot-mod"}})
		case fmt.Sprintf("/v1/mods/%d/files", modID):
			fileRequests++
			files := []cf.File{{ID: 1, ModID: modID, FileFingerprint: 11}, {ID: 2, ModID: modID, FileFingerprint: 12}}
			_ = json.NewEncoder(w).Encode(cf.FilesResponse{
				Data:       files,
				Pagination: cf.Pagination{ResultCount: 2, TotalCount: 2},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := cf.New(httpclient.New(nil, testLog()), server.URL)
	syncer := cfsyncer.New(adapter, newMemStore(), testLog())

	detail, err := syncer.SyncModSingleShot(context.Background(), modID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.VersionCount)
	assert.Equal(t, 1, fileRequests)
}

// TestSyncModConcurrentCallsCoalesce fires two concurrent SyncMod calls for
// the same id and confirms singleflight collapses them to one GetMod
// round trip.
func TestSyncModConcurrentCallsCoalesce(t *testing.T) {
	const modID = 700000
	var modRequests int32
	var mu sync.Mutex
	arrived := make(chan struct{})
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case fmt.Sprintf("/v1/mods/%d", modID):
			mu.Lock()
			modRequests++
			if modRequests == 1 {
				close(arrived)
			}
			mu.Unlock()
			<-release
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": cf.Mod{ID: modID, Name: "coalesced"}})
		case fmt.Sprintf("/v1/mods/%d/files", modID):
			_ = json.NewEncoder(w).Encode(cf.FilesResponse{Pagination: cf.Pagination{}})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := cf.New(httpclient.New(nil, testLog()), server.URL)
	syncer := cfsyncer.New(adapter, newMemStore(), testLog())

	results := make(chan error, 2)
	go func() {
		_, err := syncer.SyncMod(context.Background(), modID)
		results <- err
	}()

	// wait for the first caller to be blocked inside its upstream call, so
	// the second caller provably joins the in-flight singleflight entry.
	<-arrived
	go func() {
		_, err := syncer.SyncMod(context.Background(), modID)
		results <- err
	}()
	time.Sleep(100 * time.Millisecond)

	close(release)
	require.NoError(t, <-results)
	require.NoError(t, <-results)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, int(modRequests))
}
