package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/config"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/httpclient"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	cfsyncer "github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/curseforge"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/drain"
	cf "github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/curseforge"
	mr "github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/modrinth"
)

func testQueueLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeSetStore is an in-memory store.SetStore backing the miss-queues
// exercised by the drain-queue job handlers.
type fakeSetStore struct {
	mu      sync.Mutex
	members map[string][]string
}

func newFakeSetStore(members map[string][]string) *fakeSetStore {
	return &fakeSetStore{members: members}
}

func (f *fakeSetStore) Exists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[name]
	return ok, nil
}

func (f *fakeSetStore) Members(_ context.Context, name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[name], nil
}

func (f *fakeSetStore) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, name)
	return nil
}

// fakeObjectStore is a minimal store.ObjectStore that reports every id as
// unknown, so drain.Drain's "already stored" filter never strips results.
type fakeObjectStore struct{}

func (fakeObjectStore) UpsertMany(context.Context, store.EntityKind, []store.Entity) error {
	return nil
}
func (fakeObjectStore) FindPage(context.Context, store.EntityKind, store.Filter, int, int) ([]store.Entity, error) {
	return nil, nil
}
func (fakeObjectStore) FindByIDs(context.Context, store.EntityKind, []string) ([]store.Entity, error) {
	return nil, nil
}
func (fakeObjectStore) DeleteMany(context.Context, store.EntityKind, store.Filter) (int64, error) {
	return 0, nil
}
func (fakeObjectStore) Count(context.Context, store.EntityKind, store.Filter) (int64, error) {
	return 0, nil
}
func (fakeObjectStore) Ping(context.Context) error { return nil }

// TestResolveCFFileIDsMapsToOwningModID confirms the cf.fileids resolver
// returns the mod id each file belongs to, not the file id itself.
func TestResolveCFFileIDsMapsToOwningModID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []cf.File{{ID: 111, ModID: 42}, {ID: 222, ModID: 43}},
		})
	}))
	defer server.Close()

	a := &App{CF: cfComponents{Adapter: cf.New(httpclient.New(nil, testQueueLog()), server.URL)}}

	resolved, err := a.resolveCFFileIDs(context.Background(), []string{"111", "222"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"42", "43"}, resolved)
}

// TestResolveCFFingerprintsMapsToOwningModID confirms the cf.fingerprints
// resolver reads exactMatches[].file.modId, not the fingerprint itself.
func TestResolveCFFingerprintsMapsToOwningModID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cf.FingerprintsResponse{
			ExactMatches: []cf.FingerprintMatch{
				{ID: 9999, File: cf.File{ID: 1000, ModID: 55}},
			},
		})
	}))
	defer server.Close()

	a := &App{CF: cfComponents{Adapter: cf.New(httpclient.New(nil, testQueueLog()), server.URL)}}

	resolved, err := a.resolveCFFingerprints(context.Background(), []string{"9999"})
	require.NoError(t, err)
	assert.Equal(t, []string{"55"}, resolved)
}

// TestJobCurseforgeDrainQueueCombinesAllThreeQueues confirms cf.modids,
// cf.fileids and cf.fingerprints are all drained and deduped into a
// single downstream sync pass, not just cf.modids.
func TestJobCurseforgeDrainQueueCombinesAllThreeQueues(t *testing.T) {
	var syncedMu sync.Mutex
	var synced []int

	const (
		modA = 300001
		modB = 300002
		modC = 300003
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/mods":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []cf.Mod{{ID: modA}}})
		case r.URL.Path == "/v1/mods/files":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []cf.File{{ID: 500, ModID: modB}}})
		case r.URL.Path == fmt.Sprintf("/v1/fingerprints/%d", cf.GameID):
			_ = json.NewEncoder(w).Encode(cf.FingerprintsResponse{
				ExactMatches: []cf.FingerprintMatch{{File: cf.File{ID: 600, ModID: modC}}},
			})
		case r.URL.Path == fmt.Sprintf("/v1/mods/%d", modA), r.URL.Path == fmt.Sprintf("/v1/mods/%d", modB), r.URL.Path == fmt.Sprintf("/v1/mods/%d", modC):
			var id int
			fmt.Sscanf(r.URL.Path, "/v1/mods/%d", &id)
			syncedMu.Lock()
			synced = append(synced, id)
			syncedMu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": cf.Mod{ID: id, Name: "m"}})
		case r.URL.Path == fmt.Sprintf("/v1/mods/%d/files", modA), r.URL.Path == fmt.Sprintf("/v1/mods/%d/files", modB), r.URL.Path == fmt.Sprintf("/v1/mods/%d/files", modC):
			_ = json.NewEncoder(w).Encode(cf.FilesResponse{})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := cf.New(httpclient.New(nil, testQueueLog()), server.URL)
	sets := newFakeSetStore(map[string][]string{
		string(store.QueueCFModIDs):       {fmt.Sprint(modA)},
		string(store.QueueCFFileIDs):      {"500"},
		string(store.QueueCFFingerprints): {"777"},
	})

	a := &App{
		Log:    testQueueLog(),
		Config: &config.Config{MaxWorkers: 4},
		CF: cfComponents{
			Adapter: adapter,
			Syncer:  cfsyncer.New(adapter, fakeObjectStore{}, testQueueLog()),
			Drainer: drain.New(sets, fakeObjectStore{}, store.KindCFMod, 1000, testQueueLog()),
		},
	}

	require.NoError(t, a.jobCurseforgeDrainQueue(context.Background()))

	syncedMu.Lock()
	defer syncedMu.Unlock()
	assert.ElementsMatch(t, []int{modA, modB, modC}, synced)
}

// TestResolveMRVersionIDsMapsToOwningProjectID confirms the mr.versionids
// resolver returns each version's owning project id.
func TestResolveMRVersionIDsMapsToOwningProjectID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]mr.Version{{ID: "v1", ProjectID: "pA"}, {ID: "v2", ProjectID: "pB"}})
	}))
	defer server.Close()

	a := &App{MR: mrComponents{Adapter: mr.New(httpclient.New(nil, testQueueLog()), server.URL)}}

	resolved, err := a.resolveMRVersionIDs(context.Background(), []string{"v1", "v2"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pA", "pB"}, resolved)
}

// TestResolveMRHashesMapsToOwningProjectID confirms the sha1/sha512 hash
// resolvers key off the matched version's project id, not the hash.
func TestResolveMRHashesMapsToOwningProjectID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]mr.Version{
			"deadbeef": {ID: "v1", ProjectID: "pC"},
		})
	}))
	defer server.Close()

	a := &App{MR: mrComponents{Adapter: mr.New(httpclient.New(nil, testQueueLog()), server.URL)}}

	resolve := a.resolveMRHashes(mr.AlgorithmSHA1)
	resolved, err := resolve(context.Background(), []string{"deadbeef"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pC"}, resolved)
}
