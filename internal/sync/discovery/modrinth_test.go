package discovery_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/httpclient"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/discovery"
	mr "github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/modrinth"
)

func hitsPage(ids ...string) mr.SearchResponse {
	hits := make([]mr.SearchHit, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, mr.SearchHit{ProjectID: id})
	}
	return mr.SearchResponse{Hits: hits, TotalHits: len(ids)}
}

func TestModrinthDiscoveryStopsAtKnownID(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var resp mr.SearchResponse
		switch n {
		case 1:
			resp = hitsPage("aaa", "bbb")
		case 2:
			resp = hitsPage("ccc", "known")
		default:
			t.Fatalf("unexpected third page request")
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	adapter := mr.New(httpclient.New(nil, testLog()), server.URL)
	objects := &fakeObjectStore{known: map[string]struct{}{"known": {}}}
	d := discovery.NewModrinthDiscovery(adapter, objects, 0, testLog())

	ids, err := d.Walk(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aaa", "bbb", "ccc"}, ids)
	assert.EqualValues(t, 2, calls)
}

func TestModrinthDiscoveryStopsOnEmptyPage(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var resp mr.SearchResponse
		if n == 1 {
			resp = hitsPage("only")
		} else {
			resp = mr.SearchResponse{}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	adapter := mr.New(httpclient.New(nil, testLog()), server.URL)
	objects := &fakeObjectStore{known: map[string]struct{}{}}
	d := discovery.NewModrinthDiscovery(adapter, objects, 0, testLog())

	ids, err := d.Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, ids)
}
