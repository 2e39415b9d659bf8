package checker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/httpclient"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/checker"
	mr "github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/modrinth"
)

func seedMRProject(t *testing.T, s *memStore, project mr.Project) {
	payload, err := json.Marshal(project)
	require.NoError(t, err)
	require.NoError(t, s.UpsertMany(context.Background(), store.KindMRProject, []store.Entity{{ID: project.ID, Payload: payload}}))
}

func TestModrinthCheckerSweepClassifiesOutdatedByVersionsDiff(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s := newMemStore()
	seedMRProject(t, s, mr.Project{ID: "alive", Title: "old", Updated: ts, Versions: []string{"v1"}})
	seedMRProject(t, s, mr.Project{ID: "gone", Title: "gone", Updated: ts})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]mr.Project{
			{ID: "alive", Title: "new", Updated: ts, Versions: []string{"v1", "v2"}},
		})
	}))
	defer server.Close()

	adapter := mr.New(httpclient.New(nil, testLog()), server.URL)
	c := checker.NewModrinthChecker(adapter, s, testLog())

	outdated, dead, err := c.Sweep(context.Background(), []string{"alive", "gone"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alive"}, outdated)
	assert.Equal(t, []string{"gone"}, dead)
}

func TestModrinthCheckerSweepUnknownIDsAreSkipped(t *testing.T) {
	s := newMemStore()
	adapter := mr.New(httpclient.New(nil, testLog()), "http://unused.invalid")
	c := checker.NewModrinthChecker(adapter, s, testLog())

	outdated, dead, err := c.Sweep(context.Background(), []string{"never-stored"})
	require.NoError(t, err)
	assert.Empty(t, outdated)
	assert.Empty(t, dead)
}

func TestModrinthCheckerDeleteProjectCascades(t *testing.T) {
	s := newMemStore()
	require.NoError(t, s.UpsertMany(context.Background(), store.KindMRProject, []store.Entity{{ID: "p1"}}))
	require.NoError(t, s.UpsertMany(context.Background(), store.KindMRVersion, []store.Entity{{ID: "v1", ProjectID: "p1"}}))

	adapter := mr.New(httpclient.New(nil, testLog()), "http://unused.invalid")
	c := checker.NewModrinthChecker(adapter, s, testLog())

	require.NoError(t, c.DeleteProject(context.Background(), "p1"))

	projects, _ := s.FindByIDs(context.Background(), store.KindMRProject, []string{"p1"})
	assert.Empty(t, projects)
	versions, _ := s.FindByIDs(context.Background(), store.KindMRVersion, []string{"v1"})
	assert.Empty(t, versions)
}
