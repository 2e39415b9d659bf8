// Package modrinth implements the per-project sync algorithm for the
// Modrinth catalog: fetch metadata, fetch the full version list, persist
// versions, prune orphans, then upsert the project record.
package modrinth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store/batchwriter"
	msync "github.com/mcmod-info-mirror/mcim-sync-go/internal/sync"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream"
	mr "github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/modrinth"
)

// Syncer implements the per-project sync algorithm for Modrinth.
type Syncer struct {
	adapter *mr.Adapter
	store   store.ObjectStore
	log     *logrus.Entry
	sf      singleflight.Group
}

// New builds a Syncer.
func New(adapter *mr.Adapter, objectStore store.ObjectStore, log *logrus.Entry) *Syncer {
	return &Syncer{adapter: adapter, store: objectStore, log: log}
}

// SyncProject runs the full algorithm for one project id: fetch metadata,
// fetch the complete version list (Modrinth returns it in one call, no
// pagination), persist versions, prune orphans, then upsert the project
// record. A zero-length version list is treated as suspect (no write, no
// prune) whenever the project's own metadata claims at least one
// version, since a real deletion is reported by the checker sweep, not
// by an empty list here.
//
// Concurrent calls for the same projectID are coalesced through sf, same
// as the CurseForge syncer.
func (s *Syncer) SyncProject(ctx context.Context, projectID string) (msync.ProjectDetail, error) {
	v, err, _ := s.sf.Do(projectID, func() (interface{}, error) {
		return s.syncProject(ctx, projectID)
	})
	if err != nil {
		return msync.ProjectDetail{}, err
	}
	return v.(msync.ProjectDetail), nil
}

func (s *Syncer) syncProject(ctx context.Context, projectID string) (msync.ProjectDetail, error) {
	project, err := s.adapter.GetProject(ctx, projectID)
	if err != nil {
		if upstream.IsNotFound(err) {
			return msync.ProjectDetail{}, upstream.ErrNotFound
		}
		return msync.ProjectDetail{}, fmt.Errorf("modrinth: fetch project %s: %w", projectID, err)
	}

	versions, err := s.adapter.GetProjectVersions(ctx, projectID)
	if err != nil {
		if upstream.IsNotFound(err) {
			return msync.ProjectDetail{}, upstream.ErrNotFound
		}
		return msync.ProjectDetail{}, fmt.Errorf("modrinth: fetch versions for %s: %w", projectID, err)
	}

	if len(versions) == 0 && len(project.Versions) > 0 {
		s.log.WithField("projectId", projectID).Warn("modrinth: upstream reported versions but version list is empty, treating as suspect")
		return msync.ProjectDetail{}, upstream.ErrEmptyVersionsSuspect
	}

	versionWriter := batchwriter.Open(ctx, s.store, store.KindMRVersion)
	latestIDs := make([]string, 0, len(versions))
	for _, version := range versions {
		latestIDs = append(latestIDs, version.ID)
		payload, err := json.Marshal(version)
		if err != nil {
			versionWriter.Close()
			return msync.ProjectDetail{}, fmt.Errorf("modrinth: marshal version %s: %w", version.ID, err)
		}
		versionWriter.Add(store.Entity{ID: version.ID, ProjectID: projectID, Payload: payload})
	}
	if err := versionWriter.Close(); err != nil {
		return msync.ProjectDetail{}, fmt.Errorf("modrinth: flush versions for %s: %w", projectID, err)
	}

	if _, err := s.store.DeleteMany(ctx, store.KindMRVersion, store.Filter{ProjectID: projectID, ExcludeIDs: latestIDs}); err != nil {
		return msync.ProjectDetail{}, fmt.Errorf("modrinth: prune orphan versions for %s: %w", projectID, err)
	}

	projectPayload, err := json.Marshal(project)
	if err != nil {
		return msync.ProjectDetail{}, fmt.Errorf("modrinth: marshal project %s: %w", projectID, err)
	}
	if err := s.store.UpsertMany(ctx, store.KindMRProject, []store.Entity{{ID: projectID, Payload: projectPayload}}); err != nil {
		return msync.ProjectDetail{}, fmt.Errorf("modrinth: upsert project %s: %w", projectID, err)
	}

	s.log.WithFields(logrus.Fields{"projectId": projectID, "versions": len(versions)}).Info("modrinth: finished syncing project")
	return msync.ProjectDetail{ID: projectID, Name: project.Title, VersionCount: len(versions)}, nil
}

// Changed reports whether a stored project's observable state differs
// from fresh: updatedAt differs (second-truncated) OR the ordered
// versionIds sequence differs OR the gameVersions set differs.
func Changed(stored, fresh mr.Project) bool {
	if !msync.SameSecond(stored.Updated, fresh.Updated) {
		return true
	}
	if !msync.StringSliceEqual(stored.Versions, fresh.Versions) {
		return true
	}
	if !msync.StringSetEqual(stored.GameVersions, fresh.GameVersions) {
		return true
	}
	return false
}
