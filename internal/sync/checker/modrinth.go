package checker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	msync "github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/modrinth"
	mr "github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/modrinth"
)

// ModrinthChecker classifies a page of stored MR projects into
// {outdated, dead}, additionally diffing versionIds/gameVersions on top
// of the timestamp comparison.
type ModrinthChecker struct {
	adapter *mr.Adapter
	store   store.ObjectStore
	log     *logrus.Entry
}

// NewModrinthChecker builds a ModrinthChecker.
func NewModrinthChecker(adapter *mr.Adapter, objectStore store.ObjectStore, log *logrus.Entry) *ModrinthChecker {
	return &ModrinthChecker{adapter: adapter, store: objectStore, log: log}
}

// Sweep bulk-fetches projectIDs from upstream, classifies each as
// alive/dead, refreshes descriptive fields for alive projects, and
// reports which alive projects changed.
func (c *ModrinthChecker) Sweep(ctx context.Context, projectIDs []string) (outdated []string, dead []string, err error) {
	entities, err := c.store.FindByIDs(ctx, store.KindMRProject, projectIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("checker: load stored projects: %w", err)
	}

	stored := make(map[string]mr.Project, len(entities))
	for _, e := range entities {
		var project mr.Project
		if err := json.Unmarshal(e.Payload, &project); err != nil {
			return nil, nil, fmt.Errorf("checker: decode stored project %s: %w", e.ID, err)
		}
		stored[e.ID] = project
	}

	if len(stored) == 0 {
		return nil, nil, nil
	}

	fetchIDs := make([]string, 0, len(stored))
	for id := range stored {
		fetchIDs = append(fetchIDs, id)
	}
	fresh, err := c.adapter.GetMultiProjects(ctx, fetchIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("checker: bulk fetch projects: %w", err)
	}

	alive := make(map[string]mr.Project, len(fresh))
	for _, project := range fresh {
		alive[project.ID] = project
	}

	for id := range stored {
		if _, ok := alive[id]; !ok {
			dead = append(dead, id)
		}
	}

	refreshed := make([]store.Entity, 0, len(alive))
	for id, freshProject := range alive {
		if msync.Changed(stored[id], freshProject) {
			outdated = append(outdated, id)
			c.log.WithField("projectId", id).Debug("checker: modrinth project is outdated")
		}
		payload, err := json.Marshal(freshProject)
		if err != nil {
			return nil, nil, fmt.Errorf("checker: marshal project %s: %w", id, err)
		}
		refreshed = append(refreshed, store.Entity{ID: id, Payload: payload})
	}
	if err := c.store.UpsertMany(ctx, store.KindMRProject, refreshed); err != nil {
		return nil, nil, fmt.Errorf("checker: refresh alive projects: %w", err)
	}

	return outdated, dead, nil
}

// DeleteProject cascades the deletion of a project and its versions.
func (c *ModrinthChecker) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := c.store.DeleteMany(ctx, store.KindMRVersion, store.Filter{ProjectID: projectID}); err != nil {
		return fmt.Errorf("checker: delete versions for project %s: %w", projectID, err)
	}
	if _, err := c.store.DeleteMany(ctx, store.KindMRProject, store.Filter{IDs: []string{projectID}}); err != nil {
		return fmt.Errorf("checker: delete project %s: %w", projectID, err)
	}
	return nil
}
