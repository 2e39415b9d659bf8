package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/config"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/notify"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/scheduler"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/drain"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/modrinth"
)

const (
	cfMinecraftGameID = 432
	cfModsClassID     = 6
	cfSweepPageSize   = 500
)

// registerJobs binds the full job inventory to a.Scheduler.
func registerJobs(a *App) error {
	jobs := []scheduler.Job{
		{Name: config.JobCurseforgeRefresh, Pool: "curseforge", Run: a.jobCurseforgeRefresh},
		{Name: config.JobCurseforgeRefreshFull, Pool: "curseforge", Run: a.jobCurseforgeRefreshFull},
		{Name: config.JobModrinthRefresh, Pool: "modrinth", Run: a.jobModrinthRefresh},
		{Name: config.JobSyncCurseforgeByQueue, Pool: "curseforge", Run: a.jobCurseforgeDrainQueue},
		{Name: config.JobSyncCurseforgeBySearch, Pool: "curseforge", Run: a.jobCurseforgeSearch},
		{Name: config.JobSyncModrinthByQueue, Pool: "modrinth", Run: a.jobModrinthDrainQueue},
		{Name: config.JobSyncModrinthBySearch, Pool: "modrinth", Run: a.jobModrinthSearch},
		{Name: config.JobCurseforgeCategories, Pool: "curseforge", Run: a.jobCurseforgeCategories},
		{Name: config.JobModrinthTags, Pool: "modrinth", Run: a.jobModrinthTags},
		{Name: config.JobGlobalStatistics, Pool: "curseforge", Run: a.jobGlobalStatistics},
	}
	for _, job := range jobs {
		if err := a.Scheduler.Register(job); err != nil {
			return fmt.Errorf("jobs: register %s: %w", job.Name, err)
		}
	}
	return nil
}

// jobCurseforgeRefresh runs the outdated/dead sweep over a page of
// already-stored CF mods, re-syncing outdated ones and cascading the
// deletion of dead ones.
func (a *App) jobCurseforgeRefresh(ctx context.Context) error {
	entities, err := a.Objects.FindPage(ctx, store.KindCFMod, store.Filter{}, 0, cfSweepPageSize)
	if err != nil {
		return fmt.Errorf("curseforge_refresh: load page: %w", err)
	}
	return a.sweepCurseforge(ctx, stringsToInts(entityIDs(entities)), "curseforge_refresh")
}

// jobCurseforgeRefreshFull sweeps the full stored CF catalog, not just one
// page, per the 48h "full refresh" trigger.
func (a *App) jobCurseforgeRefreshFull(ctx context.Context) error {
	skip := 0
	var allIDs []int
	for {
		entities, err := a.Objects.FindPage(ctx, store.KindCFMod, store.Filter{}, skip, cfSweepPageSize)
		if err != nil {
			return fmt.Errorf("curseforge_refresh_full: load page at skip %d: %w", skip, err)
		}
		if len(entities) == 0 {
			break
		}
		allIDs = append(allIDs, stringsToInts(entityIDs(entities))...)
		skip += cfSweepPageSize
	}
	return a.sweepCurseforge(ctx, allIDs, "curseforge_refresh_full")
}

// maxWorkers returns a.Config.MaxWorkers, floored at 1 so a misconfigured
// or zero-value config never collapses a bounded pool to no concurrency
// at all.
func (a *App) maxWorkers() int {
	if a.Config.MaxWorkers <= 0 {
		return 1
	}
	return a.Config.MaxWorkers
}

// syncCurseforgeIDsConcurrently fans ids out across an errgroup.Group
// bounded to MaxWorkers concurrent SyncMod calls. A failed id is logged
// and counted but never aborts its siblings; skipNotFound suppresses
// that accounting for upstream.ErrNotFound, which a discovery/queue-drain
// id can legitimately hit if the project vanished between listing and
// sync.
func (a *App) syncCurseforgeIDsConcurrently(ctx context.Context, ids []int, skipNotFound bool) ([]notify.ProjectLine, int) {
	var (
		mu     sync.Mutex
		lines  []notify.ProjectLine
		failed int
	)
	var g errgroup.Group
	g.SetLimit(a.maxWorkers())
	for _, id := range ids {
		id := id
		g.Go(func() error {
			detail, err := a.CF.Syncer.SyncMod(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !skipNotFound || !errors.Is(err, upstream.ErrNotFound) {
					failed++
					a.Log.WithError(err).WithField("modId", id).Warn("curseforge: failed to sync mod")
				}
				return nil
			}
			lines = append(lines, notify.ProjectLine{Name: detail.Name, ID: detail.ID, VersionCount: detail.VersionCount})
			return nil
		})
	}
	_ = g.Wait()
	return lines, failed
}

// syncModrinthIDsConcurrently is syncCurseforgeIDsConcurrently's Modrinth
// analogue.
func (a *App) syncModrinthIDsConcurrently(ctx context.Context, ids []string, skipNotFound bool) ([]notify.ProjectLine, int) {
	var (
		mu     sync.Mutex
		lines  []notify.ProjectLine
		failed int
	)
	var g errgroup.Group
	g.SetLimit(a.maxWorkers())
	for _, id := range ids {
		id := id
		g.Go(func() error {
			detail, err := a.MR.Syncer.SyncProject(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !skipNotFound || !errors.Is(err, upstream.ErrNotFound) {
					failed++
					a.Log.WithError(err).WithField("projectId", id).Warn("modrinth: failed to sync project")
				}
				return nil
			}
			lines = append(lines, notify.ProjectLine{Name: detail.Name, ID: detail.ID, VersionCount: detail.VersionCount})
			return nil
		})
	}
	_ = g.Wait()
	return lines, failed
}

func (a *App) sweepCurseforge(ctx context.Context, ids []int, jobName string) error {
	outdated, dead, err := a.CF.Checker.Sweep(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range dead {
		if err := a.CF.Checker.DeleteMod(ctx, id); err != nil {
			a.Log.WithError(err).WithField("modId", id).Warn("curseforge: failed to delete dead mod")
		}
	}
	lines, failed := a.syncCurseforgeIDsConcurrently(ctx, outdated, false)
	return a.notify(ctx, notify.Summary{Job: jobName, Platform: "CurseForge", Total: len(outdated), FailedCount: failed, NewProjects: lines, Tag: "Curseforge_Refresh"})
}

func (a *App) jobModrinthRefresh(ctx context.Context) error {
	entities, err := a.Objects.FindPage(ctx, store.KindMRProject, store.Filter{}, 0, cfSweepPageSize)
	if err != nil {
		return fmt.Errorf("modrinth_refresh: load page: %w", err)
	}
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}

	outdated, dead, err := a.MR.Checker.Sweep(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range dead {
		if err := a.MR.Checker.DeleteProject(ctx, id); err != nil {
			a.Log.WithError(err).WithField("projectId", id).Warn("modrinth: failed to delete dead project")
		}
	}
	lines, failed := a.syncModrinthIDsConcurrently(ctx, outdated, false)
	return a.notify(ctx, notify.Summary{Job: "modrinth_refresh", Platform: "Modrinth", Total: len(outdated), FailedCount: failed, NewProjects: lines, Tag: "Modrinth_Refresh"})
}

// jobCurseforgeDrainQueue drains every CF miss-queue a sibling read-path
// service populates, syncing every newly-seen mod id exactly once across
// all of them.
func (a *App) jobCurseforgeDrainQueue(ctx context.Context) error {
	queues := []struct {
		name    store.MissQueue
		resolve drain.Resolver
	}{
		{store.QueueCFModIDs, a.resolveCFModIDs},
		{store.QueueCFFileIDs, a.resolveCFFileIDs},
		{store.QueueCFFingerprints, a.resolveCFFingerprints},
	}

	seen := map[int]struct{}{}
	var modIDs []int
	for _, q := range queues {
		newIDs, err := a.CF.Drainer.Drain(ctx, string(q.name), q.resolve)
		if err != nil {
			return fmt.Errorf("curseforge drain queue %s: %w", q.name, err)
		}
		for _, id := range stringsToInts(newIDs) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			modIDs = append(modIDs, id)
		}
	}
	return a.syncNewCurseforgeIDs(ctx, modIDs, "sync_curseforge_by_queue", "Curseforge_Queue")
}

// resolveCFModIDs resolves cf.modids members directly to mod ids.
func (a *App) resolveCFModIDs(ctx context.Context, chunk []string) ([]string, error) {
	mods, err := a.CF.Adapter.GetMultiMods(ctx, stringsToInts(chunk))
	if err != nil {
		return nil, err
	}
	resolved := make([]string, 0, len(mods))
	for _, m := range mods {
		resolved = append(resolved, fmt.Sprint(m.ID))
	}
	return resolved, nil
}

// resolveCFFileIDs resolves cf.fileids members (file ids) to the mod id
// each file belongs to.
func (a *App) resolveCFFileIDs(ctx context.Context, chunk []string) ([]string, error) {
	files, err := a.CF.Adapter.GetMultiFiles(ctx, stringsToInts(chunk))
	if err != nil {
		return nil, err
	}
	resolved := make([]string, 0, len(files))
	for _, f := range files {
		resolved = append(resolved, fmt.Sprint(f.ModID))
	}
	return resolved, nil
}

// resolveCFFingerprints resolves cf.fingerprints members (file
// fingerprint hashes) to the mod id owning each exact match.
func (a *App) resolveCFFingerprints(ctx context.Context, chunk []string) ([]string, error) {
	fingerprints := make([]int64, 0, len(chunk))
	for _, c := range chunk {
		var fp int64
		if _, err := fmt.Sscanf(c, "%d", &fp); err == nil {
			fingerprints = append(fingerprints, fp)
		}
	}
	res, err := a.CF.Adapter.GetMultiFingerprints(ctx, fingerprints)
	if err != nil {
		return nil, err
	}
	resolved := make([]string, 0, len(res.ExactMatches))
	for _, match := range res.ExactMatches {
		resolved = append(resolved, fmt.Sprint(match.File.ModID))
	}
	return resolved, nil
}

// stringsToInts parses each decimal string id, silently dropping any that
// don't parse (resolver output is expected to be numeric CF ids).
func stringsToInts(ids []string) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		var n int
		if _, err := fmt.Sscanf(id, "%d", &n); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func entityIDs(entities []store.Entity) []string {
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}

// jobModrinthDrainQueue drains every MR miss-queue, syncing every
// newly-seen project id exactly once across all of them.
func (a *App) jobModrinthDrainQueue(ctx context.Context) error {
	queues := []struct {
		name    store.MissQueue
		resolve drain.Resolver
	}{
		{store.QueueMRProjectIDs, a.resolveMRProjectIDs},
		{store.QueueMRVersionIDs, a.resolveMRVersionIDs},
		{store.QueueMRHashesSHA1, a.resolveMRHashes(modrinth.AlgorithmSHA1)},
		{store.QueueMRHashesSHA512, a.resolveMRHashes(modrinth.AlgorithmSHA512)},
	}

	seen := map[string]struct{}{}
	var projectIDs []string
	for _, q := range queues {
		newIDs, err := a.MR.Drainer.Drain(ctx, string(q.name), q.resolve)
		if err != nil {
			return fmt.Errorf("modrinth drain queue %s: %w", q.name, err)
		}
		for _, id := range newIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			projectIDs = append(projectIDs, id)
		}
	}
	return a.syncNewModrinthIDs(ctx, projectIDs, "sync_modrinth_by_queue", "Modrinth_Queue")
}

// resolveMRProjectIDs resolves mr.projectids members directly to project ids.
func (a *App) resolveMRProjectIDs(ctx context.Context, chunk []string) ([]string, error) {
	projects, err := a.MR.Adapter.GetMultiProjects(ctx, chunk)
	if err != nil {
		return nil, err
	}
	resolved := make([]string, 0, len(projects))
	for _, p := range projects {
		resolved = append(resolved, p.ID)
	}
	return resolved, nil
}

// resolveMRVersionIDs resolves mr.versionids members (version ids) to the
// project id each version belongs to.
func (a *App) resolveMRVersionIDs(ctx context.Context, chunk []string) ([]string, error) {
	versions, err := a.MR.Adapter.GetMultiVersions(ctx, chunk)
	if err != nil {
		return nil, err
	}
	resolved := make([]string, 0, len(versions))
	for _, v := range versions {
		resolved = append(resolved, v.ProjectID)
	}
	return resolved, nil
}

// resolveMRHashes builds a Resolver for mr.hashes.sha1/mr.hashes.sha512,
// resolving file hashes to the project id each matching version belongs
// to.
func (a *App) resolveMRHashes(algorithm modrinth.HashAlgorithm) drain.Resolver {
	return func(ctx context.Context, chunk []string) ([]string, error) {
		matches, err := a.MR.Adapter.GetMultiHashes(ctx, chunk, algorithm)
		if err != nil {
			return nil, err
		}
		resolved := make([]string, 0, len(matches))
		for _, v := range matches {
			resolved = append(resolved, v.ProjectID)
		}
		return resolved, nil
	}
}

// jobCurseforgeSearch walks CF's newest listing for ids not yet stored.
func (a *App) jobCurseforgeSearch(ctx context.Context) error {
	newIDs, err := a.CF.Discovery.Walk(ctx, cfMinecraftGameID, cfModsClassID)
	if err != nil {
		return err
	}
	return a.syncNewCurseforgeIDs(ctx, newIDs, "sync_curseforge_by_search", "Curseforge_Search")
}

func (a *App) jobModrinthSearch(ctx context.Context) error {
	newIDs, err := a.MR.Discovery.Walk(ctx)
	if err != nil {
		return err
	}
	return a.syncNewModrinthIDs(ctx, newIDs, "sync_modrinth_by_search", "Modrinth_Search")
}

func (a *App) syncNewCurseforgeIDs(ctx context.Context, ids []int, jobName, tag string) error {
	lines, failed := a.syncCurseforgeIDsConcurrently(ctx, ids, true)
	return a.notify(ctx, notify.Summary{Job: jobName, Platform: "CurseForge", Total: len(ids), FailedCount: failed, NewProjects: lines, Tag: tag})
}

func (a *App) syncNewModrinthIDs(ctx context.Context, ids []string, jobName, tag string) error {
	lines, failed := a.syncModrinthIDsConcurrently(ctx, ids, true)
	return a.notify(ctx, notify.Summary{Job: jobName, Platform: "Modrinth", Total: len(ids), FailedCount: failed, NewProjects: lines, Tag: tag})
}

// jobCurseforgeCategories refreshes the cached CF category enumeration.
func (a *App) jobCurseforgeCategories(ctx context.Context) error {
	categories, err := a.CF.Adapter.GetCategories(ctx, cfMinecraftGameID, 0, false)
	if err != nil {
		return err
	}
	entities := make([]store.Entity, 0, len(categories))
	for _, c := range categories {
		payload, err := json.Marshal(c)
		if err != nil {
			return err
		}
		entities = append(entities, store.Entity{ID: fmt.Sprint(c.ID), Payload: payload})
	}
	if err := a.Objects.UpsertMany(ctx, store.KindCFCategory, entities); err != nil {
		return err
	}
	return a.notify(ctx, notify.Summary{Job: "curseforge_categories", Platform: "CurseForge", Total: len(categories), Tag: "Curseforge_Categories"})
}

// jobModrinthTags refreshes the cached MR categories/loaders/game versions,
// one EntityKind per tag family.
func (a *App) jobModrinthTags(ctx context.Context) error {
	categories, err := a.MR.Adapter.GetCategories(ctx)
	if err != nil {
		return err
	}
	if err := upsertByName(ctx, a.Objects, store.KindMRCategory, len(categories), func(i int) (string, interface{}) {
		return categories[i].Name, categories[i]
	}); err != nil {
		return err
	}

	loaders, err := a.MR.Adapter.GetLoaders(ctx)
	if err != nil {
		return err
	}
	if err := upsertByName(ctx, a.Objects, store.KindMRLoader, len(loaders), func(i int) (string, interface{}) {
		return loaders[i].Name, loaders[i]
	}); err != nil {
		return err
	}

	gameVersions, err := a.MR.Adapter.GetGameVersions(ctx)
	if err != nil {
		return err
	}
	if err := upsertByName(ctx, a.Objects, store.KindMRGameVersion, len(gameVersions), func(i int) (string, interface{}) {
		return gameVersions[i].Version, gameVersions[i]
	}); err != nil {
		return err
	}

	return a.notify(ctx, notify.Summary{
		Job:      "modrinth_tags",
		Platform: "Modrinth",
		Total:    len(categories) + len(loaders) + len(gameVersions),
		Tag:      "Modrinth_Tags",
	})
}

// upsertByName marshals n items (accessed via get, which returns each
// item's natural key alongside itself) and upserts them under kind.
func upsertByName(ctx context.Context, objects store.ObjectStore, kind store.EntityKind, n int, get func(i int) (string, interface{})) error {
	entities := make([]store.Entity, 0, n)
	for i := 0; i < n; i++ {
		id, item := get(i)
		payload, err := json.Marshal(item)
		if err != nil {
			return err
		}
		entities = append(entities, store.Entity{ID: id, Payload: payload})
	}
	return objects.UpsertMany(ctx, kind, entities)
}

// jobGlobalStatistics counts the stored catalog and notifies a one-line
// summary.
func (a *App) jobGlobalStatistics(ctx context.Context) error {
	cfMods, err := a.Objects.Count(ctx, store.KindCFMod, store.Filter{})
	if err != nil {
		return err
	}
	cfFiles, err := a.Objects.Count(ctx, store.KindCFFile, store.Filter{})
	if err != nil {
		return err
	}
	mrProjects, err := a.Objects.Count(ctx, store.KindMRProject, store.Filter{})
	if err != nil {
		return err
	}
	mrVersions, err := a.Objects.Count(ctx, store.KindMRVersion, store.Filter{})
	if err != nil {
		return err
	}

	a.Log.WithFields(map[string]interface{}{
		"cfMods": cfMods, "cfFiles": cfFiles, "mrProjects": mrProjects, "mrVersions": mrVersions,
		"curseforgeJobsRunning": a.Scheduler.Running("curseforge"), "modrinthJobsRunning": a.Scheduler.Running("modrinth"),
	}).Info("global_statistics: cached catalog size")

	return a.notify(ctx, notify.Summary{
		Job:      "global_statistics",
		Platform: "mcim",
		Total:    int(cfMods + mrProjects),
		Tag:      "Statistics",
	})
}

func (a *App) notify(ctx context.Context, summary notify.Summary) error {
	if a.Notifier == nil {
		return nil
	}
	return a.Notifier.Notify(ctx, summary)
}
