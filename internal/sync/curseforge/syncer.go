// Package curseforge implements the per-mod sync algorithm for the
// CurseForge catalog: fetch metadata, fetch the full file list, persist
// files and fingerprints, prune orphans, then upsert the mod record.
package curseforge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store/batchwriter"
	cfsync "github.com/mcmod-info-mirror/mcim-sync-go/internal/sync"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream"
	cf "github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/curseforge"
)

const pagedPageSize = 50

// Syncer implements the per-mod sync algorithm for CurseForge.
type Syncer struct {
	adapter *cf.Adapter
	store   store.ObjectStore
	log     *logrus.Entry
	sf      singleflight.Group
}

// New builds a Syncer.
func New(adapter *cf.Adapter, objectStore store.ObjectStore, log *logrus.Entry) *Syncer {
	return &Syncer{adapter: adapter, store: objectStore, log: log}
}

// SyncMod runs the full algorithm for one mod id: fetch metadata, fetch
// the complete file list (paged traversal), persist files plus
// fingerprints, prune orphans, and only once both succeed upsert the mod
// record itself, so an abort mid-sync never publishes a mod whose files
// are missing.
//
// Concurrent calls for the same modID (a refresh sweep and a queue drain
// can both target the same id) are coalesced through sf so only one
// upstream round-trip chain runs; every caller gets the same result.
func (s *Syncer) SyncMod(ctx context.Context, modID int) (cfsync.ProjectDetail, error) {
	v, err, _ := s.sf.Do(fmt.Sprint(modID), func() (interface{}, error) {
		return s.syncMod(ctx, modID)
	})
	if err != nil {
		return cfsync.ProjectDetail{}, err
	}
	return v.(cfsync.ProjectDetail), nil
}

func (s *Syncer) syncMod(ctx context.Context, modID int) (cfsync.ProjectDetail, error) {
	if cf.IsLegacyID(modID) {
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: id %d is a legacy/other-game id", modID)
	}

	mod, err := s.adapter.GetMod(ctx, modID)
	if err != nil {
		if upstream.IsNotFound(err) {
			return cfsync.ProjectDetail{}, upstream.ErrNotFound
		}
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: fetch mod %d: %w", modID, err)
	}

	totalCount, err := s.syncAllFiles(ctx, modID, mod)
	if err != nil {
		if upstream.IsNotFound(err) {
			return cfsync.ProjectDetail{}, upstream.ErrNotFound
		}
		return cfsync.ProjectDetail{}, err
	}

	payload, err := json.Marshal(mod)
	if err != nil {
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: marshal mod %d: %w", modID, err)
	}
	if err := s.store.UpsertMany(ctx, store.KindCFMod, []store.Entity{{ID: fmt.Sprint(modID), Payload: payload}}); err != nil {
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: upsert mod %d: %w", modID, err)
	}

	return cfsync.ProjectDetail{ID: fmt.Sprint(modID), Name: mod.Name, VersionCount: totalCount}, nil
}

// syncAllFiles performs the paged traversal of a mod's file list,
// persisting File + Fingerprint records via a BatchWriter and pruning
// orphans before returning. The returned int is the upstream totalCount,
// used as ProjectDetail.VersionCount. If the first page comes back empty
// while mod's own latestFiles claims the mod has files, the response is
// treated as suspect and no write or prune happens.
func (s *Syncer) syncAllFiles(ctx context.Context, modID int, mod cf.Mod) (int, error) {
	var latestIDs []string
	index := 0
	pagination := cf.Pagination{}
	firstPage, err := s.adapter.GetModFiles(ctx, modID, index, pagedPageSize)
	if err != nil {
		return 0, fmt.Errorf("curseforge: fetch files for mod %d at index %d: %w", modID, index, err)
	}
	if firstPage.Pagination.TotalCount == 0 && (len(mod.LatestFiles) > 0 || len(mod.LatestFilesIndexes) > 0) {
		s.log.WithField("modId", modID).Warn("curseforge: upstream reported latest files but file list is empty, treating as suspect")
		return 0, upstream.ErrEmptyVersionsSuspect
	}

	fileWriter := batchwriter.Open(ctx, s.store, store.KindCFFile)
	defer fileWriter.Close()
	fingerprintWriter := batchwriter.Open(ctx, s.store, store.KindCFFingerprint)
	defer fingerprintWriter.Close()

	page := firstPage
	for {
		pagination = page.Pagination

		for _, file := range page.Data {
			fileID := fmt.Sprint(file.ID)
			latestIDs = append(latestIDs, fileID)

			filePayload, err := json.Marshal(file)
			if err != nil {
				return 0, fmt.Errorf("curseforge: marshal file %d: %w", file.ID, err)
			}
			fileWriter.Add(store.Entity{ID: fileID, ProjectID: fmt.Sprint(modID), Payload: filePayload})

			fingerprintPayload, err := json.Marshal(file)
			if err != nil {
				return 0, fmt.Errorf("curseforge: marshal fingerprint for file %d: %w", file.ID, err)
			}
			fingerprintWriter.Add(store.Entity{
				ID:        fmt.Sprint(file.FileFingerprint),
				ProjectID: fmt.Sprint(modID),
				OwnerID:   fileID,
				Payload:   fingerprintPayload,
			})
		}

		s.log.WithFields(logrus.Fields{"modId": modID, "index": index, "pageSize": pagedPageSize, "total": pagination.TotalCount}).Debug("curseforge: synced files page")

		if pagination.TotalCount == 0 || index >= pagination.TotalCount-1 {
			break
		}
		index += pagedPageSize

		page, err = s.adapter.GetModFiles(ctx, modID, index, pagedPageSize)
		if err != nil {
			return 0, fmt.Errorf("curseforge: fetch files for mod %d at index %d: %w", modID, index, err)
		}
	}

	if err := fileWriter.Close(); err != nil {
		return 0, fmt.Errorf("curseforge: flush files for mod %d: %w", modID, err)
	}
	if err := fingerprintWriter.Close(); err != nil {
		return 0, fmt.Errorf("curseforge: flush fingerprints for mod %d: %w", modID, err)
	}

	if _, err := s.store.DeleteMany(ctx, store.KindCFFile, store.Filter{ProjectID: fmt.Sprint(modID), ExcludeIDs: latestIDs}); err != nil {
		return 0, fmt.Errorf("curseforge: prune orphan files for mod %d: %w", modID, err)
	}
	if _, err := s.store.DeleteMany(ctx, store.KindCFFingerprint, store.Filter{ProjectID: fmt.Sprint(modID), ExcludeOwnerIDs: latestIDs}); err != nil {
		return 0, fmt.Errorf("curseforge: prune orphan fingerprints for mod %d: %w", modID, err)
	}

	s.log.WithFields(logrus.Fields{"modId": modID, "total": pagination.TotalCount, "removed": pagination.TotalCount - len(latestIDs)}).Info("curseforge: finished syncing mod files")
	return pagination.TotalCount, nil
}

// SyncModSingleShot is an alternate entry point to SyncMod that fetches a
// mod's file list with one oversized page request instead of the paged
// traversal syncAllFiles performs. Used for mods with a small
// enough file count that one oversized page reliably covers them, saving
// the N page round-trips paged traversal would otherwise need.
func (s *Syncer) SyncModSingleShot(ctx context.Context, modID int) (cfsync.ProjectDetail, error) {
	if cf.IsLegacyID(modID) {
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: id %d is a legacy/other-game id", modID)
	}

	mod, err := s.adapter.GetMod(ctx, modID)
	if err != nil {
		if upstream.IsNotFound(err) {
			return cfsync.ProjectDetail{}, upstream.ErrNotFound
		}
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: fetch mod %d: %w", modID, err)
	}

	page, err := s.fetchSingleShot(ctx, modID)
	if err != nil {
		if upstream.IsNotFound(err) {
			return cfsync.ProjectDetail{}, upstream.ErrNotFound
		}
		return cfsync.ProjectDetail{}, err
	}
	if page.Pagination.TotalCount == 0 && (len(mod.LatestFiles) > 0 || len(mod.LatestFilesIndexes) > 0) {
		s.log.WithField("modId", modID).Warn("curseforge: upstream reported latest files but file list is empty, treating as suspect")
		return cfsync.ProjectDetail{}, upstream.ErrEmptyVersionsSuspect
	}

	fileWriter := batchwriter.Open(ctx, s.store, store.KindCFFile)
	fingerprintWriter := batchwriter.Open(ctx, s.store, store.KindCFFingerprint)
	latestIDs := make([]string, 0, len(page.Data))
	for _, file := range page.Data {
		fileID := fmt.Sprint(file.ID)
		latestIDs = append(latestIDs, fileID)

		filePayload, err := json.Marshal(file)
		if err != nil {
			fileWriter.Close()
			fingerprintWriter.Close()
			return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: marshal file %d: %w", file.ID, err)
		}
		fileWriter.Add(store.Entity{ID: fileID, ProjectID: fmt.Sprint(modID), Payload: filePayload})
		fingerprintWriter.Add(store.Entity{ID: fmt.Sprint(file.FileFingerprint), ProjectID: fmt.Sprint(modID), OwnerID: fileID, Payload: filePayload})
	}
	if err := fileWriter.Close(); err != nil {
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: flush files for mod %d: %w", modID, err)
	}
	if err := fingerprintWriter.Close(); err != nil {
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: flush fingerprints for mod %d: %w", modID, err)
	}

	if _, err := s.store.DeleteMany(ctx, store.KindCFFile, store.Filter{ProjectID: fmt.Sprint(modID), ExcludeIDs: latestIDs}); err != nil {
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: prune orphan files for mod %d: %w", modID, err)
	}
	if _, err := s.store.DeleteMany(ctx, store.KindCFFingerprint, store.Filter{ProjectID: fmt.Sprint(modID), ExcludeOwnerIDs: latestIDs}); err != nil {
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: prune orphan fingerprints for mod %d: %w", modID, err)
	}

	payload, err := json.Marshal(mod)
	if err != nil {
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: marshal mod %d: %w", modID, err)
	}
	if err := s.store.UpsertMany(ctx, store.KindCFMod, []store.Entity{{ID: fmt.Sprint(modID), Payload: payload}}); err != nil {
		return cfsync.ProjectDetail{}, fmt.Errorf("curseforge: upsert mod %d: %w", modID, err)
	}

	return cfsync.ProjectDetail{ID: fmt.Sprint(modID), Name: mod.Name, VersionCount: page.Pagination.TotalCount}, nil
}

// fetchSingleShot requests the whole file list as one pageSize=10000
// page and, if resultCount disagrees with totalCount or the array
// length, shrinks pageSize by one and tries again, 3 requests in all
// (10000, 9999, 9998), returning ErrInconsistentUpstream on exhaustion
// without mutating state.
func (s *Syncer) fetchSingleShot(ctx context.Context, modID int) (cf.FilesResponse, error) {
	pageSize := 10000
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		page, err := s.adapter.GetModFiles(ctx, modID, 0, pageSize)
		if err != nil {
			return cf.FilesResponse{}, err
		}
		if page.Pagination.ResultCount == page.Pagination.TotalCount && len(page.Data) == page.Pagination.ResultCount {
			return page, nil
		}
		lastErr = fmt.Errorf("curseforge: inconsistent pagination for mod %d: resultCount=%d totalCount=%d len=%d",
			modID, page.Pagination.ResultCount, page.Pagination.TotalCount, len(page.Data))
		s.log.WithField("modId", modID).Warn(lastErr.Error())
		pageSize--
	}
	return cf.FilesResponse{}, fmt.Errorf("%w: %v", upstream.ErrInconsistentUpstream, lastErr)
}
