// Package discovery walks each platform's newest-sorted search listing
// page by page, collecting ids not yet stored and stopping at the first
// page that contains a known id.
package discovery

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	cf "github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/curseforge"
)

const (
	cfPageSize = 50
	cfHardStop = 10000
)

// CurseForgeDiscovery walks CF's newest-sorted mod listing.
type CurseForgeDiscovery struct {
	adapter *cf.Adapter
	store   store.ObjectStore
	delay   *rate.Limiter
	log     *logrus.Entry
}

// NewCurseForgeDiscovery builds a CurseForgeDiscovery. delaySeconds is the
// configurable polite pause between pages (config.CurseforgeDelay),
// paced with golang.org/x/time/rate the way
// 3leaps-gonimbus/pkg/crawler/crawler.go paces its own page fetches.
func NewCurseForgeDiscovery(adapter *cf.Adapter, objectStore store.ObjectStore, delaySeconds float64, log *logrus.Entry) *CurseForgeDiscovery {
	var limiter *rate.Limiter
	if delaySeconds > 0 {
		limiter = rate.NewLimiter(rate.Every(durationFromSeconds(delaySeconds)), 1)
	}
	return &CurseForgeDiscovery{adapter: adapter, store: objectStore, delay: limiter, log: log}
}

// Walk pages through gameId/classId's newest listing and returns the ids
// not yet stored, stopping at the first page containing any already-known
// id or at CF's hard index+pageSize<=10000 limit.
func (d *CurseForgeDiscovery) Walk(ctx context.Context, gameID, classID int) ([]int, error) {
	var newIDs []int
	index := 0

	for index+cfPageSize <= cfHardStop {
		if d.delay != nil {
			if err := d.delay.Wait(ctx); err != nil {
				return nil, err
			}
		}

		page, err := d.adapter.Search(ctx, gameID, classID, index, cfPageSize, cf.SortFieldReleasedDate, cf.SortOrderDesc)
		if err != nil {
			return nil, fmt.Errorf("discovery: search page at index %d: %w", index, err)
		}
		if page.Pagination.ResultCount == 0 {
			break
		}

		pageIDs := make([]string, 0, len(page.Data))
		byID := make(map[string]int, len(page.Data))
		for _, mod := range page.Data {
			id := fmt.Sprint(mod.ID)
			pageIDs = append(pageIDs, id)
			byID[id] = mod.ID
		}

		existing, err := d.store.FindByIDs(ctx, store.KindCFMod, pageIDs)
		if err != nil {
			return nil, fmt.Errorf("discovery: check known ids: %w", err)
		}

		if len(existing) > 0 {
			known := map[string]struct{}{}
			for _, e := range existing {
				known[e.ID] = struct{}{}
			}
			for _, id := range pageIDs {
				if _, ok := known[id]; !ok {
					newIDs = append(newIDs, byID[id])
				}
			}
			d.log.WithField("index", index).Debug("discovery: found known id, stopping")
			break
		}

		for _, id := range pageIDs {
			newIDs = append(newIDs, byID[id])
		}
		index += cfPageSize
	}

	return newIDs, nil
}
