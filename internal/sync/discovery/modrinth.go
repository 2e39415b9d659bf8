package discovery

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	mr "github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/modrinth"
)

const mrPageSize = 100

// ModrinthDiscovery walks Modrinth's newest-sorted project listing.
type ModrinthDiscovery struct {
	adapter *mr.Adapter
	store   store.ObjectStore
	delay   *rate.Limiter
	log     *logrus.Entry
}

// NewModrinthDiscovery builds a ModrinthDiscovery. delaySeconds mirrors
// config.ModrinthDelay, the polite pause between search pages.
func NewModrinthDiscovery(adapter *mr.Adapter, objectStore store.ObjectStore, delaySeconds float64, log *logrus.Entry) *ModrinthDiscovery {
	var limiter *rate.Limiter
	if delaySeconds > 0 {
		limiter = rate.NewLimiter(rate.Every(durationFromSeconds(delaySeconds)), 1)
	}
	return &ModrinthDiscovery{adapter: adapter, store: objectStore, delay: limiter, log: log}
}

// Walk pages through the empty-query "newest" index and returns the ids
// not yet stored, stopping at the first page containing any already-known
// id or once upstream reports no further hits.
func (d *ModrinthDiscovery) Walk(ctx context.Context) ([]string, error) {
	var newIDs []string
	offset := 0

	for {
		if d.delay != nil {
			if err := d.delay.Wait(ctx); err != nil {
				return nil, err
			}
		}

		page, err := d.adapter.Search(ctx, "", offset, mrPageSize, "newest")
		if err != nil {
			return nil, fmt.Errorf("discovery: search page at offset %d: %w", offset, err)
		}
		if len(page.Hits) == 0 {
			break
		}

		pageIDs := make([]string, 0, len(page.Hits))
		for _, hit := range page.Hits {
			pageIDs = append(pageIDs, hit.ProjectID)
		}

		existing, err := d.store.FindByIDs(ctx, store.KindMRProject, pageIDs)
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
					newIDs = append(newIDs, id)
				}
			}
			d.log.WithField("offset", offset).Debug("discovery: found known id, stopping")
			break
		}

		newIDs = append(newIDs, pageIDs...)
		offset += mrPageSize
	}

	return newIDs, nil
}
