// Package checker classifies pages of stored projects against upstream:
// ids missing from a bulk fetch are dead, ids whose observable state
// changed are outdated, and everything alive gets its descriptive fields
// refreshed in passing.
package checker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	msync "github.com/mcmod-info-mirror/mcim-sync-go/internal/sync"
	cf "github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/curseforge"
)

// CurseForgeChecker classifies a page of stored CF mods into
// {outdated, dead}.
type CurseForgeChecker struct {
	adapter *cf.Adapter
	store   store.ObjectStore
	log     *logrus.Entry
}

// NewCurseForgeChecker builds a CurseForgeChecker.
func NewCurseForgeChecker(adapter *cf.Adapter, objectStore store.ObjectStore, log *logrus.Entry) *CurseForgeChecker {
	return &CurseForgeChecker{adapter: adapter, store: objectStore, log: log}
}

// Sweep bulk-fetches modIDs from upstream, classifies each as alive/dead,
// refreshes descriptive fields for alive mods, and reports which alive
// mods changed (per CF's dateModified comparison rule).
func (c *CurseForgeChecker) Sweep(ctx context.Context, modIDs []int) (outdated []int, dead []int, err error) {
	lookupIDs := make([]string, 0, len(modIDs))
	for _, id := range modIDs {
		if cf.IsLegacyID(id) {
			continue
		}
		lookupIDs = append(lookupIDs, fmt.Sprint(id))
	}
	entities, err := c.store.FindByIDs(ctx, store.KindCFMod, lookupIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("checker: load stored mods: %w", err)
	}

	stored := make(map[int]cf.Mod, len(entities))
	for _, e := range entities {
		var mod cf.Mod
		if err := json.Unmarshal(e.Payload, &mod); err != nil {
			return nil, nil, fmt.Errorf("checker: decode stored mod %s: %w", e.ID, err)
		}
		stored[mod.ID] = mod
	}

	if len(stored) == 0 {
		return nil, nil, nil
	}

	fetchIDs := make([]int, 0, len(stored))
	for id := range stored {
		fetchIDs = append(fetchIDs, id)
	}
	fresh, err := c.adapter.GetMultiMods(ctx, fetchIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("checker: bulk fetch mods: %w", err)
	}

	alive := make(map[int]cf.Mod, len(fresh))
	for _, mod := range fresh {
		alive[mod.ID] = mod
	}

	for id := range stored {
		if _, ok := alive[id]; !ok {
			dead = append(dead, id)
		}
	}

	refreshed := make([]store.Entity, 0, len(alive))
	for id, freshMod := range alive {
		storedMod := stored[id]
		if !msync.SameSecond(storedMod.DateModified, freshMod.DateModified) {
			outdated = append(outdated, id)
			c.log.WithFields(logrus.Fields{"modId": id, "from": storedMod.DateModified, "to": freshMod.DateModified}).Debug("checker: curseforge mod is outdated")
		}
		payload, err := json.Marshal(freshMod)
		if err != nil {
			return nil, nil, fmt.Errorf("checker: marshal mod %d: %w", id, err)
		}
		refreshed = append(refreshed, store.Entity{ID: fmt.Sprint(id), Payload: payload})
	}
	if err := c.store.UpsertMany(ctx, store.KindCFMod, refreshed); err != nil {
		return nil, nil, fmt.Errorf("checker: refresh alive mods: %w", err)
	}

	return outdated, dead, nil
}

// DeleteMod cascades the deletion of a mod and everything it owns
// (files, fingerprints), the action the caller runs on every id in
// Sweep's dead list.
func (c *CurseForgeChecker) DeleteMod(ctx context.Context, modID int) error {
	id := fmt.Sprint(modID)
	if _, err := c.store.DeleteMany(ctx, store.KindCFFile, store.Filter{ProjectID: id}); err != nil {
		return fmt.Errorf("checker: delete files for mod %d: %w", modID, err)
	}
	if _, err := c.store.DeleteMany(ctx, store.KindCFFingerprint, store.Filter{ProjectID: id}); err != nil {
		return fmt.Errorf("checker: delete fingerprints for mod %d: %w", modID, err)
	}
	if _, err := c.store.DeleteMany(ctx, store.KindCFMod, store.Filter{IDs: []string{id}}); err != nil {
		return fmt.Errorf("checker: delete mod %d: %w", modID, err)
	}
	return nil
}
