// Package drain consumes miss-queues: read all members of an external
// set, truncate it, resolve the raw members to canonical project ids,
// and hand back the ids not already stored.
package drain

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
)

// Resolver maps a chunk of raw queue members to canonical project ids,
// via whichever platform multi-get adapter is appropriate for the queue
// (e.g. GetMultiMods for cf.modids, GetMultiFiles for cf.fileids).
type Resolver func(ctx context.Context, chunk []string) ([]string, error)

// Drainer reads all members of a miss-queue, deletes it, resolves members
// to canonical project ids, filters out ids already stored, and returns
// the rest for the caller to sync.
type Drainer struct {
	setStore    store.SetStore
	objectStore store.ObjectStore
	kind        store.EntityKind
	chunkSize   int
	log         *logrus.Entry
}

// New builds a Drainer. kind is the EntityKind used to filter resolved
// ids against what's already stored (e.g. store.KindMRProject for
// mr.projectids).
func New(setStore store.SetStore, objectStore store.ObjectStore, kind store.EntityKind, chunkSize int, log *logrus.Entry) *Drainer {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &Drainer{setStore: setStore, objectStore: objectStore, kind: kind, chunkSize: chunkSize, log: log}
}

// Drain reads queueName's members, truncates it, resolves members to
// canonical ids via resolve (chunked by chunkSize), and returns the ids
// not already present in the object store. An empty queue returns (nil,
// nil) without any resolve call.
//
// Members added to the external queue between Members and Delete may be
// lost; the queue's writer treats membership as best-effort, and the
// next scheduled tick reclaims them via the ordinary refresh pass.
func (d *Drainer) Drain(ctx context.Context, queueName string, resolve Resolver) ([]string, error) {
	members, err := d.setStore.Members(ctx, queueName)
	if err != nil {
		return nil, fmt.Errorf("drain: read queue %s: %w", queueName, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	if err := d.setStore.Delete(ctx, queueName); err != nil {
		return nil, fmt.Errorf("drain: truncate queue %s: %w", queueName, err)
	}

	resolvedSet := map[string]struct{}{}
	for start := 0; start < len(members); start += d.chunkSize {
		end := start + d.chunkSize
		if end > len(members) {
			end = len(members)
		}
		chunk := members[start:end]
		resolved, err := resolve(ctx, chunk)
		if err != nil {
			d.log.WithFields(logrus.Fields{"queue": queueName, "chunkStart": start}).Warn("drain: failed to resolve queue chunk")
			continue
		}
		for _, id := range resolved {
			resolvedSet[id] = struct{}{}
		}
	}

	resolvedIDs := make([]string, 0, len(resolvedSet))
	for id := range resolvedSet {
		resolvedIDs = append(resolvedIDs, id)
	}

	known := map[string]struct{}{}
	existing, err := d.objectStore.FindByIDs(ctx, d.kind, resolvedIDs)
	if err != nil {
		return nil, fmt.Errorf("drain: check known ids: %w", err)
	}
	for _, e := range existing {
		known[e.ID] = struct{}{}
	}

	unknown := make([]string, 0, len(resolvedIDs))
	for _, id := range resolvedIDs {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
		}
	}

	d.log.WithFields(logrus.Fields{"queue": queueName, "members": len(members), "new": len(unknown)}).Info("drain: drained queue")
	return unknown, nil
}
