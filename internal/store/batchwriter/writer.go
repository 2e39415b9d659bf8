// Package batchwriter implements a scoped accumulate-then-flush writer:
// entities buffer in memory and flush to the ObjectStore in fixed-size
// batches, with a guaranteed final flush on Close.
package batchwriter

import (
	"context"
	"sync"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
)

const defaultBatchSize = 100

// Option configures a Writer at Open.
type Option func(*Writer)

// WithBatchSize overrides the default flush threshold of 100
// (ModelSubmitter.__init__'s default).
func WithBatchSize(n int) Option {
	return func(w *Writer) { w.batchSize = n }
}

// Writer accumulates entities and flushes them to an ObjectStore in
// fixed-size batches. Not safe for concurrent use by multiple
// goroutines: each sync worker opens its own Writer.
type Writer struct {
	ctx   context.Context
	store store.ObjectStore
	kind  store.EntityKind

	batchSize int

	mu       sync.Mutex
	pending  []store.Entity
	flushErr error
}

// Open reserves a Writer scoped to kind. Callers must call Close when
// done, typically via `defer w.Close()` immediately after Open.
func Open(ctx context.Context, objectStore store.ObjectStore, kind store.EntityKind, opts ...Option) *Writer {
	w := &Writer{ctx: ctx, store: objectStore, kind: kind, batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Add appends an entity to the buffer, flushing automatically once the
// buffer reaches batchSize.
func (w *Writer) Add(e store.Entity) {
	w.mu.Lock()
	w.pending = append(w.pending, e)
	shouldFlush := len(w.pending) >= w.batchSize
	w.mu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

func (w *Writer) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := w.store.UpsertMany(w.ctx, w.kind, batch); err != nil {
		w.mu.Lock()
		if w.flushErr == nil {
			w.flushErr = err
		}
		w.mu.Unlock()
	}
}

// Close flushes any remaining buffered entities and returns the first
// flush error encountered across the writer's lifetime, if any. Close
// always attempts the flush, even when called on an error path: writes
// are idempotent by primary key, so an at-least-once flush of
// successfully-gathered entities is safe.
func (w *Writer) Close() error {
	w.flush()
	return w.flushErr
}
