package storage

import (
	"context"
	"fmt"

	"etbd/internal/model"
)

const DefaultTickBatch = 1024

// TickWriter buffers tick records and appends them to a store in batches.
// It satisfies the experiment sink and flusher interfaces.
type TickWriter struct {
	ctx     context.Context
	store   Store
	runID   string
	batch   int
	buf     []model.TickRecord
	written int
}

func NewTickWriter(ctx context.Context, store Store, runID string, batch int) *TickWriter {
	if batch <= 0 {
		batch = DefaultTickBatch
	}
	return &TickWriter{
		ctx:   ctx,
		store: store,
		runID: runID,
		batch: batch,
		buf:   make([]model.TickRecord, 0, batch),
	}
}

func (w *TickWriter) Record(tick model.TickRecord) error {
	w.buf = append(w.buf, cloneTick(tick))
	if len(w.buf) < w.batch {
		return nil
	}
	return w.Flush()
}

func (w *TickWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.store.AppendTicks(w.ctx, w.runID, w.buf); err != nil {
		return fmt.Errorf("append %d ticks to run %s: %w", len(w.buf), w.runID, err)
	}
	w.written += len(w.buf)
	w.buf = w.buf[:0]
	return nil
}

// Written is the number of ticks already handed to the store.
func (w *TickWriter) Written() int {
	return w.written
}
