package experiment

import (
	"errors"
	"sync"

	"etbd/internal/model"
)

// Sink receives one record per tick. Record is called from the generation
// loop, so implementations should be quick or buffer internally.
type Sink interface {
	Record(model.TickRecord) error
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(model.TickRecord) error

func (f SinkFunc) Record(rec model.TickRecord) error {
	return f(rec)
}

// Recorder keeps every record in memory.
type Recorder struct {
	mu      sync.RWMutex
	records []model.TickRecord
}

func (r *Recorder) Record(rec model.TickRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, cloneRecord(rec))
	return nil
}

func (r *Recorder) Records() []model.TickRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.TickRecord, len(r.records))
	for i, rec := range r.records {
		out[i] = cloneRecord(rec)
	}
	return out
}

func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// MultiSink fans a record out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Record(rec model.TickRecord) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flusher is implemented by sinks that buffer records.
type Flusher interface {
	Flush() error
}

func (m MultiSink) Flush() error {
	var errs []error
	for _, sink := range m {
		if f, ok := sink.(Flusher); ok {
			if err := f.Flush(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func cloneRecord(rec model.TickRecord) model.TickRecord {
	rec.InClass = append([]bool(nil), rec.InClass...)
	rec.Reinforced = append([]bool(nil), rec.Reinforced...)
	rec.Punished = append([]bool(nil), rec.Punished...)
	return rec
}
