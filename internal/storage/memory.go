package storage

import (
	"context"
	"errors"
	"sync"

	"etbd/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	ticks       map[string][]model.TickRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.ticks = make(map[string][]model.TickRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return err
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, cloneRun(run))
	}
	sortRunsNewestFirst(runs)
	return runs, nil
}

func (s *MemoryStore) AppendTicks(_ context.Context, runID string, ticks []model.TickRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	stored := s.ticks[runID]
	for _, tick := range ticks {
		stored = append(stored, cloneTick(tick))
	}
	s.ticks[runID] = stored
	return nil
}

func (s *MemoryStore) GetTicks(_ context.Context, runID string) ([]model.TickRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.ticks[runID]
	if !ok {
		return nil, false, nil
	}
	out := make([]model.TickRecord, len(stored))
	for i, tick := range stored {
		out[i] = cloneTick(tick)
	}
	return out, true, nil
}
