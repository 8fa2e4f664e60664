package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"etbd/internal/model"
)

const (
	runKeyPrefix  = "run/"
	tickKeyPrefix = "tick/"
)

// LevelDBStore keeps runs under "run/<id>" and ticks under
// "tick/<id>/<seq>" with a zero padded sequence so iteration order is tick order.
type LevelDBStore struct {
	path string

	mu sync.RWMutex
	db *leveldb.DB
}

func NewLevelDBStore(path string) *LevelDBStore {
	return &LevelDBStore{path: path}
}

func (s *LevelDBStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("leveldb path is required")
	}
	if s.db != nil {
		return nil
	}
	db, err := leveldb.OpenFile(s.path, nil)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *LevelDBStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return errors.New("store is not initialized")
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return err
	}
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	return s.db.Put(runKey(run.ID), payload, nil)
}

func (s *LevelDBStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return model.RunRecord{}, false, errors.New("store is not initialized")
	}
	payload, err := s.db.Get(runKey(id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}
	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *LevelDBStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	iter := s.db.NewIterator(util.BytesPrefix([]byte(runKeyPrefix)), nil)
	defer iter.Release()

	var runs []model.RunRecord
	for iter.Next() {
		run, err := DecodeRun(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		runs = append(runs, run)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sortRunsNewestFirst(runs)
	return runs, nil
}

func (s *LevelDBStore) AppendTicks(_ context.Context, runID string, ticks []model.TickRecord) error {
	// Exclusive so two appends for the same run cannot pick the same sequence.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New("store is not initialized")
	}
	next, err := s.nextTickSeq(runID)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	for i, tick := range ticks {
		payload, err := EncodeTick(tick)
		if err != nil {
			return err
		}
		batch.Put(tickKey(runID, next+i), payload)
	}
	return s.db.Write(batch, nil)
}

func (s *LevelDBStore) GetTicks(_ context.Context, runID string) ([]model.TickRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, false, errors.New("store is not initialized")
	}
	iter := s.db.NewIterator(util.BytesPrefix(tickPrefix(runID)), nil)
	defer iter.Release()

	var ticks []model.TickRecord
	for iter.Next() {
		tick, err := DecodeTick(iter.Value())
		if err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		ticks = append(ticks, tick)
	}
	if err := iter.Error(); err != nil {
		return nil, false, err
	}
	if ticks == nil {
		return nil, false, nil
	}
	return ticks, true, nil
}

func (s *LevelDBStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *LevelDBStore) nextTickSeq(runID string) (int, error) {
	iter := s.db.NewIterator(util.BytesPrefix(tickPrefix(runID)), nil)
	defer iter.Release()

	if !iter.Last() {
		return 0, iter.Error()
	}
	key := string(iter.Key())
	seq, err := strconv.Atoi(key[strings.LastIndexByte(key, '/')+1:])
	if err != nil {
		return 0, fmt.Errorf("malformed tick key %q: %w", key, err)
	}
	return seq + 1, nil
}

func runKey(id string) []byte {
	return []byte(runKeyPrefix + id)
}

func tickPrefix(runID string) []byte {
	return []byte(tickKeyPrefix + runID + "/")
}

func tickKey(runID string, seq int) []byte {
	return fmt.Appendf(tickPrefix(runID), "%012d", seq)
}
