package storage

import (
	"context"
	"errors"

	"etbd/internal/model"
)

var ErrRunNotFound = errors.New("run not found")

// Store persists run metadata and the per-tick records of each run.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run, newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	// AppendTicks adds ticks after any already stored for runID.
	AppendTicks(ctx context.Context, runID string, ticks []model.TickRecord) error
	GetTicks(ctx context.Context, runID string) ([]model.TickRecord, bool, error)
}
