package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"etbd/internal/model"
)

func testRun(id, created string) model.RunRecord {
	run := model.RunRecord{
		ID:             id,
		Name:           "fi-5",
		CreatedAtUTC:   created,
		Seed:           7,
		Reps:           1,
		Arrangements:   1,
		Schedules:      2,
		Generations:    3,
		PopulationSize: 10,
		Ticks:          3,
		Reinforcements: []int{1, 0},
		Config:         json.RawMessage(`{"reps":1}`),
	}
	StampVersion(&run)
	return run
}

func testTicks(start, n int) []model.TickRecord {
	ticks := make([]model.TickRecord, n)
	for i := range ticks {
		ticks[i] = model.TickRecord{
			Generation: start + i,
			Emitted:    500 + i,
			InClass:    []bool{true, false},
			Reinforced: []bool{i%2 == 0, false},
			Punished:   []bool{false, false},
		}
	}
	return ticks
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("get missing run: ok=%t err=%v", ok, err)
	}
	if _, ok, err := store.GetTicks(ctx, "missing"); err != nil || ok {
		t.Fatalf("get missing ticks: ok=%t err=%v", ok, err)
	}

	older := testRun("run-a", "2026-01-01T00:00:00Z")
	newer := testRun("run-b", "2026-02-01T00:00:00Z")
	for _, run := range []model.RunRecord{older, newer} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}
	loaded, ok, err := store.GetRun(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if loaded.Name != "fi-5" || loaded.Seed != 7 || len(loaded.Reinforcements) != 2 || string(loaded.Config) != `{"reps":1}` {
		t.Fatalf("unexpected run loaded: %+v", loaded)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-b" || runs[1].ID != "run-a" {
		t.Fatalf("expected newest first, got %+v", runs)
	}

	bad := testRun("run-c", "2026-03-01T00:00:00Z")
	bad.SchemaVersion = 99
	if err := store.SaveRun(ctx, bad); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}

	if err := store.AppendTicks(ctx, "run-a", testTicks(0, 3)); err != nil {
		t.Fatalf("append ticks: %v", err)
	}
	if err := store.AppendTicks(ctx, "run-a", testTicks(3, 2)); err != nil {
		t.Fatalf("append more ticks: %v", err)
	}
	ticks, ok, err := store.GetTicks(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get ticks: ok=%t err=%v", ok, err)
	}
	if len(ticks) != 5 {
		t.Fatalf("ticks=%d want=5", len(ticks))
	}
	for i, tick := range ticks {
		if tick.Generation != i {
			t.Fatalf("tick %d out of order: %+v", i, tick)
		}
		if len(tick.InClass) != 2 || !tick.InClass[0] || tick.InClass[1] {
			t.Fatalf("tick %d columns lost: %+v", i, tick)
		}
	}
	if _, ok, err := store.GetTicks(ctx, "run-b"); err != nil || ok {
		t.Fatalf("run-b must have no ticks: ok=%t err=%v", ok, err)
	}
}
