package experiment

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"etbd/internal/evo"
	"etbd/internal/model"
	"etbd/internal/organism"
	"etbd/internal/schedule"
	"etbd/internal/telemetry"
)

func newOrganism(t *testing.T, rng *rand.Rand) *organism.Organism {
	t.Helper()
	o, err := organism.New(rng, organism.Config{
		PopulationSize: 50,
		LowPheno:       0,
		HighPheno:      100,
		MutationRate:   0.1,
		Landscape:      evo.LandscapeCircular,
		Recombination:  evo.RecombinationBitwise,
		Logger:         telemetry.Discard(),
	})
	if err != nil {
		t.Fatalf("new organism: %v", err)
	}
	return o
}

func newSchedule(t *testing.T, rng *rand.Rand, lower, upper int, mean float64) *schedule.Schedule {
	t.Helper()
	s, err := schedule.New(rng, schedule.Config{
		Timing:   schedule.TimingFixed,
		Counting: schedule.CountingInterval,
		Mean:     mean,
		FDF:      evo.FDF{Kind: evo.FDFLinear, Mean: 10},
		ResponseClass: schedule.ResponseClassBounds{
			Lower: lower,
			Upper: upper,
			Size:  upper - lower,
		},
	})
	if err != nil {
		t.Fatalf("new schedule: %v", err)
	}
	return s
}

type countingObserver struct {
	ticks          int
	reinforcements map[int]int
}

func (o *countingObserver) ObserveTick() { o.ticks++ }

func (o *countingObserver) ObserveReinforcement(i int) {
	if o.reinforcements == nil {
		o.reinforcements = map[int]int{}
	}
	o.reinforcements[i]++
}

func TestDriverStepReinforcesFirstAvailableScheduleOnly(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	o := newOrganism(t, rng)
	// Both schedules cover every phenotype with a zero requirement, so both
	// are always available; only the first may deliver.
	first := newSchedule(t, rng, 0, 128, 0)
	second := newSchedule(t, rng, 0, 128, 0)
	obs := &countingObserver{}
	d, err := NewDriver(o, []*schedule.Schedule{first, second}, obs)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	for range 20 {
		out, err := d.Step(rng)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if out.Reinforcer != 0 || !out.Reinforced[0] || out.Reinforced[1] {
			t.Fatalf("expected only schedule 0 to fire, got %+v", out.Reinforced)
		}
		if !out.InClass[0] || !out.InClass[1] {
			t.Fatalf("expected both in class, got %+v", out.InClass)
		}
	}
	if second.Count() != 20 {
		t.Fatalf("second schedule counter=%d want=20", second.Count())
	}
	if obs.ticks != 20 || obs.reinforcements[0] != 20 || obs.reinforcements[1] != 0 {
		t.Fatalf("unexpected observer state: %+v", obs)
	}
}

func TestDriverStepWithoutReinforcement(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	o := newOrganism(t, rng)
	s := newSchedule(t, rng, 0, 128, 1e9)
	d, err := NewDriver(o, []*schedule.Schedule{s}, nil)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	out, err := d.Step(rng)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if out.Reinforcer != -1 || out.Reinforced[0] {
		t.Fatalf("unexpected reinforcement: %+v", out)
	}
	if len(out.Selection.Pairs) != 50 {
		t.Fatalf("expected random selection of 50 pairs, got %d", len(out.Selection.Pairs))
	}
}

func TestNewRejectsArrangementLengthMismatch(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	o := newOrganism(t, rng)
	_, err := New(Config{
		Organism: o,
		Arrangements: [][]*schedule.Schedule{
			{newSchedule(t, rng, 0, 10, 5), newSchedule(t, rng, 10, 20, 5)},
			{newSchedule(t, rng, 0, 10, 5)},
		},
		Reps:        1,
		Generations: 10,
	})
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunRecordsEveryTick(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	o := newOrganism(t, rng)
	var progress []Progress
	exp, err := New(Config{
		Organism: o,
		Arrangements: [][]*schedule.Schedule{
			{newSchedule(t, rng, 0, 50, 3), newSchedule(t, rng, 50, 100, 3)},
			{newSchedule(t, rng, 0, 50, 6), newSchedule(t, rng, 50, 100, 2)},
		},
		Reps:          2,
		Generations:   25,
		Reinitialize:  true,
		Logger:        telemetry.Discard(),
		ProgressEvery: 10,
		Progress:      func(p Progress) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	rec := &Recorder{}
	summary, err := exp.Run(context.Background(), rng, rec)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Ticks != 100 || rec.Len() != 100 {
		t.Fatalf("ticks=%d records=%d want 100", summary.Ticks, rec.Len())
	}

	records := rec.Records()
	first, last := records[0], records[len(records)-1]
	if first.Rep != 0 || first.Arrangement != 0 || first.Generation != 0 {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if last.Rep != 1 || last.Arrangement != 1 || last.Generation != 24 {
		t.Fatalf("unexpected last record: %+v", last)
	}

	var reinforced int
	for _, r := range records {
		if len(r.InClass) != 2 || len(r.Reinforced) != 2 || len(r.Punished) != 2 {
			t.Fatalf("unexpected column widths: %+v", r)
		}
		for i := range r.Reinforced {
			if r.Reinforced[i] {
				reinforced++
				if !r.InClass[i] {
					t.Fatalf("reinforced emission outside its class: %+v", r)
				}
			}
			if r.Punished[i] {
				t.Fatalf("punishment must never be recorded: %+v", r)
			}
		}
	}
	if reinforced != summary.Reinforcements[0]+summary.Reinforcements[1] {
		t.Fatalf("summary reinforcements %v disagree with records (%d)", summary.Reinforcements, reinforced)
	}
	if len(progress) != 10 || progress[len(progress)-1].Ticks != 100 {
		t.Fatalf("unexpected progress callbacks: %+v", progress)
	}
}

func TestRunStopsAtTickBoundaryOnCancel(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	o := newOrganism(t, rng)
	exp, err := New(Config{
		Organism:     o,
		Arrangements: [][]*schedule.Schedule{{newSchedule(t, rng, 0, 100, 5)}},
		Reps:         1,
		Generations:  1000,
		Logger:       telemetry.Discard(),
	})
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := SinkFunc(func(rec model.TickRecord) error {
		if rec.Generation == 9 {
			cancel()
		}
		return nil
	})
	summary, err := exp.Run(ctx, rng, sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Ticks != 10 || !summary.Cancelled {
		t.Fatalf("expected 10 completed ticks before cancellation, got %+v", summary)
	}
}

func TestRunPropagatesSinkErrors(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	o := newOrganism(t, rng)
	exp, err := New(Config{
		Organism:     o,
		Arrangements: [][]*schedule.Schedule{{newSchedule(t, rng, 0, 100, 5)}},
		Reps:         1,
		Generations:  5,
		Logger:       telemetry.Discard(),
	})
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	boom := errors.New("disk full")
	_, err = exp.Run(context.Background(), rng, MultiSink{&Recorder{}, SinkFunc(func(model.TickRecord) error { return boom })})
	if !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestRecorderReturnsCopies(t *testing.T) {
	rec := &Recorder{}
	in := model.TickRecord{InClass: []bool{true}, Reinforced: []bool{false}, Punished: []bool{false}}
	if err := rec.Record(in); err != nil {
		t.Fatalf("record: %v", err)
	}
	in.InClass[0] = false
	got := rec.Records()
	if !got[0].InClass[0] {
		t.Fatal("recorder must copy slices on record")
	}
	got[0].InClass[0] = false
	if !rec.Records()[0].InClass[0] {
		t.Fatal("recorder must copy slices on read")
	}
}
