package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"etbd/internal/model"
	"etbd/internal/organism"
	"etbd/internal/schedule"
)

const DefaultProgressEvery = 500

type Config struct {
	Organism     *organism.Organism
	Arrangements [][]*schedule.Schedule
	Reps         int
	Generations  int
	Reinitialize bool

	Observer      TickObserver
	Logger        *slog.Logger
	ProgressEvery int
	Progress      func(Progress)
}

// Progress reports the position of the generation loop. Indexes are zero based.
type Progress struct {
	Rep          int
	Arrangement  int
	Generation   int
	Reps         int
	Arrangements int
	Generations  int
	Ticks        int
	TotalTicks   int
}

// Summary aggregates a completed (or cancelled) run.
type Summary struct {
	Ticks int
	// Reinforcements counts deliveries per schedule position within the arrangement.
	Reinforcements       []int
	SelectionExhaustions int
	Cancelled            bool
}

// Experiment runs one organism over every arrangement for every rep.
type Experiment struct {
	cfg     Config
	drivers []*Driver
	width   int
}

func New(cfg Config) (*Experiment, error) {
	if cfg.Organism == nil {
		return nil, fmt.Errorf("%w: organism is required", model.ErrConfiguration)
	}
	if len(cfg.Arrangements) == 0 {
		return nil, fmt.Errorf("%w: at least one schedule arrangement is required", model.ErrConfiguration)
	}
	if cfg.Reps <= 0 {
		return nil, fmt.Errorf("%w: reps must be > 0", model.ErrConfiguration)
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("%w: generations must be > 0", model.ErrConfiguration)
	}
	width := len(cfg.Arrangements[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: arrangement 0 has no schedules", model.ErrConfiguration)
	}
	drivers := make([]*Driver, 0, len(cfg.Arrangements))
	for i, arrangement := range cfg.Arrangements {
		if len(arrangement) != width {
			return nil, fmt.Errorf("%w: arrangement %d has %d schedules, want %d", model.ErrConfiguration, i, len(arrangement), width)
		}
		d, err := NewDriver(cfg.Organism, arrangement, cfg.Observer)
		if err != nil {
			return nil, fmt.Errorf("%w: arrangement %d: %v", model.ErrConfiguration, i, err)
		}
		drivers = append(drivers, d)
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Experiment{cfg: cfg, drivers: drivers, width: width}, nil
}

// Schedules is the number of schedules in every arrangement.
func (e *Experiment) Schedules() int {
	return e.width
}

func (e *Experiment) Arrangements() int {
	return len(e.drivers)
}

func (e *Experiment) Reps() int {
	return e.cfg.Reps
}

func (e *Experiment) Generations() int {
	return e.cfg.Generations
}

func (e *Experiment) TotalTicks() int {
	return e.cfg.Reps * len(e.drivers) * e.cfg.Generations
}

func (e *Experiment) Organism() *organism.Organism {
	return e.cfg.Organism
}

// Run executes the whole loop and hands one record per tick to sink. The
// context is only consulted between ticks; on cancellation the partial
// summary is returned alongside ctx.Err().
func (e *Experiment) Run(ctx context.Context, rng *rand.Rand, sink Sink) (Summary, error) {
	if rng == nil {
		return Summary{}, fmt.Errorf("random source is required")
	}
	summary := Summary{Reinforcements: make([]int, e.width)}
	total := e.TotalTicks()
	e.cfg.Logger.Info("experiment started",
		"reps", e.cfg.Reps,
		"arrangements", len(e.drivers),
		"schedules", e.width,
		"generations", e.cfg.Generations,
	)

	for rep := 0; rep < e.cfg.Reps; rep++ {
		for a, driver := range e.drivers {
			if e.cfg.Reinitialize {
				e.cfg.Organism.Reinitialize(rng)
			}
			for gen := 0; gen < e.cfg.Generations; gen++ {
				if err := ctx.Err(); err != nil {
					summary.Cancelled = true
					e.cfg.Logger.Warn("experiment cancelled", "ticks", summary.Ticks, "error", err)
					if f, ok := sink.(Flusher); ok {
						if ferr := f.Flush(); ferr != nil {
							e.cfg.Logger.Error("flush sink after cancellation", "error", ferr)
						}
					}
					return summary, err
				}
				out, err := driver.Step(rng)
				if err != nil {
					return summary, fmt.Errorf("rep %d arrangement %d generation %d: %w", rep, a, gen, err)
				}
				summary.Ticks++
				if out.Reinforcer >= 0 {
					summary.Reinforcements[out.Reinforcer]++
				}
				if out.Selection.Exhausted {
					summary.SelectionExhaustions++
				}
				if sink != nil {
					rec := model.TickRecord{
						Rep:         rep,
						Arrangement: a,
						Generation:  gen,
						Emitted:     out.Emitted,
						InClass:     out.InClass,
						Reinforced:  out.Reinforced,
						Punished:    make([]bool, e.width),
						Exhausted:   out.Selection.Exhausted,
					}
					if err := sink.Record(rec); err != nil {
						return summary, fmt.Errorf("record tick: %w", err)
					}
				}
				if e.cfg.Progress != nil && (summary.Ticks%e.cfg.ProgressEvery == 0 || summary.Ticks == total) {
					e.cfg.Progress(Progress{
						Rep:          rep,
						Arrangement:  a,
						Generation:   gen,
						Reps:         e.cfg.Reps,
						Arrangements: len(e.drivers),
						Generations:  e.cfg.Generations,
						Ticks:        summary.Ticks,
						TotalTicks:   total,
					})
				}
			}
		}
	}
	if f, ok := sink.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return summary, fmt.Errorf("flush sink: %w", err)
		}
	}
	e.cfg.Logger.Info("experiment finished",
		"ticks", summary.Ticks,
		"reinforcements", summary.Reinforcements,
		"selection_exhaustions", summary.SelectionExhaustions,
	)
	return summary, nil
}
