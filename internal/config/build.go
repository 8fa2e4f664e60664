package config

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"etbd/internal/experiment"
	"etbd/internal/organism"
	"etbd/internal/schedule"
	"etbd/internal/telemetry"
)

type BuildOptions struct {
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	// Workers overrides the configured selection worker count when > 0.
	Workers       int
	ProgressEvery int
	Progress      func(experiment.Progress)
}

// Build validates cfg and constructs the organism and every schedule.
// Response classes and the initial population are drawn from rng.
func Build(cfg ExperimentConfig, rng *rand.Rand, opts BuildOptions) (*experiment.Experiment, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	orgCfg, err := cfg.OrganismConfig()
	if err != nil {
		return nil, err
	}
	if opts.Workers > 0 {
		orgCfg.SelectionWorkers = opts.Workers
	}
	orgCfg.Logger = logger
	orgCfg.Observer = opts.Metrics
	o, err := organism.New(rng, orgCfg)
	if err != nil {
		return nil, fmt.Errorf("build organism: %w", err)
	}

	arrangements := make([][]*schedule.Schedule, len(cfg.Arrangements))
	for i, arrangement := range cfg.Arrangements {
		arrangements[i] = make([]*schedule.Schedule, len(arrangement))
		for j, sc := range arrangement {
			resolved, err := sc.Resolve()
			if err != nil {
				return nil, fmt.Errorf("arrangement %d schedule %d: %w", i, j, err)
			}
			s, err := schedule.New(rng, resolved)
			if err != nil {
				return nil, fmt.Errorf("arrangement %d schedule %d: %w", i, j, err)
			}
			arrangements[i][j] = s
			logger.Debug("schedule built", "arrangement", i, "schedule", j, "detail", s.String())
		}
		for j := range arrangements[i] {
			for k := j + 1; k < len(arrangements[i]); k++ {
				if arrangements[i][j].ResponseClass().Overlaps(arrangements[i][k].ResponseClass()) {
					logger.Warn("response classes overlap within an arrangement", "arrangement", i, "first", j, "second", k)
				}
			}
		}
	}

	return experiment.New(experiment.Config{
		Organism:      o,
		Arrangements:  arrangements,
		Reps:          cfg.Reps,
		Generations:   cfg.Generations,
		Reinitialize:  cfg.ReinitializePopulation,
		Observer:      opts.Metrics,
		Logger:        logger,
		ProgressEvery: opts.ProgressEvery,
		Progress:      opts.Progress,
	})
}
