package etbd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"etbd/internal/config"
	"etbd/internal/experiment"
	"etbd/internal/model"
	"etbd/internal/stats"
	"etbd/internal/storage"
	"etbd/internal/telemetry"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "etbd.db"

	// seedStream is the fixed PCG stream paired with the user seed.
	seedStream uint64 = 0x9e3779b97f4a7c15
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	Logger     *slog.Logger
	// Registerer receives the engine counters. Nil keeps them unregistered.
	Registerer prometheus.Registerer
}

type Client struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics

	runsDir    string
	exportsDir string

	initMu      sync.Mutex
	initialized bool
}

type RunRequest struct {
	Config config.ExperimentConfig
	// Seed overrides Config.Seed when non-zero. With both zero a seed is
	// derived from the clock and reported back in RunSummary.
	Seed          int64
	Workers       int
	BinSize       int
	ProgressEvery int
	Progress      func(experiment.Progress)
}

type RunSummary struct {
	RunID                string
	ArtifactsDir         string
	Seed                 int64
	Ticks                int
	Reinforcements       []int
	SelectionExhaustions int
	Stats                stats.RunSummary
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID                string
	Name                 string
	CreatedAtUTC         string
	Seed                 int64
	Reps                 int
	Arrangements         int
	Schedules            int
	Generations          int
	Ticks                int
	Reinforcements       []int
	SelectionExhaustions int
}

type SummaryRequest struct {
	RunID   string
	Latest  bool
	BinSize int
}

type SummaryResult struct {
	RunID string
	Stats stats.RunSummary
	Bins  []stats.BinRow
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	return &Client{
		store:      store,
		logger:     logger,
		metrics:    metrics,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

// Validate checks a configuration without running it.
func (c *Client) Validate(cfg config.ExperimentConfig) error {
	return cfg.Validate()
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}

	seed := req.Seed
	if seed == 0 {
		seed = cfg.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cfg.Seed = seed
	if req.Workers > 0 {
		cfg.Workers = req.Workers
	}

	now := time.Now().UTC()
	runID := uuid.NewString()
	logger := c.logger.With("run_id", runID)
	rng := rand.New(rand.NewPCG(uint64(seed), seedStream))

	exp, err := config.Build(cfg, rng, config.BuildOptions{
		Logger:        logger,
		Metrics:       c.metrics,
		ProgressEvery: req.ProgressEvery,
		Progress:      req.Progress,
	})
	if err != nil {
		return RunSummary{}, err
	}

	recorder := &experiment.Recorder{}
	writer := storage.NewTickWriter(ctx, c.store, runID, storage.DefaultTickBatch)
	summary, err := exp.Run(ctx, rng, experiment.MultiSink{recorder, writer})
	if err != nil {
		return RunSummary{}, err
	}

	rawConfig, err := json.Marshal(cfg)
	if err != nil {
		return RunSummary{}, fmt.Errorf("encode config: %w", err)
	}
	run := model.RunRecord{
		ID:                   runID,
		Name:                 cfg.Name,
		CreatedAtUTC:         now.Format(time.RFC3339Nano),
		Seed:                 seed,
		Reps:                 exp.Reps(),
		Arrangements:         exp.Arrangements(),
		Schedules:            exp.Schedules(),
		Generations:          exp.Generations(),
		PopulationSize:       cfg.PopulationSize,
		Ticks:                summary.Ticks,
		Reinforcements:       summary.Reinforcements,
		SelectionExhaustions: summary.SelectionExhaustions,
		Config:               rawConfig,
	}
	storage.StampVersion(&run)
	if err := c.store.SaveRun(ctx, run); err != nil {
		return RunSummary{}, fmt.Errorf("save run: %w", err)
	}

	ticks := recorder.Records()
	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          runID,
			Name:           cfg.Name,
			Seed:           seed,
			Reps:           run.Reps,
			Arrangements:   run.Arrangements,
			Schedules:      run.Schedules,
			Generations:    run.Generations,
			PopulationSize: run.PopulationSize,
			Workers:        cfg.Workers,
			BinSize:        req.BinSize,
			CreatedAtUTC:   run.CreatedAtUTC,
			Experiment:     rawConfig,
		},
		Ticks: ticks,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.WriteRunRecord(runDir, run); err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:                runID,
		Name:                 cfg.Name,
		Reps:                 run.Reps,
		Arrangements:         run.Arrangements,
		Schedules:            run.Schedules,
		Generations:          run.Generations,
		Seed:                 seed,
		Ticks:                run.Ticks,
		Reinforcements:       run.Reinforcements,
		SelectionExhaustions: run.SelectionExhaustions,
		CreatedAtUTC:         run.CreatedAtUTC,
	}); err != nil {
		return RunSummary{}, err
	}

	logger.Info("run stored", "artifacts", runDir, "ticks", run.Ticks)
	return RunSummary{
		RunID:                runID,
		ArtifactsDir:         filepath.Clean(runDir),
		Seed:                 seed,
		Ticks:                run.Ticks,
		Reinforcements:       append([]int(nil), run.Reinforcements...),
		SelectionExhaustions: run.SelectionExhaustions,
		Stats:                stats.Summarize(runID, ticks),
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:                e.RunID,
			Name:                 e.Name,
			CreatedAtUTC:         e.CreatedAtUTC,
			Seed:                 e.Seed,
			Reps:                 e.Reps,
			Arrangements:         e.Arrangements,
			Schedules:            e.Schedules,
			Generations:          e.Generations,
			Ticks:                e.Ticks,
			Reinforcements:       append([]int(nil), e.Reinforcements...),
			SelectionExhaustions: e.SelectionExhaustions,
		})
	}
	return out, nil
}

// Summary totals and bins a stored run. Ticks come from the store when it
// still holds them and from the run's ticks.csv otherwise.
func (c *Client) Summary(ctx context.Context, req SummaryRequest) (SummaryResult, error) {
	if err := c.Init(ctx); err != nil {
		return SummaryResult{}, err
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return SummaryResult{}, err
	}
	ticks, err := c.ticks(ctx, runID)
	if err != nil {
		return SummaryResult{}, err
	}
	binSize := req.BinSize
	if binSize <= 0 {
		if cfg, ok, err := stats.ReadRunConfig(c.runsDir, runID); err == nil && ok {
			binSize = cfg.BinSize
		}
	}
	return SummaryResult{
		RunID: runID,
		Stats: stats.Summarize(runID, ticks),
		Bins:  stats.BinTicks(ticks, binSize),
	}, nil
}

// Ticks returns every recorded tick of a run in generation order.
func (c *Client) Ticks(ctx context.Context, runID string) ([]model.TickRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.ticks(ctx, runID)
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if !latest {
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no runs recorded in %s", storage.ErrRunNotFound, c.runsDir)
	}
	return entries[0].RunID, nil
}

func (c *Client) ticks(ctx context.Context, runID string) ([]model.TickRecord, error) {
	ticks, ok, err := c.store.GetTicks(ctx, runID)
	if err != nil {
		return nil, err
	}
	if ok {
		return ticks, nil
	}
	ticks, ok, err = stats.ReadRunTicks(c.runsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrRunNotFound, runID)
	}
	return ticks, nil
}
