package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"

	"etbd/internal/config"
	"etbd/internal/model"
	"etbd/internal/storage"
	"etbd/internal/telemetry"
	"etbd/pkg/etbd"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
)

var stdout io.Writer = os.Stdout

func main() {
	loadDefaultEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "validate":
		return runValidate(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "summary":
		return runSummary(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type storeFlags struct {
	storeKind *string
	dbPath    *string
	logLevel  *string
	logFormat *string
}

func registerStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		storeKind: fs.String("store", envOr("ETBD_STORE", storage.DefaultStoreKind()), "store backend: memory|sqlite|leveldb"),
		dbPath:    fs.String("db-path", envOr("ETBD_DB_PATH", "etbd.db"), "sqlite database file or leveldb directory"),
		logLevel:  fs.String("log-level", envOr("ETBD_LOG_LEVEL", "info"), "log level: debug|info|warn|error"),
		logFormat: fs.String("log-format", envOr("ETBD_LOG_FORMAT", "text"), "log format: text|json"),
	}
}

func (f storeFlags) client(reg prometheus.Registerer) (*etbd.Client, error) {
	logger, err := telemetry.NewLogger(os.Stderr, *f.logLevel, *f.logFormat)
	if err != nil {
		return nil, err
	}
	return etbd.New(etbd.Options{
		StoreKind:  *f.storeKind,
		DBPath:     *f.dbPath,
		RunsDir:    runsDir,
		ExportsDir: exportsDir,
		Logger:     logger,
		Registerer: reg,
	})
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	configPath := fs.String("config", "", "experiment config file (.json, .yaml, .yml)")
	seed := fs.Int64("seed", 0, "random seed; 0 uses the config seed or the clock")
	workers := fs.Int("workers", 0, "fitness search workers; 0 uses the config value")
	binSize := fs.Int("bin-size", 0, "generations per summary bin; 0 uses 500")
	showProgress := fs.Bool("progress", false, "render a progress bar on stderr")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("run requires --config")
	}
	if *workers < 0 {
		return errors.New("workers must be >= 0")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	client, err := sf.client(registry)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if *metricsAddr != "" {
		shutdown, err := serveMetrics(*metricsAddr, registry)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	req := etbd.RunRequest{
		Config:  cfg,
		Seed:    *seed,
		Workers: *workers,
		BinSize: *binSize,
	}
	if *showProgress {
		bar := newProgressBar(os.Stderr, cfg.Name)
		defer bar.Stop()
		req.Progress = bar.Update
	}

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "run completed run_id=%s seed=%d ticks=%d reinforcements=%v selection_exhaustions=%d artifacts=%s\n",
		summary.RunID, summary.Seed, summary.Ticks, summary.Reinforcements, summary.SelectionExhaustions, summary.ArtifactsDir)
	return nil
}

func runValidate(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	configPath := fs.String("config", "", "experiment config file (.json, .yaml, .yml)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("validate requires --config")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, model.ErrUnimplemented) {
			return fmt.Errorf("%s uses an unsupported feature: %w", *configPath, err)
		}
		return err
	}
	schedules := 0
	if len(cfg.Arrangements) > 0 {
		schedules = len(cfg.Arrangements[0])
	}
	fmt.Fprintf(stdout, "config ok name=%q reps=%d arrangements=%d schedules=%d generations=%d\n",
		cfg.Name, cfg.Reps, len(cfg.Arrangements), schedules, cfg.Generations)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := sf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, etbd.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}

	if *jsonOut {
		type runsItem struct {
			RunID                string `json:"run_id"`
			Name                 string `json:"name,omitempty"`
			CreatedAtUTC         string `json:"created_at_utc"`
			Seed                 int64  `json:"seed"`
			Reps                 int    `json:"reps"`
			Arrangements         int    `json:"arrangements"`
			Schedules            int    `json:"schedules"`
			Generations          int    `json:"generations"`
			Ticks                int    `json:"ticks"`
			Reinforcements       []int  `json:"reinforcements"`
			SelectionExhaustions int    `json:"selection_exhaustions"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem(item))
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	t := table.NewWriter()
	t.SetOutputMirror(stdout)
	t.AppendHeader(table.Row{"Run ID", "Name", "Created (UTC)", "Seed", "Reps", "Arr", "Gens", "Ticks", "Reinforcements", "Exhausted"})
	for _, item := range items {
		t.AppendRow(table.Row{
			item.RunID, item.Name, item.CreatedAtUTC, item.Seed, item.Reps, item.Arrangements,
			item.Generations, item.Ticks, joinInts(item.Reinforcements), item.SelectionExhaustions,
		})
	}
	t.Render()
	return nil
}

func runSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "summarize the most recent run")
	binSize := fs.Int("bin-size", 0, "generations per bin; 0 uses the run's bin size")
	showBins := fs.Bool("bins", false, "print the binned table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("summary requires --run-id or --latest")
	}

	client, err := sf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	result, err := client.Summary(ctx, etbd.SummaryRequest{RunID: *runID, Latest: *latest, BinSize: *binSize})
	if err != nil {
		return err
	}

	s := result.Stats
	t := table.NewWriter()
	t.SetOutputMirror(stdout)
	t.SetTitle(fmt.Sprintf("Run %s", result.RunID))
	t.AppendHeader(table.Row{"Schedule", "In Class", "Reinforced", "Response Rate"})
	for i := 0; i < s.Schedules; i++ {
		t.AppendRow(table.Row{i + 1, s.InClass[i], s.Reinforced[i], fmt.Sprintf("%0.4f", s.ResponseRates[i])})
	}
	t.AppendFooter(table.Row{"Ticks", s.Ticks, "Emission", fmt.Sprintf("%0.2f ± %0.2f", s.EmissionMean, s.EmissionStdDev)})
	t.Render()

	if *showBins {
		bt := table.NewWriter()
		bt.SetOutputMirror(stdout)
		bt.SetTitle("Bins")
		bt.AppendHeader(table.Row{"Rep", "Sch", "Bin", "Ticks", "B", "R", "Emission Mean", "Emission SD"})
		for _, b := range result.Bins {
			bt.AppendRow(table.Row{
				b.Rep, b.Arrangement, b.Bin, b.Ticks, joinInts(b.InClass), joinInts(b.Reinforced),
				fmt.Sprintf("%0.2f", b.EmissionMean), fmt.Sprintf("%0.2f", b.EmissionStdDev),
			})
		}
		bt.Render()
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := etbd.New(etbd.Options{StoreKind: "memory", RunsDir: runsDir, ExportsDir: exportsDir, Logger: telemetry.Discard()})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, etbd.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, filepath.Clean(exported.Directory))
	return nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "/")
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: etbdctl <run|validate|runs|summary|export> [flags]", msg)
}
