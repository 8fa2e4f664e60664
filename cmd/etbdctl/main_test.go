package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"etbd/internal/model"
	"etbd/internal/stats"
)

const smallExperiment = `
name: cli-small
reps: 1
generations: 25
population_size: 20
arrangements:
  - - mean: 3
    - mean: 6
      response_class_lower_bound: 512
      response_class_upper_bound: 553
`

func chdirTemp(t *testing.T) string {
	t.Helper()
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	workdir := t.TempDir()
	if err := os.Chdir(workdir); err != nil {
		t.Fatalf("chdir tempdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origWD)
	})
	return workdir
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	t.Cleanup(func() {
		stdout = orig
	})
	return &buf
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "experiment.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunRunsSummaryExport(t *testing.T) {
	workdir := chdirTemp(t)
	out := captureStdout(t)
	cfgPath := writeConfig(t, workdir, smallExperiment)
	ctx := context.Background()

	if err := run(ctx, []string{"run", "--store", "memory", "--config", cfgPath, "--seed", "7", "--workers", "2", "--log-level", "error"}); err != nil {
		t.Fatalf("run command: %v", err)
	}
	if !strings.Contains(out.String(), "run completed") || !strings.Contains(out.String(), "ticks=25") {
		t.Fatalf("unexpected run output: %s", out.String())
	}

	entries, err := stats.ListRunIndex(runsDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one indexed run, got %d", len(entries))
	}
	runID := entries[0].RunID
	for _, file := range []string{"config.json", "ticks.csv", "bins.csv", "summary.json"} {
		if _, err := os.Stat(filepath.Join(runsDir, runID, file)); err != nil {
			t.Fatalf("expected artifact %s: %v", file, err)
		}
	}

	out.Reset()
	if err := run(ctx, []string{"runs", "--store", "memory", "--json"}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
	var listed []map[string]any
	if err := json.Unmarshal(out.Bytes(), &listed); err != nil {
		t.Fatalf("decode runs json: %v", err)
	}
	if len(listed) != 1 || listed[0]["run_id"] != runID || listed[0]["seed"] != float64(7) {
		t.Fatalf("unexpected runs output: %v", listed)
	}

	out.Reset()
	if err := run(ctx, []string{"summary", "--store", "memory", "--latest", "--bins"}); err != nil {
		t.Fatalf("summary command: %v", err)
	}
	summary := strings.ToLower(out.String())
	if !strings.Contains(summary, runID) || !strings.Contains(summary, "emission mean") {
		t.Fatalf("unexpected summary output: %s", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"export", "--run-id", runID}); err != nil {
		t.Fatalf("export command: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exportsDir, runID, "ticks.csv")); err != nil {
		t.Fatalf("expected exported ticks: %v", err)
	}
	if !strings.Contains(out.String(), "exported run_id="+runID) {
		t.Fatalf("unexpected export output: %s", out.String())
	}
}

func TestValidateCommand(t *testing.T) {
	workdir := chdirTemp(t)
	out := captureStdout(t)

	if err := run(context.Background(), []string{"validate", "--config", writeConfig(t, workdir, smallExperiment)}); err != nil {
		t.Fatalf("validate command: %v", err)
	}
	if !strings.Contains(out.String(), "config ok") || !strings.Contains(out.String(), "schedules=2") {
		t.Fatalf("unexpected validate output: %s", out.String())
	}

	tooLarge := strings.Replace(smallExperiment, "  - - mean: 3", "  - - mean: 3\n      response_class_size: 500", 1)
	err := run(context.Background(), []string{"validate", "--config", writeConfig(t, workdir, tooLarge)})
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error for an unfillable response class, got %v", err)
	}

	punish := strings.Replace(smallExperiment, "  - - mean: 3", "  - - kind: punishment\n      mean: 3", 1)
	err = run(context.Background(), []string{"validate", "--config", writeConfig(t, workdir, punish)})
	if !errors.Is(err, model.ErrUnimplemented) {
		t.Fatalf("expected unimplemented error, got %v", err)
	}
}

func TestCommandErrors(t *testing.T) {
	chdirTemp(t)
	captureStdout(t)
	ctx := context.Background()

	if err := run(ctx, nil); err == nil || !strings.Contains(err.Error(), "usage: etbdctl") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run(ctx, []string{"bogus"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if err := run(ctx, []string{"run", "--store", "memory"}); err == nil {
		t.Fatal("expected missing config error")
	}
	if err := run(ctx, []string{"summary", "--store", "memory"}); err == nil {
		t.Fatal("expected missing run selector error")
	}
	if err := run(ctx, []string{"export", "--run-id", "x", "--latest"}); err == nil {
		t.Fatal("expected conflicting selector error")
	}
	if err := run(ctx, []string{"runs", "--store", "memory", "--limit", "0"}); err == nil {
		t.Fatal("expected limit error")
	}
}
