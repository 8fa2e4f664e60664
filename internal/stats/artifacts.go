package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"etbd/internal/model"
)

const (
	runIndexFile  = "run_index.json"
	configFile    = "config.json"
	ticksFile     = "ticks.csv"
	binsFile      = "bins.csv"
	summaryFile   = "summary.json"
	runRecordFile = "run.json"
)

// RunConfig is the run-level metadata stored next to the data files.
type RunConfig struct {
	RunID          string          `json:"run_id"`
	Name           string          `json:"name,omitempty"`
	Seed           int64           `json:"seed"`
	Reps           int             `json:"reps"`
	Arrangements   int             `json:"arrangements"`
	Schedules      int             `json:"schedules"`
	Generations    int             `json:"generations"`
	PopulationSize int             `json:"population_size"`
	Workers        int             `json:"workers"`
	BinSize        int             `json:"bin_size"`
	CreatedAtUTC   string          `json:"created_at_utc"`
	Experiment     json.RawMessage `json:"experiment,omitempty"`
}

type RunArtifacts struct {
	Config RunConfig
	Ticks  []model.TickRecord
}

type RunIndexEntry struct {
	RunID                string `json:"run_id"`
	Name                 string `json:"name,omitempty"`
	Reps                 int    `json:"reps"`
	Arrangements         int    `json:"arrangements"`
	Schedules            int    `json:"schedules"`
	Generations          int    `json:"generations"`
	Seed                 int64  `json:"seed"`
	Ticks                int    `json:"ticks"`
	Reinforcements       []int  `json:"reinforcements"`
	SelectionExhaustions int    `json:"selection_exhaustions"`
	CreatedAtUTC         string `json:"created_at_utc"`
}

// WriteRunArtifacts writes config.json, ticks.csv, bins.csv and
// summary.json into baseDir/<run id> and returns that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if artifacts.Config.BinSize <= 0 {
		artifacts.Config.BinSize = DefaultBinSize
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	width := artifacts.Config.Schedules
	if width == 0 && len(artifacts.Ticks) > 0 {
		width = len(artifacts.Ticks[0].InClass)
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeCSVFile(filepath.Join(runDir, ticksFile), func(w io.Writer) error {
		return WriteTicksCSV(w, width, artifacts.Ticks)
	}); err != nil {
		return "", err
	}
	if err := writeCSVFile(filepath.Join(runDir, binsFile), func(w io.Writer) error {
		return WriteBinsCSV(w, width, BinTicks(artifacts.Ticks, artifacts.Config.BinSize))
	}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), Summarize(artifacts.Config.RunID, artifacts.Ticks)); err != nil {
		return "", err
	}
	return runDir, nil
}

// tickFixedColumns counts the ticks.csv columns ahead of the B/R/P flags.
const tickFixedColumns = 5

// TickColumns is the ticks.csv header for width schedules.
func TickColumns(width int) []string {
	header := []string{"Rep", "Sch", "Gen", "Emissions", "Exhausted"}
	return append(header, flagColumns(width)...)
}

func BinColumns(width int) []string {
	header := []string{"Rep", "Sch", "Bin", "Ticks"}
	header = append(header, flagColumns(width)...)
	return append(header, "EmissionMean", "EmissionStdDev")
}

func flagColumns(width int) []string {
	cols := make([]string, 0, 3*width)
	for _, prefix := range []string{"B", "R", "P"} {
		for i := 1; i <= width; i++ {
			cols = append(cols, prefix+strconv.Itoa(i))
		}
	}
	return cols
}

func WriteTicksCSV(w io.Writer, width int, ticks []model.TickRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(TickColumns(width)); err != nil {
		return err
	}
	row := make([]string, 0, tickFixedColumns+3*width)
	for _, tick := range ticks {
		row = row[:0]
		row = append(row,
			strconv.Itoa(tick.Rep),
			strconv.Itoa(tick.Arrangement),
			strconv.Itoa(tick.Generation),
			strconv.Itoa(tick.Emitted),
		)
		row = appendFlags(row, []bool{tick.Exhausted}, 1)
		row = appendFlags(row, tick.InClass, width)
		row = appendFlags(row, tick.Reinforced, width)
		row = appendFlags(row, tick.Punished, width)
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteBinsCSV(w io.Writer, width int, rows []BinRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(BinColumns(width)); err != nil {
		return err
	}
	for _, bin := range rows {
		row := []string{
			strconv.Itoa(bin.Rep),
			strconv.Itoa(bin.Arrangement),
			strconv.Itoa(bin.Bin),
			strconv.Itoa(bin.Ticks),
		}
		row = appendCounts(row, bin.InClass, width)
		row = appendCounts(row, bin.Reinforced, width)
		row = appendCounts(row, bin.Punished, width)
		row = append(row,
			strconv.FormatFloat(bin.EmissionMean, 'f', -1, 64),
			strconv.FormatFloat(bin.EmissionStdDev, 'f', -1, 64),
		)
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTicksCSV parses a ticks.csv written by WriteTicksCSV.
func ReadTicksCSV(r io.Reader) ([]model.TickRecord, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.TickRecord{}, nil
		}
		return nil, err
	}
	if len(header) < tickFixedColumns || (len(header)-tickFixedColumns)%3 != 0 {
		return nil, fmt.Errorf("ticks header has %d columns, want %d + 3*schedules", len(header), tickFixedColumns)
	}
	width := (len(header) - tickFixedColumns) / 3

	ticks := make([]model.TickRecord, 0, 1024)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ints := make([]int, len(record))
		for i, field := range record {
			v, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", len(ticks)+1, header[i], err)
			}
			ints[i] = v
		}
		tick := model.TickRecord{
			Rep:         ints[0],
			Arrangement: ints[1],
			Generation:  ints[2],
			Emitted:     ints[3],
			Exhausted:   ints[4] != 0,
			InClass:     make([]bool, width),
			Reinforced:  make([]bool, width),
			Punished:    make([]bool, width),
		}
		for i := 0; i < width; i++ {
			tick.InClass[i] = ints[tickFixedColumns+i] != 0
			tick.Reinforced[i] = ints[tickFixedColumns+width+i] != 0
			tick.Punished[i] = ints[tickFixedColumns+2*width+i] != 0
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func appendFlags(row []string, flags []bool, width int) []string {
	for i := 0; i < width; i++ {
		if i < len(flags) && flags[i] {
			row = append(row, "1")
		} else {
			row = append(row, "0")
		}
	}
	return row
}

func appendCounts(row []string, counts []int, width int) []string {
	for i := 0; i < width; i++ {
		v := 0
		if i < len(counts) {
			v = counts[i]
		}
		row = append(row, strconv.Itoa(v))
	}
	return row
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Later appends win ties.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory's files into outDir/<run id>.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, ticksFile, binsFile, summaryFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	optional := filepath.Join(src, runRecordFile)
	if _, err := os.Stat(optional); err == nil {
		if err := copyFile(optional, filepath.Join(dst, runRecordFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return dst, nil
}

// WriteRunRecord stores the run record next to the artifacts so an export
// is self describing.
func WriteRunRecord(runDir string, run model.RunRecord) error {
	return writeJSON(filepath.Join(runDir, runRecordFile), run)
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	path := filepath.Join(baseDir, strings.TrimSpace(runID), summaryFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}
	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return RunSummary{}, false, err
	}
	return summary, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func writeCSVFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// ReadRunTicks loads ticks.csv from a run directory.
func ReadRunTicks(baseDir, runID string) ([]model.TickRecord, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, ticksFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	ticks, err := ReadTicksCSV(file)
	if err != nil {
		return nil, false, fmt.Errorf("read %s ticks: %w", runID, err)
	}
	return ticks, true, nil
}
