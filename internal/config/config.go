package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"etbd/internal/evo"
	"etbd/internal/model"
	"etbd/internal/organism"
	"etbd/internal/schedule"
)

const (
	ScheduleKindReinforcement = "reinforcement"
	ScheduleKindPunishment    = "punishment"
)

// ExperimentConfig is the on-disk description of an experiment. Fields left
// out of a file keep the values from DefaultExperimentConfig.
type ExperimentConfig struct {
	Name                   string             `json:"name" yaml:"name"`
	Reps                   int                `json:"reps" yaml:"reps"`
	Generations            int                `json:"generations" yaml:"generations"`
	PopulationSize         int                `json:"population_size" yaml:"population_size"`
	LowPheno               int                `json:"low_pheno" yaml:"low_pheno"`
	HighPheno              int                `json:"high_pheno" yaml:"high_pheno"`
	MutationRate           float64            `json:"mutation_rate" yaml:"mutation_rate"`
	FitnessLandscape       string             `json:"fitness_landscape" yaml:"fitness_landscape"`
	RecombinationMethod    string             `json:"recombination_method" yaml:"recombination_method"`
	MutationMethod         string             `json:"mutation_method" yaml:"mutation_method"`
	ReinitializePopulation bool               `json:"reinitialize_population" yaml:"reinitialize_population"`
	Seed                   int64              `json:"seed" yaml:"seed"`
	Workers                int                `json:"workers" yaml:"workers"`
	SelectionBudget        int                `json:"selection_budget,omitempty" yaml:"selection_budget,omitempty"`
	Arrangements           [][]ScheduleConfig `json:"arrangements" yaml:"arrangements"`
}

// ScheduleConfig describes one schedule. Response class bounds are half open.
type ScheduleConfig struct {
	Kind                    string  `json:"kind" yaml:"kind"`
	ScheduleType            string  `json:"schedule_type" yaml:"schedule_type"`
	ScheduleSubtype         string  `json:"schedule_subtype" yaml:"schedule_subtype"`
	Mean                    float64 `json:"mean" yaml:"mean"`
	FDFType                 string  `json:"fdf_type" yaml:"fdf_type"`
	FDFMean                 float64 `json:"fdf_mean" yaml:"fdf_mean"`
	ResponseClassLowerBound int     `json:"response_class_lower_bound" yaml:"response_class_lower_bound"`
	ResponseClassUpperBound int     `json:"response_class_upper_bound" yaml:"response_class_upper_bound"`
	ResponseClassSize       int     `json:"response_class_size" yaml:"response_class_size"`
	ExcludedLowerBound      int     `json:"excluded_lower_bound" yaml:"excluded_lower_bound"`
	ExcludedUpperBound      int     `json:"excluded_upper_bound" yaml:"excluded_upper_bound"`
}

func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		Reps:                   1,
		Generations:            20500,
		PopulationSize:         100,
		LowPheno:               0,
		HighPheno:              1023,
		MutationRate:           0.1,
		FitnessLandscape:       "circular_landscape",
		RecombinationMethod:    "bitwise",
		MutationMethod:         "bit_flip",
		ReinitializePopulation: true,
		Workers:                1,
	}
}

func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Kind:                    ScheduleKindReinforcement,
		ScheduleType:            "random",
		ScheduleSubtype:         "interval",
		Mean:                    20,
		FDFType:                 "linear_fdf",
		FDFMean:                 40,
		ResponseClassLowerBound: 471,
		ResponseClassUpperBound: 512,
		ResponseClassSize:       41,
	}
}

func (s *ScheduleConfig) UnmarshalJSON(data []byte) error {
	type plain ScheduleConfig
	p := plain(DefaultScheduleConfig())
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*s = ScheduleConfig(p)
	return nil
}

func (s *ScheduleConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain ScheduleConfig
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			if _, ok := scheduleKeys[key]; !ok {
				return fmt.Errorf("line %d: field %s not found in schedule", node.Content[i].Line, key)
			}
		}
	}
	p := plain(DefaultScheduleConfig())
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = ScheduleConfig(p)
	return nil
}

// node.Decode does not inherit KnownFields from the outer decoder.
var scheduleKeys = map[string]struct{}{
	"kind":                       {},
	"schedule_type":              {},
	"schedule_subtype":           {},
	"mean":                       {},
	"fdf_type":                   {},
	"fdf_mean":                   {},
	"response_class_lower_bound": {},
	"response_class_upper_bound": {},
	"response_class_size":        {},
	"excluded_lower_bound":       {},
	"excluded_upper_bound":       {},
}

// Load reads an experiment file, choosing the decoder from its extension.
func Load(path string) (ExperimentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExperimentConfig{}, err
	}
	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = "json"
	case ".yaml", ".yml":
		format = "yaml"
	default:
		return ExperimentConfig{}, fmt.Errorf("%w: unsupported config extension %q", model.ErrConfiguration, filepath.Ext(path))
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return ExperimentConfig{}, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data as "json" or "yaml" on top of the defaults. Unknown
// fields are rejected.
func Parse(data []byte, format string) (ExperimentConfig, error) {
	cfg := DefaultExperimentConfig()
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return ExperimentConfig{}, fmt.Errorf("%w: decode json: %v", model.ErrConfiguration, err)
		}
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return ExperimentConfig{}, fmt.Errorf("%w: decode yaml: %v", model.ErrConfiguration, err)
		}
	default:
		return ExperimentConfig{}, fmt.Errorf("%w: unsupported config format %q", model.ErrConfiguration, format)
	}
	return cfg, nil
}

// Validate checks every field without drawing any randomness. Punishment
// schedules and variable timing report model.ErrUnimplemented.
func (c ExperimentConfig) Validate() error {
	if _, err := c.OrganismConfig(); err != nil {
		return err
	}
	if c.Reps <= 0 {
		return fmt.Errorf("%w: reps must be > 0", model.ErrConfiguration)
	}
	if c.Generations <= 0 {
		return fmt.Errorf("%w: generations must be > 0", model.ErrConfiguration)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0", model.ErrConfiguration)
	}
	if len(c.Arrangements) == 0 {
		return fmt.Errorf("%w: at least one schedule arrangement is required", model.ErrConfiguration)
	}
	width := len(c.Arrangements[0])
	for i, arrangement := range c.Arrangements {
		if len(arrangement) == 0 {
			return fmt.Errorf("%w: arrangement %d has no schedules", model.ErrConfiguration, i)
		}
		if len(arrangement) != width {
			return fmt.Errorf("%w: arrangement %d has %d schedules, want %d", model.ErrConfiguration, i, len(arrangement), width)
		}
		for j, s := range arrangement {
			if _, err := s.Resolve(); err != nil {
				return fmt.Errorf("arrangement %d schedule %d: %w", i, j, err)
			}
		}
	}
	return nil
}

// OrganismConfig resolves the organism settings into their typed form.
func (c ExperimentConfig) OrganismConfig() (organism.Config, error) {
	landscape, err := evo.ParseLandscapeKind(c.FitnessLandscape)
	if err != nil {
		return organism.Config{}, err
	}
	recombination, err := evo.ParseRecombinationKind(c.RecombinationMethod)
	if err != nil {
		return organism.Config{}, err
	}
	mutation, err := evo.ParseMutationKind(c.MutationMethod)
	if err != nil {
		return organism.Config{}, err
	}
	if c.PopulationSize <= 0 {
		return organism.Config{}, fmt.Errorf("%w: population_size must be > 0", model.ErrConfiguration)
	}
	if c.LowPheno < 0 || c.HighPheno <= c.LowPheno {
		return organism.Config{}, fmt.Errorf("%w: need 0 <= low_pheno < high_pheno, got %d and %d", model.ErrConfiguration, c.LowPheno, c.HighPheno)
	}
	if err := evo.ValidateMutationRate(c.MutationRate); err != nil {
		return organism.Config{}, err
	}
	return organism.Config{
		PopulationSize:   c.PopulationSize,
		LowPheno:         c.LowPheno,
		HighPheno:        c.HighPheno,
		MutationRate:     c.MutationRate,
		Landscape:        landscape,
		Recombination:    recombination,
		Mutation:         mutation,
		SelectionBudget:  c.SelectionBudget,
		SelectionWorkers: c.Workers,
	}, nil
}

// Resolve turns the schedule settings into their typed form.
func (s ScheduleConfig) Resolve() (schedule.Config, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case ScheduleKindReinforcement:
	case ScheduleKindPunishment:
		return schedule.Config{}, fmt.Errorf("%w: punishment schedules", model.ErrUnimplemented)
	default:
		return schedule.Config{}, fmt.Errorf("%w: unknown schedule kind %q", model.ErrConfiguration, s.Kind)
	}
	timing, err := schedule.ParseTiming(s.ScheduleType)
	if err != nil {
		return schedule.Config{}, err
	}
	counting, err := schedule.ParseCounting(s.ScheduleSubtype)
	if err != nil {
		return schedule.Config{}, err
	}
	fdfKind, err := evo.ParseFDFKind(s.FDFType)
	if err != nil {
		return schedule.Config{}, err
	}
	fdf := evo.FDF{Kind: fdfKind, Mean: s.FDFMean}
	if err := fdf.Validate(); err != nil {
		return schedule.Config{}, err
	}
	if math.IsNaN(s.Mean) || math.IsInf(s.Mean, 0) || s.Mean < 0 {
		return schedule.Config{}, fmt.Errorf("%w: schedule mean must be finite and >= 0", model.ErrConfiguration)
	}
	bounds := schedule.ResponseClassBounds{
		Lower:         s.ResponseClassLowerBound,
		Upper:         s.ResponseClassUpperBound,
		Size:          s.ResponseClassSize,
		ExcludedLower: s.ExcludedLowerBound,
		ExcludedUpper: s.ExcludedUpperBound,
	}
	if err := bounds.Validate(); err != nil {
		return schedule.Config{}, err
	}
	return schedule.Config{
		Timing:        timing,
		Counting:      counting,
		Mean:          s.Mean,
		FDF:           fdf,
		ResponseClass: bounds,
	}, nil
}
