package organism

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"etbd/internal/evo"
	"etbd/internal/genotype"
	"etbd/internal/model"
)

type Config struct {
	PopulationSize   int
	LowPheno         int
	HighPheno        int
	MutationRate     float64
	Landscape        evo.LandscapeKind
	Recombination    evo.RecombinationKind
	Mutation         evo.MutationKind
	SelectionBudget  int
	SelectionWorkers int
	Logger           *slog.Logger
	Observer         evo.ExhaustionObserver
}

// Organism owns a population of phenotypes and replaces it wholesale on every
// call to Reproduce. Callers only ever see copies of the population.
type Organism struct {
	cfg        Config
	width      int
	landscape  evo.Landscape
	population []int
	emitted    int
}

func New(rng *rand.Rand, cfg Config) (*Organism, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("%w: population size must be > 0", model.ErrConfiguration)
	}
	if cfg.LowPheno < 0 || cfg.HighPheno <= cfg.LowPheno {
		return nil, fmt.Errorf("%w: phenotype bounds must satisfy 0 <= low < high, got [%d, %d)", model.ErrConfiguration, cfg.LowPheno, cfg.HighPheno)
	}
	width := genotype.BitLength(cfg.HighPheno)
	if width > genotype.MaxWidth {
		return nil, fmt.Errorf("%w: high phenotype %d needs %d bits", model.ErrConfiguration, cfg.HighPheno, width)
	}
	if err := evo.ValidateMutationRate(cfg.MutationRate); err != nil {
		return nil, err
	}
	if cfg.Recombination != evo.RecombinationBitwise {
		return nil, fmt.Errorf("%w: unsupported recombination method %s", model.ErrConfiguration, cfg.Recombination)
	}
	if cfg.Mutation == 0 {
		cfg.Mutation = evo.MutationBitFlip
	}
	if cfg.Mutation != evo.MutationBitFlip {
		return nil, fmt.Errorf("%w: unsupported mutation method %s", model.ErrConfiguration, cfg.Mutation)
	}
	landscape, err := evo.NewLandscape(cfg.Landscape, cfg.HighPheno)
	if err != nil {
		return nil, err
	}
	if cfg.SelectionBudget <= 0 {
		cfg.SelectionBudget = evo.DefaultSelectionBudget
	}

	o := &Organism{
		cfg:       cfg,
		width:     width,
		landscape: landscape,
	}
	o.Reinitialize(rng)
	return o, nil
}

// Reinitialize draws a fresh population uniformly from [low, high).
func (o *Organism) Reinitialize(rng *rand.Rand) {
	population := make([]int, o.cfg.PopulationSize)
	span := o.cfg.HighPheno - o.cfg.LowPheno
	for i := range population {
		population[i] = o.cfg.LowPheno + rng.IntN(span)
	}
	o.population = population
	o.emitted = population[0]
}

// SetPopulation replaces the population with a copy of population.
func (o *Organism) SetPopulation(population []int) error {
	if len(population) != o.cfg.PopulationSize {
		return fmt.Errorf("population size mismatch: got=%d want=%d", len(population), o.cfg.PopulationSize)
	}
	limit := 1 << o.width
	for i, v := range population {
		if v < 0 || v >= limit {
			return fmt.Errorf("%w: phenotype %d at index %d", genotype.ErrOutOfRange, v, i)
		}
	}
	o.population = append([]int(nil), population...)
	return nil
}

// Emit samples the behaviour for this tick uniformly from the population.
func (o *Organism) Emit(rng *rand.Rand) int {
	o.emitted = o.population[rng.IntN(len(o.population))]
	return o.emitted
}

func (o *Organism) Emitted() int {
	return o.emitted
}

func (o *Organism) Population() []int {
	return append([]int(nil), o.population...)
}

// Width is the genotype bit length shared by every individual.
func (o *Organism) Width() int {
	return o.width
}

func (o *Organism) Config() Config {
	return o.cfg
}

// Reproduce runs selection, recombination and mutation against the last
// emission and swaps in the next population. A nil reinforcer means no
// reinforcement this tick and selection is random.
func (o *Organism) Reproduce(rng *rand.Rand, reinforcer *evo.FDF) (evo.Selection, error) {
	selector, err := o.selector(reinforcer)
	if err != nil {
		return evo.Selection{}, err
	}
	sel := selector.Select(rng, o.population, o.emitted)

	children, err := evo.Recombine(rng, sel.Pairs, o.width)
	if err != nil {
		return sel, fmt.Errorf("recombine: %w", err)
	}
	next, err := evo.Mutate(rng, children, o.cfg.MutationRate)
	if err != nil {
		return sel, fmt.Errorf("mutate: %w", err)
	}
	o.population = next
	return sel, nil
}

func (o *Organism) selector(reinforcer *evo.FDF) (evo.Selector, error) {
	if reinforcer == nil {
		return evo.RandomSelector{}, nil
	}
	selector, err := evo.NewFitnessSearchSelector(o.landscape, *reinforcer)
	if err != nil {
		return nil, err
	}
	selector.Budget = o.cfg.SelectionBudget
	selector.Workers = o.cfg.SelectionWorkers
	selector.Logger = o.cfg.Logger
	selector.Observer = o.cfg.Observer
	return selector, nil
}
