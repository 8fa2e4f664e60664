package evo

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"etbd/internal/model"
)

// DefaultSelectionBudget bounds the FDF draws a single fitness search may spend
// across all of its parent pairs before it gives up and selects at random.
const DefaultSelectionBudget = 1_000_000

// Pair holds the phenotypes of the two parents of one child.
type Pair [2]int

// Selection is the outcome of one selection call: exactly one pair per
// individual of the population.
type Selection struct {
	Pairs     []Pair
	Attempts  int
	Exhausted bool
}

// ExhaustionObserver is told whenever a fitness search falls back to random selection.
type ExhaustionObserver interface {
	ObserveSelectionExhausted()
}

// Selector chooses parent pairs from a population given the last emitted phenotype.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, population []int, emitted int) Selection
}

// RandomSelector draws both parents of every pair uniformly with replacement.
type RandomSelector struct{}

func (RandomSelector) Name() string {
	return "random"
}

func (RandomSelector) Select(rng *rand.Rand, population []int, _ int) Selection {
	return Selection{Pairs: RandomPairs(rng, population)}
}

func RandomPairs(rng *rand.Rand, population []int) []Pair {
	pairs := make([]Pair, len(population))
	if len(population) == 0 {
		return pairs
	}
	for i := range pairs {
		pairs[i] = Pair{
			population[rng.IntN(len(population))],
			population[rng.IntN(len(population))],
		}
	}
	return pairs
}

// FitnessSearchSelector is the selection applied when reinforcement is delivered.
// For every parent slot it draws a target distance from the FDF and picks uniformly
// among the individuals sitting at exactly that distance, retrying on a miss.
// Budget is shared by the whole call, including every worker.
type FitnessSearchSelector struct {
	Landscape Landscape
	FDF       FDF
	Budget    int
	Workers   int
	Logger    *slog.Logger
	Observer  ExhaustionObserver
}

func NewFitnessSearchSelector(landscape Landscape, fdf FDF) (FitnessSearchSelector, error) {
	if landscape == nil {
		return FitnessSearchSelector{}, fmt.Errorf("%w: fitness landscape is required", model.ErrConfiguration)
	}
	if err := fdf.Validate(); err != nil {
		return FitnessSearchSelector{}, err
	}
	return FitnessSearchSelector{Landscape: landscape, FDF: fdf, Budget: DefaultSelectionBudget}, nil
}

func (FitnessSearchSelector) Name() string {
	return "fitness_search"
}

func (s FitnessSearchSelector) Select(rng *rand.Rand, population []int, emitted int) Selection {
	if len(population) == 0 {
		return Selection{Pairs: []Pair{}}
	}
	budget := s.Budget
	if budget <= 0 {
		budget = DefaultSelectionBudget
	}
	landscape := s.Landscape
	if landscape == nil {
		landscape = LinearFitness
	}
	byDistance := indexByDistance(landscape(population, emitted))

	var sel Selection
	if s.Workers > 1 && len(population) > 1 {
		sel = s.searchParallel(rng, population, byDistance, budget)
	} else {
		sel = s.searchSequential(rng, population, byDistance, budget)
	}
	if !sel.Exhausted {
		return sel
	}

	s.logger().Warn("fitness search exhausted its attempt budget, falling back to random selection",
		"attempts", sel.Attempts,
		"fdf", s.FDF.Kind.String(),
		"fdf_mean", s.FDF.Mean,
		"population", len(population),
		"emitted", emitted,
	)
	if s.Observer != nil {
		s.Observer.ObserveSelectionExhausted()
	}
	return Selection{
		Pairs:     RandomPairs(rng, population),
		Attempts:  sel.Attempts,
		Exhausted: true,
	}
}

func (s FitnessSearchSelector) searchSequential(rng *rand.Rand, population []int, byDistance [][]int, budget int) Selection {
	pairs := make([]Pair, len(population))
	attempts := 0
	next := func() bool {
		if attempts >= budget {
			return false
		}
		attempts++
		return true
	}
	ok := fillPairs(rng, population, byDistance, s.FDF, pairs, next)
	return Selection{Pairs: pairs, Attempts: attempts, Exhausted: !ok}
}

func (s FitnessSearchSelector) searchParallel(rng *rand.Rand, population []int, byDistance [][]int, budget int) Selection {
	pairs := make([]Pair, len(population))
	workers := min(s.Workers, len(pairs))

	var used atomic.Int64
	var stop atomic.Bool
	next := func() bool {
		if stop.Load() {
			return false
		}
		if used.Add(1) > int64(budget) {
			stop.Store(true)
			return false
		}
		return true
	}

	// Worker streams are derived up front so the split is reproducible from the caller's seed.
	chunk := (len(pairs) + workers - 1) / workers
	p := pool.New().WithMaxGoroutines(workers)
	for start := 0; start < len(pairs); start += chunk {
		end := min(start+chunk, len(pairs))
		workerRNG := rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))
		p.Go(func() {
			if !fillPairs(workerRNG, population, byDistance, s.FDF, pairs[start:end], next) {
				stop.Store(true)
			}
		})
	}
	p.Wait()

	attempts := int(min(used.Load(), int64(budget)))
	return Selection{Pairs: pairs, Attempts: attempts, Exhausted: stop.Load()}
}

func (s FitnessSearchSelector) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// fillPairs runs the rejection-sampling loop over pairs, calling next before
// every FDF draw. It reports false as soon as next refuses another draw.
func fillPairs(rng *rand.Rand, population []int, byDistance [][]int, fdf FDF, pairs []Pair, next func() bool) bool {
	for i := range pairs {
		for slot := 0; slot < 2; {
			if !next() {
				return false
			}
			target := fdf.Sample(rng)
			if target < 0 || target >= len(byDistance) {
				continue
			}
			candidates := byDistance[target]
			if len(candidates) == 0 {
				continue
			}
			pairs[i][slot] = population[candidates[rng.IntN(len(candidates))]]
			slot++
		}
	}
	return true
}

// indexByDistance groups population indices by their fitness distance.
func indexByDistance(fitness []int) [][]int {
	maxDistance := -1
	for _, d := range fitness {
		maxDistance = max(maxDistance, d)
	}
	byDistance := make([][]int, maxDistance+1)
	for i, d := range fitness {
		if d < 0 {
			continue
		}
		byDistance[d] = append(byDistance[d], i)
	}
	return byDistance
}
