package evo

import (
	"fmt"
	"strings"

	"etbd/internal/model"
)

// LandscapeKind selects how distance from the emitted phenotype is measured.
type LandscapeKind int

const (
	LandscapeLinear LandscapeKind = iota + 1
	LandscapeCircular
)

func (k LandscapeKind) String() string {
	switch k {
	case LandscapeLinear:
		return "linear_landscape"
	case LandscapeCircular:
		return "circular_landscape"
	default:
		return fmt.Sprintf("landscape(%d)", int(k))
	}
}

func ParseLandscapeKind(name string) (LandscapeKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "linear_landscape", "linear":
		return LandscapeLinear, nil
	case "circular_landscape", "circular":
		return LandscapeCircular, nil
	default:
		return 0, fmt.Errorf("%w: unknown fitness landscape %q", model.ErrConfiguration, name)
	}
}

// Landscape maps every individual of a population to its fitness distance
// from the emitted phenotype. 0 means identical to the emission.
type Landscape func(population []int, emitted int) []int

// NewLandscape resolves kind into a distance function. highPheno is the
// circumference of the circular landscape and is ignored by the linear one.
func NewLandscape(kind LandscapeKind, highPheno int) (Landscape, error) {
	switch kind {
	case LandscapeLinear:
		return LinearFitness, nil
	case LandscapeCircular:
		if highPheno <= 0 {
			return nil, fmt.Errorf("%w: circular landscape requires high phenotype > 0", model.ErrConfiguration)
		}
		return func(population []int, emitted int) []int {
			return CircularFitness(population, emitted, highPheno)
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported fitness landscape %s", model.ErrConfiguration, kind)
	}
}

func LinearFitness(population []int, emitted int) []int {
	out := make([]int, len(population))
	for i, x := range population {
		out[i] = absInt(x - emitted)
	}
	return out
}

// CircularFitness wraps distances around highPheno. A mutated phenotype far
// enough past highPheno scores negative and is never drawn by fitness search.
func CircularFitness(population []int, emitted, highPheno int) []int {
	out := make([]int, len(population))
	for i, x := range population {
		linear := absInt(x - emitted)
		out[i] = min(linear, highPheno-linear)
	}
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
