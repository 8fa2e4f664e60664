package evo

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"etbd/internal/model"
)

// FDFKind is the shape of the fitness density function a reinforcer samples from.
type FDFKind int

const (
	FDFLinear FDFKind = iota + 1
	FDFExponential
)

func (k FDFKind) String() string {
	switch k {
	case FDFLinear:
		return "linear_fdf"
	case FDFExponential:
		return "exponential_fdf"
	default:
		return fmt.Sprintf("fdf(%d)", int(k))
	}
}

func ParseFDFKind(name string) (FDFKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "linear_fdf", "linear":
		return FDFLinear, nil
	case "exponential_fdf", "exponential":
		return FDFExponential, nil
	default:
		return 0, fmt.Errorf("%w: unknown fdf type %q", model.ErrConfiguration, name)
	}
}

// FDF draws target fitness distances. Mean scales the magnitude of the reinforcer:
// small means concentrate selection on individuals close to the emission.
type FDF struct {
	Kind FDFKind
	Mean float64
}

func (f FDF) Validate() error {
	if f.Kind != FDFLinear && f.Kind != FDFExponential {
		return fmt.Errorf("%w: unsupported fdf %s", model.ErrConfiguration, f.Kind)
	}
	if math.IsNaN(f.Mean) || math.IsInf(f.Mean, 0) || f.Mean < 0 {
		return fmt.Errorf("%w: fdf mean must be finite and >= 0, got %v", model.ErrConfiguration, f.Mean)
	}
	return nil
}

func (f FDF) Sample(rng *rand.Rand) int {
	if f.Kind == FDFExponential {
		return SampleExponentialFDF(rng, f.Mean)
	}
	return SampleLinearFDF(rng, f.Mean)
}

// SampleLinearFDF draws from the right-skewed linear density on [0, 3*mean].
func SampleLinearFDF(rng *rand.Rand, mean float64) int {
	u := rng.Float64()
	return int(math.Floor(3*mean*(1-math.Sqrt(1-u)) + 0.5))
}

func SampleExponentialFDF(rng *rand.Rand, mean float64) int {
	return int(math.Floor(rng.ExpFloat64()*mean + 0.5))
}
