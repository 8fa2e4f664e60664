package evo

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"etbd/internal/genotype"
	"etbd/internal/model"
)

type MutationKind int

const (
	MutationBitFlip MutationKind = iota + 1
)

func (k MutationKind) String() string {
	if k == MutationBitFlip {
		return "bit_flip"
	}
	return fmt.Sprintf("mutation(%d)", int(k))
}

func ParseMutationKind(name string) (MutationKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bit_flip", "bitflip":
		return MutationBitFlip, nil
	default:
		return 0, fmt.Errorf("%w: unknown mutation method %q", model.ErrConfiguration, name)
	}
}

func ValidateMutationRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return fmt.Errorf("%w: mutation rate must be in [0, 1], got %v", model.ErrConfiguration, rate)
	}
	return nil
}

// MutateGenotypes returns fresh copies of children where each one, with
// probability rate, has exactly one uniformly chosen bit flipped.
func MutateGenotypes(rng *rand.Rand, children []genotype.Genotype, rate float64) ([]genotype.Genotype, error) {
	out := make([]genotype.Genotype, len(children))
	for i, child := range children {
		if rng.Float64() >= rate || len(child) == 0 {
			out[i] = genotype.Clone(child)
			continue
		}
		flipped, err := genotype.FlipBit(child, rng.IntN(len(child)))
		if err != nil {
			return nil, err
		}
		out[i] = flipped
	}
	return out, nil
}

// Mutate applies bit-flip mutation and decodes the result into the next population.
func Mutate(rng *rand.Rand, children []genotype.Genotype, rate float64) ([]int, error) {
	mutated, err := MutateGenotypes(rng, children, rate)
	if err != nil {
		return nil, err
	}
	next := make([]int, len(mutated))
	for i, g := range mutated {
		v, err := genotype.Decode(g)
		if err != nil {
			return nil, fmt.Errorf("decode child %d: %w", i, err)
		}
		next[i] = v
	}
	return next, nil
}
