package evo

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"etbd/internal/genotype"
	"etbd/internal/model"
)

type RecombinationKind int

const (
	RecombinationBitwise RecombinationKind = iota + 1
)

func (k RecombinationKind) String() string {
	if k == RecombinationBitwise {
		return "bitwise"
	}
	return fmt.Sprintf("recombination(%d)", int(k))
}

func ParseRecombinationKind(name string) (RecombinationKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bitwise":
		return RecombinationBitwise, nil
	default:
		return 0, fmt.Errorf("%w: unknown recombination method %q", model.ErrConfiguration, name)
	}
}

// Recombine produces one child genotype per parent pair. Parents are encoded
// at the given width; a phenotype that does not fit is a caller error.
func Recombine(rng *rand.Rand, pairs []Pair, width int) ([]genotype.Genotype, error) {
	children := make([]genotype.Genotype, len(pairs))
	for i, pair := range pairs {
		mother, err := genotype.Encode(pair[0], width)
		if err != nil {
			return nil, fmt.Errorf("encode mother of pair %d: %w", i, err)
		}
		father, err := genotype.Encode(pair[1], width)
		if err != nil {
			return nil, fmt.Errorf("encode father of pair %d: %w", i, err)
		}
		children[i] = BitwiseCombine(rng, mother, father)
	}
	return children, nil
}

// BitwiseCombine keeps every bit the parents agree on and flips a fair coin
// for every bit they disagree on.
func BitwiseCombine(rng *rand.Rand, mother, father genotype.Genotype) genotype.Genotype {
	child := make(genotype.Genotype, len(mother))
	for i := range child {
		if mother[i] == father[i] {
			child[i] = mother[i]
			continue
		}
		child[i] = uint8(rng.IntN(2))
	}
	return child
}
