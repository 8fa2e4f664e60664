package genotype

import (
	"errors"
	"fmt"
	"math/bits"
)

// MaxWidth is the widest genotype whose phenotype still fits an int on every platform we build for.
const MaxWidth = 62

var (
	ErrOutOfRange = errors.New("value out of genotype range")
	ErrInvalidBit = errors.New("genotype bit must be 0 or 1")
)

// Genotype is an MSB-first bit vector; every element is 0 or 1.
type Genotype []uint8

func (g Genotype) String() string {
	out := make([]byte, len(g))
	for i, b := range g {
		out[i] = '0' + b
	}
	return string(out)
}

// BitLength returns the number of binary digits needed to write high.
func BitLength(high int) int {
	if high <= 0 {
		return 1
	}
	return bits.Len(uint(high))
}

// Encode writes value as a zero-padded, MSB-first genotype of the given width.
func Encode(value, width int) (Genotype, error) {
	if width <= 0 || width > MaxWidth {
		return nil, fmt.Errorf("%w: width=%d", ErrOutOfRange, width)
	}
	if value < 0 || value >= 1<<width {
		return nil, fmt.Errorf("%w: value=%d width=%d", ErrOutOfRange, value, width)
	}
	out := make(Genotype, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = uint8(value & 1)
		value >>= 1
	}
	return out, nil
}

// Decode returns the phenotype encoded by g.
func Decode(g Genotype) (int, error) {
	if len(g) == 0 || len(g) > MaxWidth {
		return 0, fmt.Errorf("%w: width=%d", ErrOutOfRange, len(g))
	}
	value := 0
	for i, b := range g {
		if b > 1 {
			return 0, fmt.Errorf("%w: position %d holds %d", ErrInvalidBit, i, b)
		}
		value = value<<1 | int(b)
	}
	return value, nil
}

// FlipBit returns a copy of g with bit i inverted.
func FlipBit(g Genotype, i int) (Genotype, error) {
	if i < 0 || i >= len(g) {
		return nil, fmt.Errorf("%w: bit=%d width=%d", ErrOutOfRange, i, len(g))
	}
	out := make(Genotype, len(g))
	copy(out, g)
	out[i] ^= 1
	return out, nil
}

// Clone returns an independent copy of g.
func Clone(g Genotype) Genotype {
	out := make(Genotype, len(g))
	copy(out, g)
	return out
}
