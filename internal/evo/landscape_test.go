package evo

import (
	"errors"
	"slices"
	"testing"

	"etbd/internal/model"
)

func TestCircularFitnessWrapsAround(t *testing.T) {
	got := CircularFitness([]int{1, 2, 3, 4, 5}, 2, 5)
	want := []int{1, 0, 1, 2, 2}
	if !slices.Equal(got, want) {
		t.Fatalf("circular fitness: got=%v want=%v", got, want)
	}
}

func TestCircularFitnessAboveHighPhenoIsUndrawable(t *testing.T) {
	got := CircularFitness([]int{1010, 10}, 0, 1000)
	want := []int{-10, 10}
	if !slices.Equal(got, want) {
		t.Fatalf("circular fitness: got=%v want=%v", got, want)
	}
	byDistance := indexByDistance(got)
	for d, members := range byDistance {
		if slices.Contains(members, 0) {
			t.Fatalf("out-of-range phenotype indexed at distance %d", d)
		}
	}
	if !slices.Contains(byDistance[10], 1) {
		t.Fatalf("in-range phenotype missing from distance 10: %v", byDistance)
	}
}

func TestLinearFitness(t *testing.T) {
	got := LinearFitness([]int{1, 2, 3, 4, 5}, 2)
	want := []int{1, 0, 1, 2, 3}
	if !slices.Equal(got, want) {
		t.Fatalf("linear fitness: got=%v want=%v", got, want)
	}
}

func TestNewLandscapeResolvesKinds(t *testing.T) {
	population := []int{1, 2, 3, 4, 5}

	circular, err := NewLandscape(LandscapeCircular, 5)
	if err != nil {
		t.Fatalf("circular landscape: %v", err)
	}
	if got := circular(population, 2); !slices.Equal(got, []int{1, 0, 1, 2, 2}) {
		t.Fatalf("unexpected circular values: %v", got)
	}

	linear, err := NewLandscape(LandscapeLinear, 5)
	if err != nil {
		t.Fatalf("linear landscape: %v", err)
	}
	if got := linear(population, 2); !slices.Equal(got, []int{1, 0, 1, 2, 3}) {
		t.Fatalf("unexpected linear values: %v", got)
	}

	if _, err := NewLandscape(LandscapeKind(99), 5); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestParseLandscapeKind(t *testing.T) {
	cases := map[string]LandscapeKind{
		"circular_landscape": LandscapeCircular,
		"linear_landscape":   LandscapeLinear,
		"Circular":           LandscapeCircular,
	}
	for name, want := range cases {
		got, err := ParseLandscapeKind(name)
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if got != want {
			t.Fatalf("parse %q: got=%s want=%s", name, got, want)
		}
	}
	if _, err := ParseLandscapeKind("hyperbolic"); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
