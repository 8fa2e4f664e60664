package evo

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"etbd/internal/model"
)

func TestSampleLinearFDFBoundsAndMean(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	const mean = 40.0
	const draws = 100000

	total := 0
	for range draws {
		v := SampleLinearFDF(rng, mean)
		if v < 0 || v > int(3*mean) {
			t.Fatalf("linear fdf draw out of bounds: %d", v)
		}
		total += v
	}
	got := float64(total) / draws
	if math.Abs(got-mean) > 1.0 {
		t.Fatalf("linear fdf mean drifted: got=%.3f want~%.1f", got, mean)
	}
}

func TestSampleExponentialFDFMean(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 3))
	const mean = 20.0
	const draws = 100000

	total := 0
	for range draws {
		v := SampleExponentialFDF(rng, mean)
		if v < 0 {
			t.Fatalf("exponential fdf draw is negative: %d", v)
		}
		total += v
	}
	got := float64(total) / draws
	if math.Abs(got-mean) > 1.0 {
		t.Fatalf("exponential fdf mean drifted: got=%.3f want~%.1f", got, mean)
	}
}

func TestFDFZeroMeanAlwaysDrawsZero(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, kind := range []FDFKind{FDFLinear, FDFExponential} {
		fdf := FDF{Kind: kind, Mean: 0}
		for range 100 {
			if v := fdf.Sample(rng); v != 0 {
				t.Fatalf("%s with zero mean drew %d", kind, v)
			}
		}
	}
}

func TestFDFValidate(t *testing.T) {
	if err := (FDF{Kind: FDFLinear, Mean: 40}).Validate(); err != nil {
		t.Fatalf("valid fdf rejected: %v", err)
	}
	invalid := []FDF{
		{Kind: FDFLinear, Mean: -1},
		{Kind: FDFExponential, Mean: math.NaN()},
		{Kind: FDFKind(0), Mean: 1},
	}
	for _, fdf := range invalid {
		if err := fdf.Validate(); !errors.Is(err, model.ErrConfiguration) {
			t.Fatalf("expected configuration error for %+v, got %v", fdf, err)
		}
	}
}

func TestParseFDFKind(t *testing.T) {
	if k, err := ParseFDFKind("linear_fdf"); err != nil || k != FDFLinear {
		t.Fatalf("parse linear_fdf: kind=%s err=%v", k, err)
	}
	if k, err := ParseFDFKind("exponential_fdf"); err != nil || k != FDFExponential {
		t.Fatalf("parse exponential_fdf: kind=%s err=%v", k, err)
	}
	if _, err := ParseFDFKind("gaussian_fdf"); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
