package schedule

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"etbd/internal/evo"
	"etbd/internal/model"
)

// Timing decides how the count requirement is drawn after every delivery.
type Timing int

const (
	TimingFixed Timing = iota + 1
	TimingRandom
)

func (t Timing) String() string {
	switch t {
	case TimingFixed:
		return "fixed"
	case TimingRandom:
		return "random"
	default:
		return fmt.Sprintf("timing(%d)", int(t))
	}
}

func ParseTiming(name string) (Timing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fixed":
		return TimingFixed, nil
	case "random":
		return TimingRandom, nil
	case "variable":
		return 0, fmt.Errorf("%w: variable schedule timing", model.ErrUnimplemented)
	default:
		return 0, fmt.Errorf("%w: unknown schedule type %q", model.ErrConfiguration, name)
	}
}

// Counting decides which ticks advance the counter.
type Counting int

const (
	// CountingInterval advances on every tick.
	CountingInterval Counting = iota + 1
	// CountingRatio advances only on ticks whose emission is in the schedule's own class.
	CountingRatio
)

func (c Counting) String() string {
	switch c {
	case CountingInterval:
		return "interval"
	case CountingRatio:
		return "ratio"
	default:
		return fmt.Sprintf("counting(%d)", int(c))
	}
}

func ParseCounting(name string) (Counting, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "interval":
		return CountingInterval, nil
	case "ratio":
		return CountingRatio, nil
	default:
		return 0, fmt.Errorf("%w: unknown schedule subtype %q", model.ErrConfiguration, name)
	}
}

type Config struct {
	Timing        Timing
	Counting      Counting
	Mean          float64
	FDF           evo.FDF
	ResponseClass ResponseClassBounds
}

// Schedule is one reinforcement schedule: a response class plus a counter
// that must reach the current requirement before an in-class emission is reinforced.
type Schedule struct {
	cfg         Config
	rc          ResponseClass
	count       int
	requirement float64
}

// New draws the response class and the first requirement from rng.
func New(rng *rand.Rand, cfg Config) (*Schedule, error) {
	if cfg.Timing != TimingFixed && cfg.Timing != TimingRandom {
		return nil, fmt.Errorf("%w: unsupported schedule timing %s", model.ErrConfiguration, cfg.Timing)
	}
	if cfg.Counting != CountingInterval && cfg.Counting != CountingRatio {
		return nil, fmt.Errorf("%w: unsupported schedule counting %s", model.ErrConfiguration, cfg.Counting)
	}
	if math.IsNaN(cfg.Mean) || math.IsInf(cfg.Mean, 0) || cfg.Mean < 0 {
		return nil, fmt.Errorf("%w: schedule mean must be finite and >= 0, got %v", model.ErrConfiguration, cfg.Mean)
	}
	if err := cfg.FDF.Validate(); err != nil {
		return nil, err
	}
	rc, err := NewResponseClass(rng, cfg.ResponseClass)
	if err != nil {
		return nil, err
	}
	s := &Schedule{cfg: cfg, rc: rc}
	s.drawRequirement(rng)
	return s, nil
}

func (s *Schedule) InResponseClass(emitted int) bool {
	return s.rc.Contains(emitted)
}

func (s *Schedule) UpdateCounter(emitted int) {
	if s.cfg.Counting == CountingRatio && !s.rc.Contains(emitted) {
		return
	}
	s.count++
}

// Available reports whether emitted would be reinforced right now.
func (s *Schedule) Available(emitted int) bool {
	return s.rc.Contains(emitted) && float64(s.count) >= s.requirement
}

// Deliver resets the counter and draws the next requirement.
func (s *Schedule) Deliver(rng *rand.Rand) {
	s.count = 0
	s.drawRequirement(rng)
}

// Run advances the counter and, if reinforcement is available, delivers it.
func (s *Schedule) Run(rng *rand.Rand, emitted int) bool {
	s.UpdateCounter(emitted)
	if !s.Available(emitted) {
		return false
	}
	s.Deliver(rng)
	return true
}

func (s *Schedule) drawRequirement(rng *rand.Rand) {
	if s.cfg.Timing == TimingRandom {
		s.requirement = rng.ExpFloat64() * s.cfg.Mean
		return
	}
	s.requirement = s.cfg.Mean
}

func (s *Schedule) Count() int {
	return s.count
}

func (s *Schedule) Requirement() float64 {
	return s.requirement
}

func (s *Schedule) FDF() evo.FDF {
	return s.cfg.FDF
}

func (s *Schedule) ResponseClass() ResponseClass {
	return s.rc
}

func (s *Schedule) Config() Config {
	return s.cfg
}

func (s *Schedule) String() string {
	return fmt.Sprintf("%s %s %g (fdf=%s mean=%g, class=%d values)",
		s.cfg.Timing, s.cfg.Counting, s.cfg.Mean, s.cfg.FDF.Kind, s.cfg.FDF.Mean, s.rc.Len())
}
