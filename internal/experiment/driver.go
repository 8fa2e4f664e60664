package experiment

import (
	"fmt"
	"math/rand/v2"

	"etbd/internal/evo"
	"etbd/internal/organism"
	"etbd/internal/schedule"
)

// TickOutcome is everything observable about one generation.
type TickOutcome struct {
	Emitted    int
	InClass    []bool
	Reinforced []bool
	// Reinforcer is the index of the schedule that fired, or -1.
	Reinforcer int
	Selection  evo.Selection
}

// TickObserver is notified after every tick.
type TickObserver interface {
	ObserveTick()
	ObserveReinforcement(schedule int)
}

// Driver runs one organism against one arrangement of schedules.
type Driver struct {
	organism    *organism.Organism
	arrangement []*schedule.Schedule
	observer    TickObserver
}

func NewDriver(o *organism.Organism, arrangement []*schedule.Schedule, observer TickObserver) (*Driver, error) {
	if o == nil {
		return nil, fmt.Errorf("organism is required")
	}
	for i, s := range arrangement {
		if s == nil {
			return nil, fmt.Errorf("schedule %d is nil", i)
		}
	}
	return &Driver{organism: o, arrangement: arrangement, observer: observer}, nil
}

// Step runs emit, counter update, reinforcement resolution and reproduction.
// Every schedule's counter is updated before any of them is checked, and
// only the first available schedule delivers.
func (d *Driver) Step(rng *rand.Rand) (TickOutcome, error) {
	e := d.organism.Emit(rng)

	out := TickOutcome{
		Emitted:    e,
		InClass:    make([]bool, len(d.arrangement)),
		Reinforced: make([]bool, len(d.arrangement)),
		Reinforcer: -1,
	}
	for i, s := range d.arrangement {
		s.UpdateCounter(e)
		out.InClass[i] = s.InResponseClass(e)
	}

	var reinforcer *evo.FDF
	for i, s := range d.arrangement {
		if !s.Available(e) {
			continue
		}
		s.Deliver(rng)
		fdf := s.FDF()
		reinforcer = &fdf
		out.Reinforced[i] = true
		out.Reinforcer = i
		break
	}

	sel, err := d.organism.Reproduce(rng, reinforcer)
	if err != nil {
		return out, fmt.Errorf("reproduce: %w", err)
	}
	out.Selection = sel

	if d.observer != nil {
		d.observer.ObserveTick()
		if out.Reinforcer >= 0 {
			d.observer.ObserveReinforcement(out.Reinforcer)
		}
	}
	return out, nil
}

func (d *Driver) Arrangement() []*schedule.Schedule {
	return append([]*schedule.Schedule(nil), d.arrangement...)
}
