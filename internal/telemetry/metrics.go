package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts engine events. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	ticks          prometheus.Counter
	reinforcements *prometheus.CounterVec
	exhaustions    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etbd_ticks_total",
			Help: "Generations simulated.",
		}),
		reinforcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etbd_reinforcements_total",
			Help: "Reinforcers delivered, by schedule index within the arrangement.",
		}, []string{"schedule"}),
		exhaustions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etbd_selection_exhaustions_total",
			Help: "Fitness searches that spent their attempt budget and fell back to random selection.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.ticks, m.reinforcements, m.exhaustions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) ObserveReinforcement(schedule int) {
	if m == nil {
		return
	}
	m.reinforcements.WithLabelValues(strconv.Itoa(schedule + 1)).Inc()
}

func (m *Metrics) ObserveSelectionExhausted() {
	if m == nil {
		return
	}
	m.exhaustions.Inc()
}
