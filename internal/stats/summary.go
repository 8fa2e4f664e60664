package stats

import (
	"etbd/internal/model"
)

type ArrangementSummary struct {
	Arrangement    int     `json:"arrangement"`
	Ticks          int     `json:"ticks"`
	InClass        []int   `json:"in_class"`
	Reinforced     []int   `json:"reinforced"`
	EmissionMean   float64 `json:"emission_mean"`
	EmissionStdDev float64 `json:"emission_stddev"`
}

type RunSummary struct {
	RunID                string               `json:"run_id"`
	Ticks                int                  `json:"ticks"`
	Schedules            int                  `json:"schedules"`
	InClass              []int                `json:"in_class"`
	Reinforced           []int                `json:"reinforced"`
	ResponseRates        []float64            `json:"response_rates"`
	EmissionMean         float64              `json:"emission_mean"`
	EmissionStdDev       float64              `json:"emission_stddev"`
	SelectionExhaustions int                  `json:"selection_exhaustions"`
	Arrangements         []ArrangementSummary `json:"arrangements"`
}

// Summarize totals a run. ResponseRates is the share of ticks whose
// emission fell in each schedule's response class.
func Summarize(runID string, ticks []model.TickRecord) RunSummary {
	summary := RunSummary{RunID: runID, Ticks: len(ticks)}
	if len(ticks) == 0 {
		return summary
	}
	width := len(ticks[0].InClass)
	summary.Schedules = width
	summary.InClass = make([]int, width)
	summary.Reinforced = make([]int, width)

	var all []float64
	perArrangement := map[int][]float64{}
	byArrangement := map[int]*ArrangementSummary{}
	var order []int
	for _, tick := range ticks {
		addFlags(summary.InClass, tick.InClass)
		addFlags(summary.Reinforced, tick.Reinforced)
		if tick.Exhausted {
			summary.SelectionExhaustions++
		}
		all = append(all, float64(tick.Emitted))

		a, ok := byArrangement[tick.Arrangement]
		if !ok {
			a = &ArrangementSummary{
				Arrangement: tick.Arrangement,
				InClass:     make([]int, width),
				Reinforced:  make([]int, width),
			}
			byArrangement[tick.Arrangement] = a
			order = append(order, tick.Arrangement)
		}
		a.Ticks++
		addFlags(a.InClass, tick.InClass)
		addFlags(a.Reinforced, tick.Reinforced)
		perArrangement[tick.Arrangement] = append(perArrangement[tick.Arrangement], float64(tick.Emitted))
	}

	summary.EmissionMean, summary.EmissionStdDev = meanStdDev(all)
	summary.ResponseRates = make([]float64, width)
	for i, n := range summary.InClass {
		summary.ResponseRates[i] = float64(n) / float64(len(ticks))
	}
	for _, idx := range order {
		a := byArrangement[idx]
		a.EmissionMean, a.EmissionStdDev = meanStdDev(perArrangement[idx])
		summary.Arrangements = append(summary.Arrangements, *a)
	}
	return summary
}
