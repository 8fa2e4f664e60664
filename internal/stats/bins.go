package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"etbd/internal/model"
)

const DefaultBinSize = 500

// BinRow sums the per-schedule columns of consecutive generations within
// one rep and arrangement.
type BinRow struct {
	Rep            int     `json:"rep"`
	Arrangement    int     `json:"arrangement"`
	Bin            int     `json:"bin"`
	Ticks          int     `json:"ticks"`
	InClass        []int   `json:"in_class"`
	Reinforced     []int   `json:"reinforced"`
	Punished       []int   `json:"punished"`
	EmissionMean   float64 `json:"emission_mean"`
	EmissionStdDev float64 `json:"emission_stddev"`
}

type binKey struct {
	rep, arrangement, bin int
}

// BinTicks groups ticks by rep, arrangement and generation/binSize. Rows
// come back ordered by rep, then arrangement, then bin.
func BinTicks(ticks []model.TickRecord, binSize int) []BinRow {
	if binSize <= 0 {
		binSize = DefaultBinSize
	}
	rows := map[binKey]*BinRow{}
	emissions := map[binKey][]float64{}
	for _, tick := range ticks {
		key := binKey{rep: tick.Rep, arrangement: tick.Arrangement, bin: tick.Generation / binSize}
		row, ok := rows[key]
		if !ok {
			width := len(tick.InClass)
			row = &BinRow{
				Rep:         key.rep,
				Arrangement: key.arrangement,
				Bin:         key.bin,
				InClass:     make([]int, width),
				Reinforced:  make([]int, width),
				Punished:    make([]int, width),
			}
			rows[key] = row
		}
		row.Ticks++
		addFlags(row.InClass, tick.InClass)
		addFlags(row.Reinforced, tick.Reinforced)
		addFlags(row.Punished, tick.Punished)
		emissions[key] = append(emissions[key], float64(tick.Emitted))
	}

	out := make([]BinRow, 0, len(rows))
	for key, row := range rows {
		row.EmissionMean, row.EmissionStdDev = meanStdDev(emissions[key])
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rep != out[j].Rep {
			return out[i].Rep < out[j].Rep
		}
		if out[i].Arrangement != out[j].Arrangement {
			return out[i].Arrangement < out[j].Arrangement
		}
		return out[i].Bin < out[j].Bin
	})
	return out
}

func addFlags(sums []int, flags []bool) {
	for i := 0; i < len(sums) && i < len(flags); i++ {
		if flags[i] {
			sums[i]++
		}
	}
}

// meanStdDev reports a zero deviation for fewer than two samples.
func meanStdDev(values []float64) (float64, float64) {
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}
