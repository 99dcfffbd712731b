package volume

import (
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the sample distribution of a grid
type Stats struct {
	Mean    float64
	StdDev  float64
	Min     uint8
	Max     uint8
	NonZero float64
}

// ComputeStats returns the distribution summary of g
func ComputeStats(g *Grid) Stats {
	if len(g.data) == 0 {
		return Stats{}
	}

	values := make([]float64, len(g.data))
	s := Stats{Min: 255}
	nonZero := 0
	for i, v := range g.data {
		values[i] = float64(v)
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		if v != 0 {
			nonZero++
		}
	}

	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	s.NonZero = float64(nonZero) / float64(len(values))
	return s
}
