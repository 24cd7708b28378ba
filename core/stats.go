package core

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// safeDiv returns num/den, or 0 when den is 0.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// summary is the average, minimum and maximum of a sample.
type summary struct {
	Avg, Min, Max float64
}

// summarize returns the zero summary for an empty sample.
func summarize(values []float64) summary {
	if len(values) == 0 {
		return summary{}
	}
	return summary{
		Avg: stat.Mean(values, nil),
		Min: floats.Min(values),
		Max: floats.Max(values),
	}
}

// maxOrZero is floats.Max with 0 for an empty slice.
func maxOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Max(values)
}

// mean is stat.Mean with 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// normalized returns a copy of values divided by scale. A zero scale yields
// all zeros.
func normalized(values []float64, scale float64) []float64 {
	out := make([]float64, len(values))
	if scale == 0 {
		return out
	}
	copy(out, values)
	floats.Scale(1/scale, out)
	return out
}

// sum is floats.Sum; it is 0 for an empty slice.
func sum(values []float64) float64 {
	return floats.Sum(values)
}
