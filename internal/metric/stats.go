package metric

import (
	"math"
	"sort"
)

// Rank statistics helpers. Variance and standard deviation are the
// population (biased) variants, matching the usual reporting convention
// for rank distributions.

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func geometricMean(xs []float64) float64 {
	logSum := 0.0
	for _, x := range xs {
		logSum += math.Log(x)
	}
	return math.Exp(logSum / float64(len(xs)))
}

func harmonicMean(xs []float64) float64 {
	recipSum := 0.0
	for _, x := range xs {
		recipSum += 1 / x
	}
	return float64(len(xs)) / recipSum
}

func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return 0.5 * (sorted[mid-1] + sorted[mid])
}

func variance(xs []float64) float64 {
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}

func stdDev(xs []float64) float64 {
	return math.Sqrt(variance(xs))
}

func medianAbsoluteDeviation(xs []float64) float64 {
	m := median(xs)
	deviations := make([]float64, len(xs))
	for i, x := range xs {
		deviations[i] = math.Abs(x - m)
	}
	return median(deviations)
}
