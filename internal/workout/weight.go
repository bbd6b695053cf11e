package workout

import "math"

const (
	// WeightIncrement is the smallest jump the plates allow.
	WeightIncrement = 5.0
	// PlaceholderWeight is written on sets that have no percentage based prescription.
	PlaceholderWeight = 100.0
)

// PrescribedWeight returns percent of oneRepMax, rounded to the nearest whole number and then down to a
// multiple of WeightIncrement.
func PrescribedWeight(oneRepMax, percent float64) float64 {
	raw := math.Round(oneRepMax * percent / 100) //nolint:mnd // percent.
	return math.Floor(raw/WeightIncrement) * WeightIncrement
}

// EstimateOneRepMax estimates a one-rep max from a set of reps at weight with the Epley formula.
// A single rep is its own max. The estimate is rounded to the nearest WeightIncrement.
func EstimateOneRepMax(weight float64, reps int) float64 {
	if reps <= 1 {
		return weight
	}
	estimate := weight * (1 + float64(reps)/30) //nolint:mnd // Epley.
	return math.Round(estimate/WeightIncrement) * WeightIncrement
}
