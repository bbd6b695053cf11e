package workout_test

import (
	"testing"

	"github.com/myrjola/liftcycle/internal/workout"
)

func TestPrescribedWeight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		oneRepMax float64
		percent   float64
		want      float64
	}{
		{name: "rounds then floors", oneRepMax: 225, percent: 75, want: 165},
		{name: "half rounds up before flooring", oneRepMax: 185, percent: 50, want: 90},
		{name: "exact multiple", oneRepMax: 200, percent: 50, want: 100},
		{name: "first warm-up of a 225 squat", oneRepMax: 225, percent: 40, want: 90},
		{name: "heavy single", oneRepMax: 315, percent: 95, want: 295},
		{name: "below one increment", oneRepMax: 10, percent: 40, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := workout.PrescribedWeight(tt.oneRepMax, tt.percent); got != tt.want {
				t.Errorf("PrescribedWeight(%v, %v) = %v, want %v", tt.oneRepMax, tt.percent, got, tt.want)
			}
		})
	}
}

func TestEstimateOneRepMax(t *testing.T) {
	t.Parallel()

	tests := []struct {
		weight float64
		reps   int
		want   float64
	}{
		{weight: 200, reps: 5, want: 235},
		{weight: 225, reps: 1, want: 225},
		{weight: 100, reps: 10, want: 135},
		{weight: 150, reps: 0, want: 150},
	}
	for _, tt := range tests {
		if got := workout.EstimateOneRepMax(tt.weight, tt.reps); got != tt.want {
			t.Errorf("EstimateOneRepMax(%v, %d) = %v, want %v", tt.weight, tt.reps, got, tt.want)
		}
	}
}
