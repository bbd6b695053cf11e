package workout

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// sequentialIDs makes generated ids predictable.
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "id-" + strconv.Itoa(n)
	}
}

func newTestGenerator(t *testing.T, maxes []OneRepMax) (*generator, []ExerciseDefinition) {
	t.Helper()
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	g := newGenerator(DefaultConfig(), catalog, maxes)
	g.newID = sequentialIDs()
	return g, catalog
}

func TestGenerator_generate_structure(t *testing.T) {
	t.Parallel()

	g, _ := newTestGenerator(t, nil)
	now := time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC)
	c, err := g.generate("user-1", now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if c.Status != StatusPending || c.UserID != "user-1" || c.CurrentWorkoutID != "" {
		t.Errorf("unexpected cycle %+v", c.Cycle)
	}
	if want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC); !c.StartDate.Equal(want) {
		t.Errorf("start date = %v, want %v", c.StartDate, want)
	}
	if len(c.Workouts) != WorkoutsPerCycle {
		t.Fatalf("got %d workouts, want %d", len(c.Workouts), WorkoutsPerCycle)
	}

	var lifts []Lift
	for i, w := range c.Workouts {
		lifts = append(lifts, w.PrimaryLift)
		if w.Sequence != i+1 {
			t.Errorf("workout %d has sequence %d", i, w.Sequence)
		}
		if w.CycleID != c.ID || w.Status != StatusPending {
			t.Errorf("workout %d: cycle %q status %s", w.Sequence, w.CycleID, w.Status)
		}
		if want := c.StartDate.AddDate(0, 0, 2*i); !w.ScheduledDate.Equal(want) {
			t.Errorf("workout %d scheduled %v, want %v", w.Sequence, w.ScheduledDate, want)
		}
		if len(w.Exercises) != len(SlotsForPrimaryLift(w.PrimaryLift)) {
			t.Errorf("workout %d has %d exercises", w.Sequence, len(w.Exercises))
		}
		for j, ex := range w.Exercises {
			if ex.Order != j+1 || ex.WorkoutID != w.ID || ex.Status != StatusPending {
				t.Errorf("workout %d exercise %d: order %d status %s", w.Sequence, j, ex.Order, ex.Status)
			}
			if len(ex.Sets) == 0 {
				t.Errorf("workout %d exercise %d has no sets", w.Sequence, ex.Order)
			}
			for k, s := range ex.Sets {
				if s.SetNumber != k+1 || s.ExerciseID != ex.ID || s.Status != StatusPending {
					t.Errorf("workout %d exercise %d set %d: number %d status %s",
						w.Sequence, ex.Order, k, s.SetNumber, s.Status)
				}
			}
		}
	}
	want := []Lift{
		LiftSquat, LiftBench, LiftDeadlift, LiftPress,
		LiftSquat, LiftBench, LiftDeadlift, LiftPress,
		LiftSquat, LiftBench, LiftDeadlift, LiftPress,
		LiftSquat, LiftBench, LiftDeadlift, LiftPress,
	}
	if diff := cmp.Diff(want, lifts); diff != "" {
		t.Errorf("lift rotation mismatch (-want +got):\n%s", diff)
	}
}

func setWeights(ex exerciseAggregate) []float64 {
	weights := make([]float64, 0, len(ex.Sets))
	for _, s := range ex.Sets {
		weights = append(weights, s.Weight)
	}
	return weights
}

func TestGenerator_generate_primaryFromOneRepMax(t *testing.T) {
	t.Parallel()

	squat := DefinitionID("Back Squat")
	g, _ := newTestGenerator(t, []OneRepMax{{UserID: "user-1", DefinitionID: squat, Weight: 225}})
	c, err := g.generate("user-1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name     string
		workout  int
		wantWeek []float64
		wantReps []int
	}{
		{
			name:     "week 1",
			workout:  0,
			wantWeek: []float64{90, 110, 135, 145, 165, 190},
			wantReps: []int{5, 5, 3, 5, 5, 5},
		},
		{
			name:     "week 2",
			workout:  4,
			wantWeek: []float64{90, 110, 135, 155, 180, 200},
			wantReps: []int{5, 5, 3, 3, 3, 3},
		},
		{
			name:     "week 3",
			workout:  8,
			wantWeek: []float64{90, 110, 135, 165, 190, 210},
			wantReps: []int{5, 5, 3, 5, 3, 1},
		},
		{
			name:     "deload",
			workout:  12,
			wantWeek: []float64{90, 110, 135, 110, 110, 110},
			wantReps: []int{5, 5, 5, 5, 5, 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ex := c.Workouts[tt.workout].Exercises[0]
			if ex.DefinitionID != squat || ex.Type != ExerciseTypePrimary {
				t.Fatalf("first exercise is %s of type %s", ex.DefinitionID, ex.Type)
			}
			if ex.OneRepMax == nil || *ex.OneRepMax != 225 {
				t.Errorf("one-rep max snapshot = %v, want 225", ex.OneRepMax)
			}
			if diff := cmp.Diff(tt.wantWeek, setWeights(ex)); diff != "" {
				t.Errorf("weights mismatch (-want +got):\n%s", diff)
			}
			var reps []int
			for _, s := range ex.Sets {
				reps = append(reps, s.Reps)
				if s.RPE == nil || *s.RPE != PrimaryRPE || s.PercentageOfMax == nil {
					t.Errorf("set %d: rpe %v percentage %v", s.SetNumber, s.RPE, s.PercentageOfMax)
				}
			}
			if diff := cmp.Diff(tt.wantReps, reps); diff != "" {
				t.Errorf("reps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerator_generate_flatSets(t *testing.T) {
	t.Parallel()

	// Only the squat has a max, so the bench day main lift falls back to flat sets.
	g, catalog := newTestGenerator(t, []OneRepMax{{DefinitionID: DefinitionID("Back Squat"), Weight: 225}})
	c, err := g.generate("user-1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	byID := make(map[string]ExerciseDefinition)
	for _, def := range catalog {
		byID[def.ID] = def
	}

	bench := c.Workouts[1]
	for _, ex := range bench.Exercises {
		def := byID[ex.DefinitionID]
		if ex.OneRepMax != nil {
			t.Errorf("%s captured a one-rep max", def.Name)
		}
		if len(ex.Sets) != DefaultAccessorySets {
			t.Errorf("%s has %d sets, want %d", def.Name, len(ex.Sets), DefaultAccessorySets)
		}
		wantReps := defaultRepTarget
		if def.RepMax != nil {
			wantReps = *def.RepMax
		}
		for _, s := range ex.Sets {
			if s.Weight != PlaceholderWeight || s.Reps != wantReps || s.PercentageOfMax != nil {
				t.Errorf("%s set %d: weight %v reps %d", def.Name, s.SetNumber, s.Weight, s.Reps)
			}
			if (def.RPEMax == nil) != (s.RPE == nil) || (s.RPE != nil && *s.RPE != *def.RPEMax) {
				t.Errorf("%s set %d: rpe %v, want %v", def.Name, s.SetNumber, s.RPE, def.RPEMax)
			}
		}
	}
}

func TestGenerator_generate_accessorySetsConfigurable(t *testing.T) {
	t.Parallel()

	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	cfg := DefaultConfig()
	cfg.AccessorySets = 6
	c, err := newGenerator(cfg, catalog, nil).generate("user-1", time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, ex := range c.Workouts[3].Exercises {
		if len(ex.Sets) != 6 {
			t.Errorf("exercise %d has %d sets, want 6", ex.Order, len(ex.Sets))
		}
	}
}

func TestGenerator_generate_missingCategory(t *testing.T) {
	t.Parallel()

	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	var withoutCalves []ExerciseDefinition
	for _, def := range catalog {
		if def.Category != CategoryCalfAccessory {
			withoutCalves = append(withoutCalves, def)
		}
	}
	_, err = newGenerator(DefaultConfig(), withoutCalves, nil).generate("user-1", time.Now())
	if !errors.Is(err, ErrNoMatchingDefinition) {
		t.Errorf("generate error = %v, want ErrNoMatchingDefinition", err)
	}
}
