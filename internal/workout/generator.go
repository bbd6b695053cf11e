package workout

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/liftcycle/internal/ptr"
)

const (
	// DefaultAccessorySets is the number of flat sets of every exercise without a percentage based prescription.
	DefaultAccessorySets = 2
	// defaultRepTarget is used when a definition has no rep_max.
	defaultRepTarget = 10
	// scheduleCadenceDays separates the scheduled dates of consecutive workouts.
	scheduleCadenceDays = 2
)

// generator builds the aggregate of a new cycle in memory. It does not touch the database.
type generator struct {
	periodization PeriodizationTable
	selection     SelectionPolicy
	accessorySets int
	catalog       []ExerciseDefinition
	// maxes maps definition ids to the user's one-rep max.
	maxes map[string]float64
	newID func() string
}

func newGenerator(cfg Config, catalog []ExerciseDefinition, maxes []OneRepMax) *generator {
	byDefinition := make(map[string]float64, len(maxes))
	for _, m := range maxes {
		byDefinition[m.DefinitionID] = m.Weight
	}
	return &generator{
		periodization: cfg.Periodization,
		selection:     cfg.Selection,
		accessorySets: cfg.AccessorySets,
		catalog:       catalog,
		maxes:         byDefinition,
		newID:         uuid.NewString,
	}
}

// generate lays out the sixteen workouts of a cycle for userID starting on the date of now.
func (g *generator) generate(userID string, now time.Time) (*cycleAggregate, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	c := &cycleAggregate{
		Cycle: Cycle{
			ID:               g.newID(),
			UserID:           userID,
			Status:           StatusPending,
			StartDate:        start,
			EndDate:          nil,
			CompletedAt:      nil,
			CurrentWorkoutID: "",
			CreatedAt:        now,
		},
		Workouts: make([]workoutAggregate, 0, WorkoutsPerCycle),
	}

	for i := range WorkoutsPerCycle {
		sequence := i + 1
		w := workoutAggregate{
			Workout: Workout{
				ID:                g.newID(),
				CycleID:           c.ID,
				Sequence:          sequence,
				PrimaryLift:       LiftForSequence(sequence),
				Status:            StatusPending,
				ScheduledDate:     start.AddDate(0, 0, scheduleCadenceDays*i),
				StartedAt:         nil,
				CompletedAt:       nil,
				CurrentExerciseID: "",
				CurrentSetID:      "",
			},
			Exercises: nil,
		}
		for order, category := range SlotsForPrimaryLift(w.PrimaryLift) {
			def, err := ResolveDefinition(category, w.PrimaryLift, g.catalog, g.selection)
			if err != nil {
				return nil, fmt.Errorf("workout %d slot %d: %w", sequence, order+1, err)
			}
			ex, err := g.exercise(w.ID, order+1, def, WeekNumber(i))
			if err != nil {
				return nil, fmt.Errorf("workout %d slot %d: %w", sequence, order+1, err)
			}
			w.Exercises = append(w.Exercises, ex)
		}
		c.Workouts = append(c.Workouts, w)
	}
	return c, nil
}

func (g *generator) exercise(workoutID string, order int, def ExerciseDefinition, week int) (exerciseAggregate, error) {
	ex := exerciseAggregate{
		Exercise: Exercise{
			ID:           g.newID(),
			WorkoutID:    workoutID,
			DefinitionID: def.ID,
			Order:        order,
			Status:       StatusPending,
			OneRepMax:    nil,
		},
		Type: def.Type,
		Sets: nil,
	}

	if oneRepMax, ok := g.maxes[def.ID]; ok && def.Type == ExerciseTypePrimary && oneRepMax > 0 {
		slots, err := g.periodization.Week(week)
		if err != nil {
			return exerciseAggregate{}, err
		}
		ex.OneRepMax = ptr.Ref(oneRepMax)
		for i, slot := range slots {
			ex.Sets = append(ex.Sets, g.set(ex.ID, i+1,
				PrescribedWeight(oneRepMax, slot.PercentageOfMax), slot.Reps,
				ptr.Ref(PrimaryRPE), ptr.Ref(slot.PercentageOfMax)))
		}
		return ex, nil
	}

	reps := ptr.Deref(def.RepMax, defaultRepTarget)
	for i := range g.accessorySets {
		var rpe *float64
		if def.RPEMax != nil {
			rpe = ptr.Ref(*def.RPEMax)
		}
		ex.Sets = append(ex.Sets, g.set(ex.ID, i+1, PlaceholderWeight, reps, rpe, nil))
	}
	return ex, nil
}

func (g *generator) set(exerciseID string, number int, weight float64, reps int, rpe, pct *float64) Set {
	return Set{
		ID:              g.newID(),
		ExerciseID:      exerciseID,
		SetNumber:       number,
		Weight:          weight,
		Reps:            reps,
		RPE:             rpe,
		PercentageOfMax: pct,
		ActualWeight:    nil,
		ActualReps:      nil,
		ActualRPE:       nil,
		Status:          StatusPending,
		CompletedAt:     nil,
	}
}
