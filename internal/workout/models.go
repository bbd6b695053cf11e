package workout

import (
	"time"
)

// Status is the lifecycle state shared by cycles, workouts, exercises and sets.
// Cycles never become skipped.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
)

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// Open reports whether s is pending or in progress.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

// Lift is one of the four main barbell lifts a workout is built around.
type Lift string

const (
	LiftSquat    Lift = "squat"
	LiftBench    Lift = "bench"
	LiftDeadlift Lift = "deadlift"
	LiftPress    Lift = "press"
)

// WorkoutsPerCycle is the number of workouts generated for a cycle, four weeks of four sessions.
const WorkoutsPerCycle = 16

// LiftRotation is the order in which the primary lifts repeat through a cycle.
var LiftRotation = [...]Lift{LiftSquat, LiftBench, LiftDeadlift, LiftPress} //nolint:gochecknoglobals // constant table.

// LiftForSequence returns the primary lift of the workout at 1-based sequence.
func LiftForSequence(sequence int) Lift {
	return LiftRotation[(sequence-1)%len(LiftRotation)]
}

func (l Lift) Valid() bool {
	switch l {
	case LiftSquat, LiftBench, LiftDeadlift, LiftPress:
		return true
	}
	return false
}

// ExerciseType distinguishes the main lifts from the work supporting them.
type ExerciseType string

const (
	ExerciseTypePrimary   ExerciseType = "primary"
	ExerciseTypeVariation ExerciseType = "variation"
	ExerciseTypeAccessory ExerciseType = "accessory"
)

func (t ExerciseType) Valid() bool {
	switch t {
	case ExerciseTypePrimary, ExerciseTypeVariation, ExerciseTypeAccessory:
		return true
	}
	return false
}

type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// ExerciseDefinition is a catalogue entry that exercises in a workout instantiate.
type ExerciseDefinition struct {
	ID       string
	Name     string
	Type     ExerciseType
	Category Category
	// PrimaryLiftDay is the day a main lift belongs to. Empty for work that is not tied to a day.
	PrimaryLiftDay Lift
	// RepMax and RPEMax are the flat targets used when no percentage based prescription applies.
	RepMax      *int
	RPEMax      *float64
	Description string
}

// OneRepMax is a user's estimated maximum for a single repetition of an exercise.
type OneRepMax struct {
	UserID       string
	DefinitionID string
	Weight       float64
	UpdatedAt    time.Time
}

// Cycle is a four week training block of sixteen workouts.
type Cycle struct {
	ID          string
	UserID      string
	Status      Status
	StartDate   time.Time
	EndDate     *time.Time
	CompletedAt *time.Time
	// CurrentWorkoutID is the in-progress workout, empty when there is none.
	CurrentWorkoutID string
	CreatedAt        time.Time
}

// Workout is a single training session of a cycle.
type Workout struct {
	ID            string
	CycleID       string
	Sequence      int
	PrimaryLift   Lift
	Status        Status
	ScheduledDate time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	// CurrentExerciseID and CurrentSetID form the cursor and are only set while the workout is in progress.
	CurrentExerciseID string
	CurrentSetID      string
}

// Exercise is an instance of an exercise definition inside a workout.
type Exercise struct {
	ID           string
	WorkoutID    string
	DefinitionID string
	Order        int
	Status       Status
	// OneRepMax is the maximum the sets were computed from, captured at generation time.
	OneRepMax *float64
}

// Set is one prescribed set and what was actually performed.
type Set struct {
	ID              string
	ExerciseID      string
	SetNumber       int
	Weight          float64
	Reps            int
	RPE             *float64
	PercentageOfMax *float64
	ActualWeight    *float64
	ActualReps      *int
	ActualRPE       *float64
	Status          Status
	CompletedAt     *time.Time
}

// Performance is what the lifter reports when completing a set. Reps and RPE default to the prescription.
type Performance struct {
	Weight float64
	Reps   *int
	RPE    *float64
}

// WorkoutDetail is a workout with its exercises, their definitions and sets.
type WorkoutDetail struct {
	Workout
	Week      int
	Exercises []ExerciseDetail
}

type ExerciseDetail struct {
	Exercise
	Definition ExerciseDefinition
	Sets       []Set
}

// CycleSummary condenses a cycle for overview screens.
type CycleSummary struct {
	Cycle
	TotalWorkouts     int
	CompletedWorkouts int
	SkippedWorkouts   int
	// NextWorkout is the in-progress workout or else the first pending one.
	NextWorkout *Workout
}

// TrainingData is the read model backing a user's dashboard.
type TrainingData struct {
	// HasAllMaxes reports whether every primary lift has a one-rep max, which is needed for percentage based sets.
	HasAllMaxes bool
	// Cycles holds the latest unfinished cycle first, followed by up to three recently completed ones.
	Cycles []CycleSummary
	// Workouts of the listed cycles ordered by cycle and sequence.
	Workouts []Workout
}
