package workout

import (
	"fmt"
	"time"

	"github.com/myrjola/liftcycle/internal/ptr"
)

// cycleAggregate is a cycle with all its workouts, exercises and sets. It is the consistency boundary of
// the progression state machine: every event loads one aggregate, mutates it in memory and writes back the
// rows that changed in the same transaction.
type cycleAggregate struct {
	Cycle
	// Workouts ordered by sequence.
	Workouts []workoutAggregate
}

type workoutAggregate struct {
	Workout
	// Exercises ordered by order.
	Exercises []exerciseAggregate
}

type exerciseAggregate struct {
	Exercise
	// Type of the definition, which decides what CompleteSet records.
	Type ExerciseType
	// Sets ordered by set number.
	Sets []Set
}

func invalidTransition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func (c *cycleAggregate) workout(id string) (*workoutAggregate, error) {
	for i := range c.Workouts {
		if c.Workouts[i].ID == id {
			return &c.Workouts[i], nil
		}
	}
	return nil, fmt.Errorf("workout %s: %w", id, ErrNotFound)
}

// exercise finds the exercise by id in any workout of the cycle.
func (c *cycleAggregate) exercise(id string) (*workoutAggregate, int, error) {
	for i := range c.Workouts {
		for j := range c.Workouts[i].Exercises {
			if c.Workouts[i].Exercises[j].ID == id {
				return &c.Workouts[i], j, nil
			}
		}
	}
	return nil, 0, fmt.Errorf("exercise %s: %w", id, ErrNotFound)
}

func (w *workoutAggregate) exerciseIndex(id string) (int, error) {
	for i := range w.Exercises {
		if w.Exercises[i].ID == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("exercise %s in workout %s: %w", id, w.ID, ErrNotFound)
}

func (w *workoutAggregate) exerciseOfSet(setID string) string {
	for i := range w.Exercises {
		for j := range w.Exercises[i].Sets {
			if w.Exercises[i].Sets[j].ID == setID {
				return w.Exercises[i].ID
			}
		}
	}
	return ""
}

// workoutOfSet returns the id of the workout holding setID, or "" when no workout of the cycle does.
func (c *cycleAggregate) workoutOfSet(setID string) string {
	for i := range c.Workouts {
		if c.Workouts[i].exerciseOfSet(setID) != "" {
			return c.Workouts[i].ID
		}
	}
	return ""
}

func (e *exerciseAggregate) setIndex(id string) (int, error) {
	for i := range e.Sets {
		if e.Sets[i].ID == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("set %s in exercise %s: %w", id, e.ID, ErrNotFound)
}

func (c *cycleAggregate) inProgressWorkout() *workoutAggregate {
	for i := range c.Workouts {
		if c.Workouts[i].Status == StatusInProgress {
			return &c.Workouts[i]
		}
	}
	return nil
}

// startWorkout moves a pending workout, its first exercise and that exercise's first set to in progress.
func (c *cycleAggregate) startWorkout(workoutID string, now time.Time) error {
	w, err := c.workout(workoutID)
	if err != nil {
		return err
	}
	if c.Status == StatusCompleted {
		return invalidTransition("cycle %s is completed", c.ID)
	}
	if w.Status != StatusPending {
		return invalidTransition("workout %s is %s", w.ID, w.Status)
	}
	if current := c.inProgressWorkout(); current != nil {
		return invalidTransition("workout %d is already in progress", current.Sequence)
	}
	if len(w.Exercises) == 0 {
		return invalidTransition("workout %s has no exercises", w.ID)
	}

	w.Status = StatusInProgress
	w.StartedAt = ptr.Ref(now)
	c.CurrentWorkoutID = w.ID
	if c.Status == StatusPending {
		c.Status = StatusInProgress
	}
	c.activateNextExercise(w, -1, now)
	return nil
}

// cursorSet checks that the set is the in-progress leaf of an in-progress workout and returns its position.
func (c *cycleAggregate) cursorSet(workoutID, exerciseID, setID string) (*workoutAggregate, int, int, error) {
	w, err := c.workout(workoutID)
	if err != nil {
		return nil, 0, 0, err
	}
	if w.Status != StatusInProgress {
		return nil, 0, 0, invalidTransition("workout %s is %s", w.ID, w.Status)
	}
	if setID == "" {
		setID = w.CurrentSetID
	}
	if exerciseID == "" {
		if exerciseID = w.exerciseOfSet(setID); exerciseID == "" {
			return nil, 0, 0, fmt.Errorf("set %s in workout %s: %w", setID, w.ID, ErrNotFound)
		}
	}
	exIdx, err := w.exerciseIndex(exerciseID)
	if err != nil {
		return nil, 0, 0, err
	}
	ex := &w.Exercises[exIdx]
	setIdx, err := ex.setIndex(setID)
	if err != nil {
		return nil, 0, 0, err
	}
	if ex.Sets[setIdx].Status != StatusInProgress || w.CurrentSetID != setID {
		return nil, 0, 0, invalidTransition("set %d of exercise %d is %s, not the current set",
			ex.Sets[setIdx].SetNumber, ex.Order, ex.Sets[setIdx].Status)
	}
	return w, exIdx, setIdx, nil
}

// completeSet records perf on the current set and advances the cursor.
func (c *cycleAggregate) completeSet(workoutID, exerciseID, setID string, perf Performance, now time.Time) error {
	w, exIdx, setIdx, err := c.cursorSet(workoutID, exerciseID, setID)
	if err != nil {
		return err
	}
	ex := &w.Exercises[exIdx]
	set := &ex.Sets[setIdx]
	if err = perf.validate(); err != nil {
		return err
	}

	set.ActualWeight = ptr.Ref(perf.Weight)
	set.ActualReps = ptr.Ref(ptr.Deref(perf.Reps, set.Reps))
	set.ActualRPE = copyFloat(perf.RPE)
	// Accessory work is tracked by effort, so the target stands in for an unreported RPE.
	if set.ActualRPE == nil && ex.Type != ExerciseTypePrimary {
		set.ActualRPE = copyFloat(set.RPE)
	}
	set.Status = StatusCompleted
	set.CompletedAt = ptr.Ref(now)
	c.advanceAfterSet(w, exIdx, setIdx, now)
	return nil
}

// skipSet skips the current set, or setID when given, leaving the prescription untouched.
func (c *cycleAggregate) skipSet(workoutID, setID string, now time.Time) error {
	w, exIdx, setIdx, err := c.cursorSet(workoutID, "", setID)
	if err != nil {
		return err
	}
	w.Exercises[exIdx].Sets[setIdx].Status = StatusSkipped
	c.advanceAfterSet(w, exIdx, setIdx, now)
	return nil
}

// skipRemainingInExercise skips the open sets of the current exercise, completes it and moves on.
func (c *cycleAggregate) skipRemainingInExercise(exerciseID string, now time.Time) error {
	w, exIdx, err := c.exercise(exerciseID)
	if err != nil {
		return err
	}
	ex := &w.Exercises[exIdx]
	if w.Status != StatusInProgress || ex.Status != StatusInProgress {
		return invalidTransition("exercise %d of workout %d is not the current exercise", ex.Order, w.Sequence)
	}
	skipOpenSets(ex)
	ex.Status = StatusCompleted
	c.activateNextExercise(w, exIdx, now)
	return nil
}

// skipRemainingInWorkout skips every open exercise and set of the workout and completes it.
func (c *cycleAggregate) skipRemainingInWorkout(workoutID string, now time.Time) error {
	w, err := c.workout(workoutID)
	if err != nil {
		return err
	}
	if !w.Status.Open() {
		return invalidTransition("workout %s is %s", w.ID, w.Status)
	}
	skipOpenExercises(w)
	c.finishWorkout(w, StatusCompleted, now)
	return nil
}

// skipRemainingInCycle ends the cycle. The in-progress workout is closed like skipRemainingInWorkout and
// pending workouts are skipped.
func (c *cycleAggregate) skipRemainingInCycle(now time.Time) error {
	if c.Status == StatusCompleted {
		return invalidTransition("cycle %s is completed", c.ID)
	}
	for i := range c.Workouts {
		w := &c.Workouts[i]
		switch w.Status { //nolint:exhaustive // terminal workouts stay as they are.
		case StatusInProgress:
			skipOpenExercises(w)
			c.finishWorkout(w, StatusCompleted, now)
		case StatusPending:
			skipOpenExercises(w)
			c.finishWorkout(w, StatusSkipped, now)
		}
	}
	c.complete(now)
	return nil
}

// completeWorkout force-completes every open exercise and set of the workout without recording performance.
func (c *cycleAggregate) completeWorkout(workoutID string, now time.Time) error {
	w, err := c.workout(workoutID)
	if err != nil {
		return err
	}
	if !w.Status.Open() {
		return invalidTransition("workout %s is %s", w.ID, w.Status)
	}
	for i := range w.Exercises {
		ex := &w.Exercises[i]
		if !ex.Status.Open() {
			continue
		}
		for j := range ex.Sets {
			if ex.Sets[j].Status.Open() {
				ex.Sets[j].Status = StatusCompleted
				ex.Sets[j].CompletedAt = ptr.Ref(now)
			}
		}
		ex.Status = StatusCompleted
	}
	c.finishWorkout(w, StatusCompleted, now)
	return nil
}

// advanceAfterSet moves the cursor past the set at setIdx that has just become terminal.
func (c *cycleAggregate) advanceAfterSet(w *workoutAggregate, exIdx, setIdx int, now time.Time) {
	ex := &w.Exercises[exIdx]
	for i := setIdx + 1; i < len(ex.Sets); i++ {
		if ex.Sets[i].Status == StatusPending {
			ex.Sets[i].Status = StatusInProgress
			w.CurrentSetID = ex.Sets[i].ID
			return
		}
	}
	ex.Status = StatusCompleted
	c.activateNextExercise(w, exIdx, now)
}

// activateNextExercise puts the first pending exercise after position from and its first pending set in
// progress. Exercises without pending sets are completed on the way. The workout completes when no exercise
// is left.
func (c *cycleAggregate) activateNextExercise(w *workoutAggregate, from int, now time.Time) {
	for i := from + 1; i < len(w.Exercises); i++ {
		ex := &w.Exercises[i]
		if ex.Status != StatusPending {
			continue
		}
		for j := range ex.Sets {
			if ex.Sets[j].Status == StatusPending {
				ex.Status = StatusInProgress
				ex.Sets[j].Status = StatusInProgress
				w.CurrentExerciseID = ex.ID
				w.CurrentSetID = ex.Sets[j].ID
				return
			}
		}
		ex.Status = StatusCompleted
	}
	c.finishWorkout(w, StatusCompleted, now)
}

func (c *cycleAggregate) finishWorkout(w *workoutAggregate, status Status, now time.Time) {
	w.Status = status
	if status == StatusCompleted {
		w.CompletedAt = ptr.Ref(now)
	}
	w.CurrentExerciseID = ""
	w.CurrentSetID = ""
	if c.CurrentWorkoutID == w.ID {
		c.CurrentWorkoutID = ""
	}
	if c.Status == StatusPending {
		c.Status = StatusInProgress
	}
	for i := range c.Workouts {
		if c.Workouts[i].Status.Open() {
			return
		}
	}
	c.complete(now)
}

func (c *cycleAggregate) complete(now time.Time) {
	if c.Status == StatusCompleted {
		return
	}
	c.Status = StatusCompleted
	c.EndDate = ptr.Ref(now)
	c.CompletedAt = ptr.Ref(now)
	c.CurrentWorkoutID = ""
}

func skipOpenSets(ex *exerciseAggregate) {
	for i := range ex.Sets {
		if ex.Sets[i].Status.Open() {
			ex.Sets[i].Status = StatusSkipped
		}
	}
}

func skipOpenExercises(w *workoutAggregate) {
	for i := range w.Exercises {
		if w.Exercises[i].Status.Open() {
			skipOpenSets(&w.Exercises[i])
			w.Exercises[i].Status = StatusSkipped
		}
	}
}

func (p Performance) validate() error {
	if p.Weight < 0 {
		return fmt.Errorf("%w: negative weight %v", ErrInvalidPerformance, p.Weight)
	}
	if p.Reps != nil && *p.Reps < 0 {
		return fmt.Errorf("%w: negative reps %d", ErrInvalidPerformance, *p.Reps)
	}
	if p.RPE != nil && (*p.RPE < 1 || *p.RPE > 10) {
		return fmt.Errorf("%w: rpe %v outside 1-10", ErrInvalidPerformance, *p.RPE)
	}
	return nil
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return ptr.Ref(*p)
}

// validate checks the cursor invariants of the aggregate: at most one open leaf on each level, the cursor
// columns pointing at it, and terminal parents having only terminal children.
func (c *cycleAggregate) validate() error {
	var inProgress []string
	for i := range c.Workouts {
		w := &c.Workouts[i]
		if w.Status == StatusInProgress {
			inProgress = append(inProgress, w.ID)
		}
		if err := w.validate(); err != nil {
			return fmt.Errorf("workout %d: %w", w.Sequence, err)
		}
		if c.Status == StatusCompleted && w.Status.Open() {
			return fmt.Errorf("completed cycle has %s workout %d", w.Status, w.Sequence)
		}
	}
	switch {
	case len(inProgress) > 1:
		return fmt.Errorf("%d workouts in progress", len(inProgress))
	case len(inProgress) == 1 && c.CurrentWorkoutID != inProgress[0]:
		return fmt.Errorf("current workout %q does not match in-progress workout %s", c.CurrentWorkoutID, inProgress[0])
	case len(inProgress) == 0 && c.CurrentWorkoutID != "":
		return fmt.Errorf("current workout %s set without a workout in progress", c.CurrentWorkoutID)
	}
	return nil
}

func (w *workoutAggregate) validate() error {
	var exercises, sets int
	for i := range w.Exercises {
		ex := &w.Exercises[i]
		openSets := 0
		for j := range ex.Sets {
			s := ex.Sets[j]
			if s.Status == StatusInProgress {
				sets++
				if ex.Status != StatusInProgress {
					return fmt.Errorf("set %d in progress under %s exercise %d", s.SetNumber, ex.Status, ex.Order)
				}
				if w.CurrentSetID != s.ID {
					return fmt.Errorf("in-progress set %d is not the current set", s.SetNumber)
				}
			}
			if s.Status.Open() {
				openSets++
			}
		}
		if ex.Status.Terminal() && openSets > 0 {
			return fmt.Errorf("%s exercise %d has %d open sets", ex.Status, ex.Order, openSets)
		}
		if ex.Status == StatusInProgress {
			exercises++
			if w.CurrentExerciseID != ex.ID {
				return fmt.Errorf("in-progress exercise %d is not the current exercise", ex.Order)
			}
		}
		if w.Status.Terminal() && ex.Status.Open() {
			return fmt.Errorf("%s workout has %s exercise %d", w.Status, ex.Status, ex.Order)
		}
		if w.Status == StatusPending && ex.Status != StatusPending {
			return fmt.Errorf("pending workout has %s exercise %d", ex.Status, ex.Order)
		}
	}
	if w.Status == StatusInProgress {
		if exercises != 1 || sets != 1 {
			return fmt.Errorf("in-progress workout has %d in-progress exercises and %d in-progress sets", exercises, sets)
		}
		return nil
	}
	if exercises != 0 || sets != 0 || w.CurrentExerciseID != "" || w.CurrentSetID != "" {
		return fmt.Errorf("%s workout has a cursor", w.Status)
	}
	return nil
}
