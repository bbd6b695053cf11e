package workout

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/liftcycle/internal/errors"
	"github.com/myrjola/liftcycle/internal/logging"
	"github.com/myrjola/liftcycle/internal/sqlite"
	"golang.org/x/sync/errgroup"
)

// recentCompletedCycles bounds the completed cycles listed in TrainingData.
const recentCompletedCycles = 3

// Config holds the immutable generation settings of a Service.
type Config struct {
	Periodization PeriodizationTable
	Selection     SelectionPolicy
	// AccessorySets is the number of flat sets of exercises without a percentage based prescription.
	AccessorySets int
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the 5/3/1 wave with deterministic definition selection.
func DefaultConfig() Config {
	return Config{
		Periodization: DefaultPeriodization,
		Selection:     SelectFirst,
		AccessorySets: DefaultAccessorySets,
		Now:           time.Now,
	}
}

// Service generates cycles and applies progression events to them.
type Service struct {
	repo   *repository
	db     *sqlite.Database
	logger *slog.Logger
	cfg    Config
}

// NewService creates a service. Zero fields of cfg take their value from DefaultConfig. A periodization
// table that cannot produce valid sets is rejected.
func NewService(db *sqlite.Database, logger *slog.Logger, cfg Config) (*Service, error) {
	defaults := DefaultConfig()
	if cfg.Periodization[0] == nil {
		cfg.Periodization = defaults.Periodization
	}
	if err := cfg.Periodization.Validate(); err != nil {
		return nil, errors.Wrap(fmt.Errorf("%w: %w", ErrInvalidConfig, err), "new service")
	}
	if !cfg.Selection.Valid() {
		cfg.Selection = defaults.Selection
	}
	if cfg.AccessorySets <= 0 {
		cfg.AccessorySets = defaults.AccessorySets
	}
	if cfg.Now == nil {
		cfg.Now = defaults.Now
	}
	return &Service{
		repo:   newRepository(db, logger),
		db:     db,
		logger: logger,
		cfg:    cfg,
	}, nil
}

func (s *Service) now() time.Time {
	return s.cfg.Now().UTC()
}

// CreateUser registers a lifter.
func (s *Service) CreateUser(ctx context.Context, displayName string) (User, error) {
	u := User{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		CreatedAt:   s.now(),
	}
	if err := s.repo.users.Create(ctx, u); err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// SeedCatalog inserts the definitions or updates them in place. Running it again with the same catalogue
// changes nothing.
func (s *Service) SeedCatalog(ctx context.Context, defs []ExerciseDefinition) error {
	if err := s.repo.definitions.Upsert(ctx, defs); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "seeded catalog", slog.Int("definitions", len(defs)))
	return nil
}

// ListDefinitions returns the catalogue ordered by name.
func (s *Service) ListDefinitions(ctx context.Context) ([]ExerciseDefinition, error) {
	defs, err := s.repo.definitions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	return defs, nil
}

// InsertOneRepMax records the one-rep max of userID for a definition. An earlier value is replaced.
func (s *Service) InsertOneRepMax(ctx context.Context, userID, definitionID string, weight float64) error {
	if weight <= 0 {
		return fmt.Errorf("%w: one-rep max %v must be positive", ErrInvalidPerformance, weight)
	}
	if err := s.repo.maxes.Upsert(ctx, OneRepMax{
		UserID:       userID,
		DefinitionID: definitionID,
		Weight:       weight,
		UpdatedAt:    s.now(),
	}); err != nil {
		return fmt.Errorf("insert one-rep max: %w", err)
	}
	return nil
}

// ListOneRepMaxes returns the one-rep maxes of userID ordered by definition name.
func (s *Service) ListOneRepMaxes(ctx context.Context, userID string) ([]OneRepMax, error) {
	maxes, err := s.repo.maxes.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list one-rep maxes: %w", err)
	}
	return maxes, nil
}

// CreateCycle generates a new cycle of sixteen workouts for userID and persists it in one transaction.
// Every failure is reported as ErrGenerationFailed wrapping the cause, and leaves nothing behind.
func (s *Service) CreateCycle(ctx context.Context, userID string) (Cycle, error) {
	ctx = logging.WithAttrs(ctx, slog.String("user_id", userID))
	start := time.Now()
	c, err := s.createCycle(ctx, userID)
	if err != nil {
		return Cycle{}, errors.Wrap(fmt.Errorf("%w: %w", ErrGenerationFailed, err), "create cycle",
			slog.String("user_id", userID))
	}

	var exercises, sets int
	for _, w := range c.Workouts {
		exercises += len(w.Exercises)
		for _, ex := range w.Exercises {
			sets += len(ex.Sets)
		}
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "created cycle",
		slog.String("cycle_id", c.ID),
		slog.Int("workouts", len(c.Workouts)),
		slog.Int("exercises", exercises),
		slog.Int("sets", sets),
		slog.Duration("duration", time.Since(start)))
	return c.Cycle, nil
}

func (s *Service) createCycle(ctx context.Context, userID string) (*cycleAggregate, error) {
	if _, err := s.repo.users.Get(ctx, userID); err != nil {
		return nil, err
	}

	var (
		catalog []ExerciseDefinition
		maxes   []OneRepMax
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, err = s.repo.definitions.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		maxes, err = s.repo.maxes.List(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load generation input: %w", err)
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("%w: catalog is empty", ErrNoMatchingDefinition)
	}

	c, err := newGenerator(s.cfg, catalog, maxes).generate(userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if err = s.repo.cycles.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}
	return c, nil
}

// applyEvent runs transition on the cycle ref belongs to inside one write transaction. The aggregate must
// satisfy the cursor invariants afterwards or nothing is written.
func (s *Service) applyEvent(
	ctx context.Context, event string, ref entityRef, transition func(c *cycleAggregate, now time.Time) error,
) error {
	ctx = logging.WithAttrs(ctx, slog.String("event", event), ref.attr())
	err := s.repo.cycles.Update(ctx, ref, func(c *cycleAggregate) (bool, error) {
		if err := transition(c, s.now()); err != nil {
			return false, err
		}
		if err := c.validate(); err != nil {
			return false, fmt.Errorf("cycle %s left inconsistent: %w", c.ID, err)
		}
		s.logger.LogAttrs(ctx, slog.LevelDebug, "applied event",
			slog.String("cycle_id", c.ID),
			slog.String("cycle_status", string(c.Status)),
			slog.String("current_workout_id", c.CurrentWorkoutID))
		return true, nil
	})
	if err != nil {
		return errors.Wrap(err, event, ref.attr())
	}
	return nil
}

// StartWorkout puts a pending workout in progress with its first exercise and set as the cursor.
// Starting a workout that is not pending fails with ErrInvalidTransition and leaves the cursor alone.
func (s *Service) StartWorkout(ctx context.Context, workoutID string) error {
	return s.applyEvent(ctx, "start workout", entityRef{kind: refWorkout, id: workoutID},
		func(c *cycleAggregate, now time.Time) error {
			return c.startWorkout(workoutID, now)
		})
}

// CompleteSet records p on the current set and advances the cursor. exerciseID may be empty.
func (s *Service) CompleteSet(ctx context.Context, setID, exerciseID, workoutID string, p Performance) error {
	return s.applyEvent(ctx, "complete set", entityRef{kind: refWorkout, id: workoutID},
		func(c *cycleAggregate, now time.Time) error {
			return c.completeSet(workoutID, exerciseID, setID, p, now)
		})
}

// SkipSet skips the current set of the workout, or setID when it is given, and advances the cursor.
// workoutID may be empty when setID is given.
func (s *Service) SkipSet(ctx context.Context, workoutID, setID string) error {
	ref := entityRef{kind: refWorkout, id: workoutID}
	if workoutID == "" {
		ref = entityRef{kind: refSet, id: setID}
	}
	return s.applyEvent(ctx, "skip set", ref,
		func(c *cycleAggregate, now time.Time) error {
			if workoutID == "" {
				return c.skipSet(c.workoutOfSet(setID), setID, now)
			}
			return c.skipSet(workoutID, setID, now)
		})
}

// SkipRemainingInExercise skips the open sets of the current exercise, completes it and moves on.
func (s *Service) SkipRemainingInExercise(ctx context.Context, exerciseID string) error {
	return s.applyEvent(ctx, "skip remaining in exercise", entityRef{kind: refExercise, id: exerciseID},
		func(c *cycleAggregate, now time.Time) error {
			return c.skipRemainingInExercise(exerciseID, now)
		})
}

// SkipRemainingInWorkout skips every open exercise of the workout and completes it.
func (s *Service) SkipRemainingInWorkout(ctx context.Context, workoutID string) error {
	return s.applyEvent(ctx, "skip remaining in workout", entityRef{kind: refWorkout, id: workoutID},
		func(c *cycleAggregate, now time.Time) error {
			return c.skipRemainingInWorkout(workoutID, now)
		})
}

// SkipRemainingInCycle skips every pending workout and completes the cycle.
func (s *Service) SkipRemainingInCycle(ctx context.Context, cycleID string) error {
	return s.applyEvent(ctx, "skip remaining in cycle", entityRef{kind: refCycle, id: cycleID},
		func(c *cycleAggregate, now time.Time) error {
			return c.skipRemainingInCycle(now)
		})
}

// CompleteWorkout completes the workout and all its open exercises and sets without recording performance.
func (s *Service) CompleteWorkout(ctx context.Context, workoutID string) error {
	return s.applyEvent(ctx, "complete workout", entityRef{kind: refWorkout, id: workoutID},
		func(c *cycleAggregate, now time.Time) error {
			return c.completeWorkout(workoutID, now)
		})
}

// GetWorkout returns the workout with its exercises, their definitions and sets.
func (s *Service) GetWorkout(ctx context.Context, workoutID string) (WorkoutDetail, error) {
	c, err := s.repo.cycles.Get(ctx, entityRef{kind: refWorkout, id: workoutID})
	if err != nil {
		return WorkoutDetail{}, fmt.Errorf("get workout %s: %w", workoutID, err)
	}
	w, err := c.workout(workoutID)
	if err != nil {
		return WorkoutDetail{}, err
	}
	defs, err := s.repo.definitions.List(ctx)
	if err != nil {
		return WorkoutDetail{}, fmt.Errorf("get workout %s: %w", workoutID, err)
	}
	byID := make(map[string]ExerciseDefinition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}

	detail := WorkoutDetail{
		Workout:   w.Workout,
		Week:      WeekNumber(w.Sequence - 1),
		Exercises: make([]ExerciseDetail, 0, len(w.Exercises)),
	}
	for _, ex := range w.Exercises {
		detail.Exercises = append(detail.Exercises, ExerciseDetail{
			Exercise:   ex.Exercise,
			Definition: byID[ex.DefinitionID],
			Sets:       ex.Sets,
		})
	}
	return detail, nil
}

// GetTrainingData returns the dashboard of userID: whether every primary lift has a one-rep max, the latest
// unfinished cycle followed by the most recently completed ones, and their workouts.
func (s *Service) GetTrainingData(ctx context.Context, userID string) (TrainingData, error) {
	var (
		defs   []ExerciseDefinition
		maxes  []OneRepMax
		cycles []Cycle
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		defs, err = s.repo.definitions.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		maxes, err = s.repo.maxes.List(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		cycles, err = s.repo.cycles.ListByUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return TrainingData{}, fmt.Errorf("get training data: %w", err)
	}

	selected := selectCycles(cycles)
	cycleIDs := make([]string, len(selected))
	for i, c := range selected {
		cycleIDs[i] = c.ID
	}
	workouts, err := s.repo.cycles.ListWorkouts(ctx, cycleIDs)
	if err != nil {
		return TrainingData{}, fmt.Errorf("get training data: %w", err)
	}
	slices.SortStableFunc(workouts, func(a, b Workout) int {
		return cmp.Or(
			cmp.Compare(slices.Index(cycleIDs, a.CycleID), slices.Index(cycleIDs, b.CycleID)),
			cmp.Compare(a.Sequence, b.Sequence),
		)
	})

	data := TrainingData{
		HasAllMaxes: hasAllMaxes(defs, maxes),
		Cycles:      make([]CycleSummary, 0, len(selected)),
		Workouts:    workouts,
	}
	for _, c := range selected {
		data.Cycles = append(data.Cycles, summarize(c, workouts))
	}
	return data, nil
}

// selectCycles picks the newest unfinished cycle and the most recently completed ones from cycles, which are
// ordered newest first.
func selectCycles(cycles []Cycle) []Cycle {
	var (
		selected  []Cycle
		completed []Cycle
	)
	for _, c := range cycles {
		if c.Status == StatusCompleted {
			completed = append(completed, c)
			continue
		}
		if len(selected) == 0 {
			selected = append(selected, c)
		}
	}
	slices.SortStableFunc(completed, func(a, b Cycle) int {
		return b.CompletedAt.Compare(*a.CompletedAt)
	})
	return append(selected, completed[:min(len(completed), recentCompletedCycles)]...)
}

func hasAllMaxes(defs []ExerciseDefinition, maxes []OneRepMax) bool {
	recorded := make(map[string]bool, len(maxes))
	for _, m := range maxes {
		recorded[m.DefinitionID] = true
	}
	for _, def := range defs {
		if def.Type == ExerciseTypePrimary && !recorded[def.ID] {
			return false
		}
	}
	return true
}

func summarize(c Cycle, workouts []Workout) CycleSummary {
	summary := CycleSummary{
		Cycle:             c,
		TotalWorkouts:     0,
		CompletedWorkouts: 0,
		SkippedWorkouts:   0,
		NextWorkout:       nil,
	}
	var firstPending *Workout
	for i := range workouts {
		w := &workouts[i]
		if w.CycleID != c.ID {
			continue
		}
		summary.TotalWorkouts++
		switch w.Status {
		case StatusCompleted:
			summary.CompletedWorkouts++
		case StatusSkipped:
			summary.SkippedWorkouts++
		case StatusInProgress:
			summary.NextWorkout = w
		case StatusPending:
			if firstPending == nil {
				firstPending = w
			}
		}
	}
	if summary.NextWorkout == nil {
		summary.NextWorkout = firstPending
	}
	return summary
}

// ExportUser writes the rows of userID and the catalogue into a standalone database file in dir.
func (s *Service) ExportUser(ctx context.Context, userID, dir string) (string, error) {
	if _, err := s.repo.users.Get(ctx, userID); err != nil {
		return "", fmt.Errorf("export user: %w", err)
	}
	path, err := s.db.ExportUser(ctx, userID, dir)
	if err != nil {
		return "", errors.Wrap(err, "export user", slog.String("user_id", userID))
	}
	return path, nil
}
