package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/myrjola/liftcycle/internal/flightrecorder"
	"github.com/myrjola/liftcycle/internal/logging"
	"github.com/myrjola/liftcycle/internal/sqlite"
	"github.com/myrjola/liftcycle/internal/testhelpers"
	"github.com/myrjola/liftcycle/internal/workout"
	"golang.org/x/sync/errgroup"
)

const (
	defaultNumUsers        = 10
	workoutsPerUser        = 4
	racersPerEvent         = 6
	scenarioTimeout        = 2 * time.Minute
	maxConcurrentScenarios = 20
	stressOneRepMax        = 185.0
	stressWeight           = 95.0
	expectedMaxArgsCount   = 2
	successRateThreshold   = 100.0
	percentageMultiplier   = 100
	slowRoundThreshold     = 500 * time.Millisecond
	tracesDirectory        = "stresstest-traces"
)

// counters tracks the outcome of racing events.
type counters struct {
	completed int64
	skipped   int64
	rejected  int64
	rounds    int64
}

// harness is shared by all scenarios.
type harness struct {
	svc      *workout.Service
	recorder *flightrecorder.Recorder
	c        counters
}

// raceRound fires racersPerEvent concurrent calls of event and reports how many succeeded.
// Losing racers must fail with workout.ErrInvalidTransition. Slow rounds are traced.
func (h *harness) raceRound(ctx context.Context, op string, event func(racer int) error) (int, error) {
	var succeeded, rejected int64
	start := time.Now()
	defer func() { h.recorder.Observe(ctx, op, time.Since(start)) }()
	g, gctx := errgroup.WithContext(ctx)
	for racer := range racersPerEvent {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err() //nolint:wrapcheck // cancellation.
			}
			err := event(racer)
			switch {
			case err == nil:
				atomic.AddInt64(&succeeded, 1)
			case errors.Is(err, workout.ErrInvalidTransition):
				atomic.AddInt64(&rejected, 1)
			default:
				return fmt.Errorf("racer %d: %w", racer, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err //nolint:wrapcheck // already wrapped.
	}
	if succeeded+rejected != racersPerEvent {
		return 0, fmt.Errorf("%d successes and %d rejections from %d racers", succeeded, rejected, racersPerEvent)
	}
	return int(succeeded), nil
}

// RaceScenario creates a user with a cycle and drives its first workouts with racing events.
// Exactly one racer must win each round.
func (h *harness) RaceScenario(ctx context.Context, userIndex int) error {
	svc := h.svc
	user, err := svc.CreateUser(ctx, "Stress Tester "+strconv.Itoa(userIndex))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	defs, err := svc.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("list definitions: %w", err)
	}
	for _, def := range defs {
		if def.Type == workout.ExerciseTypePrimary {
			if err = svc.InsertOneRepMax(ctx, user.ID, def.ID, stressOneRepMax); err != nil {
				return fmt.Errorf("insert one-rep max: %w", err)
			}
		}
	}
	if _, err = svc.CreateCycle(ctx, user.ID); err != nil {
		return fmt.Errorf("create cycle: %w", err)
	}
	data, err := svc.GetTrainingData(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("get training data: %w", err)
	}

	for _, w := range data.Workouts[:min(workoutsPerUser, len(data.Workouts))] {
		if err = h.raceWorkout(ctx, w.ID); err != nil {
			return fmt.Errorf("workout %d: %w", w.Sequence, err)
		}
	}
	return nil
}

func (h *harness) raceWorkout(ctx context.Context, workoutID string) error {
	svc, c := h.svc, &h.c
	won, err := h.raceRound(ctx, "start workout", func(int) error {
		return svc.StartWorkout(ctx, workoutID)
	})
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if won != 1 {
		return fmt.Errorf("%d concurrent starts succeeded", won)
	}
	atomic.AddInt64(&c.rounds, 1)

	detail, err := svc.GetWorkout(ctx, workoutID)
	if err != nil {
		return fmt.Errorf("get workout: %w", err)
	}
	for detail.Status == workout.StatusInProgress {
		var (
			setID      = detail.CurrentSetID
			exerciseID = detail.CurrentExerciseID
		)
		won, err = h.raceRound(ctx, "set event", func(racer int) error {
			if racer%2 == 0 {
				if err := svc.CompleteSet(ctx, setID, exerciseID, workoutID,
					workout.Performance{Weight: stressWeight, Reps: nil, RPE: nil}); err != nil {
					return err //nolint:wrapcheck // classified by raceRound.
				}
				atomic.AddInt64(&c.completed, 1)
				return nil
			}
			if err := svc.SkipSet(ctx, workoutID, setID); err != nil {
				return err //nolint:wrapcheck // classified by raceRound.
			}
			atomic.AddInt64(&c.skipped, 1)
			return nil
		})
		if err != nil {
			return fmt.Errorf("set %s: %w", setID, err)
		}
		if won != 1 {
			return fmt.Errorf("%d concurrent events on set %s succeeded", won, setID)
		}
		atomic.AddInt64(&c.rounds, 1)
		atomic.AddInt64(&c.rejected, racersPerEvent-1)
		if detail, err = svc.GetWorkout(ctx, workoutID); err != nil {
			return fmt.Errorf("get workout: %w", err)
		}
	}
	return nil
}

// invariantQueries count rows that break the single cursor rules.
//
//nolint:gochecknoglobals // constant table.
var invariantQueries = map[string]string{
	"workout without exactly one active exercise": `
		SELECT COUNT(*) FROM workouts w WHERE w.status = 'in_progress'
		  AND (SELECT COUNT(*) FROM exercises e WHERE e.workout_id = w.id AND e.status = 'in_progress') != 1`,
	"active exercise without exactly one active set": `
		SELECT COUNT(*) FROM exercises e WHERE e.status = 'in_progress'
		  AND (SELECT COUNT(*) FROM sets s WHERE s.exercise_id = e.id AND s.status = 'in_progress') != 1`,
	"cursor pointing outside the active rows": `
		SELECT COUNT(*) FROM workouts w
		WHERE w.status = 'in_progress' AND NOT EXISTS (
		  SELECT 1 FROM sets s JOIN exercises e ON e.id = s.exercise_id
		  WHERE s.id = w.current_set_id AND e.id = w.current_exercise_id
		    AND s.status = 'in_progress' AND e.status = 'in_progress')`,
	"finished workout with open sets": `
		SELECT COUNT(*) FROM sets s
		  JOIN exercises e ON e.id = s.exercise_id
		  JOIN workouts w ON w.id = e.workout_id
		WHERE w.status = 'completed' AND s.status IN ('pending', 'in_progress')`,
}

// CheckInvariants verifies the stored state and that every successful set event was persisted once.
func CheckInvariants(ctx context.Context, db *sqlite.Database, c *counters) error {
	var errs []error
	for name, query := range invariantQueries {
		var violations int
		if err := db.ReadOnly.QueryRowContext(ctx, query).Scan(&violations); err != nil {
			return fmt.Errorf("query %s: %w", name, err)
		}
		if violations > 0 {
			errs = append(errs, fmt.Errorf("%d rows: %s", violations, name))
		}
	}

	var completed, skipped int64
	if err := db.ReadOnly.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'completed'), COUNT(*) FILTER (WHERE status = 'skipped')
		FROM sets`).Scan(&completed, &skipped); err != nil {
		return fmt.Errorf("count sets: %w", err)
	}
	if completed != atomic.LoadInt64(&c.completed) {
		errs = append(errs, fmt.Errorf("%d completed sets stored, %d completions succeeded", completed, c.completed))
	}
	if skipped != atomic.LoadInt64(&c.skipped) {
		errs = append(errs, fmt.Errorf("%d skipped sets stored, %d skips succeeded", skipped, c.skipped))
	}
	return errors.Join(errs...)
}

// RunStressTest runs a race scenario per user and reports the outcome.
func (h *harness) RunStressTest(ctx context.Context, numUsers int, logger *slog.Logger) error {
	logger.LogAttrs(ctx, slog.LevelInfo, "Starting stress test", slog.Int("num_users", numUsers))

	var (
		c                          = &h.c
		successCount, failureCount int64
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentScenarios)

	for i := range numUsers {
		g.Go(func() error {
			scenarioCtx, cancel := context.WithTimeout(ctx, scenarioTimeout)
			defer cancel()

			if err := h.RaceScenario(scenarioCtx, i); err != nil {
				atomic.AddInt64(&failureCount, 1)
				logger.LogAttrs(scenarioCtx, slog.LevelWarn, "Scenario failed",
					slog.Int("user_index", i),
					slog.Any("error", err))
				return nil
			}
			atomic.AddInt64(&successCount, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("stress test failed: %w", err)
	}

	successRate := float64(successCount) / float64(numUsers) * percentageMultiplier
	logger.LogAttrs(ctx, slog.LevelInfo, "Stress test completed",
		slog.Int64("successful", successCount),
		slog.Int64("failed", failureCount),
		slog.Float64("success_rate", successRate),
		slog.Int64("rounds", c.rounds),
		slog.Int64("completed_sets", c.completed),
		slog.Int64("skipped_sets", c.skipped),
		slog.Int64("rejected_events", c.rejected))

	if successRate < successRateThreshold {
		return fmt.Errorf("stress test failed: success rate %.1f%% below threshold", successRate)
	}
	return nil
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) > expectedMaxArgsCount {
		logger.LogAttrs(ctx, slog.LevelError, "usage: stresstest [num-users]")
		os.Exit(1)
	}

	var (
		numUsers = defaultNumUsers
		start    = time.Now()
		err      error
	)
	if len(os.Args) == expectedMaxArgsCount {
		if numUsers, err = strconv.Atoi(os.Args[1]); err != nil || numUsers < 1 {
			logger.LogAttrs(ctx, slog.LevelError, "num-users must be a positive integer", slog.String("arg", os.Args[1]))
			os.Exit(1)
		}
	}

	dir, err := os.MkdirTemp("", "liftcycle-stresstest")
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating temp dir", slog.Any("error", err))
		os.Exit(1)
	}
	url := filepath.Join(dir, "stresstest.sqlite3")
	ctx = logging.WithAttrs(ctx, slog.String("sqlite_url", url))

	code := run(ctx, url, tracesDirectory, numUsers, logger)
	if err = os.RemoveAll(dir); err != nil {
		logger.LogAttrs(ctx, slog.LevelWarn, "error removing temp dir", slog.Any("error", err))
	}
	if code == 0 {
		logger.LogAttrs(ctx, slog.LevelInfo, "Stress test completed successfully 🙌",
			slog.Duration("total_duration", time.Since(start)))
	}
	os.Exit(code)
}

func run(ctx context.Context, url, tracesDir string, numUsers int, logger *slog.Logger) int {
	catalog, err := workout.DefaultCatalog()
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error loading catalog", slog.Any("error", err))
		return 1
	}
	db, err := sqlite.NewDatabase(ctx, url, logger)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error opening database", slog.Any("error", err))
		return 1
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelWarn, "error closing database", slog.Any("error", closeErr))
		}
	}()

	svc, err := workout.NewService(db, logger, workout.DefaultConfig())
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating service", slog.Any("error", err))
		return 1
	}
	if err = svc.SeedCatalog(ctx, catalog); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error seeding catalog", slog.Any("error", err))
		return 1
	}

	recorder, err := flightrecorder.New(flightrecorder.Config{
		Logger:    logger,
		Directory: tracesDir,
		Threshold: slowRoundThreshold,
		MinAge:    0,
		MaxBytes:  0,
		Cooldown:  0,
		Now:       nil,
	})
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating flight recorder", slog.Any("error", err))
		return 1
	}
	if err = recorder.Start(ctx); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error starting flight recorder", slog.Any("error", err))
		return 1
	}
	defer recorder.Stop(ctx)

	h := &harness{svc: svc, recorder: recorder, c: counters{}}
	if err = h.RunStressTest(ctx, numUsers, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "stress test failed", slog.Any("error", err))
		return 1
	}
	if err = CheckInvariants(ctx, db, &h.c); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "invariant violated", slog.Any("error", err))
		return 1
	}
	return 0
}
