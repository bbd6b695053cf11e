package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/myrjola/liftcycle/internal/logging"
	"github.com/myrjola/liftcycle/internal/sqlite"
	"github.com/myrjola/liftcycle/internal/testhelpers"
	"github.com/myrjola/liftcycle/internal/workout"
)

const (
	testTimeout    = 30 * time.Second
	smokeOneRepMax = 200.0
	smokeWeight    = 100.0
)

// TrainFullCycle records maxes for every main lift and then completes every set of a freshly generated cycle.
func TrainFullCycle(ctx context.Context, svc *workout.Service) error {
	user, err := svc.CreateUser(ctx, "Smoke Tester")
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	defs, err := svc.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("list definitions: %w", err)
	}
	for _, def := range defs {
		if def.Type != workout.ExerciseTypePrimary {
			continue
		}
		if err = svc.InsertOneRepMax(ctx, user.ID, def.ID, smokeOneRepMax); err != nil {
			return fmt.Errorf("insert one-rep max for %s: %w", def.Name, err)
		}
	}

	cycle, err := svc.CreateCycle(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("create cycle: %w", err)
	}
	data, err := svc.GetTrainingData(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("get training data: %w", err)
	}
	if !data.HasAllMaxes {
		return errors.New("training data reports missing maxes")
	}

	for _, w := range data.Workouts {
		if err = trainWorkout(ctx, svc, w.ID); err != nil {
			return fmt.Errorf("workout %d: %w", w.Sequence, err)
		}
	}

	if data, err = svc.GetTrainingData(ctx, user.ID); err != nil {
		return fmt.Errorf("get training data: %w", err)
	}
	if len(data.Cycles) == 0 || data.Cycles[0].ID != cycle.ID {
		return fmt.Errorf("cycle %s missing from training data", cycle.ID)
	}
	summary := data.Cycles[0]
	if summary.Status != workout.StatusCompleted || summary.CompletedWorkouts != summary.TotalWorkouts {
		return fmt.Errorf("cycle is %s with %d/%d workouts completed",
			summary.Status, summary.CompletedWorkouts, summary.TotalWorkouts)
	}
	return nil
}

func trainWorkout(ctx context.Context, svc *workout.Service, workoutID string) error {
	if err := svc.StartWorkout(ctx, workoutID); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	detail, err := svc.GetWorkout(ctx, workoutID)
	if err != nil {
		return fmt.Errorf("get workout: %w", err)
	}
	remaining := 0
	for _, ex := range detail.Exercises {
		remaining += len(ex.Sets)
	}
	for detail.Status == workout.StatusInProgress {
		if remaining == 0 {
			return errors.New("workout still in progress after all sets")
		}
		remaining--
		if err = svc.CompleteSet(ctx, detail.CurrentSetID, detail.CurrentExerciseID, workoutID,
			workout.Performance{Weight: smokeWeight, Reps: nil, RPE: nil}); err != nil {
			return fmt.Errorf("complete set: %w", err)
		}
		if detail, err = svc.GetWorkout(ctx, workoutID); err != nil {
			return fmt.Errorf("get workout: %w", err)
		}
	}
	if detail.Status != workout.StatusCompleted {
		return fmt.Errorf("workout ended as %s", detail.Status)
	}
	return nil
}

func newService(ctx context.Context, url string, logger *slog.Logger) (*workout.Service, *sqlite.Database, error) {
	catalog, err := workout.DefaultCatalog()
	if err != nil {
		return nil, nil, fmt.Errorf("default catalog: %w", err)
	}
	db, err := sqlite.NewDatabase(ctx, url, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("new database: %w", err)
	}
	svc, err := workout.NewService(db, logger, workout.DefaultConfig())
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("new service: %w", err), db.Close())
	}
	if err = svc.SeedCatalog(ctx, catalog); err != nil {
		return nil, nil, errors.Join(fmt.Errorf("seed catalog: %w", err), db.Close())
	}
	return svc, db, nil
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) > 2 { //nolint:mnd // only an optional database url is accepted.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest [sqlite-url]")
		os.Exit(1)
	}

	var (
		url   string
		start = time.Now()
	)
	if len(os.Args) == 2 { //nolint:mnd // database url given.
		url = os.Args[1]
	} else {
		dir, err := os.MkdirTemp("", "liftcycle-smoketest")
		if err != nil {
			logger.LogAttrs(ctx, slog.LevelError, "error creating temp dir", slog.Any("error", err))
			os.Exit(1)
		}
		defer os.RemoveAll(dir)
		url = filepath.Join(dir, "smoketest.sqlite3")
	}
	ctx = logging.WithAttrs(ctx, slog.String("sqlite_url", url))
	ctx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()

	svc, db, err := newService(ctx, url, logger)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error setting up service", slog.Any("error", err))
		os.Exit(1) //nolint:gocritic // the temp dir is left behind on failure.
	}
	err = TrainFullCycle(ctx, svc)
	if closeErr := db.Close(); closeErr != nil {
		logger.LogAttrs(ctx, slog.LevelWarn, "error closing database", slog.Any("error", closeErr))
	}
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "smoke test failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌", slog.Duration("duration", time.Since(start)))
}
