package workout_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/liftcycle/internal/ptr"
	"github.com/myrjola/liftcycle/internal/sqlite"
	"github.com/myrjola/liftcycle/internal/testhelpers"
	"github.com/myrjola/liftcycle/internal/workout"
)

// stepClock advances by a minute on every reading so that timestamps written by the service are ordered.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type fixture struct {
	db     *sqlite.Database
	svc    *workout.Service
	userID string
}

// newFixture opens a fresh database at url with the default catalogue seeded and one user.
func newFixture(t *testing.T, url string, catalog []workout.ExerciseDefinition) fixture {
	t.Helper()
	ctx := t.Context()
	logger := testhelpers.NewLogger(testhelpers.NewWriter(t))

	db, err := sqlite.NewDatabase(ctx, url, logger)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("close database: %v", closeErr)
		}
	})

	clock := &stepClock{mu: sync.Mutex{}, now: time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)}
	cfg := workout.DefaultConfig()
	cfg.Now = clock.Now
	svc, err := workout.NewService(db, logger, cfg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err = svc.SeedCatalog(ctx, catalog); err != nil {
		t.Fatalf("SeedCatalog: %v", err)
	}
	user, err := svc.CreateUser(ctx, "Test Lifter")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return fixture{db: db, svc: svc, userID: user.ID}
}

func defaultCatalog(t *testing.T) []workout.ExerciseDefinition {
	t.Helper()
	catalog, err := workout.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	return catalog
}

// createCycle creates a cycle and returns it with its workouts.
func (f fixture) createCycle(t *testing.T) (workout.Cycle, []workout.Workout) {
	t.Helper()
	ctx := t.Context()
	cycle, err := f.svc.CreateCycle(ctx, f.userID)
	if err != nil {
		t.Fatalf("CreateCycle: %v", err)
	}
	data, err := f.svc.GetTrainingData(ctx, f.userID)
	if err != nil {
		t.Fatalf("GetTrainingData: %v", err)
	}
	var workouts []workout.Workout
	for _, w := range data.Workouts {
		if w.CycleID == cycle.ID {
			workouts = append(workouts, w)
		}
	}
	return cycle, workouts
}

func (f fixture) getWorkout(t *testing.T, workoutID string) workout.WorkoutDetail {
	t.Helper()
	detail, err := f.svc.GetWorkout(t.Context(), workoutID)
	if err != nil {
		t.Fatalf("GetWorkout: %v", err)
	}
	return detail
}

func countRows(t *testing.T, db *sqlite.Database, table string) int {
	t.Helper()
	var n int
	if err := db.ReadOnly.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func Test_CreateCycle_PrescribesFromOneRepMax(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	f := newFixture(t, ":memory:", defaultCatalog(t))

	squat := workout.DefinitionID("Back Squat")
	if err := f.svc.InsertOneRepMax(ctx, f.userID, squat, 225); err != nil {
		t.Fatalf("InsertOneRepMax: %v", err)
	}
	cycle, workouts := f.createCycle(t)
	if cycle.Status != workout.StatusPending {
		t.Errorf("new cycle is %s", cycle.Status)
	}
	if len(workouts) != workout.WorkoutsPerCycle {
		t.Fatalf("got %d workouts, want %d", len(workouts), workout.WorkoutsPerCycle)
	}
	for i, w := range workouts {
		if w.Sequence != i+1 || w.PrimaryLift != workout.LiftForSequence(i+1) {
			t.Errorf("workout %d: sequence %d lift %s", i, w.Sequence, w.PrimaryLift)
		}
	}

	detail := f.getWorkout(t, workouts[0].ID)
	if detail.Week != 1 {
		t.Errorf("week = %d, want 1", detail.Week)
	}
	primary := detail.Exercises[0]
	if primary.Definition.Name != "Back Squat" || primary.Order != 1 {
		t.Fatalf("first exercise is %q at order %d", primary.Definition.Name, primary.Order)
	}
	first := primary.Sets[0]
	if want := workout.PrescribedWeight(225, 40); first.Weight != want {
		t.Errorf("first set weight = %v, want %v", first.Weight, want)
	}
	if first.PercentageOfMax == nil || *first.PercentageOfMax != 40 || first.Reps != 5 {
		t.Errorf("first set prescribes %d reps at %v%%", first.Reps, first.PercentageOfMax)
	}
	if primary.OneRepMax == nil || *primary.OneRepMax != 225 {
		t.Errorf("one-rep max snapshot = %v", primary.OneRepMax)
	}

	// The bench day has no max and falls back to flat sets.
	bench := f.getWorkout(t, workouts[1].ID).Exercises[0]
	if len(bench.Sets) != workout.DefaultAccessorySets || bench.Sets[0].Weight != workout.PlaceholderWeight {
		t.Errorf("bench day main lift has %d sets at %v", len(bench.Sets), bench.Sets[0].Weight)
	}
}

func Test_CreateCycle_FailsAtomically(t *testing.T) {
	t.Parallel()

	var withoutCalves []workout.ExerciseDefinition
	for _, def := range defaultCatalog(t) {
		if def.Category != workout.CategoryCalfAccessory {
			withoutCalves = append(withoutCalves, def)
		}
	}

	// failSetInserts makes the last insert batch of a cycle fail after its cycle, workout and exercise rows
	// are already written.
	failSetInserts := func(t *testing.T, db *sqlite.Database) {
		t.Helper()
		if _, err := db.ReadWrite.ExecContext(t.Context(), `
			CREATE TRIGGER fail_set_insert BEFORE INSERT ON sets
			BEGIN
				SELECT RAISE(ABORT, 'disk full');
			END`); err != nil {
			t.Fatalf("create trigger: %v", err)
		}
	}

	tests := []struct {
		name     string
		catalog  []workout.ExerciseDefinition
		userID   string
		setup    func(t *testing.T, db *sqlite.Database)
		wantKind error
	}{
		{name: "empty catalog", catalog: nil, userID: "", setup: nil, wantKind: workout.ErrNoMatchingDefinition},
		{
			name:     "missing category",
			catalog:  withoutCalves,
			userID:   "",
			setup:    nil,
			wantKind: workout.ErrNoMatchingDefinition,
		},
		{name: "unknown user", catalog: defaultCatalog(t), userID: "nobody", setup: nil, wantKind: workout.ErrNotFound},
		{
			name:     "set insert fails",
			catalog:  defaultCatalog(t),
			userID:   "",
			setup:    failSetInserts,
			wantKind: workout.ErrGenerationFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, ":memory:", tt.catalog)
			if tt.setup != nil {
				tt.setup(t, f.db)
			}
			userID := f.userID
			if tt.userID != "" {
				userID = tt.userID
			}
			_, err := f.svc.CreateCycle(t.Context(), userID)
			if !errors.Is(err, workout.ErrGenerationFailed) || !errors.Is(err, tt.wantKind) {
				t.Errorf("CreateCycle error = %v, want ErrGenerationFailed and %v", err, tt.wantKind)
			}
			for _, table := range []string{"cycles", "workouts", "exercises", "sets"} {
				if n := countRows(t, f.db, table); n != 0 {
					t.Errorf("%d rows left in %s", n, table)
				}
			}
		})
	}
}

func Test_CompleteSet_CascadesThroughWorkout(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	f := newFixture(t, ":memory:", defaultCatalog(t))
	if err := f.svc.InsertOneRepMax(ctx, f.userID, workout.DefinitionID("Back Squat"), 225); err != nil {
		t.Fatalf("InsertOneRepMax: %v", err)
	}
	cycle, workouts := f.createCycle(t)
	first := workouts[0]

	if err := f.svc.StartWorkout(ctx, first.ID); err != nil {
		t.Fatalf("StartWorkout: %v", err)
	}
	detail := f.getWorkout(t, first.ID)
	if detail.Status != workout.StatusInProgress || detail.CurrentSetID != detail.Exercises[0].Sets[0].ID {
		t.Fatalf("workout %s with cursor %q", detail.Status, detail.CurrentSetID)
	}

	total := 0
	for _, ex := range detail.Exercises {
		total += len(ex.Sets)
	}
	for events := 0; detail.Status == workout.StatusInProgress; events++ {
		if events > total {
			t.Fatalf("workout not finished after %d events", events)
		}
		if err := f.svc.CompleteSet(ctx, detail.CurrentSetID, detail.CurrentExerciseID, first.ID,
			workout.Performance{Weight: 100, Reps: nil, RPE: ptr.Ref(8.0)}); err != nil {
			t.Fatalf("CompleteSet: %v", err)
		}
		detail = f.getWorkout(t, first.ID)
	}

	if detail.Status != workout.StatusCompleted || detail.CompletedAt == nil {
		t.Errorf("workout is %s, completed at %v", detail.Status, detail.CompletedAt)
	}
	for _, ex := range detail.Exercises {
		if ex.Status != workout.StatusCompleted {
			t.Errorf("exercise %d is %s", ex.Order, ex.Status)
		}
		for _, s := range ex.Sets {
			if s.Status != workout.StatusCompleted || s.ActualWeight == nil || *s.ActualWeight != 100 {
				t.Errorf("exercise %d set %d is %s with weight %v", ex.Order, s.SetNumber, s.Status, s.ActualWeight)
			}
		}
	}

	data, err := f.svc.GetTrainingData(ctx, f.userID)
	if err != nil {
		t.Fatalf("GetTrainingData: %v", err)
	}
	summary := data.Cycles[0]
	if summary.ID != cycle.ID || summary.Status != workout.StatusInProgress || summary.CompletedWorkouts != 1 {
		t.Errorf("summary %+v", summary)
	}
	if summary.NextWorkout == nil || summary.NextWorkout.ID != workouts[1].ID {
		t.Errorf("next workout = %+v, want workout 2", summary.NextWorkout)
	}
}

func Test_StartWorkout_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	f := newFixture(t, ":memory:", defaultCatalog(t))
	_, workouts := f.createCycle(t)

	if err := f.svc.StartWorkout(ctx, workouts[0].ID); err != nil {
		t.Fatalf("StartWorkout: %v", err)
	}
	before := f.getWorkout(t, workouts[0].ID)

	if err := f.svc.StartWorkout(ctx, workouts[0].ID); !errors.Is(err, workout.ErrInvalidTransition) {
		t.Errorf("second StartWorkout error = %v, want ErrInvalidTransition", err)
	}
	if err := f.svc.StartWorkout(ctx, workouts[1].ID); !errors.Is(err, workout.ErrInvalidTransition) {
		t.Errorf("starting a second workout error = %v, want ErrInvalidTransition", err)
	}
	if diff := cmp.Diff(before, f.getWorkout(t, workouts[0].ID)); diff != "" {
		t.Errorf("rejected starts changed the workout (-before +after):\n%s", diff)
	}
	if err := f.svc.StartWorkout(ctx, "missing"); !errors.Is(err, workout.ErrNotFound) {
		t.Errorf("unknown workout error = %v, want ErrNotFound", err)
	}
}

func Test_SkipEvents(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	f := newFixture(t, ":memory:", defaultCatalog(t))
	_, workouts := f.createCycle(t)
	w := workouts[0]

	if err := f.svc.StartWorkout(ctx, w.ID); err != nil {
		t.Fatalf("StartWorkout: %v", err)
	}
	detail := f.getWorkout(t, w.ID)
	skipped := detail.Exercises[0].Sets[0]
	if err := f.svc.SkipSet(ctx, w.ID, ""); err != nil {
		t.Fatalf("SkipSet: %v", err)
	}
	detail = f.getWorkout(t, w.ID)
	got := detail.Exercises[0].Sets[0]
	if got.Status != workout.StatusSkipped || got.Weight != skipped.Weight || got.ActualWeight != nil {
		t.Errorf("skipped set %+v", got)
	}

	if err := f.svc.SkipRemainingInExercise(ctx, detail.Exercises[0].ID); err != nil {
		t.Fatalf("SkipRemainingInExercise: %v", err)
	}
	detail = f.getWorkout(t, w.ID)
	if detail.Exercises[0].Status != workout.StatusCompleted || detail.CurrentExerciseID != detail.Exercises[1].ID {
		t.Errorf("first exercise %s, cursor at %q", detail.Exercises[0].Status, detail.CurrentExerciseID)
	}
	if err := f.svc.SkipRemainingInExercise(ctx, detail.Exercises[3].ID); !errors.Is(err,
		workout.ErrInvalidTransition) {
		t.Errorf("skipping a pending exercise error = %v, want ErrInvalidTransition", err)
	}

	if err := f.svc.SkipRemainingInWorkout(ctx, w.ID); err != nil {
		t.Fatalf("SkipRemainingInWorkout: %v", err)
	}
	detail = f.getWorkout(t, w.ID)
	if detail.Status != workout.StatusCompleted || detail.CurrentSetID != "" {
		t.Errorf("workout %s with cursor %q", detail.Status, detail.CurrentSetID)
	}
	for _, ex := range detail.Exercises[1:] {
		if ex.Status != workout.StatusSkipped {
			t.Errorf("exercise %d is %s, want skipped", ex.Order, ex.Status)
		}
	}

	if err := f.svc.CompleteWorkout(ctx, workouts[1].ID); err != nil {
		t.Fatalf("CompleteWorkout: %v", err)
	}
	if got := f.getWorkout(t, workouts[1].ID); got.Status != workout.StatusCompleted {
		t.Errorf("completed workout is %s", got.Status)
	}
}

func Test_SkipSet_BySetID(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	f := newFixture(t, ":memory:", defaultCatalog(t))
	_, workouts := f.createCycle(t)
	w := workouts[0]

	if err := f.svc.StartWorkout(ctx, w.ID); err != nil {
		t.Fatalf("StartWorkout: %v", err)
	}
	detail := f.getWorkout(t, w.ID)
	first, second := detail.Exercises[0].Sets[0], detail.Exercises[0].Sets[1]
	if err := f.svc.SkipSet(ctx, "", first.ID); err != nil {
		t.Fatalf("SkipSet: %v", err)
	}

	detail = f.getWorkout(t, w.ID)
	if got := detail.Exercises[0].Sets[0]; got.Status != workout.StatusSkipped || got.ActualWeight != nil {
		t.Errorf("skipped set is %s with weight %v", got.Status, got.ActualWeight)
	}
	if detail.CurrentSetID != second.ID {
		t.Errorf("cursor at %q, want the second set", detail.CurrentSetID)
	}

	if err := f.svc.SkipSet(ctx, "", first.ID); !errors.Is(err, workout.ErrInvalidTransition) {
		t.Errorf("skipping a finished set error = %v, want ErrInvalidTransition", err)
	}
	if err := f.svc.SkipSet(ctx, "", "no-such-set"); !errors.Is(err, workout.ErrNotFound) {
		t.Errorf("skipping an unknown set error = %v, want ErrNotFound", err)
	}
}

func Test_NewService_RejectsInvalidPeriodization(t *testing.T) {
	t.Parallel()
	logger := testhelpers.NewLogger(testhelpers.NewWriter(t))
	db, err := sqlite.NewDatabase(t.Context(), ":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("close database: %v", closeErr)
		}
	})

	cfg := workout.DefaultConfig()
	cfg.Periodization[3] = []workout.Slot{{Reps: 5, PercentageOfMax: -50}}
	if _, err = workout.NewService(db, logger, cfg); !errors.Is(err, workout.ErrInvalidConfig) {
		t.Errorf("NewService error = %v, want ErrInvalidConfig", err)
	}
}

func Test_SkipRemainingInCycle(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	f := newFixture(t, ":memory:", defaultCatalog(t))
	cycle, workouts := f.createCycle(t)

	if err := f.svc.StartWorkout(ctx, workouts[2].ID); err != nil {
		t.Fatalf("StartWorkout: %v", err)
	}
	if err := f.svc.SkipRemainingInCycle(ctx, cycle.ID); err != nil {
		t.Fatalf("SkipRemainingInCycle: %v", err)
	}

	for _, table := range []string{"workouts", "exercises", "sets"} {
		var open int
		if err := f.db.ReadOnly.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+table+" WHERE status IN ('pending', 'in_progress')").Scan(&open); err != nil {
			t.Fatalf("count open %s: %v", table, err)
		}
		if open != 0 {
			t.Errorf("%d open rows in %s", open, table)
		}
	}

	data, err := f.svc.GetTrainingData(ctx, f.userID)
	if err != nil {
		t.Fatalf("GetTrainingData: %v", err)
	}
	summary := data.Cycles[0]
	if summary.Status != workout.StatusCompleted || summary.CompletedAt == nil || summary.EndDate == nil {
		t.Errorf("cycle %s completed %v", summary.Status, summary.CompletedAt)
	}
	if summary.CompletedWorkouts != 1 || summary.SkippedWorkouts != 15 || summary.NextWorkout != nil {
		t.Errorf("summary counts %d completed, %d skipped, next %v",
			summary.CompletedWorkouts, summary.SkippedWorkouts, summary.NextWorkout)
	}

	if err = f.svc.SkipRemainingInCycle(ctx, cycle.ID); !errors.Is(err, workout.ErrInvalidTransition) {
		t.Errorf("second SkipRemainingInCycle error = %v, want ErrInvalidTransition", err)
	}
}

func Test_GetTrainingData(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	f := newFixture(t, ":memory:", defaultCatalog(t))

	data, err := f.svc.GetTrainingData(ctx, f.userID)
	if err != nil {
		t.Fatalf("GetTrainingData: %v", err)
	}
	if data.HasAllMaxes || len(data.Cycles) != 0 || len(data.Workouts) != 0 {
		t.Errorf("fresh user has training data %+v", data)
	}

	for _, name := range []string{"Back Squat", "Bench Press", "Deadlift", "Overhead Press"} {
		if err = f.svc.InsertOneRepMax(ctx, f.userID, workout.DefinitionID(name), 150); err != nil {
			t.Fatalf("InsertOneRepMax %s: %v", name, err)
		}
	}

	var completed []string
	for range 5 {
		cycle, _ := f.createCycle(t)
		if err = f.svc.SkipRemainingInCycle(ctx, cycle.ID); err != nil {
			t.Fatalf("SkipRemainingInCycle: %v", err)
		}
		completed = append(completed, cycle.ID)
	}
	active, _ := f.createCycle(t)

	data, err = f.svc.GetTrainingData(ctx, f.userID)
	if err != nil {
		t.Fatalf("GetTrainingData: %v", err)
	}
	if !data.HasAllMaxes {
		t.Error("HasAllMaxes is false with every primary lift recorded")
	}
	var got []string
	for _, c := range data.Cycles {
		got = append(got, c.ID)
	}
	want := []string{active.ID, completed[4], completed[3], completed[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cycles mismatch (-want +got):\n%s", diff)
	}
	if len(data.Workouts) != 4*workout.WorkoutsPerCycle {
		t.Errorf("got %d workouts, want %d", len(data.Workouts), 4*workout.WorkoutsPerCycle)
	}
	if data.Workouts[0].CycleID != active.ID || data.Workouts[0].Sequence != 1 {
		t.Errorf("workouts do not start with the active cycle")
	}
	if next := data.Cycles[0].NextWorkout; next == nil || next.Sequence != 1 {
		t.Errorf("next workout of the active cycle = %+v", next)
	}
}

func Test_InsertOneRepMax_Upserts(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	f := newFixture(t, ":memory:", defaultCatalog(t))
	bench := workout.DefinitionID("Bench Press")

	for _, weight := range []float64{185, 200} {
		if err := f.svc.InsertOneRepMax(ctx, f.userID, bench, weight); err != nil {
			t.Fatalf("InsertOneRepMax %v: %v", weight, err)
		}
	}
	maxes, err := f.svc.ListOneRepMaxes(ctx, f.userID)
	if err != nil {
		t.Fatalf("ListOneRepMaxes: %v", err)
	}
	if len(maxes) != 1 || maxes[0].Weight != 200 || maxes[0].DefinitionID != bench {
		t.Errorf("maxes = %+v, want a single bench max of 200", maxes)
	}
	if n := countRows(t, f.db, "one_rep_maxes"); n != 1 {
		t.Errorf("%d one_rep_maxes rows, want 1", n)
	}

	tests := []struct {
		name         string
		userID       string
		definitionID string
		weight       float64
		want         error
	}{
		{name: "zero weight", userID: f.userID, definitionID: bench, weight: 0, want: workout.ErrInvalidPerformance},
		{name: "unknown definition", userID: f.userID, definitionID: "missing", weight: 100, want: workout.ErrNotFound},
		{name: "unknown user", userID: "missing", definitionID: bench, weight: 100, want: workout.ErrNotFound},
	}
	for _, tt := range tests {
		if err = f.svc.InsertOneRepMax(ctx, tt.userID, tt.definitionID, tt.weight); !errors.Is(err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func Test_SeedCatalog_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	catalog := defaultCatalog(t)
	f := newFixture(t, ":memory:", catalog)

	if err := f.svc.SeedCatalog(ctx, catalog); err != nil {
		t.Fatalf("SeedCatalog again: %v", err)
	}
	defs, err := f.svc.ListDefinitions(ctx)
	if err != nil {
		t.Fatalf("ListDefinitions: %v", err)
	}
	if len(defs) != len(catalog) {
		t.Errorf("got %d definitions after reseeding, want %d", len(defs), len(catalog))
	}
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Name > defs[i].Name {
			t.Errorf("definitions not ordered by name: %q before %q", defs[i-1].Name, defs[i].Name)
		}
	}
}

func Test_ExportUser(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	f := newFixture(t, ":memory:", defaultCatalog(t))
	f.createCycle(t)

	dir := t.TempDir()
	path, err := f.svc.ExportUser(ctx, f.userID, dir)
	if err != nil {
		t.Fatalf("ExportUser: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("export written to %s, want a file in %s", path, dir)
	}
	if _, err = os.Stat(path); err != nil {
		t.Errorf("stat export: %v", err)
	}
	if _, err = f.svc.ExportUser(ctx, "missing", dir); !errors.Is(err, workout.ErrNotFound) {
		t.Errorf("unknown user error = %v, want ErrNotFound", err)
	}
}

func Test_ConcurrentEvents_AdvanceOnce(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	f := newFixture(t, filepath.Join(t.TempDir(), "liftcycle.sqlite3"), defaultCatalog(t))
	_, workouts := f.createCycle(t)
	w := workouts[0]

	const racers = 8
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for range racers {
		wg.Go(func() {
			results <- f.svc.StartWorkout(ctx, w.ID)
		})
	}
	wg.Wait()
	close(results)
	if succeeded := countSucceeded(t, results); succeeded != 1 {
		t.Errorf("%d concurrent starts succeeded, want 1", succeeded)
	}

	detail := f.getWorkout(t, w.ID)
	setID := detail.CurrentSetID
	results = make(chan error, racers)
	for range racers {
		wg.Go(func() {
			results <- f.svc.CompleteSet(ctx, setID, "", w.ID, workout.Performance{Weight: 100, Reps: nil, RPE: nil})
		})
	}
	wg.Wait()
	close(results)
	if succeeded := countSucceeded(t, results); succeeded != 1 {
		t.Errorf("%d concurrent completions of one set succeeded, want 1", succeeded)
	}

	detail = f.getWorkout(t, w.ID)
	if detail.CurrentSetID != detail.Exercises[0].Sets[1].ID {
		t.Error("cursor did not advance exactly one set")
	}
}

func countSucceeded(t *testing.T, results <-chan error) int {
	t.Helper()
	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, workout.ErrInvalidTransition):
			t.Errorf("unexpected error: %v", err)
		}
	}
	return succeeded
}
