package workout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/myrjola/liftcycle/internal/sqlite"
)

// refKind names the entity an event addresses. Every entity belongs to exactly one cycle.
type refKind string

const (
	refCycle    refKind = "cycle"
	refWorkout  refKind = "workout"
	refExercise refKind = "exercise"
	refSet      refKind = "set"
)

// entityRef points at the cycle, workout, exercise or set an event is about.
type entityRef struct {
	kind refKind
	id   string
}

func (r entityRef) attr() slog.Attr {
	return slog.String(string(r.kind)+"_id", r.id)
}

//nolint:gochecknoglobals // constant table.
var cycleIDQueries = map[refKind]string{
	refCycle:   `SELECT id FROM cycles WHERE id = ?`,
	refWorkout: `SELECT cycle_id FROM workouts WHERE id = ?`,
	refExercise: `SELECT w.cycle_id
		FROM exercises e
		JOIN workouts w ON w.id = e.workout_id
		WHERE e.id = ?`,
	refSet: `SELECT w.cycle_id
		FROM sets s
		JOIN exercises e ON e.id = s.exercise_id
		JOIN workouts w ON w.id = e.workout_id
		WHERE s.id = ?`,
}

type sqliteCycleRepository struct {
	baseRepository
}

func newSQLiteCycleRepository(db *sqlite.Database, logger *slog.Logger) *sqliteCycleRepository {
	return &sqliteCycleRepository{
		baseRepository: newBaseRepository(db, logger),
	}
}

// Create inserts the cycle with all its workouts, exercises and sets in one transaction.
func (r *sqliteCycleRepository) Create(ctx context.Context, c *cycleAggregate) error {
	var workouts, exercises, sets [][]any
	for _, w := range c.Workouts {
		workouts = append(workouts, []any{
			w.ID, w.CycleID, w.Sequence, string(w.PrimaryLift), string(w.Status), formatDate(w.ScheduledDate),
		})
		for _, ex := range w.Exercises {
			exercises = append(exercises, []any{
				ex.ID, ex.WorkoutID, ex.DefinitionID, ex.Order, string(ex.Status), nullFloat(ex.OneRepMax),
			})
			for _, s := range ex.Sets {
				sets = append(sets, []any{
					s.ID, s.ExerciseID, s.SetNumber, s.Weight, s.Reps,
					nullFloat(s.RPE), nullFloat(s.PercentageOfMax), string(s.Status),
				})
			}
		}
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cycles (id, user_id, status, start_date, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.UserID, string(c.Status), formatDate(c.StartDate), formatTimestamp(c.CreatedAt)); err != nil {
			return fmt.Errorf("insert cycle: %w", err)
		}
		if err := insertRows(ctx, tx, "workouts",
			[]string{"id", "cycle_id", "sequence", "primary_lift", "status", "scheduled_date"}, workouts); err != nil {
			return err
		}
		if err := insertRows(ctx, tx, "exercises",
			[]string{"id", "workout_id", "exercise_definition_id", "exercise_order", "status", "one_rep_max"},
			exercises); err != nil {
			return err
		}
		return insertRows(ctx, tx, "sets",
			[]string{"id", "exercise_id", "set_number", "weight", "reps", "rpe", "percentage_of_max", "status"}, sets)
	})
}

// Get loads the cycle that ref belongs to from the read pool.
func (r *sqliteCycleRepository) Get(ctx context.Context, ref entityRef) (*cycleAggregate, error) {
	cycleID, err := resolveCycleID(ctx, r.db.ReadOnly, ref)
	if err != nil {
		return nil, err
	}
	return loadCycle(ctx, r.db.ReadOnly, cycleID)
}

// Update loads the cycle that ref belongs to inside a write transaction, applies updateFn and writes back
// the rows updateFn changed. The write transaction is taken when it begins, so concurrent updates of the
// same cycle run one after the other and each sees the result of the previous one.
func (r *sqliteCycleRepository) Update(
	ctx context.Context,
	ref entityRef,
	updateFn func(c *cycleAggregate) (bool, error),
) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		cycleID, err := resolveCycleID(ctx, tx, ref)
		if err != nil {
			return err
		}
		c, err := loadCycle(ctx, tx, cycleID)
		if err != nil {
			return err
		}
		before := make(map[string][]any)
		for _, w := range c.rowWrites() {
			before[w.key] = w.args
		}

		updated, err := updateFn(c)
		if err != nil {
			return err
		}
		if !updated {
			return nil
		}

		// Rows leaving in_progress are written first so that the partial unique indexes on in_progress
		// never see two rows of the same parent.
		writes := c.rowWrites()
		var changed []rowWrite
		for _, w := range writes {
			if !slices.Equal(before[w.key], w.args) {
				changed = append(changed, w)
			}
		}
		slices.SortStableFunc(changed, func(a, b rowWrite) int {
			return boolCompare(a.status == StatusInProgress, b.status == StatusInProgress)
		})
		for _, w := range changed {
			if _, err = tx.ExecContext(ctx, w.query, append(slices.Clone(w.args), w.id)...); err != nil {
				if cursorConflict(err) {
					return invalidTransition("%s lost a concurrent update: %v", w.key, err)
				}
				return fmt.Errorf("update %s: %w", w.key, err)
			}
		}
		r.logger.LogAttrs(ctx, slog.LevelDebug, "updated cycle",
			slog.String("cycle_id", c.ID), slog.Int("rows", len(changed)))
		return nil
	})
}

// cursorIndexes are the columns of the partial unique indexes that allow one in_progress row per parent.
//
//nolint:gochecknoglobals // constant table.
var cursorIndexes = []string{"workouts.cycle_id", "exercises.workout_id", "sets.exercise_id"}

// cursorConflict reports whether err is a violation of one of the in_progress indexes. This only happens
// when another writer advanced the same cycle first.
func cursorConflict(err error) bool {
	_, columns, ok := strings.Cut(err.Error(), "UNIQUE constraint failed: ")
	if !ok {
		return false
	}
	// Multi-column constraints such as sets (exercise_id, set_number) are not cursor indexes.
	if strings.Contains(columns, ",") {
		return false
	}
	return slices.ContainsFunc(cursorIndexes, func(index string) bool {
		return strings.HasPrefix(strings.TrimSpace(columns), index)
	})
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

// rowWrite is the UPDATE that persists the mutable columns of one row.
type rowWrite struct {
	key    string
	id     string
	query  string
	args   []any
	status Status
}

// rowWrites lists the mutable columns of every row of the aggregate, parents before children.
func (c *cycleAggregate) rowWrites() []rowWrite {
	writes := []rowWrite{{
		key:   "cycles:" + c.ID,
		id:    c.ID,
		query: `UPDATE cycles SET status = ?, end_date = ?, completed_at = ?, current_workout_id = ? WHERE id = ?`,
		args: []any{
			string(c.Status), nullTimestamp(c.EndDate), nullTimestamp(c.CompletedAt), nullString(c.CurrentWorkoutID),
		},
		status: c.Status,
	}}
	for _, w := range c.Workouts {
		writes = append(writes, rowWrite{
			key: "workouts:" + w.ID,
			id:  w.ID,
			query: `UPDATE workouts
				SET status = ?, started_at = ?, completed_at = ?, current_exercise_id = ?, current_set_id = ?
				WHERE id = ?`,
			args: []any{
				string(w.Status), nullTimestamp(w.StartedAt), nullTimestamp(w.CompletedAt),
				nullString(w.CurrentExerciseID), nullString(w.CurrentSetID),
			},
			status: w.Status,
		})
		for _, ex := range w.Exercises {
			writes = append(writes, rowWrite{
				key:    "exercises:" + ex.ID,
				id:     ex.ID,
				query:  `UPDATE exercises SET status = ? WHERE id = ?`,
				args:   []any{string(ex.Status)},
				status: ex.Status,
			})
			for _, s := range ex.Sets {
				writes = append(writes, rowWrite{
					key: "sets:" + s.ID,
					id:  s.ID,
					query: `UPDATE sets
						SET status = ?, actual_weight = ?, actual_reps = ?, actual_rpe = ?, completed_at = ?
						WHERE id = ?`,
					args: []any{
						string(s.Status), nullFloat(s.ActualWeight), nullInt(s.ActualReps), nullFloat(s.ActualRPE),
						nullTimestamp(s.CompletedAt),
					},
					status: s.Status,
				})
			}
		}
	}
	return writes
}

func resolveCycleID(ctx context.Context, q querier, ref entityRef) (string, error) {
	query, ok := cycleIDQueries[ref.kind]
	if !ok {
		return "", fmt.Errorf("unknown reference kind %q", ref.kind)
	}
	var cycleID string
	err := q.QueryRowContext(ctx, query, ref.id).Scan(&cycleID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s %s: %w", ref.kind, ref.id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolve cycle of %s %s: %w", ref.kind, ref.id, err)
	}
	return cycleID, nil
}

const cycleColumns = `id, user_id, status, start_date, end_date, completed_at, current_workout_id, created_at`

func scanCycle(scan func(dest ...any) error) (Cycle, error) {
	var (
		c                            Cycle
		startDate, createdAt         string
		endDate, completedAt, cursor sql.NullString
	)
	if err := scan(&c.ID, &c.UserID, &c.Status, &startDate, &endDate, &completedAt, &cursor, &createdAt); err != nil {
		return Cycle{}, err //nolint:wrapcheck // callers wrap.
	}
	var err error
	if c.StartDate, err = parseDate(startDate); err != nil {
		return Cycle{}, err
	}
	if c.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return Cycle{}, err
	}
	if c.EndDate, err = parseNullTimestamp(endDate); err != nil {
		return Cycle{}, err
	}
	if c.CompletedAt, err = parseNullTimestamp(completedAt); err != nil {
		return Cycle{}, err
	}
	c.CurrentWorkoutID = cursor.String
	return c, nil
}

const workoutColumns = `id, cycle_id, sequence, primary_lift, status, scheduled_date, started_at, completed_at,
	current_exercise_id, current_set_id`

func scanWorkout(scan func(dest ...any) error) (Workout, error) {
	var (
		w                           Workout
		scheduled                   string
		startedAt, completedAt      sql.NullString
		currentExercise, currentSet sql.NullString
	)
	if err := scan(&w.ID, &w.CycleID, &w.Sequence, &w.PrimaryLift, &w.Status, &scheduled,
		&startedAt, &completedAt, &currentExercise, &currentSet); err != nil {
		return Workout{}, err //nolint:wrapcheck // callers wrap.
	}
	var err error
	if w.ScheduledDate, err = parseDate(scheduled); err != nil {
		return Workout{}, err
	}
	if w.StartedAt, err = parseNullTimestamp(startedAt); err != nil {
		return Workout{}, err
	}
	if w.CompletedAt, err = parseNullTimestamp(completedAt); err != nil {
		return Workout{}, err
	}
	w.CurrentExerciseID = currentExercise.String
	w.CurrentSetID = currentSet.String
	return w, nil
}

// loadCycle reads the complete aggregate of cycleID.
func loadCycle(ctx context.Context, q querier, cycleID string) (_ *cycleAggregate, err error) {
	cycle, err := scanCycle(q.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, cycleID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cycle %s: %w", cycleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query cycle: %w", err)
	}
	c := &cycleAggregate{Cycle: cycle, Workouts: nil}

	workouts, err := queryWorkouts(ctx, q, []string{cycleID})
	if err != nil {
		return nil, err
	}
	workoutIdx := make(map[string]int, len(workouts))
	for i, w := range workouts {
		workoutIdx[w.ID] = i
		c.Workouts = append(c.Workouts, workoutAggregate{Workout: w, Exercises: nil})
	}

	exerciseIdx := make(map[string][2]int)
	if err = forEachRow(ctx, q, `
		SELECT e.id, e.workout_id, e.exercise_definition_id, e.exercise_order, e.status, e.one_rep_max, d.exercise_type
		FROM exercises e
		JOIN workouts w ON w.id = e.workout_id
		JOIN exercise_definitions d ON d.id = e.exercise_definition_id
		WHERE w.cycle_id = ?
		ORDER BY w.sequence, e.exercise_order`, []any{cycleID}, func(scan func(...any) error) error {
		var ex exerciseAggregate
		if scanErr := scan(&ex.ID, &ex.WorkoutID, &ex.DefinitionID, &ex.Order, &ex.Status, &ex.OneRepMax,
			&ex.Type); scanErr != nil {
			return scanErr
		}
		wi := workoutIdx[ex.WorkoutID]
		exerciseIdx[ex.ID] = [2]int{wi, len(c.Workouts[wi].Exercises)}
		c.Workouts[wi].Exercises = append(c.Workouts[wi].Exercises, ex)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("query exercises: %w", err)
	}

	if err = forEachRow(ctx, q, `
		SELECT s.id, s.exercise_id, s.set_number, s.weight, s.reps, s.rpe, s.percentage_of_max,
		       s.actual_weight, s.actual_reps, s.actual_rpe, s.status, s.completed_at
		FROM sets s
		JOIN exercises e ON e.id = s.exercise_id
		JOIN workouts w ON w.id = e.workout_id
		WHERE w.cycle_id = ?
		ORDER BY w.sequence, e.exercise_order, s.set_number`, []any{cycleID}, func(scan func(...any) error) error {
		var (
			s           Set
			completedAt sql.NullString
			scanErr     error
		)
		if scanErr = scan(&s.ID, &s.ExerciseID, &s.SetNumber, &s.Weight, &s.Reps, &s.RPE, &s.PercentageOfMax,
			&s.ActualWeight, &s.ActualReps, &s.ActualRPE, &s.Status, &completedAt); scanErr != nil {
			return scanErr
		}
		if s.CompletedAt, scanErr = parseNullTimestamp(completedAt); scanErr != nil {
			return scanErr
		}
		pos := exerciseIdx[s.ExerciseID]
		ex := &c.Workouts[pos[0]].Exercises[pos[1]]
		ex.Sets = append(ex.Sets, s)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("query sets: %w", err)
	}
	return c, nil
}

// queryWorkouts returns the workouts of cycleIDs ordered by cycle creation and sequence.
func queryWorkouts(ctx context.Context, q querier, cycleIDs []string) ([]Workout, error) {
	if len(cycleIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(cycleIDs))
	for i, id := range cycleIDs {
		args[i] = id
	}
	var workouts []Workout
	err := forEachRow(ctx, q, `
		SELECT `+prefixColumns("w", workoutColumns)+`
		FROM workouts w
		JOIN cycles c ON c.id = w.cycle_id
		WHERE w.cycle_id IN (`+strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")+`)
		ORDER BY c.created_at DESC, c.rowid DESC, w.sequence`, args, func(scan func(...any) error) error {
		w, err := scanWorkout(scan)
		if err != nil {
			return err
		}
		workouts = append(workouts, w)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query workouts: %w", err)
	}
	return workouts, nil
}

// ListByUser returns the cycles of userID, newest first.
func (r *sqliteCycleRepository) ListByUser(ctx context.Context, userID string) ([]Cycle, error) {
	var cycles []Cycle
	err := forEachRow(ctx, r.db.ReadOnly, `
		SELECT `+cycleColumns+`
		FROM cycles
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC`, []any{userID}, func(scan func(...any) error) error {
		c, err := scanCycle(scan)
		if err != nil {
			return err
		}
		cycles = append(cycles, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	return cycles, nil
}

// ListWorkouts returns the workouts of cycleIDs.
func (r *sqliteCycleRepository) ListWorkouts(ctx context.Context, cycleIDs []string) ([]Workout, error) {
	return queryWorkouts(ctx, r.db.ReadOnly, cycleIDs)
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// forEachRow runs query and calls fn with the scanner of every row.
func forEachRow(
	ctx context.Context, q querier, query string, args []any, fn func(scan func(...any) error) error,
) (err error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()
	for rows.Next() {
		if err = fn(rows.Scan); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	return nil
}
