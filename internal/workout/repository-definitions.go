package workout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/myrjola/liftcycle/internal/sqlite"
)

type sqliteDefinitionRepository struct {
	baseRepository
}

func newSQLiteDefinitionRepository(db *sqlite.Database, logger *slog.Logger) *sqliteDefinitionRepository {
	return &sqliteDefinitionRepository{
		baseRepository: newBaseRepository(db, logger),
	}
}

const definitionColumns = `id, name, exercise_type, category, primary_lift_day, rep_max, rpe_max, description`

func scanDefinition(scan func(dest ...any) error) (ExerciseDefinition, error) {
	var def ExerciseDefinition
	err := scan(&def.ID, &def.Name, &def.Type, &def.Category, &def.PrimaryLiftDay, &def.RepMax, &def.RPEMax,
		&def.Description)
	return def, err //nolint:wrapcheck // callers wrap.
}

// List returns the whole catalogue ordered by name.
func (r *sqliteDefinitionRepository) List(ctx context.Context) ([]ExerciseDefinition, error) {
	var defs []ExerciseDefinition
	err := forEachRow(ctx, r.db.ReadOnly, `SELECT `+definitionColumns+` FROM exercise_definitions ORDER BY name`,
		nil, func(scan func(...any) error) error {
			def, err := scanDefinition(scan)
			if err != nil {
				return err
			}
			defs = append(defs, def)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list exercise definitions: %w", err)
	}
	return defs, nil
}

// Get returns the definition with id.
func (r *sqliteDefinitionRepository) Get(ctx context.Context, id string) (ExerciseDefinition, error) {
	def, err := scanDefinition(r.db.ReadOnly.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM exercise_definitions WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ExerciseDefinition{}, fmt.Errorf("exercise definition %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ExerciseDefinition{}, fmt.Errorf("get exercise definition: %w", err)
	}
	return def, nil
}

// Upsert inserts the definitions or updates them in place by id.
func (r *sqliteDefinitionRepository) Upsert(ctx context.Context, defs []ExerciseDefinition) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, def := range defs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO exercise_definitions (`+definitionColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					name = excluded.name,
					exercise_type = excluded.exercise_type,
					category = excluded.category,
					primary_lift_day = excluded.primary_lift_day,
					rep_max = excluded.rep_max,
					rpe_max = excluded.rpe_max,
					description = excluded.description`,
				def.ID, def.Name, string(def.Type), string(def.Category), string(def.PrimaryLiftDay),
				nullInt(def.RepMax), nullFloat(def.RPEMax), def.Description); err != nil {
				return fmt.Errorf("upsert exercise definition %q: %w", def.Name, err)
			}
		}
		return nil
	})
}
