package workout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/myrjola/liftcycle/internal/sqlite"
)

type sqliteOneRepMaxRepository struct {
	baseRepository
}

func newSQLiteOneRepMaxRepository(db *sqlite.Database, logger *slog.Logger) *sqliteOneRepMaxRepository {
	return &sqliteOneRepMaxRepository{
		baseRepository: newBaseRepository(db, logger),
	}
}

// List returns the one-rep maxes of userID.
func (r *sqliteOneRepMaxRepository) List(ctx context.Context, userID string) ([]OneRepMax, error) {
	var maxes []OneRepMax
	err := forEachRow(ctx, r.db.ReadOnly, `
		SELECT m.user_id, m.exercise_definition_id, m.weight, m.updated_at
		FROM one_rep_maxes m
		JOIN exercise_definitions d ON d.id = m.exercise_definition_id
		WHERE m.user_id = ?
		ORDER BY d.name`, []any{userID}, func(scan func(...any) error) error {
		var (
			m         OneRepMax
			updatedAt string
			err       error
		)
		if err = scan(&m.UserID, &m.DefinitionID, &m.Weight, &updatedAt); err != nil {
			return err
		}
		if m.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
			return err
		}
		maxes = append(maxes, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list one-rep maxes: %w", err)
	}
	return maxes, nil
}

// Upsert records weight for the user and definition, replacing an earlier value.
func (r *sqliteOneRepMaxRepository) Upsert(ctx context.Context, m OneRepMax) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, check := range []struct {
			query, id, kind string
		}{
			{`SELECT 1 FROM users WHERE id = ?`, m.UserID, "user"},
			{`SELECT 1 FROM exercise_definitions WHERE id = ?`, m.DefinitionID, "exercise definition"},
		} {
			var exists int
			err := tx.QueryRowContext(ctx, check.query, check.id).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%s %s: %w", check.kind, check.id, ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("check %s: %w", check.kind, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO one_rep_maxes (id, user_id, exercise_definition_id, weight, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, exercise_definition_id) DO UPDATE SET
				weight = excluded.weight,
				updated_at = excluded.updated_at`,
			uuid.NewString(), m.UserID, m.DefinitionID, m.Weight, formatTimestamp(m.UpdatedAt)); err != nil {
			return fmt.Errorf("upsert one-rep max: %w", err)
		}
		return nil
	})
}
