package workout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/myrjola/liftcycle/internal/sqlite"
)

type sqliteUserRepository struct {
	baseRepository
}

func newSQLiteUserRepository(db *sqlite.Database, logger *slog.Logger) *sqliteUserRepository {
	return &sqliteUserRepository{
		baseRepository: newBaseRepository(db, logger),
	}
}

func (r *sqliteUserRepository) Create(ctx context.Context, u User) error {
	if _, err := r.db.ReadWrite.ExecContext(ctx,
		`INSERT INTO users (id, display_name, created_at) VALUES (?, ?, ?)`,
		u.ID, u.DisplayName, formatTimestamp(u.CreatedAt)); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *sqliteUserRepository) Get(ctx context.Context, id string) (User, error) {
	var (
		u         User
		createdAt string
	)
	err := r.db.ReadOnly.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM users WHERE id = ?`, id).Scan(&u.ID, &u.DisplayName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if u.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return User{}, err
	}
	return u, nil
}
