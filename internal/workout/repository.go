package workout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/liftcycle/internal/sqlite"
)

const (
	timestampFormat = "2006-01-02T15:04:05.000Z"
	dateFormat      = time.DateOnly
	// insertBatchSize bounds the rows of one multi-row INSERT.
	insertBatchSize = 50
)

// querier is satisfied by *sql.DB and *sql.Tx so that reads can run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type baseRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newBaseRepository(db *sqlite.Database, logger *slog.Logger) baseRepository {
	return baseRepository{db: db, logger: logger}
}

// inTx runs fn in a write transaction. The transaction is committed when fn returns nil.
func (r *baseRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginWrite(ctx)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped.
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// repository bundles the repositories the service works with.
type repository struct {
	users       *sqliteUserRepository
	definitions *sqliteDefinitionRepository
	maxes       *sqliteOneRepMaxRepository
	cycles      *sqliteCycleRepository
}

func newRepository(db *sqlite.Database, logger *slog.Logger) *repository {
	return &repository{
		users:       newSQLiteUserRepository(db, logger),
		definitions: newSQLiteDefinitionRepository(db, logger),
		maxes:       newSQLiteOneRepMaxRepository(db, logger),
		cycles:      newSQLiteCycleRepository(db, logger),
	}
}

// insertRows inserts rows into table with multi-row INSERT statements of at most insertBatchSize rows.
func insertRows(ctx context.Context, q querier, table string, columns []string, rows [][]any) error {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	prefix := "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES "
	for start := 0; start < len(rows); start += insertBatchSize {
		batch := rows[start:min(start+insertBatchSize, len(rows))]
		values := make([]string, len(batch))
		args := make([]any, 0, len(batch)*len(columns))
		for i, row := range batch {
			values[i] = placeholder
			args = append(args, row...)
		}
		if _, err := q.ExecContext(ctx, prefix+strings.Join(values, ", "), args...); err != nil {
			return fmt.Errorf("insert %d rows into %s: %w", len(batch), table, err)
		}
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

func formatDate(t time.Time) string {
	return t.Format(dateFormat)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date: %w", err)
	}
	return t, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return t, nil
}

// parseNullTimestamp parses a nullable timestamp column. NULL yields nil.
func parseNullTimestamp(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil //nolint:nilnil // NULL is a valid absent timestamp.
	}
	t, err := parseTimestamp(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// The null* helpers turn optional values into driver arguments.

func nullTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTimestamp(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}
