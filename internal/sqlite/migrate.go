package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// migrateTo makes the live schema match schemaDefinition.
//
// The target schema is created in an attached in-memory database and compared object by object with the
// live one. Tables missing from the target are dropped, new ones are created and changed ones are rebuilt
// with the generalized ALTER TABLE procedure described in https://www.sqlite.org/lang_altertable.html#otheralter,
// copying the columns both versions share. Indexes and triggers are then dropped and recreated as needed.
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) (err error) {
	start := time.Now()

	detach, err := db.attachSchemaTarget(ctx, schemaDefinition)
	if err != nil {
		return fmt.Errorf("attach schema target: %w", err)
	}
	defer detach()

	// Rebuilding a table breaks references to it until it is renamed back.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if _, fkErr := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			err = errors.Join(err, fmt.Errorf("re-enable foreign keys: %w", fkErr))
		}
	}()

	var tx *sql.Tx
	if tx, err = db.ReadWrite.BeginTx(ctx, nil); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
		}
	}()

	var changes int
	for _, typ := range []string{"table", "index", "trigger"} {
		var n int
		if n, err = db.migrateObjects(ctx, tx, typ); err != nil {
			return fmt.Errorf("migrate %s objects: %w", typ, err)
		}
		changes += n
	}

	var violations *sql.Rows
	if violations, err = tx.QueryContext(ctx, "PRAGMA foreign_key_check"); err != nil {
		return fmt.Errorf("foreign key check: %w", err)
	}
	hasViolations := violations.Next()
	if closeErr := violations.Close(); closeErr != nil {
		return fmt.Errorf("close foreign key check: %w", closeErr)
	}
	if hasViolations {
		return errors.New("foreign key violations after migration")
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	db.logger.LogAttrs(ctx, slog.LevelDebug, "migrated database",
		slog.Int("changes", changes), slog.Duration("duration", time.Since(start)))
	return nil
}

func (db *Database) attachSchemaTarget(ctx context.Context, schemaDefinition string) (func(), error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", rand.Text())
	target, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	// Keeps the shared in-memory database alive until it has been attached.
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close schema target",
				slog.Any("error", closeErr))
		}
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return nil, fmt.Errorf("create target schema: %w", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", dsn); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	return func() {
		if _, detachErr := db.ReadWrite.ExecContext(ctx, "DETACH DATABASE schemaTarget"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach schema target",
				slog.Any("error", detachErr))
		}
	}, nil
}

type schemaObject struct {
	name    string
	liveSQL sql.NullString
	newSQL  sql.NullString
}

func (o schemaObject) dropped() bool { return o.liveSQL.Valid && !o.newSQL.Valid }
func (o schemaObject) created() bool { return !o.liveSQL.Valid && o.newSQL.Valid }

// changed ignores quoting because ALTER TABLE RENAME quotes the table name in the stored SQL.
func (o schemaObject) changed() bool {
	return o.liveSQL.Valid && o.newSQL.Valid &&
		strings.ReplaceAll(o.liveSQL.String, `"`, "") != strings.ReplaceAll(o.newSQL.String, `"`, "")
}

// diffSchema lists the objects of typ in the live or the target schema. Internal objects are excluded,
// which also skips the automatic indexes that have no SQL.
func (db *Database) diffSchema(ctx context.Context, tx *sql.Tx, typ string) (_ []schemaObject, err error) {
	rows, err := tx.QueryContext(ctx, `SELECT COALESCE(live.name, target.name), live.sql, target.sql
FROM (SELECT name, sql FROM main.sqlite_schema WHERE type = :type) AS live
         FULL OUTER JOIN (SELECT name, sql FROM schemaTarget.sqlite_schema WHERE type = :type) AS target
                         ON live.name = target.name
WHERE COALESCE(live.name, target.name) NOT LIKE 'sqlite_%'
ORDER BY COALESCE(live.name, target.name)`, sql.Named("type", typ))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()
	var objects []schemaObject
	for rows.Next() {
		var o schemaObject
		if err = rows.Scan(&o.name, &o.liveSQL, &o.newSQL); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		objects = append(objects, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return objects, nil
}

// migrateObjects synchronises the objects of typ and returns how many it touched.
func (db *Database) migrateObjects(ctx context.Context, tx *sql.Tx, typ string) (int, error) {
	objects, err := db.diffSchema(ctx, tx, typ)
	if err != nil {
		return 0, fmt.Errorf("diff schema: %w", err)
	}
	exec := func(query string) error {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "migrating schema",
			slog.String("type", typ), slog.String("query", query))
		if _, execErr := tx.ExecContext(ctx, query); execErr != nil {
			return fmt.Errorf("exec %q: %w", query, execErr)
		}
		return nil
	}
	dropSQL := func(name string) string {
		return fmt.Sprintf("DROP %s %s", strings.ToUpper(typ), name)
	}

	changes := 0
	for _, o := range objects {
		switch {
		case o.dropped():
			err = exec(dropSQL(o.name))
		case o.created():
			err = exec(o.newSQL.String)
		case o.changed() && typ == "table":
			err = db.rebuildTable(ctx, tx, o, exec)
		case o.changed():
			if err = exec(dropSQL(o.name)); err == nil {
				err = exec(o.newSQL.String)
			}
		default:
			continue
		}
		if err != nil {
			return changes, err
		}
		changes++
	}
	return changes, nil
}

// rebuildTable creates the new version of the table under a temporary name, copies the shared columns,
// drops the old table and renames the new one into place.
func (db *Database) rebuildTable(ctx context.Context, tx *sql.Tx, o schemaObject, exec func(string) error) error {
	temp := o.name + "_migration_temp"
	if err := exec(strings.Replace(o.newSQL.String, o.name, temp, 1)); err != nil {
		return err
	}
	columns, err := db.commonColumns(ctx, tx, o.name)
	if err != nil {
		return fmt.Errorf("common columns of %s: %w", o.name, err)
	}
	cols := strings.Join(columns, ", ")
	for _, query := range []string{
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", temp, cols, cols, o.name),
		"DROP TABLE " + o.name,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", temp, o.name),
	} {
		if err = exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) commonColumns(ctx context.Context, tx *sql.Tx, table string) (_ []string, err error) {
	// Quoted because column names may be keywords.
	rows, err := tx.QueryContext(ctx, `SELECT '"' || target.name || '"'
FROM PRAGMA_TABLE_INFO(:table) AS live
         JOIN PRAGMA_TABLE_INFO(:table, 'schemaTarget') AS target ON target.name = live.name
ORDER BY target.cid`, sql.Named("table", table))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()
	var columns []string
	for rows.Next() {
		var column string
		if err = rows.Scan(&column); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		columns = append(columns, column)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return columns, nil
}
