package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

const usersTable = "users"

// fkHop is the foreign key through which a table reaches the users table.
type fkHop struct {
	from   string
	parent string
	to     string
}

// exportTable is a table to copy. Tables without hop are referenced catalogue tables copied whole.
type exportTable struct {
	name string
	hop  *fkHop
}

// ExportUser writes everything owned by userID into a standalone SQLite file in dir and returns its path.
//
// Ownership is discovered from the foreign keys: a table belongs to the user when a chain of foreign keys
// leads from it to users.id. Tables referenced by owned rows, such as the exercise catalogue, are copied
// whole so that the export keeps its referential integrity.
func (db *Database) ExportUser(ctx context.Context, userID string, dir string) (_ string, err error) {
	if db.remote {
		return "", fmt.Errorf("export from remote database: %w", errors.ErrUnsupported)
	}
	exportPath := filepath.Join(dir, fmt.Sprintf("user-%s.sqlite3", userID))

	conn, err := db.ReadWrite.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("get connection: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close connection: %w", closeErr))
		}
	}()

	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS export", "file:"+exportPath+"?mode=rwc"); err != nil {
		return "", fmt.Errorf("attach export database: %w", err)
	}
	defer func() {
		if _, detachErr := conn.ExecContext(ctx, "DETACH DATABASE export"); detachErr != nil {
			err = errors.Join(err, fmt.Errorf("detach export database: %w", detachErr))
		}
	}()
	// Rows are copied table by table in no particular dependency order.
	if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return "", fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if _, fkErr := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			err = errors.Join(err, fmt.Errorf("re-enable foreign keys: %w", fkErr))
		}
	}()

	if err = db.exportInTx(ctx, conn, userID); err != nil {
		return "", err
	}
	return exportPath, nil
}

func (db *Database) exportInTx(ctx context.Context, conn *sql.Conn, userID string) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
		}
	}()

	tables, err := userTables(ctx, tx)
	if err != nil {
		return fmt.Errorf("discover user tables: %w", err)
	}
	hops := make(map[string]*fkHop, len(tables))
	for _, table := range tables {
		hops[table.name] = table.hop
	}

	for _, table := range tables {
		var createSQL string
		if err = tx.QueryRowContext(ctx, "SELECT sql FROM main.sqlite_schema WHERE type = 'table' AND name = ?",
			table.name).Scan(&createSQL); err != nil {
			return fmt.Errorf("read schema of %s: %w", table.name, err)
		}
		prefix := "CREATE TABLE " + table.name
		if !strings.HasPrefix(createSQL, prefix) {
			return fmt.Errorf("unexpected schema for %s: %s", table.name, createSQL)
		}
		if _, err = tx.ExecContext(ctx, "CREATE TABLE export."+table.name+createSQL[len(prefix):]); err != nil {
			return fmt.Errorf("create export table %s: %w", table.name, err)
		}

		query := "INSERT INTO export." + table.name + " SELECT * FROM main." + table.name
		var args []any
		if table.name == usersTable || table.hop != nil {
			query += " WHERE " + ownedBy(table.name, hops)
			args = append(args, userID)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("copy rows of %s: %w", table.name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ownedBy builds the condition selecting the rows of table that belong to the user bound to the single
// placeholder, following the hops up to users.
func ownedBy(table string, hops map[string]*fkHop) string {
	hop := hops[table]
	if table == usersTable || hop == nil {
		return "id = ?"
	}
	if hop.parent == usersTable {
		return hop.from + " = ?"
	}
	return fmt.Sprintf("%s IN (SELECT %s FROM main.%s WHERE %s)", hop.from, hop.to, hop.parent, ownedBy(hop.parent, hops))
}

// userTables lists users, the tables reaching it through foreign keys, and the tables those reference.
func userTables(ctx context.Context, tx *sql.Tx) ([]exportTable, error) {
	names, err := queryStrings(ctx, tx,
		"SELECT name FROM main.sqlite_schema WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if !slices.Contains(names, usersTable) {
		return nil, errors.New("users table does not exist")
	}

	keys := make(map[string][]fkHop, len(names))
	for _, name := range names {
		if keys[name], err = foreignKeys(ctx, tx, name); err != nil {
			return nil, fmt.Errorf("foreign keys of %s: %w", name, err)
		}
	}

	owned := map[string]*fkHop{usersTable: nil}
	order := []string{usersTable}
	for changed := true; changed; {
		changed = false
		for _, name := range names {
			if _, ok := owned[name]; ok {
				continue
			}
			for _, fk := range keys[name] {
				if _, ok := owned[fk.parent]; ok && fk.parent != name {
					owned[name] = &fk
					order = append(order, name)
					changed = true
					break
				}
			}
		}
	}

	tables := make([]exportTable, 0, len(names))
	for _, name := range order {
		tables = append(tables, exportTable{name: name, hop: owned[name]})
	}
	referenced := map[string]bool{}
	for _, name := range order {
		for _, fk := range keys[name] {
			if _, ok := owned[fk.parent]; !ok && !referenced[fk.parent] {
				referenced[fk.parent] = true
				tables = append(tables, exportTable{name: fk.parent, hop: nil})
			}
		}
	}
	return tables, nil
}

func foreignKeys(ctx context.Context, tx *sql.Tx, table string) (_ []fkHop, err error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id DESC, seq`, table)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()
	var hops []fkHop
	for rows.Next() {
		var (
			hop fkHop
			to  sql.NullString
		)
		if err = rows.Scan(&hop.from, &hop.parent, &to); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		// A missing target column means the parent's primary key.
		hop.to = "id"
		if to.Valid && to.String != "" {
			hop.to = to.String
		}
		hops = append(hops, hop)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return hops, nil
}

func queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) (_ []string, err error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()
	var result []string
	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		result = append(result, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return result, nil
}
