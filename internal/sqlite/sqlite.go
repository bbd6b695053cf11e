// Package sqlite owns the connection pools and the schema of the liftcycle database.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // registers the "libsql" driver for remote databases.

	_ "embed"
)

//go:embed schema.sql
var schemaDefinition string

type Database struct {
	ReadWrite *sql.DB
	ReadOnly  *sql.DB
	logger    *slog.Logger
	remote    bool
}

// NewDatabase connects to the database at url and brings its schema up to date.
//
// Local databases get two pools: a single connection for writes and a pool of query-only connections for
// reads. url is a file path, ":memory:" for a private in-memory database, or a libsql://, https:// or wss://
// URL of a remote libSQL server. Remote databases share one pool and are initialised with the schema when
// empty instead of going through the declarative migration.
func NewDatabase(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	var (
		err error
		db  *Database
	)

	if IsRemote(url) {
		if db, err = connectRemote(ctx, url, logger); err != nil {
			return nil, fmt.Errorf("connect remote: %w", err)
		}
		if err = db.ensureSchema(ctx); err != nil {
			return nil, errors.Join(fmt.Errorf("ensure schema: %w", err), db.Close())
		}
		return db, nil
	}

	if db, err = connect(ctx, url, logger); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err = db.migrateTo(ctx, schemaDefinition); err != nil {
		return nil, errors.Join(fmt.Errorf("migrateTo: %w", err), db.Close())
	}
	return db, nil
}

// IsRemote reports whether url points to a libSQL server rather than a local SQLite file.
func IsRemote(url string) bool {
	for _, scheme := range []string{"libsql://", "https://", "http://", "wss://", "ws://"} {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}

//nolint:gochecknoglobals // the driver may only be registered once per process.
var once sync.Once

const optimizedDriver = "sqlite3optimized"

func registerOptimizedDriver() {
	sql.Register(optimizedDriver,
		&sqlite3.SQLiteDriver{
			Extensions: nil,
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if _, err := conn.Exec(
					// Temporary tables and indices live in memory.
					"PRAGMA temp_store = memory;"+
						// Memory-mapped I/O reduces read syscalls.
						"PRAGMA mmap_size = 30000000000;", nil); err != nil {
					return fmt.Errorf("exec optimization pragmas: %w", err)
				}
				return nil
			},
		})
}

func connect(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	var (
		err         error
		readWriteDB *sql.DB
		readDB      *sql.DB
	)

	// In-memory databases need shared cache so that both pools see the same data. Every call gets its own
	// name so that parallel tests stay isolated. See https://www.sqlite.org/inmemorydb.html.
	inMemoryConfig := ""
	if strings.Contains(url, ":memory:") {
		url = "file:" + rand.Text()
		inMemoryConfig = "mode=memory&cache=shared"
	}
	commonConfig := strings.Join([]string{
		"_loc=auto",
		// The cursor columns reference rows that are written later in the same transaction.
		"_defer_foreign_keys=1",
		"_journal_mode=wal",
		"_busy_timeout=5000",
		"_synchronous=normal",
		"_foreign_keys=on",
	}, "&")

	// Parameters without underscore are SQLite URI parameters, see https://www.sqlite.org/uri.html.
	// The underscored ones are documented at https://pkg.go.dev/github.com/mattn/go-sqlite3#SQLiteDriver.Open.
	readConfig := fmt.Sprintf("file:%s?mode=ro&_txlock=deferred&_query_only=true&%s&%s", url, commonConfig, inMemoryConfig)
	// _txlock=immediate takes the write lock at BEGIN. Every state transition relies on this to serialise
	// concurrent events against the same cycle.
	readWriteConfig := fmt.Sprintf("file:%s?mode=rwc&_txlock=immediate&%s&%s", url, commonConfig, inMemoryConfig)

	once.Do(registerOptimizedDriver)

	if readWriteDB, err = sql.Open(optimizedDriver, readWriteConfig); err != nil {
		return nil, fmt.Errorf("open read-write database: %w", err)
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "opened database", slog.String("sqlDsn", readWriteConfig))

	readWriteDB.SetMaxOpenConns(1)
	readWriteDB.SetMaxIdleConns(1)
	readWriteDB.SetConnMaxLifetime(time.Hour)
	readWriteDB.SetConnMaxIdleTime(time.Hour)

	// sql.DB is lazy. Ping so that the file is created and configured before the read pool opens it.
	if err = readWriteDB.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping read-write database: %w", err), readWriteDB.Close())
	}

	if readDB, err = sql.Open(optimizedDriver, readConfig); err != nil {
		return nil, errors.Join(fmt.Errorf("open read database: %w", err), readWriteDB.Close())
	}

	maxReadConns := 10
	readDB.SetMaxOpenConns(maxReadConns)
	readDB.SetMaxIdleConns(maxReadConns)
	readDB.SetConnMaxLifetime(time.Hour)
	readDB.SetConnMaxIdleTime(time.Hour)

	return &Database{
		ReadWrite: readWriteDB,
		ReadOnly:  readDB,
		logger:    logger,
		remote:    false,
	}, nil
}

func connectRemote(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("open libsql database: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping libsql database: %w", err), db.Close())
	}
	// Strip credentials before logging.
	host, _, _ := strings.Cut(url, "?")
	logger.LogAttrs(ctx, slog.LevelDebug, "opened remote database", slog.String("url", host))
	return &Database{
		ReadWrite: db,
		ReadOnly:  db,
		logger:    logger,
		remote:    true,
	}, nil
}

// ensureSchema creates the tables of an empty remote database.
func (db *Database) ensureSchema(ctx context.Context) error {
	var count int
	if err := db.ReadWrite.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_schema WHERE type = 'table' AND name = 'cycles'").Scan(&count); err != nil {
		return fmt.Errorf("check for existing schema: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, stmt := range splitStatements(schemaDefinition) {
		if _, err := db.ReadWrite.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	db.logger.LogAttrs(ctx, slog.LevelInfo, "initialised remote schema")
	return nil
}

// splitStatements splits a schema script on the semicolons terminating its statements. The schema contains
// no semicolons inside literals or trigger bodies.
func splitStatements(script string) []string {
	var stmts []string
	for stmt := range strings.SplitSeq(script, ";") {
		var lines []string
		for line := range strings.SplitSeq(stmt, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			stmts = append(stmts, strings.Join(lines, "\n"))
		}
	}
	return stmts
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

// claimWriteLock is a write that touches no rows. Executing it takes the write lock of the transaction.
const claimWriteLock = `UPDATE users SET id = id WHERE 0`

// BeginWrite starts a transaction that holds the write lock before its first read. Local connections take
// the lock at BEGIN through _txlock=immediate. Remote libSQL transactions begin deferred, so they claim it
// with a no-op write.
func (db *Database) BeginWrite(ctx context.Context) (*sql.Tx, error) {
	tx, err := db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	if !db.remote {
		return tx, nil
	}
	if _, err = tx.ExecContext(ctx, claimWriteLock); err != nil {
		return nil, errors.Join(fmt.Errorf("claim write lock: %w", err), tx.Rollback())
	}
	return tx, nil
}

// Close closes the connection pools.
func (db *Database) Close() error {
	if db.remote {
		return db.ReadWrite.Close()
	}
	return errors.Join(db.ReadOnly.Close(), db.ReadWrite.Close())
}
