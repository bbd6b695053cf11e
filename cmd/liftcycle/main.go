package main

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/myrjola/liftcycle/internal/envstruct"
	"github.com/myrjola/liftcycle/internal/errors"
	"github.com/myrjola/liftcycle/internal/logging"
	"github.com/myrjola/liftcycle/internal/sqlite"
	"github.com/myrjola/liftcycle/internal/workout"
)

type config struct {
	// SqliteURL is the database location. Use ":memory:" for an ethereal database or a libsql:// URL for a
	// remote libSQL server.
	SqliteURL string `env:"LIFTCYCLE_SQLITE_URL" envDefault:"./liftcycle.sqlite3"`
	// CatalogPath optionally replaces the built-in exercise catalogue with a TOML file.
	CatalogPath string `env:"LIFTCYCLE_CATALOG_PATH" envDefault:""`
	// DefinitionSelection is "first" for reproducible cycles or "random".
	DefinitionSelection string `env:"LIFTCYCLE_DEFINITION_SELECTION" envDefault:"first"`
	// AccessorySets is the number of flat sets of exercises without a one-rep max.
	AccessorySets int `env:"LIFTCYCLE_ACCESSORY_SETS" envDefault:"2"`
	// UserID is the default for the --user flag.
	UserID   string `env:"LIFTCYCLE_USER_ID" envDefault:""`
	LogLevel string `env:"LIFTCYCLE_LOG_LEVEL" envDefault:"warn"`
}

// application holds what the commands share.
type application struct {
	logger  *slog.Logger
	service *workout.Service
	out     io.Writer
	userID  string
}

func run(
	ctx context.Context,
	logger *slog.Logger,
	level *slog.LevelVar,
	out io.Writer,
	lookupEnv func(string) (string, bool),
	args []string,
) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.DecoratePanic(p)
		}
	}()
	var cancel context.CancelFunc
	ctx, cancel = signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	var cfg config
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}
	var logLevel slog.Level
	if logLevel, err = logging.ParseLevel(cfg.LogLevel); err != nil {
		return errors.Wrap(err, "parse log level")
	}
	level.Set(logLevel)

	selection := workout.SelectionPolicy(cfg.DefinitionSelection)
	if !selection.Valid() {
		return errors.New("invalid definition selection", slog.String("selection", cfg.DefinitionSelection))
	}
	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return errors.Wrap(err, "load catalog", slog.String("path", cfg.CatalogPath))
	}

	db, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open db", slog.String("url", cfg.SqliteURL))
	}
	var optimizer sync.WaitGroup
	optimizerCtx, stopOptimizer := context.WithCancel(ctx)
	optimizer.Go(func() {
		db.RunOptimizer(optimizerCtx, time.Hour)
	})
	defer func() {
		stopOptimizer()
		optimizer.Wait()
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close db", errors.SlogError(closeErr))
		}
	}()

	service, err := workout.NewService(db, logger, workout.Config{
		Periodization: workout.DefaultPeriodization,
		Selection:     selection,
		AccessorySets: cfg.AccessorySets,
		Now:           time.Now,
	})
	if err != nil {
		return errors.Wrap(err, "new service")
	}
	if err = service.SeedCatalog(ctx, catalog); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	app := &application{
		logger:  logger,
		service: service,
		out:     out,
		userID:  cfg.UserID,
	}
	root := app.rootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	if err = root.ExecuteContext(ctx); err != nil {
		return errors.Wrap(err, "execute command")
	}
	return nil
}

func loadCatalog(path string) ([]workout.ExerciseDefinition, error) {
	if path == "" {
		return workout.DefaultCatalog() //nolint:wrapcheck // caller wraps.
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}
	return workout.ParseCatalog(data) //nolint:wrapcheck // caller wraps.
}

// loadDotEnv reads .env from the working directory into the process environment when the file exists.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "load .env")
	}
	return nil
}

func main() {
	ctx := context.Background()
	level := new(slog.LevelVar)
	logger := logging.NewLogger(os.Stderr, level)
	if err := loadDotEnv(); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure loading environment", errors.SlogError(err))
		os.Exit(1)
	}
	if err := run(ctx, logger, level, os.Stdout, os.LookupEnv, os.Args[1:]); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "liftcycle failed", errors.SlogError(err))
		os.Exit(1)
	}
}
