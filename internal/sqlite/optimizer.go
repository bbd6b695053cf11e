package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RunOptimizer runs PRAGMA optimize every interval until ctx is done. Remote databases manage their own
// statistics, so it returns immediately for them. See https://www.sqlite.org/pragma.html#pragma_optimize.
func (db *Database) RunOptimizer(ctx context.Context, interval time.Duration) {
	if db.remote {
		return
	}
	// Analyze every table once when the connection is new.
	if _, err := db.ReadWrite.ExecContext(ctx, "PRAGMA optimize = 0x10002;"); err != nil {
		db.logOptimizeError(ctx, fmt.Errorf("init optimize database: %w", err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		start := time.Now()
		if _, err := db.ReadWrite.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
			db.logOptimizeError(ctx, fmt.Errorf("optimize database: %w", err))
			continue
		}
		db.logger.LogAttrs(ctx, slog.LevelDebug, "optimized database", slog.Duration("duration", time.Since(start)))
	}
}

func (db *Database) logOptimizeError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	db.logger.LogAttrs(ctx, slog.LevelError, "failed to optimize database", slog.Any("error", err))
}
