// Package flightrecorder keeps a rolling execution trace in memory and writes it out when an operation runs slow.
package flightrecorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime/trace"
	"sync/atomic"
	"time"
)

const (
	defaultMinAge   = 30 * time.Second
	defaultMaxBytes = 16 * 1024 * 1024 // 16MB
	defaultCooldown = time.Minute
	tracesDirPerm   = 0o700
)

//nolint:gochecknoglobals // compiled once.
var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Recorder captures traces of slow operations.
type Recorder struct {
	logger      *slog.Logger
	fr          *trace.FlightRecorder
	dir         string
	threshold   time.Duration
	cooldown    time.Duration
	now         func() time.Time
	lastCapture atomic.Int64
}

type Config struct {
	Logger *slog.Logger
	// Directory receives the trace files. It is created when missing.
	Directory string
	// Threshold is the duration above which an operation counts as slow.
	Threshold time.Duration
	MinAge    time.Duration
	MaxBytes  uint64
	// Cooldown is the minimum time between two captures. Zero uses the default, negative disables it.
	Cooldown time.Duration
	Now      func() time.Time
}

// New creates a Recorder. Call Start before Observe.
func New(cfg Config) (*Recorder, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Directory == "" {
		return nil, errors.New("traces directory is required")
	}
	if cfg.Threshold <= 0 {
		return nil, errors.New("threshold must be positive")
	}
	if stat, err := os.Stat(cfg.Directory); err != nil {
		if err = os.MkdirAll(cfg.Directory, tracesDirPerm); err != nil {
			return nil, fmt.Errorf("create traces directory: %w", err)
		}
	} else if !stat.IsDir() {
		return nil, fmt.Errorf("traces path is not a directory: %s", cfg.Directory)
	}

	if cfg.MinAge == 0 {
		cfg.MinAge = defaultMinAge
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	switch {
	case cfg.Cooldown == 0:
		cfg.Cooldown = defaultCooldown
	case cfg.Cooldown < 0:
		cfg.Cooldown = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{MinAge: cfg.MinAge, MaxBytes: cfg.MaxBytes})
	if fr == nil {
		return nil, errors.New("failed to create flight recorder")
	}
	return &Recorder{
		logger:      cfg.Logger,
		fr:          fr,
		dir:         cfg.Directory,
		threshold:   cfg.Threshold,
		cooldown:    cfg.Cooldown,
		now:         cfg.Now,
		lastCapture: atomic.Int64{},
	}, nil
}

func (r *Recorder) Start(ctx context.Context) error {
	if err := r.fr.Start(); err != nil {
		return fmt.Errorf("start flight recorder: %w", err)
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "flight recorder started",
		slog.Duration("threshold", r.threshold),
		slog.Duration("cooldown", r.cooldown))
	return nil
}

func (r *Recorder) Stop(ctx context.Context) {
	r.fr.Stop()
	r.logger.LogAttrs(ctx, slog.LevelDebug, "flight recorder stopped")
}

// Observe captures a trace named after op when elapsed exceeds the threshold. It returns the written file, or ""
// when nothing was captured.
func (r *Recorder) Observe(ctx context.Context, op string, elapsed time.Duration) string {
	if elapsed <= r.threshold {
		return ""
	}
	return r.capture(ctx, op, elapsed)
}

func (r *Recorder) capture(ctx context.Context, op string, elapsed time.Duration) string {
	now := r.now()
	last := r.lastCapture.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < r.cooldown {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "skipping trace capture due to cooldown",
			slog.String("op", op),
			slog.Time("last_capture", time.Unix(0, last)))
		return ""
	}
	if !r.lastCapture.CompareAndSwap(last, now.UnixNano()) {
		return ""
	}

	name := fmt.Sprintf("slow-%s-%s.trace", unsafeFileChars.ReplaceAllString(op, "_"),
		now.UTC().Format("20060102-150405.000000000"))
	path := filepath.Join(r.dir, name)
	file, err := os.Create(path)
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to create trace file",
			slog.String("file", path), slog.Any("error", err))
		return ""
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to close trace file",
				slog.String("file", path), slog.Any("error", closeErr))
		}
	}()

	written, err := r.fr.WriteTo(file)
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to write trace",
			slog.String("file", path), slog.Any("error", err))
		return ""
	}
	r.logger.LogAttrs(ctx, slog.LevelWarn, "captured slow operation trace",
		slog.String("op", op),
		slog.Duration("elapsed", elapsed),
		slog.String("file", path),
		slog.Int64("bytes", written))
	return path
}
