package testhelpers

import (
	"io"
	"log/slog"

	"github.com/myrjola/liftcycle/internal/logging"
)

// NewLogger creates a debug level logger writing to logSink, typically a [Writer].
func NewLogger(logSink io.Writer) *slog.Logger {
	return logging.NewLogger(logSink, slog.LevelDebug)
}
