package dew

import (
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
)

// Logger is the ambient structured logger type threaded through the
// Scheduler and its workers: logiface as a facade, with logiface-slog as
// the concrete backend writing to log/slog, matching a
// single-structured-line-per-notable-event style for error/shutdown paths.
type Logger = logiface.Logger[*logifaceslog.Event]

// defaultLogger returns a Logger writing to stderr at Info level.
func defaultLogger() Logger {
	return *newLogger(slog.NewTextHandler(os.Stderr, nil))
}

// NewLogger builds a Logger backed by an arbitrary slog.Handler, so callers
// embedding this runtime can route its logs into their own slog pipeline.
func NewLogger(h slog.Handler) Logger {
	return *newLogger(h)
}

func newLogger(h slog.Handler) *Logger {
	return logiface.New[*logifaceslog.Event](logifaceslog.NewLogger(h))
}

// logSchedulerError emits a single structured error-level line for an
// unexpected scheduler fault rather than a Go panic.
func (s *Scheduler) logSchedulerError(op string, err error) {
	s.log.Err().Err(err).Log(op)
}
