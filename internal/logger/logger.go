// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// executionIDKey is the context key for the id of the running execution.
type executionIDKey struct{}

type loggerKey struct{}

// Options configures New.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text (default) or json
	// Console enables the live stream. Without it, New returns a logger that
	// drops everything.
	Console bool
	Writer  io.Writer // defaults to os.Stderr
}

// New creates a structured logger. Text output on the console is colored
// by tint; json output uses the standard JSON handler.
func New(opts Options) *slog.Logger {
	return slog.New(NewHandler(opts))
}

// NewHandler builds the handler behind New, so callers can combine it with
// other handlers through Tee.
func NewHandler(opts Options) slog.Handler {
	if !opts.Console {
		return slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := ParseLevel(opts.Level)

	if strings.EqualFold(opts.Format, "json") {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(w),
	})
}

// ParseLevel maps a level name to a slog level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// OpenExecutionLog creates <dir>/<executionID>/batch.log and returns a JSON
// handler writing to it. The caller closes the returned file.
func OpenExecutionLog(dir, executionID string, level slog.Level) (slog.Handler, io.Closer, string, error) {
	path := filepath.Join(dir, executionID, "batch.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, "", fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to open execution log: %w", err)
	}
	return slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}), f, path, nil
}

// WithExecutionID returns a new context with the given execution ID.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionIDKey{}, executionID)
}

// ExecutionIDFromContext extracts the execution ID from the context.
func ExecutionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(executionIDKey{}).(string); ok {
		return v
	}
	return ""
}

// NewContext returns a context carrying l. FromContext prefers it over the
// base logger it is given.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns a logger with context fields (execution ID) attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		base = l
	}
	if base == nil {
		base = slog.Default()
	}
	if id := ExecutionIDFromContext(ctx); id != "" {
		return base.With("execution_id", id)
	}
	return base
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
