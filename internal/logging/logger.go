// Package logging provides structured logging for the scheduler, producer,
// consumer, and drainer loops using log/slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with a component tag and an optional silent mode,
// so loop code can log unconditionally and tests can mute it.
type Logger struct {
	slog   *slog.Logger
	silent bool
}

// Config controls how a Logger is constructed.
type Config struct {
	Level  slog.Level
	Silent bool
	Output io.Writer
	JSON   bool
}

// New creates a Logger tagged with component.
func New(component string, cfg ...Config) *Logger {
	c := Config{Level: slog.LevelInfo}
	if len(cfg) > 0 {
		c = cfg[0]
	}

	output := c.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: c.Level}
	var handler slog.Handler
	switch {
	case c.Silent:
		handler = slog.NewTextHandler(io.Discard, opts)
	case c.JSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slog:   slog.New(handler).With("component", component),
		silent: c.Silent,
	}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slog.DebugContext(ctx, msg, args...)
}
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slog.WarnContext(ctx, msg, args...)
}
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slog.ErrorContext(ctx, msg, args...)
}

// With returns a child logger carrying the additional key/value pairs,
// e.g. tenant id, runner tag.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), silent: l.silent}
}
