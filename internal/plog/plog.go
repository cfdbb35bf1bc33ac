// Package plog is the package-scoped logging wrapper shared by every
// component of portmap. It is a thin shim over log/slog: callers get a
// named handle without needing to thread a logger through constructors,
// and the process embedding this library can still redirect or level
// output by calling slog.SetDefault before portmap starts.
package plog

import (
	"context"
	"log/slog"
)

// Logger is a component-scoped handle over the process-wide slog default.
// It re-resolves slog.Default() on every call so that SetDefault takes
// effect for already-constructed Loggers.
type Logger struct {
	component string
}

// New returns a Logger tagged with component, attached as a "component"
// attribute on every emitted record.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) base() *slog.Logger {
	return slog.Default().With("component", l.component)
}

func (l *Logger) Debug(msg string, args ...any) { l.base().Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.base().Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.base().Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.base().Error(msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.base().DebugContext(ctx, msg, args...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.base().InfoContext(ctx, msg, args...)
}

// With returns a derived *slog.Logger carrying the extra attributes, for
// call sites that want to attach per-call fields (e.g. a router IP) before
// logging several related lines.
func (l *Logger) With(args ...any) *slog.Logger {
	return l.base().With(args...)
}
