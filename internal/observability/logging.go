// Package observability carries run-scoped log attributes on the context, so
// that every line logged during a run can be tied back to it.
package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/pkgindex/internal/logfields"
)

// LogContext is what a run knows about itself.
type LogContext struct {
	RunID   string
	Stage   string
	Trigger string
}

type logContextKey struct{}

func with(ctx context.Context, set func(*LogContext)) context.Context {
	lc := FromContext(ctx)
	set(&lc)
	return context.WithValue(ctx, logContextKey{}, lc)
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return with(ctx, func(lc *LogContext) { lc.RunID = runID })
}

// WithStage names the pipeline stage currently executing.
func WithStage(ctx context.Context, stage string) context.Context {
	return with(ctx, func(lc *LogContext) { lc.Stage = stage })
}

// WithTrigger records what started the run (cli, startup, schedule, watch).
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return with(ctx, func(lc *LogContext) { lc.Trigger = trigger })
}

// FromContext returns the LogContext stored in ctx, or the zero value.
func FromContext(ctx context.Context) LogContext {
	lc, _ := ctx.Value(logContextKey{}).(LogContext)
	return lc
}

// Attrs returns the non-empty fields of the context as log attributes.
func (lc LogContext) Attrs() []slog.Attr {
	var attrs []slog.Attr
	if lc.RunID != "" {
		attrs = append(attrs, logfields.RunID(lc.RunID))
	}
	if lc.Stage != "" {
		attrs = append(attrs, logfields.Stage(lc.Stage))
	}
	if lc.Trigger != "" {
		attrs = append(attrs, logfields.Trigger(lc.Trigger))
	}
	return attrs
}

func log(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	slog.LogAttrs(ctx, level, msg, append(FromContext(ctx).Attrs(), attrs...)...)
}

func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelInfo, msg, attrs)
}

func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelWarn, msg, attrs)
}

func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelError, msg, attrs)
}

func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelDebug, msg, attrs)
}
