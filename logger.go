package coocgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with coocgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithStep adds a merge step ID field to the logger (useful for tagging
// every record of one merge).
func (l *Logger) WithStep(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("step", id),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogObserve logs a single-parse observe operation.
func (l *Logger) LogObserve(ctx context.Context, words, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "observe failed",
			"words", words,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "observe completed",
			"words", words,
			"rows", rows,
		)
	}
}

// LogObserveBatch logs a batch observe operation.
func (l *Logger) LogObserveBatch(ctx context.Context, total, skipped int) {
	if skipped > 0 {
		l.WarnContext(ctx, "batch observe completed with skips",
			"total", total,
			"skipped", skipped,
			"observed", total-skipped,
		)
	} else {
		l.InfoContext(ctx, "batch observe completed",
			"count", total,
		)
	}
}

// LogFetchAll logs a working set load.
func (l *Logger) LogFetchAll(ctx context.Context, pairs, sections int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "fetch all failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "fetch all completed",
			"pairs", pairs,
			"sections", sections,
		)
	}
}

// LogMarginals logs a marginal sweep.
func (l *Logger) LogMarginals(ctx context.Context, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "marginal sweep failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "marginal sweep completed",
			"rows", rows,
		)
	}
}

// LogStatistics logs a statistics sweep (log-likelihood or mutual
// information).
func (l *Logger) LogStatistics(ctx context.Context, op string, rows, skipped int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "statistics sweep failed",
			"op", op,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "statistics sweep completed",
			"op", op,
			"rows", rows,
			"skipped", skipped,
		)
	}
}

// LogMerge logs a cluster merge.
func (l *Logger) LogMerge(ctx context.Context, cluster string, moved float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "merge failed",
			"cluster", cluster,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "merge completed",
			"cluster", cluster,
			"moved", moved,
		)
	}
}

// LogVerify logs a consistency check.
func (l *Logger) LogVerify(ctx context.Context, violations int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "verify failed",
			"error", err,
		)
	} else if violations > 0 {
		l.WarnContext(ctx, "verify found violations",
			"violations", violations,
		)
	} else {
		l.DebugContext(ctx, "verify completed",
			"violations", 0,
		)
	}
}

// LogSnapshot logs a snapshot write.
func (l *Logger) LogSnapshot(ctx context.Context, rows int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"rows", rows,
			"bytes", bytes,
		)
	}
}

// LogRestore logs a snapshot restore.
func (l *Logger) LogRestore(ctx context.Context, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "restore completed",
			"rows", rows,
		)
	}
}

// LogRank logs a ranking query.
func (l *Logger) LogRank(ctx context.Context, k, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "rank failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "rank completed",
			"k", k,
			"results", results,
		)
	}
}
