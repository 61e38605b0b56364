package tiergo

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/tiergo/model"
)

// Logger wraps slog.Logger with tiergo-specific context.
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

// WithCollection adds a collection field to the logger.
func (l *Logger) WithCollection(collectionID model.CollectionID) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", collectionID),
	}
}

// WithTier adds a tier field to the logger.
func (l *Logger) WithTier(tier model.Tier) *Logger {
	return &Logger{
		Logger: l.Logger.With("tier", tier),
	}
}

// WithSnapshot adds a snapshot field to the logger.
func (l *Logger) WithSnapshot(snapshotID model.SnapshotID) *Logger {
	return &Logger{
		Logger: l.Logger.With("snapshot", snapshotID),
	}
}

// LogTransition logs a tier transition.
func (l *Logger) LogTransition(ctx context.Context, collectionID model.CollectionID, from, to model.Tier, err error) {
	if err != nil {
		l.ErrorContext(ctx, "transition failed",
			"collection", collectionID,
			"from", from,
			"to", to,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "transition completed",
			"collection", collectionID,
			"from", from,
			"to", to,
		)
	}
}

// LogSnapshot logs a snapshot commit.
func (l *Logger) LogSnapshot(ctx context.Context, collectionID model.CollectionID, snapshotID model.SnapshotID, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"collection", collectionID,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot committed",
			"collection", collectionID,
			"snapshot", snapshotID,
		)
	}
}

// LogCleanup logs a snapshot cleanup run.
func (l *Logger) LogCleanup(ctx context.Context, collectionID model.CollectionID, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot cleanup failed",
			"collection", collectionID,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot cleanup completed",
			"collection", collectionID,
			"removed", removed,
		)
	}
}

// LogCycle logs a completed tiering cycle.
func (l *Logger) LogCycle(ctx context.Context, transitions int, duration time.Duration) {
	l.DebugContext(ctx, "tiering cycle completed",
		"transitions", transitions,
		"duration", duration,
	)
}
