// Package logger configures the process-wide slog default logger and
// provides helpers for component- and post-scoped loggers.
package logger

import (
	"log/slog"
	"os"
)

// Setup installs the default slog logger. format is "json" or "text".
func Setup(level string, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithComponent returns a logger tagged with the given component name.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// WithPost returns a logger scoped to one source post. Every log line
// emitted while a post is being processed carries its identity key.
func WithPost(base *slog.Logger, channel string, postID int64) *slog.Logger {
	return base.With("channel", channel, "post_id", postID)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
