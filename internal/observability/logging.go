package observability

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON logger with a component field attached.
func NewLogger(component string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger
}

func WithBuilder(logger *slog.Logger, builder string) *slog.Logger {
	if logger == nil || builder == "" {
		return logger
	}
	return logger.With("builder", builder)
}

func WithIssue(logger *slog.Logger, issue int) *slog.Logger {
	if logger == nil || issue == 0 {
		return logger
	}
	return logger.With("issue", issue)
}
