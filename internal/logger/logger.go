// Package logger configures the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
)

// New builds a JSON slog logger. Debug mode lowers the level and attaches
// source locations.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
