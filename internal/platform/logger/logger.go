package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger: JSON to stdout at the given level.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
