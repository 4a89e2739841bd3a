package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. Services and handlers receive *slog.Logger
// and attach their own component attributes.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
