package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the JSON logger every component shares. slog keeps the
// standard library feel while emitting structured records we can ship to
// any backend; the service and registry attach their own key/value
// context per call.
func NewLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(level),
		AddSource: true,
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func levelFromString(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
