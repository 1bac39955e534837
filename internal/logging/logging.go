// Package logging builds the shared *slog.Logger used across the
// streaming core, following the JSON-handler-plus-level-env-var pattern
// the rest of the fleet uses.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// EnvLevel is the environment variable consulted for the default log
// level, mirroring the broker's KAFSCALE_LOG_LEVEL.
const EnvLevel = "STREAMCORE_LOG_LEVEL"

// New builds a JSON logger writing to os.Stdout at the level named by
// STREAMCORE_LOG_LEVEL (info if unset or unrecognized), tagged with
// component.
func New(component string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     levelFromEnv(),
		AddSource: true,
	})
	return slog.New(handler).With("component", component)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLevel))) {
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

// OrDefault returns logger, or slog.Default() if logger is nil, matching
// PartitionLog.logger(). The components in pkg/ apply the same fallback
// with their own nil check rather than calling this function.
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
