// Package log configures the process-wide structured logger.
package log

import (
	"log/slog"
	"os"
)

// Setup installs the default slog logger for a relayforge process. Every
// record carries the service name so logs from the api, the worker and the
// maintenance jobs can be told apart in an aggregated stream.
func Setup(service, logLevel string) {
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	slog.SetDefault(logger.With("service", service))
}

// WithModule returns the default logger scoped to one module of the process.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
