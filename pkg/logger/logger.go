package logger

import (
	"log/slog"
	"os"
)

// Setup configures the process-wide logger for the given environment and
// installs it as the slog default.
//
// Production emits JSON for machine parsing; everything else emits text at
// debug level for local readability.
func Setup(env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("service", "authcore")
	slog.SetDefault(log)

	return log
}
