package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger writes JSON lines to stdout. Every line carries the service name
// and env; dev also logs at debug level.
func NewLogger(service, env string) *slog.Logger {
	return newLogger(os.Stdout, service, env)
}

func newLogger(w io.Writer, service, env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: env != "dev",
	})

	return slog.New(NewContextHandler(handler)).With(
		slog.String("service", service),
		slog.String("env", env),
	)
}
