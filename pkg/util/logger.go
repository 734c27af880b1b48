package util

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a text logger at debug level in development and a JSON
// logger at info level everywhere else.
func NewLogger(env string) *slog.Logger {
	return NewLoggerWriter(os.Stdout, env)
}

func NewLoggerWriter(w io.Writer, env string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if env == "development" {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("service", "roombook")
}

// DiscardLogger is used by tests and by components constructed without a logger.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
