package log

import (
	"io"
	"log/slog"
)

// Level returns Debug when verbose is set, otherwise Warn.
func Level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// NewSecureLogger returns a text logger writing to w through a SecureHandler.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level(verbose)})
	return slog.New(NewSecureHandler(h))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: Level(verbose)})
	return slog.New(NewSecureHandler(h))
}
