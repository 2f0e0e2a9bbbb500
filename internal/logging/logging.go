package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init sets the default slog logger. Logs always go to stderr so they never
// mix with a report on stdout. asJSON selects JSONHandler, for when the
// report itself is JSON and a tool is reading both streams.
func Init(asJSON bool, level slog.Level) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, asJSON, level)))
}

// NewHandler builds the handler Init installs, writing to w.
func NewHandler(w io.Writer, asJSON bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to slog.Level.
// Unknown strings default to LevelWarn, which keeps the report readable.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
