// Package logging builds the slog logger used for diagnostics.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the level and handler format.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New returns a logger for conf. Output defaults to stderr so that generated
// text on stdout stays clean.
func New(conf Config) *slog.Logger {
	out := conf.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level: ParseLevel(conf.Level),
	}
	return slog.New(handlerFor(conf.Format, out, opts))
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is treated as warn.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// ValidFormat reports whether format is a known handler format.
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case "", "text", "json":
		return true
	}
	return false
}

func handlerFor(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(out, opts)
	default:
		return slog.NewTextHandler(out, opts)
	}
}
