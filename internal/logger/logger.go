// Package logger configures log/slog for the taskgraph CLI. Output is JSON so
// diagnostics on stderr never mix with the JSON results written to stdout; an
// interactive terminal gets the text format instead.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Setup installs a handler writing to w at the given level and returns the
// resulting logger. It also becomes the slog default.
func Setup(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: ParseLevel(level) == slog.LevelDebug,
		Level:     ParseLevel(level),
	}

	var handler slog.Handler
	if isTerminal(w) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ParseLevel converts a string log level to slog.Level.
// Valid values: "debug", "info", "warn", "error".
// Unrecognized values default to warn.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
