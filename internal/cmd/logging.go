package cmd

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger builds the process logger: text records on w at the configured
// level, or debug when forced.
func newLogger(w io.Writer, level string, forceDebug bool) *slog.Logger {
	lvl := parseLevel(level)
	if forceDebug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func parseLevel(level string) slog.Level {
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
