package internal

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLogLevel converts a log level name to a slog.Level. Names are matched
// case-insensitively: "debug", "info", "warning"/"warn", "error". Anything
// else logs a warning and yields slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", level)
		return slog.LevelInfo
	}
}

// SetupLogger installs a text slog handler writing to w at the given level
// as the default logger.
func SetupLogger(w io.Writer, level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLogLevel(level)})))
}
