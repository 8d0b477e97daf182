package config

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger returns a JSON logger at the configured level. Unknown levels
// fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// Logger builds the process logger for cfg and tags it with the service name.
func (c Config) Logger(w io.Writer, service string) *slog.Logger {
	return NewLogger(w, c.LogLevel).With("service", service, "env", c.Env)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
