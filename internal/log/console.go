// Package log provides configurable logging for the YDL broker and client.
package log

import (
	"io"
	"log/slog"
)

// NewConsoleHandler builds the handler used for Config.Mode == "console"
// (the default): text for a human watching a terminal, JSON when a caller
// wants to pipe broker output into a log aggregator.
func NewConsoleHandler(w io.Writer, cfg *Config, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
