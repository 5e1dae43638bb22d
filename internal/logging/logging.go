// Package logging holds the process-wide structured logger for the DSU
// bridge. Subsystems log through L() so the replay backend, the UDP
// server, and the metrics endpoints share one configured sink.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(New("text", slog.LevelInfo, nil))
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// ParseLevel maps the level strings the server's configuration accepts
// ("debug", "info", "warn", "error") to slog levels. Unknown values fall
// back to info rather than failing; config validation rejects them before
// they reach here.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger with the given format ("text" or "json"), level,
// and optional writer (defaults to stderr), tagged with the bridge's
// app attribute.
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h).With("app", "dsu-server")
}
