// Package logging builds the process logger: a logr.Logger backed by a
// log/slog text handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", level)
}

// New returns a logger writing to stderr. Unknown levels fall back to info.
func New(level string) logr.Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter returns a logger writing to w. logr verbosity V(n) is
// emitted when the slog level is at or below -n, so "debug" enables V(1)
// through V(4).
func NewWithWriter(w io.Writer, level string) logr.Logger {
	lvl, _ := ParseLevel(level)
	return logr.FromSlogHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
