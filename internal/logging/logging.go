// Package logging sets up the operational log. Status output for the user
// goes through the ui package; this log records what was done to which
// file, for later inspection.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	ifs "github.com/sokinpui/ddup/internal/fs"
)

// ParseLevel converts a config level name into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New returns a text logger writing to w at level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})).With("app", "ddup")
}

// Open appends to the log file at path. With an empty path the returned
// logger discards everything. The close function is always non-nil.
func Open(path, level string) (*slog.Logger, func() error, error) {
	noop := func() error { return nil }
	if path == "" {
		return Discard(), noop, nil
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, noop, err
	}
	if err := ifs.EnsureParentDir(path); err != nil {
		return nil, noop, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(f, lvl), f.Close, nil
}
