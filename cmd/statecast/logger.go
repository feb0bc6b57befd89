package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// newLogger creates the CLI logger: JSON records on stderr and, when logFile
// is set, a text copy of each record appended to that file.
//
// The returned close function releases the log file and must be called
// before exit.
func newLogger(stderr io.Writer, level, logFile string) (*slog.Logger, func() error, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if logFile == "" {
		return slog.New(slog.NewJSONHandler(stderr, opts)), func() error { return nil }, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := slog.New(slogmulti.Fanout(
		slog.NewJSONHandler(stderr, opts),
		slog.NewTextHandler(f, opts),
	))
	return logger, f.Close, nil
}
