// Package logging builds the process logger: a text handler on stderr,
// optionally teed into a size-rotated file, behind a handler that redacts
// secrets and token values.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the log level and the optional rotated log file.
type Options struct {
	Level     string
	File      string
	MaxSizeMB int
	MaxFiles  int
}

// ParseLevel maps "debug", "info", "warn" or "error" (any case) to a level.
// An empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// New returns a logger writing to w and, when opts.File is set, to a
// rotating file. The returned closer releases the file; it is safe to call
// when no file is configured.
func New(w io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rw, err := NewRotatingWriter(opts)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(w, rw)
		closer = rw
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewRedactingHandler(handler)), closer, nil
}

// NewRotatingWriter opens opts.File for appending, rotating it once it grows
// past MaxSizeMB and keeping at most MaxFiles old copies.
func NewRotatingWriter(opts Options) (*lumberjack.Logger, error) {
	if opts.File == "" {
		return nil, fmt.Errorf("rotation file path must not be empty")
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 5
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxFiles,
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
