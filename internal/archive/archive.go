// Package archive copies finished export files to off-host destinations.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Destination is the interface for an archive target (S3, git, etc.).
type Destination interface {
	// Write stores data under name at the destination.
	Write(ctx context.Context, name string, data []byte) error
	// String names the destination in logs.
	String() string
}

// Archiver fans files out to every configured destination.
type Archiver struct {
	destinations []Destination
	logger       *slog.Logger
}

// New returns an Archiver for the given destinations. An Archiver with no
// destinations accepts and discards every file.
func New(destinations []Destination, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{destinations: destinations, logger: logger}
}

// Enabled reports whether any destination is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && len(a.destinations) > 0
}

// Files reads each path and writes it, under its base name, to every
// destination. Every destination is attempted; the failures are joined.
func (a *Archiver) Files(ctx context.Context, paths ...string) error {
	if !a.Enabled() {
		return nil
	}

	var errs []error
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
			continue
		}
		name := filepath.Base(path)
		for _, dest := range a.destinations {
			if err := dest.Write(ctx, name, data); err != nil {
				a.logger.Error("archive write failed", "destination", dest.String(), "file", name, "err", err)
				errs = append(errs, fmt.Errorf("archive %s to %s: %w", name, dest, err))
				continue
			}
			a.logger.Info("archived export", "destination", dest.String(), "file", name, "bytes", len(data))
		}
	}
	return errors.Join(errs...)
}
