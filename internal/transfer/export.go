// Package transfer moves tokens between the store and CSV files: exports for
// ticketing partners, imports of externally sold tokens, and bulk-send
// manifests.
package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alfredjeanlab/contokens/internal/archive"
	"github.com/alfredjeanlab/contokens/internal/model"
	"github.com/alfredjeanlab/contokens/internal/store"
)

// hashedStatus is the second column of every row in a hashed export.
const hashedStatus = "unused"

// ExportResult describes a completed export.
type ExportResult struct {
	Type       string `json:"token_type"`
	Path       string `json:"path"`
	HashedPath string `json:"hashed_path"`
	Count      int    `json:"count"`
}

// Exporter writes unexported tokens to CSV and marks them exported.
type Exporter struct {
	store    store.Store
	archiver *archive.Archiver
	logger   *slog.Logger
}

// NewExporter returns an Exporter. archiver may be nil.
func NewExporter(s store.Store, archiver *archive.Archiver, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{store: s, archiver: archiver, logger: logger}
}

// DefaultExportPath names an export file after its type and the time it was
// taken, e.g. export-GA-20261017-093000.123456.csv.
func DefaultExportPath(tokenType string, now time.Time) string {
	return fmt.Sprintf("export-%s-%s.csv", tokenType, now.Format("20060102-150405.000000"))
}

// HashedPath returns the companion path for the hashed export of path:
// "out.csv" becomes "out-hashed.csv".
func HashedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-hashed" + ext
}

// HashToken returns the hex sha256 of a token value, as written to hashed
// exports.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Export writes every unexported token of tokenType to path as (token, type)
// rows and to HashedPath(path) as (sha256, "unused") rows, then marks them
// exported. Both files are fsynced before the mark commits, so a crash never
// leaves tokens marked exported without a file. A second export with no new
// tokens writes two empty files.
//
// Archive failures are returned after the export itself has committed; the
// result is valid in that case.
func (e *Exporter) Export(ctx context.Context, tokenType, path string) (*ExportResult, error) {
	res := &ExportResult{Type: tokenType, Path: path, HashedPath: HashedPath(path)}

	e.logger.Info("exporting tokens", "type", tokenType, "path", path)
	tokens, err := e.store.MarkExportedAndFetch(ctx, store.ExportQuery{
		Type:        tokenType,
		SetExported: true,
		Deliver: func(tokens []model.Token) error {
			return writeExport(res.Path, res.HashedPath, tokens)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("export %s tokens: %w", tokenType, err)
	}
	res.Count = len(tokens)
	e.logger.Info("marked tokens exported", "type", tokenType, "count", res.Count)

	if err := e.archiver.Files(ctx, res.Path, res.HashedPath); err != nil {
		return res, fmt.Errorf("archive export: %w", err)
	}
	return res, nil
}

// writeExport writes both export files. On failure neither file is left
// behind.
func writeExport(path, hashedPath string, tokens []model.Token) (err error) {
	defer func() {
		if err != nil {
			os.Remove(path)
			os.Remove(hashedPath)
		}
	}()

	if err := writeCSV(path, tokens, func(t model.Token) []string {
		return []string{t.Value, t.Type}
	}); err != nil {
		return err
	}
	return writeCSV(hashedPath, tokens, func(t model.Token) []string {
		return []string{HashToken(t.Value), hashedStatus}
	})
}

// writeCSV creates path and writes one row per token, flushing and fsyncing
// before it returns.
func writeCSV(path string, tokens []model.Token, row func(model.Token) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	for _, t := range tokens {
		if err := w.Write(row(t)); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
