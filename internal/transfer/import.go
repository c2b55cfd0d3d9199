package transfer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/alfredjeanlab/contokens/internal/model"
	"github.com/alfredjeanlab/contokens/internal/store"
)

// Importer loads tokens sold through another channel straight into the
// store as issued. Imported values are trusted verbatim and never pass
// through the allocator.
type Importer struct {
	store       store.Store
	tokenLength int
	now         func() time.Time
	logger      *slog.Logger
}

// NewImporter returns an Importer. A tokenLength above zero makes Import warn
// about values of any other length.
func NewImporter(s store.Store, tokenLength int, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: s, tokenLength: tokenLength, now: time.Now, logger: logger}
}

// Import reads (recipient, token, ...) records from r and inserts them as
// issued tokens of tokenType, marked exported when markExported is set.
// Columns after the second are ignored. The whole file is one transaction:
// a malformed record (fewer than two fields) or a duplicate token inserts
// nothing.
func (im *Importer) Import(ctx context.Context, tokenType string, r io.Reader, markExported bool) (int, error) {
	im.logger.Info("importing tokens", "type", tokenType, "mark_exported", markExported)
	n, err := im.store.InsertBatch(ctx, im.records(tokenType, r, markExported))
	if err != nil {
		return 0, fmt.Errorf("import %s tokens: %w", tokenType, err)
	}
	im.logger.Info("imported tokens", "type", tokenType, "count", n)
	return n, nil
}

func (im *Importer) records(tokenType string, r io.Reader, markExported bool) iter.Seq2[model.Token, error] {
	return func(yield func(model.Token, error) bool) {
		issuedAt := im.now().UTC()
		cr := newReader(r)
		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(model.Token{}, fmt.Errorf("read import: %w", err))
				return
			}
			line, _ := cr.FieldPos(0)
			if len(rec) < 2 {
				yield(model.Token{}, invalidRecord(line, "want recipient and token, got %d field(s)", len(rec)))
				return
			}

			recipient, value := strings.TrimSpace(rec[0]), rec[1]
			if recipient == "" || value == "" {
				yield(model.Token{}, invalidRecord(line, "empty recipient or token"))
				return
			}
			if im.tokenLength > 0 && len(value) != im.tokenLength {
				im.logger.Warn("imported token has unexpected length",
					"line", line, "length", len(value), "want", im.tokenLength)
			}

			at := issuedAt
			tok := model.Token{
				Value:     value,
				Type:      tokenType,
				Recipient: recipient,
				IssuedAt:  &at,
				Exported:  markExported,
			}
			if !yield(tok, nil) {
				return
			}
		}
	}
}

// newReader returns a CSV reader that tolerates ragged rows; record shape is
// checked by the caller so it can report a domain error.
func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr
}

func invalidRecord(line int, format string, args ...any) error {
	return &model.InvalidRecordError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
