package store

import (
	"context"
	"errors"
	"iter"

	"github.com/alfredjeanlab/contokens/internal/model"
)

// ErrAlreadyInitialized is returned by Init when the schema already exists.
var ErrAlreadyInitialized = errors.New("database already initialized")

// ExportQuery selects the tokens of one type for an export batch.
type ExportQuery struct {
	Type string

	// Exported selects rows whose exported flag equals this value.
	Exported bool

	// SetExported flips every unexported row of Type to exported in the same
	// transaction. Combining it with Exported is rejected.
	SetExported bool

	// Deliver, if set, receives the selected rows inside the transaction. An
	// error rolls the whole call back, so nothing is marked exported.
	Deliver func(tokens []model.Token) error
}

// Store defines the persistence interface for tokens.
type Store interface {
	// Schema
	Init(ctx context.Context) error

	// Writes. Both run in an exclusive transaction.
	InsertBatch(ctx context.Context, tokens iter.Seq2[model.Token, error]) (int, error)
	Reserve(ctx context.Context, tokenType, recipient string, count int) ([]string, error)
	MarkExportedAndFetch(ctx context.Context, q ExportQuery) ([]model.Token, error)

	// Reads
	CountAvailable(ctx context.Context, tokenType string) (int, error)
	Find(ctx context.Context, tokenType, recipient string) ([]string, error)
	Statistics(ctx context.Context) ([]model.Stat, error)

	// Lifecycle
	Close() error
}
