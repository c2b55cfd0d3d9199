// Package allocator creates token supply and hands tokens out to recipients.
// It is the only code path that issues tokens.
package allocator

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/contokens/internal/model"
	"github.com/alfredjeanlab/contokens/internal/store"
)

const (
	DefaultLowWatermark = 20
	DefaultBatchSize    = 500

	// seedSize is the number of random bytes hashed into each token.
	seedSize = 256

	// DigestLength is the length of every generated token.
	DigestLength = 2 * sha256.Size
)

// ErrPrefixTooLong is returned when a token prefix leaves no room for the
// digest.
var ErrPrefixTooLong = errors.New("token prefix too long")

// Options tunes an Allocator.
type Options struct {
	Prefix string

	// LowWatermark is the number of unissued tokens kept in reserve beyond
	// what a Take needs. Zero keeps no reserve; negative selects
	// DefaultLowWatermark.
	LowWatermark int

	// BatchSize is the number of tokens generated per top-up. Zero or
	// negative selects DefaultBatchSize.
	BatchSize int

	// Rand is the entropy source. Defaults to crypto/rand.Reader.
	Rand io.Reader
}

// Allocator generates tokens and reserves them for recipients.
type Allocator struct {
	store  store.Store
	opts   Options
	logger *slog.Logger
}

// New returns an Allocator over s.
func New(s store.Store, opts Options, logger *slog.Logger) *Allocator {
	if opts.LowWatermark < 0 {
		opts.LowWatermark = DefaultLowWatermark
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{store: s, opts: opts, logger: logger}
}

// Generate creates count fresh unissued tokens of tokenType in one
// all-or-nothing batch. A collision with an existing token fails the whole
// batch with model.ErrDuplicateToken.
func (a *Allocator) Generate(ctx context.Context, tokenType string, count int) (int, error) {
	if count < 0 {
		return 0, fmt.Errorf("generate tokens: count must not be negative, got %d", count)
	}
	n, err := a.store.InsertBatch(ctx, a.fresh(tokenType, count))
	if err != nil {
		return 0, fmt.Errorf("generate %s tokens: %w", tokenType, err)
	}
	a.logger.Info("generated tokens", "type", tokenType, "count", n)
	return n, nil
}

// fresh yields count new tokens lazily, so a large batch is never held in
// memory at once.
func (a *Allocator) fresh(tokenType string, count int) iter.Seq2[model.Token, error] {
	return func(yield func(model.Token, error) bool) {
		for range count {
			value, err := a.newValue(tokenType)
			if !yield(model.Token{Value: value, Type: tokenType}, err) || err != nil {
				return
			}
		}
	}
}

func (a *Allocator) newValue(tokenType string) (string, error) {
	seed := make([]byte, seedSize)
	if _, err := io.ReadFull(a.opts.Rand, seed); err != nil {
		return "", fmt.Errorf("read random seed: %w", err)
	}
	sum := sha256.Sum256(seed)
	return FormatToken(a.opts.Prefix, tokenType, hex.EncodeToString(sum[:]))
}

// FormatToken builds a token value from a hex digest. With a prefix the value
// becomes prefix + first letter of tokenType (upper-cased) + "-" + the digest
// with as many leading characters dropped, so the length stays that of the
// digest. A prefix that would consume the whole digest is an error.
func FormatToken(prefix, tokenType, digest string) (string, error) {
	if prefix == "" || tokenType == "" {
		return digest, nil
	}
	head := prefix + strings.ToUpper(tokenType[:1]) + "-"
	if len(head) >= len(digest) {
		return "", fmt.Errorf("%w: %q leaves no room in a %d character token", ErrPrefixTooLong, prefix, len(digest))
	}
	return head + digest[len(head):], nil
}

// EnsureSupply generates batches until at least needed plus the low
// watermark tokens of tokenType are unissued. The check and the generation
// are not atomic: two processes may both top up, which only over-provisions.
func (a *Allocator) EnsureSupply(ctx context.Context, tokenType string, needed int) error {
	for {
		available, err := a.store.CountAvailable(ctx, tokenType)
		if err != nil {
			return err
		}
		if available >= needed+a.opts.LowWatermark {
			return nil
		}
		a.logger.Debug("replenishing token supply",
			"type", tokenType, "available", available, "needed", needed)
		if _, err := a.Generate(ctx, tokenType, a.opts.BatchSize); err != nil {
			return err
		}
	}
}

// Take tops up the supply and then issues count tokens of tokenType to
// recipient.
func (a *Allocator) Take(ctx context.Context, tokenType, recipient string, count int) ([]string, error) {
	if err := a.EnsureSupply(ctx, tokenType, count); err != nil {
		return nil, err
	}
	tokens, err := a.store.Reserve(ctx, tokenType, recipient, count)
	if err != nil {
		return nil, fmt.Errorf("reserve %s tokens: %w", tokenType, err)
	}
	a.logger.Info("issued tokens", "type", tokenType, "recipient", recipient, "count", len(tokens))
	return tokens, nil
}
