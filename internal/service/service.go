// Package service implements the token commands on top of the store,
// allocator, transfer and notify packages, publishing an event after each
// successful mutation.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/contokens/internal/allocator"
	"github.com/alfredjeanlab/contokens/internal/events"
	"github.com/alfredjeanlab/contokens/internal/model"
	"github.com/alfredjeanlab/contokens/internal/notify"
	"github.com/alfredjeanlab/contokens/internal/store"
	"github.com/alfredjeanlab/contokens/internal/transfer"
)

// Deps are the collaborators a Service is assembled from.
type Deps struct {
	Store     store.Store
	Types     model.TypeSet
	Allocator *allocator.Allocator
	Exporter  *transfer.Exporter
	Importer  *transfer.Importer
	Mailer    *notify.Mailer
	Publisher events.Publisher
	Logger    *slog.Logger

	// Now names default export files. Defaults to time.Now.
	Now func() time.Time
}

// Service runs token commands.
type Service struct {
	store     store.Store
	types     model.TypeSet
	alloc     *allocator.Allocator
	exporter  *transfer.Exporter
	importer  *transfer.Importer
	mailer    *notify.Mailer
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time

	closers []io.Closer
}

// New assembles a Service from d. A nil Publisher disables events.
func New(d Deps) *Service {
	if d.Publisher == nil {
		d.Publisher = &events.NoopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		store:     d.Store,
		types:     d.Types,
		alloc:     d.Allocator,
		exporter:  d.Exporter,
		importer:  d.Importer,
		mailer:    d.Mailer,
		publisher: d.Publisher,
		logger:    d.Logger,
		now:       d.Now,
	}
}

// Types returns the configured token types.
func (s *Service) Types() []string {
	return s.types.Types()
}

// Init creates the database schema.
func (s *Service) Init(ctx context.Context) error {
	if err := s.store.Init(ctx); err != nil {
		return err
	}
	s.logger.Info("initialized database")
	return nil
}

// Generate adds count unissued tokens of tokenType.
func (s *Service) Generate(ctx context.Context, tokenType string, count int) (int, error) {
	n, err := s.alloc.Generate(ctx, tokenType, count)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.TopicGenerated, events.Generated{Type: tokenType, Count: n})
	return n, nil
}

// Issue binds count tokens of tokenType to recipient and returns them.
func (s *Service) Issue(ctx context.Context, tokenType, recipient string, count int) ([]string, error) {
	tokens, err := s.alloc.Take(ctx, tokenType, recipient, count)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TopicIssued, events.Issued{Type: tokenType, Recipient: recipient, Count: len(tokens)})
	return tokens, nil
}

// Find returns the tokens of tokenType already issued to recipient.
func (s *Service) Find(ctx context.Context, tokenType, recipient string) ([]string, error) {
	return s.store.Find(ctx, tokenType, recipient)
}

// Send issues count tokens of tokenType to recipient and emails them. If the
// email fails the tokens stay issued; the returned error says so, and Resend
// delivers them later.
func (s *Service) Send(ctx context.Context, tokenType, recipient string, count int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("send %s tokens: %w, got %d", tokenType, model.ErrInvalidCount, count)
	}
	if err := s.checkSendable(tokenType); err != nil {
		return nil, err
	}

	tokens, err := s.Issue(ctx, tokenType, recipient, count)
	if err != nil {
		return nil, err
	}
	if err := s.mailer.Send(ctx, tokenType, recipient, tokens); err != nil {
		return tokens, &UndeliveredError{Type: tokenType, Recipient: recipient, Count: len(tokens), Err: err}
	}
	s.publish(ctx, events.TopicSent, events.Sent{Type: tokenType, Recipient: recipient, Count: len(tokens)})
	return tokens, nil
}

// SendManifest reads a (recipient, count) manifest from r and sends each
// recipient their tokens, in order. The whole manifest is parsed before the
// first send; sending stops at the first failure. It returns the number of
// recipients served.
func (s *Service) SendManifest(ctx context.Context, tokenType string, r io.Reader) (int, error) {
	if err := s.checkSendable(tokenType); err != nil {
		return 0, err
	}
	entries, err := transfer.ReadManifest(r)
	if err != nil {
		return 0, err
	}

	for i, e := range entries {
		if _, err := s.Send(ctx, tokenType, e.Recipient, e.Count); err != nil {
			return i, fmt.Errorf("manifest entry %d (%s): %w", i+1, e.Recipient, err)
		}
	}
	return len(entries), nil
}

// Resend emails recipient every token of tokenType already issued to them.
func (s *Service) Resend(ctx context.Context, tokenType, recipient string) ([]string, error) {
	if err := s.checkSendable(tokenType); err != nil {
		return nil, err
	}
	tokens, err := s.store.Find(ctx, tokenType, recipient)
	if err != nil {
		return nil, err
	}
	if err := s.mailer.Send(ctx, tokenType, recipient, tokens); err != nil {
		return tokens, err
	}
	s.publish(ctx, events.TopicSent, events.Sent{Type: tokenType, Recipient: recipient, Count: len(tokens), Resend: true})
	return tokens, nil
}

// Export writes the unexported tokens of tokenType to path, or to a
// timestamped file in the working directory when path is empty.
func (s *Service) Export(ctx context.Context, tokenType, path string) (*transfer.ExportResult, error) {
	if path == "" {
		path = transfer.DefaultExportPath(tokenType, s.now())
	}
	res, err := s.exporter.Export(ctx, tokenType, path)
	if res != nil {
		s.publish(ctx, events.TopicExported, events.Exported{
			Type:       tokenType,
			Count:      res.Count,
			Path:       res.Path,
			HashedPath: res.HashedPath,
		})
	}
	return res, err
}

// Import loads externally sold tokens of tokenType from r.
func (s *Service) Import(ctx context.Context, tokenType string, r io.Reader, markExported bool) (int, error) {
	n, err := s.importer.Import(ctx, tokenType, r, markExported)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.TopicImported, events.Imported{Type: tokenType, Count: n, Exported: markExported})
	return n, nil
}

// Stats returns token counts by type and state.
func (s *Service) Stats(ctx context.Context) ([]model.Stat, error) {
	return s.store.Statistics(ctx)
}

// Close releases the store, the event connection and anything else Open
// acquired.
func (s *Service) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// checkSendable fails before any token is issued when tokenType is unknown
// or has no email template.
func (s *Service) checkSendable(tokenType string) error {
	if err := s.types.Check(tokenType); err != nil {
		return err
	}
	if !s.mailer.HasTemplate(tokenType) {
		return fmt.Errorf("%w for %s", model.ErrNoTemplate, tokenType)
	}
	return nil
}

// publish emits an event. The mutation has already committed, so a failure
// is only logged.
func (s *Service) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("publish event failed", "topic", topic, "err", err)
	}
}
