// Package notify renders token emails and hands them to a mail transport.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/alfredjeanlab/contokens/internal/model"
)

// Message is a rendered email ready for a Transport.
type Message struct {
	FromName string
	From     string
	To       string
	Subject  string
	Body     string
}

// Transport delivers a rendered message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Options configures a Mailer.
type Options struct {
	SenderName  string
	SenderEmail string

	// Subject is a template rendered with .Noun ("ticket" or "tickets").
	Subject string

	// Messages maps each token type to its body template. Templates see
	// .Tickets (the prepared token section), .Tokens, .Count and .Noun.
	Messages map[string]string
}

// Mailer renders per-type token emails and sends them.
type Mailer struct {
	opts      Options
	subject   *template.Template
	messages  map[string]*template.Template
	transport Transport
	logger    *slog.Logger
}

// templateData is what subject and body templates are rendered with.
type templateData struct {
	Tickets string
	Tokens  []string
	Count   int
	Noun    string
}

// New parses every template in opts up front, so a broken template fails at
// startup rather than mid-send.
func New(opts Options, transport Transport, logger *slog.Logger) (*Mailer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	subject, err := template.New("subject").Option("missingkey=error").Parse(opts.Subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}

	messages := make(map[string]*template.Template, len(opts.Messages))
	for typ, body := range opts.Messages {
		tmpl, err := template.New(typ).Option("missingkey=error").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse %s message template: %w", typ, err)
		}
		messages[typ] = tmpl
	}

	return &Mailer{
		opts:      opts,
		subject:   subject,
		messages:  messages,
		transport: transport,
		logger:    logger,
	}, nil
}

// HasTemplate reports whether a message template exists for tokenType.
func (m *Mailer) HasTemplate(tokenType string) bool {
	_, ok := m.messages[tokenType]
	return ok
}

// Render builds the message that Send would transmit.
func (m *Mailer) Render(tokenType, recipient string, tokens []string) (Message, error) {
	if len(tokens) == 0 {
		return Message{}, model.ErrNoTokens
	}
	body, ok := m.messages[tokenType]
	if !ok {
		return Message{}, fmt.Errorf("%w for %s", model.ErrNoTemplate, tokenType)
	}

	data := templateData{
		Tickets: TokenSection(tokens),
		Tokens:  tokens,
		Count:   len(tokens),
		Noun:    noun(len(tokens)),
	}

	var subject, text bytes.Buffer
	if err := m.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := body.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render %s message: %w", tokenType, err)
	}

	return Message{
		FromName: m.opts.SenderName,
		From:     m.opts.SenderEmail,
		To:       recipient,
		Subject:  subject.String(),
		Body:     text.String(),
	}, nil
}

// Send emails tokens of tokenType to recipient. An empty token list is
// refused before the transport is touched. Transport errors are logged and
// returned as is.
func (m *Mailer) Send(ctx context.Context, tokenType, recipient string, tokens []string) error {
	msg, err := m.Render(tokenType, recipient, tokens)
	if err != nil {
		return err
	}

	m.logger.Info("sending tokens", "type", tokenType, "recipient", recipient, "count", len(tokens))
	if err := m.transport.Send(ctx, msg); err != nil {
		m.logger.Error("send failed", "recipient", recipient, "err", err)
		return err
	}
	m.logger.Info("sent message", "recipient", recipient)
	return nil
}

// TokenSection is the block of text listing the tokens, e.g.
//
//	You purchased 2 tickets.
//
//	Your ticket codes are:
//
//	abc...
//
//	def...
func TokenSection(tokens []string) string {
	codes := "codes are"
	if len(tokens) == 1 {
		codes = "code is"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You purchased %d %s.\n\n", len(tokens), noun(len(tokens)))
	fmt.Fprintf(&b, "Your ticket %s:\n\n", codes)
	b.WriteString(strings.Join(tokens, "\n\n"))
	b.WriteString("\n")
	return b.String()
}

func noun(n int) string {
	if n == 1 {
		return "ticket"
	}
	return "tickets"
}
