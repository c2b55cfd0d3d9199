package notify

import (
	"context"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

// DefaultSMTPHost is used when no host is configured.
const DefaultSMTPHost = "localhost:25"

// SMTPTransport relays messages through an SMTP server without
// authentication, as a local MTA expects.
type SMTPTransport struct {
	Host string

	// now stamps the Date header.
	now func() time.Time
}

// NewSMTPTransport returns a transport for host ("host" or "host:port").
func NewSMTPTransport(host string) *SMTPTransport {
	if host == "" {
		host = DefaultSMTPHost
	}
	if !strings.Contains(host, ":") {
		host += ":25"
	}
	return &SMTPTransport{Host: host, now: time.Now}
}

// Send transmits msg. The context is only checked before dialing; net/smtp
// has no cancellation.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := smtp.SendMail(t.Host, nil, msg.From, []string{msg.To}, t.format(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// format renders msg as an RFC 5322 message with CRLF line endings.
func (t *SMTPTransport) format(msg Message) []byte {
	from := mail.Address{Name: msg.FromName, Address: msg.From}
	to := mail.Address{Address: msg.To}

	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + mimeHeader(msg.Subject) + "\r\n")
	b.WriteString("Date: " + t.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// mimeHeader encodes a header value when it is not plain ASCII.
func mimeHeader(s string) string {
	for _, r := range s {
		if r > 0x7e {
			return mime.QEncoding.Encode("utf-8", s)
		}
	}
	return s
}
