package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridTransport delivers messages through the SendGrid v3 API.
type SendGridTransport struct {
	apiKey string
	host   string
}

// NewSendGridTransport returns a transport authenticating with apiKey.
func NewSendGridTransport(apiKey string) *SendGridTransport {
	return &SendGridTransport{apiKey: apiKey, host: sendGridHost}
}

func (t *SendGridTransport) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail(msg.FromName, msg.From)
	to := mail.NewEmail("", msg.To)
	m := mail.NewSingleEmailPlainText(from, msg.Subject, to, msg.Body)

	req := sendgrid.GetRequest(t.apiKey, sendGridEndpoint, t.host)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid send to %s: %w", msg.To, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send to %s: status %d: %s", msg.To, resp.StatusCode, resp.Body)
	}
	return nil
}
