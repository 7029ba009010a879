// Package notify emails podcast subscribers when an episode is published.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/config"
)

const sendTimeout = 30 * time.Second

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, m Message) (string, error)
}

// NewSender returns the sender for the configured provider, or nil when email
// is turned off.
func NewSender(cfg config.Email) (Sender, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "mailgun":
		if cfg.MailgunAPIKey == "" || cfg.MailgunDomain == "" || cfg.From == "" {
			return nil, errors.New("invalid Mailgun configuration")
		}
		return &MailgunSender{mg: mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey), from: cfg.From}, nil
	case "sendgrid":
		if cfg.SendGridAPIKey == "" || cfg.From == "" {
			return nil, errors.New("invalid SendGrid configuration")
		}
		return &SendGridSender{client: sendgrid.NewSendClient(cfg.SendGridAPIKey), from: cfg.From}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// MailgunSender sends through the Mailgun API.
type MailgunSender struct {
	mg   mailgun.Mailgun
	from string
}

func (s *MailgunSender) Send(ctx context.Context, m Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	message := s.mg.NewMessage(s.from, m.Subject, m.Text, m.To)
	if m.HTML != "" {
		message.SetHtml(m.HTML)
	}

	_, id, err := s.mg.Send(ctx, message)
	if err != nil {
		return "", fmt.Errorf("mailgun send failed: %w", err)
	}
	log.WithField("message_id", id).Debug("email queued with mailgun")
	return id, nil
}

type sendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends through the SendGrid v3 API.
type SendGridSender struct {
	client sendGridClient
	from   string
}

func (s *SendGridSender) Send(ctx context.Context, m Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	message := mail.NewSingleEmail(mail.NewEmail("", s.from), m.Subject, mail.NewEmail("", m.To), m.Text, m.HTML)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode != 202 {
		return "", fmt.Errorf("sendgrid send failed, status code: %d", resp.StatusCode)
	}

	var id string
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		id = ids[0]
	}
	log.WithField("message_id", id).Debug("email accepted by sendgrid")
	return id, nil
}
