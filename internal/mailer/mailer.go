// Package mailer delivers transactional email.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
)

// Message is a single outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

// Sender delivers a Message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

func (m Message) validate() error {
	if strings.TrimSpace(m.From) == "" {
		return errors.New("mailer: sender address required")
	}
	if len(m.To) == 0 {
		return errors.New("mailer: recipient required")
	}
	if m.Subject == "" {
		return errors.New("mailer: subject required")
	}
	return nil
}

// ResendSender sends email through the Resend API.
type ResendSender struct {
	client *resend.Client
}

// NewResendSender constructs a sender for apiKey.
func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey)}
}

// NewResendSenderWithClient wraps a preconfigured Resend client.
func NewResendSenderWithClient(client *resend.Client) *ResendSender {
	return &ResendSender{client: client}
}

// Send implements Sender.
func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("mailer: resend: %w", err)
	}
	return sent.Id, nil
}

// LogSender writes messages to the log instead of delivering them. Used when
// no provider key is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, msg Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	id := "log-" + uuid.NewString()
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email not delivered, no provider configured",
		slog.String("id", id),
		slog.String("to", strings.Join(msg.To, ",")),
		slog.String("subject", msg.Subject),
		slog.Int("html_bytes", len(msg.HTML)))
	return id, nil
}

var (
	_ Sender = (*ResendSender)(nil)
	_ Sender = LogSender{}
)

// Provider names reported by NewSender.
const (
	ProviderResend = "resend"
	ProviderLog    = "log"
)

// NewSender returns the Resend sender when apiKey is set and a LogSender
// otherwise, along with the provider name used to label metrics.
func NewSender(apiKey string, logger *slog.Logger) (Sender, string) {
	if strings.TrimSpace(apiKey) == "" {
		return LogSender{Logger: logger}, ProviderLog
	}
	return NewResendSender(apiKey), ProviderResend
}
