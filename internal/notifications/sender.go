package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/angelmondragon/clubpay-backend/pkg/config"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
)

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers rendered emails.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender picks the Resend sender when an API key is configured and the
// logging sender otherwise.
func NewSender(cfg config.ResendConfig, logg *logger.Logger) Sender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return NoopSender{logg: logg}
	}
	return NewResendSender(cfg.APIKey, cfg.From)
}

// ResendSender sends through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient required")
	}
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	return nil
}

// NoopSender logs instead of sending.
type NoopSender struct {
	logg *logger.Logger
}

func NewNoopSender(logg *logger.Logger) NoopSender {
	return NoopSender{logg: logg}
}

func (s NoopSender) Send(ctx context.Context, msg Message) error {
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"to": msg.To, "subject": msg.Subject})
		s.logg.Info(ctx, "email delivery disabled; message dropped")
	}
	return nil
}
