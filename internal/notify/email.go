package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sendgrid/rest"
	"github.com/wolfman30/medibot/pkg/logging"
)

const defaultFromName = "AI Medibot"

// EmailSender delivers a single email. SendGrid, SES and the stub satisfy it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

type sendGridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends emails through the SendGrid v3 API.
type SendGridSender struct {
	client    sendGridAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.fromEmail),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		html,
	)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode)
	return nil
}

// StubEmailSender logs instead of sending. Used in development and when no
// provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
