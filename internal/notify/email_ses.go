package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/wolfman30/medibot/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends emails via AWS SES v2.
type SESSender struct {
	client    sesAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

type SESConfig struct {
	FromEmail string
	FromName  string
}

// NewSESSender returns nil when client is nil.
func NewSESSender(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SESSender{client: client, fromEmail: cfg.FromEmail, fromName: cfg.FromName, logger: logger}
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: SES client not configured")
	}

	body := &types.Body{}
	if msg.Body != "" {
		body.Text = utf8Content(msg.Body)
	}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}

	output, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
	})
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: SES send failed: %w", err)
	}

	s.logger.Info("email sent via SES", "to", msg.To, "subject", msg.Subject, "message_id", aws.ToString(output.MessageId))
	return nil
}

var _ EmailSender = (*SESSender)(nil)
