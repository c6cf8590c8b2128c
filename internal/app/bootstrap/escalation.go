package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/medibot/internal/config"
	"github.com/wolfman30/medibot/internal/escalation"
	"github.com/wolfman30/medibot/internal/notify"
	"github.com/wolfman30/medibot/pkg/logging"
)

// BuildEmailSender picks the escalation email provider. It falls back to
// the logging stub when the preferred provider is not configured.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			logger.Info("escalation email provider", "provider", "sendgrid")
			return sender
		}
		logger.Warn("sendgrid selected without SENDGRID_API_KEY; using stub email sender")
	case "ses":
		if awsCfg != nil && strings.TrimSpace(cfg.SESFromEmail) != "" {
			logger.Info("escalation email provider", "provider", "ses")
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.SESFromName,
			}, logger)
		}
		logger.Warn("ses selected without SES_FROM_EMAIL or AWS config; using stub email sender")
	}
	return notify.NewStubEmailSender(logger)
}

// BuildEscalationNotifier fans new escalations out to the on-call inbox and,
// when ESCALATION_QUEUE_URL is set, to SQS.
func BuildEscalationNotifier(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *escalation.Notifier {
	if cfg == nil {
		return nil
	}
	var publisher escalation.Publisher
	if url := strings.TrimSpace(cfg.EscalationQueueURL); url != "" && awsCfg != nil {
		publisher = escalation.NewSQSPublisher(sqs.NewFromConfig(*awsCfg), url)
	}
	return escalation.NewNotifier(BuildEmailSender(cfg, awsCfg, logger), cfg.EscalationNotifyEmail, publisher, logger)
}
