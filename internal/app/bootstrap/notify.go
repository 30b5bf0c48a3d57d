package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/zapdeskhq/zapbot-platform/internal/config"
	"github.com/zapdeskhq/zapbot-platform/internal/notify"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

// BuildEmailSender picks the configured email provider. Returns nil
// when handoff notifications are disabled.
func BuildEmailSender(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender == nil {
			logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty; notifications disabled")
			return nil
		}
		return sender
	case "ses":
		sender := notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
		if sender == nil {
			logger.Warn("EMAIL_PROVIDER=ses but no SES client available; notifications disabled")
			return nil
		}
		return sender
	case "stub":
		return notify.NewStubEmailSender(logger)
	default:
		return nil
	}
}
