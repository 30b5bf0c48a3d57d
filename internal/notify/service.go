package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/zapdeskhq/zapbot-platform/internal/business"
	"github.com/zapdeskhq/zapbot-platform/internal/conversation"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

// Service alerts tenant teams when the bot hands a conversation to a
// human. Email only; the team also sees the transfer inside WhatsApp.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

var _ conversation.HandoffNotifier = (*Service)(nil)

// NewService creates a notification service.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

// NotifyHandoff emails the tenant when a customer is waiting for an
// agent. Tenants without a notification address are skipped.
func (s *Service) NotifyHandoff(ctx context.Context, profile *business.Profile, conv *conversation.Conversation, reason string) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping handoff notification")
		return nil
	}
	if profile == nil || profile.NotificationEmail == "" {
		s.logger.Debug("notify: tenant has no notification email", "conversation_id", conv.ID)
		return nil
	}

	customer := conv.CustomerName
	if customer == "" {
		customer = conv.CustomerPhone
	}

	subject := fmt.Sprintf("🔔 Cliente aguardando atendimento - %s", customer)
	body := fmt.Sprintf(`Um cliente pediu para falar com um atendente.

Cliente: %s
Telefone: %s
Motivo: %s
Desde: %s

Acesse o painel para assumir a conversa.

— %s`, customer, conv.CustomerPhone, reason,
		conv.LastMessageAt.Format("02/01/2006 15:04"), profile.CompanyName)

	html := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #f59e0b;">🔔 Cliente aguardando atendimento</h2>
<table style="border-collapse: collapse; margin: 20px 0;">
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Cliente:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Telefone:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><a href="tel:%s">%s</a></td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Motivo:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Desde:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
</table>
<p style="background: #fffbeb; padding: 12px; border-radius: 8px; border-left: 4px solid #f59e0b;">
  ⏳ O bot parou de responder este cliente. Assuma a conversa no painel.
</p>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">— %s</p>
</div>`,
		customer, conv.CustomerPhone, conv.CustomerPhone, reason,
		conv.LastMessageAt.Format("02/01/2006 15:04"), profile.CompanyName)

	msg := EmailMessage{
		To:      profile.NotificationEmail,
		ToName:  profile.CompanyName,
		Subject: subject,
		Body:    body,
		HTML:    html,
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.email.Send(sendCtx, msg); err != nil {
		s.logger.Error("notify: failed to send handoff email", "error", err,
			"to", profile.NotificationEmail, "conversation_id", conv.ID)
		return fmt.Errorf("notify: handoff email: %w", err)
	}

	s.logger.Info("notify: handoff email sent", "to", profile.NotificationEmail,
		"conversation_id", conv.ID)
	return nil
}
