package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapdeskhq/zapbot-platform/internal/business"
	"github.com/zapdeskhq/zapbot-platform/internal/conversation"
)

type fakeEmailSender struct {
	sent []EmailMessage
	err  error
}

func (f *fakeEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func handoffConversation() *conversation.Conversation {
	return &conversation.Conversation{
		ID:            uuid.New(),
		AccountID:     "acct-1",
		InstanceName:  "pizzaria-ze",
		CustomerJID:   "5511999990000@s.whatsapp.net",
		CustomerPhone: "5511999990000",
		CustomerName:  "Maria",
		Status:        conversation.StatusWaitingAgent,
		LastMessageAt: time.Date(2026, 8, 31, 19, 30, 0, 0, time.UTC),
	}
}

func TestNotifyHandoff_SendsEmail(t *testing.T) {
	email := &fakeEmailSender{}
	svc := NewService(email, nil)

	profile := &business.Profile{
		AccountID:         "acct-1",
		CompanyName:       "Pizzaria do Zé",
		NotificationEmail: "ze@pizzaria.com.br",
	}

	err := svc.NotifyHandoff(context.Background(), profile, handoffConversation(), "Cliente solicitou atendimento humano")
	require.NoError(t, err)
	require.Len(t, email.sent, 1)

	msg := email.sent[0]
	assert.Equal(t, "ze@pizzaria.com.br", msg.To)
	assert.Contains(t, msg.Subject, "Maria")
	assert.Contains(t, msg.Body, "Cliente solicitou atendimento humano")
	assert.NotEmpty(t, msg.HTML)
}

func TestNotifyHandoff_SkipsWhenNoAddress(t *testing.T) {
	email := &fakeEmailSender{}
	svc := NewService(email, nil)

	profile := &business.Profile{AccountID: "acct-1", CompanyName: "Pizzaria do Zé"}

	err := svc.NotifyHandoff(context.Background(), profile, handoffConversation(), "motivo")
	require.NoError(t, err)
	assert.Empty(t, email.sent)
}

func TestNotifyHandoff_SkipsWhenNoSender(t *testing.T) {
	svc := NewService(nil, nil)

	profile := &business.Profile{NotificationEmail: "ze@pizzaria.com.br"}
	err := svc.NotifyHandoff(context.Background(), profile, handoffConversation(), "motivo")
	assert.NoError(t, err)
}

func TestNotifyHandoff_PropagatesSendError(t *testing.T) {
	email := &fakeEmailSender{err: errors.New("smtp down")}
	svc := NewService(email, nil)

	profile := &business.Profile{
		CompanyName:       "Pizzaria do Zé",
		NotificationEmail: "ze@pizzaria.com.br",
	}

	err := svc.NotifyHandoff(context.Background(), profile, handoffConversation(), "motivo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handoff email")
}

func TestNotifyHandoff_FallsBackToPhoneWhenUnnamed(t *testing.T) {
	email := &fakeEmailSender{}
	svc := NewService(email, nil)

	conv := handoffConversation()
	conv.CustomerName = ""

	profile := &business.Profile{
		CompanyName:       "Pizzaria do Zé",
		NotificationEmail: "ze@pizzaria.com.br",
	}

	require.NoError(t, svc.NotifyHandoff(context.Background(), profile, conv, "motivo"))
	require.Len(t, email.sent, 1)
	assert.Contains(t, email.sent[0].Subject, "5511999990000")
}
