package business

import (
	"strings"
	"time"
)

// Profile holds one tenant's business configuration: who they are, how
// the bot should present itself, and which signals hand a conversation
// to a human.
type Profile struct {
	ID                  string
	AccountID           string
	CompanyName         string
	BusinessType        string
	BusinessDescription string
	OpeningHours        string
	Address             string
	Phone               string
	DeliveryAvailable   bool
	DeliveryFeeCents    int
	GroqAPIKey          string
	NotificationEmail   string

	// Bot behavior. Empty message fields mean "let the AI write it".
	WelcomeMessage   string
	DefaultMessage   string
	TransferMessage  string
	TransferKeywords []string
	BotPersonality   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultTransferKeywords are the handoff triggers applied when a
// tenant has not configured their own list.
var DefaultTransferKeywords = []string{
	"atendente",
	"atendimento humano",
	"falar com alguém",
	"humano",
	"pessoa",
}

// DefaultFallbackReply is sent when no AI provider is reachable and the
// tenant has not configured a default message.
const DefaultFallbackReply = "Obrigado por sua mensagem. Nossa equipe entrará em contato em breve."

// DefaultTransferNotice is the canned transfer message when the tenant
// has not configured one.
const DefaultTransferNotice = "🤖 Transferindo para um atendente humano... Aguarde um momento."

// EffectiveTransferKeywords returns the tenant's keywords or the
// defaults when none are configured.
func (p *Profile) EffectiveTransferKeywords() []string {
	if p != nil && len(p.TransferKeywords) > 0 {
		return p.TransferKeywords
	}
	return DefaultTransferKeywords
}

// EffectiveTransferMessage returns the tenant's transfer notice or the
// canned default.
func (p *Profile) EffectiveTransferMessage() string {
	if p != nil && strings.TrimSpace(p.TransferMessage) != "" {
		return p.TransferMessage
	}
	return DefaultTransferNotice
}

// EffectiveFallbackReply returns the tenant's default message or the
// canned fallback.
func (p *Profile) EffectiveFallbackReply() string {
	if p != nil && strings.TrimSpace(p.DefaultMessage) != "" {
		return p.DefaultMessage
	}
	return DefaultFallbackReply
}
