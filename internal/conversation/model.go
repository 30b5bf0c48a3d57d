package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of a customer conversation.
type Status string

const (
	// StatusBot means the bot answers automatically.
	StatusBot Status = "bot"
	// StatusWaitingAgent means a handoff was requested and no agent has
	// picked the conversation up yet.
	StatusWaitingAgent Status = "waiting_agent"
	// StatusInService means a human agent claimed the conversation.
	StatusInService Status = "in_service"
	// StatusResolved means the conversation was closed.
	StatusResolved Status = "resolved"
)

// ValidStatus reports whether s is one of the known lifecycle stages.
func ValidStatus(s Status) bool {
	switch s {
	case StatusBot, StatusWaitingAgent, StatusInService, StatusResolved:
		return true
	}
	return false
}

// Conversation is one customer thread on one WhatsApp instance.
type Conversation struct {
	ID             uuid.UUID  `json:"id"`
	AccountID      string     `json:"account_id"`
	InstanceName   string     `json:"instance_name"`
	CustomerJID    string     `json:"customer_jid"`
	CustomerPhone  string     `json:"customer_phone"`
	CustomerName   string     `json:"customer_name,omitempty"`
	Status         Status     `json:"status"`
	TransferReason string     `json:"transfer_reason,omitempty"`
	HandoffCount   int        `json:"handoff_count"`
	AgentID        string     `json:"agent_id,omitempty"`
	WelcomeSent    bool       `json:"welcome_sent"`
	StartedAt      time.Time  `json:"started_at"`
	LastMessageAt  time.Time  `json:"last_message_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Message is one stored message inside a conversation.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// InboundMessage is a normalized customer message arriving from the
// WhatsApp transport.
type InboundMessage struct {
	InstanceName string    `json:"instance_name"`
	CustomerJID  string    `json:"customer_jid"`
	CustomerName string    `json:"customer_name,omitempty"`
	MessageID    string    `json:"message_id,omitempty"`
	Text         string    `json:"text"`
	FromMe       bool      `json:"from_me,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}
