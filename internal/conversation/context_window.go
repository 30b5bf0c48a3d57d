package conversation

import (
	"time"

	"github.com/zapdeskhq/zapbot-platform/internal/business"
)

// maxWindowMessages caps how many prior turns go into the AI prompt.
const maxWindowMessages = 10

// staleContextAfter is the inactivity gap after which old context is
// dropped even if Redis still holds it.
const staleContextAfter = 24 * time.Hour

// WindowDecision is the prepared AI context for the next reply.
type WindowDecision struct {
	// Messages is the retained prior context, oldest first, capped at
	// maxWindowMessages.
	Messages []ChatMessage
	// Cleared is set when prior context existed but was dropped.
	Cleared bool
	// ReturningCustomer is set when the customer comes back after a
	// clear, so the responder greets them instead of resuming cold.
	ReturningCustomer bool
	// WelcomeBack carries the tenant's welcome text when the context
	// was cleared, to be sent before the next reply.
	WelcomeBack string
}

// PrepareWindow decides how much stored context the next AI call sees.
// Context is dropped after a day of silence, and whenever the business
// closed and reopened since the last exchange: yesterday's half-placed
// order must not leak into today's conversation.
func PrepareWindow(history []ChatMessage, lastMessageAt time.Time, hours business.Hours, welcomeMessage string, now time.Time) WindowDecision {
	if len(history) == 0 {
		return WindowDecision{}
	}

	if !lastMessageAt.IsZero() {
		if now.Sub(lastMessageAt) > staleContextAfter {
			return WindowDecision{Cleared: true, ReturningCustomer: true, WelcomeBack: welcomeMessage}
		}
		if business.ClosedAndReopenedBetween(hours, lastMessageAt, now) {
			return WindowDecision{Cleared: true, ReturningCustomer: true, WelcomeBack: welcomeMessage}
		}
	}

	retained := history
	if len(retained) > maxWindowMessages {
		retained = retained[len(retained)-maxWindowMessages:]
	}
	return WindowDecision{Messages: append([]ChatMessage(nil), retained...)}
}
