package conversation

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition indicates a status change the lifecycle does not
// allow.
var ErrInvalidTransition = errors.New("conversation: invalid status transition")

// CanTransition reports whether the lifecycle allows moving a
// conversation from one status to another.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusBot:
		return to == StatusWaitingAgent || to == StatusResolved
	case StatusWaitingAgent:
		return to == StatusInService || to == StatusResolved
	case StatusInService:
		return to == StatusResolved
	case StatusResolved:
		return to == StatusBot
	}
	return false
}

// AllowsAutoReply reports whether the bot may answer automatically in
// the given status. Once a human is involved the bot stays silent.
func AllowsAutoReply(s Status) bool {
	return s == StatusBot
}

// Transfer moves the conversation to waiting_agent and records why.
func (c *Conversation) Transfer(reason string, now time.Time) error {
	if !CanTransition(c.Status, StatusWaitingAgent) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusWaitingAgent)
	}
	c.Status = StatusWaitingAgent
	c.TransferReason = reason
	c.HandoffCount++
	c.UpdatedAt = now
	return nil
}

// Claim assigns a waiting conversation to a human agent.
func (c *Conversation) Claim(agentID string, now time.Time) error {
	if !CanTransition(c.Status, StatusInService) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusInService)
	}
	c.Status = StatusInService
	c.AgentID = agentID
	c.UpdatedAt = now
	return nil
}

// Resolve closes the conversation.
func (c *Conversation) Resolve(now time.Time) error {
	if !CanTransition(c.Status, StatusResolved) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusResolved)
	}
	c.Status = StatusResolved
	resolvedAt := now
	c.ResolvedAt = &resolvedAt
	c.UpdatedAt = now
	return nil
}

// Reopen puts a resolved conversation back under bot control. A new
// inbound message from the customer triggers this.
func (c *Conversation) Reopen(now time.Time) error {
	if !CanTransition(c.Status, StatusBot) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusBot)
	}
	c.Status = StatusBot
	c.TransferReason = ""
	c.AgentID = ""
	c.ResolvedAt = nil
	c.UpdatedAt = now
	return nil
}
