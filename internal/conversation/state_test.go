package conversation

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusBot, StatusWaitingAgent},
		{StatusBot, StatusResolved},
		{StatusWaitingAgent, StatusInService},
		{StatusWaitingAgent, StatusResolved},
		{StatusInService, StatusResolved},
		{StatusResolved, StatusBot},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusBot, StatusInService},
		{StatusInService, StatusBot},
		{StatusInService, StatusWaitingAgent},
		{StatusResolved, StatusWaitingAgent},
		{StatusResolved, StatusInService},
		{StatusWaitingAgent, StatusBot},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestAllowsAutoReply(t *testing.T) {
	if !AllowsAutoReply(StatusBot) {
		t.Error("bot status must allow auto replies")
	}
	for _, s := range []Status{StatusWaitingAgent, StatusInService, StatusResolved} {
		if AllowsAutoReply(s) {
			t.Errorf("status %s must silence the bot", s)
		}
	}
}

func TestTransferIncrementsHandoffCount(t *testing.T) {
	now := time.Now()
	conv := &Conversation{Status: StatusBot}

	if err := conv.Transfer("Cliente solicitou atendimento humano", now); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if conv.Status != StatusWaitingAgent {
		t.Errorf("status = %s", conv.Status)
	}
	if conv.HandoffCount != 1 {
		t.Errorf("handoff count = %d", conv.HandoffCount)
	}
	if conv.TransferReason == "" {
		t.Error("transfer reason not recorded")
	}

	// A second transfer from waiting_agent is not a legal move.
	if err := conv.Transfer("de novo", now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if conv.HandoffCount != 1 {
		t.Errorf("failed transfer must not bump handoff count, got %d", conv.HandoffCount)
	}
}

func TestClaimResolveReopenCycle(t *testing.T) {
	now := time.Now()
	conv := &Conversation{Status: StatusBot}

	if err := conv.Transfer("pedido complexo", now); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := conv.Claim("agent-7", now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if conv.Status != StatusInService || conv.AgentID != "agent-7" {
		t.Errorf("claim state: %+v", conv)
	}

	if err := conv.Resolve(now); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if conv.ResolvedAt == nil {
		t.Error("resolvedAt not set")
	}

	if err := conv.Reopen(now.Add(time.Hour)); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if conv.Status != StatusBot || conv.AgentID != "" || conv.TransferReason != "" || conv.ResolvedAt != nil {
		t.Errorf("reopen must reset handoff fields: %+v", conv)
	}
	if conv.HandoffCount != 1 {
		t.Errorf("handoff count must survive reopen, got %d", conv.HandoffCount)
	}
}

func TestClaimRequiresWaitingAgent(t *testing.T) {
	conv := &Conversation{Status: StatusBot}
	if err := conv.Claim("agent-1", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
