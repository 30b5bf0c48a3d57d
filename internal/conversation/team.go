package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

// TeamService performs agent-side conversation operations. It only
// needs the store, so the API binary can serve the team panel without
// running the bot pipeline.
type TeamService struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

// NewTeamService builds a team service over the conversation store.
func NewTeamService(store Store, logger *logging.Logger) *TeamService {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TeamService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Claim assigns a waiting conversation to an agent.
func (s *TeamService) Claim(ctx context.Context, conversationID uuid.UUID, agentID string) (*Conversation, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := conv.Claim(agentID, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, conv); err != nil {
		return nil, err
	}
	s.logger.Info("conversation claimed", "conversation_id", conv.ID, "agent_id", agentID)
	return conv, nil
}

// Resolve closes a conversation an agent finished with.
func (s *TeamService) Resolve(ctx context.Context, conversationID uuid.UUID) (*Conversation, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := conv.Resolve(s.now()); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, conv); err != nil {
		return nil, err
	}
	s.logger.Info("conversation resolved", "conversation_id", conv.ID)
	return conv, nil
}

// ListWaiting returns an account's conversations waiting for an agent,
// longest waiting first.
func (s *TeamService) ListWaiting(ctx context.Context, accountID string) ([]Conversation, error) {
	return s.store.ListByStatus(ctx, accountID, StatusWaitingAgent)
}
