package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zapdeskhq/zapbot-platform/internal/conversation"
	httpmiddleware "github.com/zapdeskhq/zapbot-platform/internal/http/middleware"
	"github.com/zapdeskhq/zapbot-platform/internal/tenancy"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

const defaultMessagePageSize = 50

// TeamService is the slice of the pipeline engine the team panel uses.
type TeamService interface {
	Claim(ctx context.Context, conversationID uuid.UUID, agentID string) (*conversation.Conversation, error)
	Resolve(ctx context.Context, conversationID uuid.UUID) (*conversation.Conversation, error)
	ListWaiting(ctx context.Context, accountID string) ([]conversation.Conversation, error)
}

// TeamHandler serves the human agent panel: the waiting queue, claim
// and resolve actions, and conversation transcripts.
type TeamHandler struct {
	service TeamService
	store   conversation.Store
	logger  *logging.Logger
}

// NewTeamHandler builds the team panel handler.
func NewTeamHandler(service TeamService, store conversation.Store, logger *logging.Logger) *TeamHandler {
	if service == nil {
		panic("handlers: team service cannot be nil")
	}
	if store == nil {
		panic("handlers: conversation store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TeamHandler{service: service, store: store, logger: logger}
}

// ListWaiting returns the account's conversations waiting for an agent,
// longest waiting first.
func (h *TeamHandler) ListWaiting(w http.ResponseWriter, r *http.Request) {
	accountID, ok := tenancy.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing account", http.StatusUnauthorized)
		return
	}

	waiting, err := h.service.ListWaiting(r.Context(), accountID)
	if err != nil {
		h.logger.Error("failed to list waiting conversations", "error", err, "account_id", accountID)
		http.Error(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}
	if waiting == nil {
		waiting = []conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": waiting})
}

// Claim assigns the conversation to the agent in the token.
func (h *TeamHandler) Claim(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	claims, _ := httpmiddleware.TeamClaimsFromContext(r.Context())
	agentID := claims.AgentID
	if agentID == "" {
		http.Error(w, "token missing agent", http.StatusBadRequest)
		return
	}

	updated, err := h.service.Claim(r.Context(), conv.ID, agentID)
	if err != nil {
		h.writeTransitionError(w, err, conv.ID)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Resolve closes the conversation after an agent finished with it.
func (h *TeamHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	updated, err := h.service.Resolve(r.Context(), conv.ID)
	if err != nil {
		h.writeTransitionError(w, err, conv.ID)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ListMessages returns the conversation transcript, oldest first.
func (h *TeamHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	limit := defaultMessagePageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	messages, err := h.store.ListMessages(r.Context(), conv.ID, limit)
	if err != nil {
		h.logger.Error("failed to list messages", "error", err, "conversation_id", conv.ID)
		http.Error(w, "failed to list messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// ownedConversation loads the conversation in the URL and verifies it
// belongs to the authenticated account.
func (h *TeamHandler) ownedConversation(w http.ResponseWriter, r *http.Request) (*conversation.Conversation, bool) {
	accountID, ok := tenancy.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing account", http.StatusUnauthorized)
		return nil, false
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return nil, false
	}

	conv, err := h.store.Get(r.Context(), conversationID)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load conversation", "error", err, "conversation_id", conversationID)
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return nil, false
	}
	if conv.AccountID != accountID {
		// Tenants never learn about other tenants' conversations.
		http.Error(w, "conversation not found", http.StatusNotFound)
		return nil, false
	}
	return conv, true
}

func (h *TeamHandler) writeTransitionError(w http.ResponseWriter, err error, conversationID uuid.UUID) {
	switch {
	case errors.Is(err, conversation.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, conversation.ErrConversationNotFound):
		http.Error(w, "conversation not found", http.StatusNotFound)
	default:
		h.logger.Error("conversation update failed", "error", err, "conversation_id", conversationID)
		http.Error(w, "conversation update failed", http.StatusInternalServerError)
	}
}
