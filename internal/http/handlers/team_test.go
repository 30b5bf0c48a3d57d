package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/zapdeskhq/zapbot-platform/internal/conversation"
	httpmiddleware "github.com/zapdeskhq/zapbot-platform/internal/http/middleware"
)

type fakeTeamService struct {
	store *conversation.MemoryStore
}

func (s *fakeTeamService) Claim(ctx context.Context, id uuid.UUID, agentID string) (*conversation.Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := conv.Claim(agentID, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *fakeTeamService) Resolve(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := conv.Resolve(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *fakeTeamService) ListWaiting(ctx context.Context, accountID string) ([]conversation.Conversation, error) {
	return s.store.ListByStatus(ctx, accountID, conversation.StatusWaitingAgent)
}

type teamFixture struct {
	router chi.Router
	store  *conversation.MemoryStore
	secret string
}

func newTeamFixture(t *testing.T) *teamFixture {
	t.Helper()
	store := conversation.NewMemoryStore()
	handler := NewTeamHandler(&fakeTeamService{store: store}, store, nil)

	secret := "team-secret"
	router := chi.NewRouter()
	router.Route("/team", func(r chi.Router) {
		r.Use(httpmiddleware.TeamJWT(secret))
		r.Get("/conversations", handler.ListWaiting)
		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Post("/claim", handler.Claim)
			r.Post("/resolve", handler.Resolve)
			r.Get("/messages", handler.ListMessages)
		})
	})

	return &teamFixture{router: router, store: store, secret: secret}
}

func (f *teamFixture) token(t *testing.T, accountID, agentID string) string {
	t.Helper()
	claims := httpmiddleware.TeamClaims{
		AccountID: accountID,
		AgentID:   agentID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(f.secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (f *teamFixture) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func seedWaiting(t *testing.T, store *conversation.MemoryStore, accountID string) *conversation.Conversation {
	t.Helper()
	now := time.Now().UTC()
	conv := &conversation.Conversation{
		ID:            uuid.New(),
		AccountID:     accountID,
		InstanceName:  "pizzaria-ze",
		CustomerJID:   uuid.NewString() + "@s.whatsapp.net",
		CustomerPhone: "5511999990000",
		CustomerName:  "Maria",
		Status:        conversation.StatusWaitingAgent,
		LastMessageAt: now,
		StartedAt:     now,
	}
	if err := store.Create(context.Background(), conv); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return conv
}

func TestTeam_ListWaiting(t *testing.T) {
	f := newTeamFixture(t)
	seedWaiting(t, f.store, "acct-1")
	seedWaiting(t, f.store, "acct-1")
	seedWaiting(t, f.store, "acct-other")

	rec := f.do(t, http.MethodGet, "/team/conversations", f.token(t, "acct-1", "agent-7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Conversations []conversation.Conversation `json:"conversations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Conversations) != 2 {
		t.Errorf("expected 2 waiting conversations for acct-1, got %d", len(resp.Conversations))
	}
}

func TestTeam_ClaimAndResolve(t *testing.T) {
	f := newTeamFixture(t)
	conv := seedWaiting(t, f.store, "acct-1")
	token := f.token(t, "acct-1", "agent-7")

	rec := f.do(t, http.MethodPost, "/team/conversations/"+conv.ID.String()+"/claim", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d: %s", rec.Code, rec.Body.String())
	}
	var claimed conversation.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &claimed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claimed.Status != conversation.StatusInService || claimed.AgentID != "agent-7" {
		t.Errorf("claimed = status %q agent %q", claimed.Status, claimed.AgentID)
	}

	rec = f.do(t, http.MethodPost, "/team/conversations/"+conv.ID.String()+"/resolve", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}

	// Claiming a resolved conversation is an invalid transition.
	rec = f.do(t, http.MethodPost, "/team/conversations/"+conv.ID.String()+"/claim", token)
	if rec.Code != http.StatusConflict {
		t.Errorf("claim after resolve status = %d, want 409", rec.Code)
	}
}

func TestTeam_CrossTenantIsNotFound(t *testing.T) {
	f := newTeamFixture(t)
	conv := seedWaiting(t, f.store, "acct-other")

	rec := f.do(t, http.MethodPost, "/team/conversations/"+conv.ID.String()+"/claim",
		f.token(t, "acct-1", "agent-7"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTeam_ListMessages(t *testing.T) {
	f := newTeamFixture(t)
	conv := seedWaiting(t, f.store, "acct-1")

	now := time.Now().UTC()
	for i, text := range []string{"oi", "quero falar com atendente"} {
		err := f.store.AppendMessage(context.Background(), conversation.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			Role:           "user",
			Content:        text,
			CreatedAt:      now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append message: %v", err)
		}
	}

	rec := f.do(t, http.MethodGet, "/team/conversations/"+conv.ID.String()+"/messages",
		f.token(t, "acct-1", "agent-7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Messages []conversation.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Content != "oi" {
		t.Errorf("messages = %+v", resp.Messages)
	}

	rec = f.do(t, http.MethodGet, "/team/conversations/"+conv.ID.String()+"/messages?limit=abc",
		f.token(t, "acct-1", "agent-7"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestTeam_RequiresAuth(t *testing.T) {
	f := newTeamFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/team/conversations", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
