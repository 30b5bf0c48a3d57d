package conversation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConversationNotFound indicates no conversation exists for the
// lookup key.
var ErrConversationNotFound = errors.New("conversation: not found")

// Store persists conversations and their message log.
type Store interface {
	GetByCustomer(ctx context.Context, instanceName, customerJID string) (*Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)
	Create(ctx context.Context, conv *Conversation) error
	Update(ctx context.Context, conv *Conversation) error
	AppendMessage(ctx context.Context, msg Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
	ListByStatus(ctx context.Context, accountID string, status Status) ([]Conversation, error)
}

// MemoryStore is a Store for tests and single-process dev setups.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*Conversation
	byCustomer    map[string]uuid.UUID // instanceName + "|" + customerJID
	messages      map[uuid.UUID][]Message
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]*Conversation),
		byCustomer:    make(map[string]uuid.UUID),
		messages:      make(map[uuid.UUID][]Message),
	}
}

func customerKey(instanceName, customerJID string) string {
	return instanceName + "|" + customerJID
}

// GetByCustomer looks a conversation up by instance and customer JID.
func (s *MemoryStore) GetByCustomer(_ context.Context, instanceName, customerJID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCustomer[customerKey(instanceName, customerJID)]
	if !ok {
		return nil, ErrConversationNotFound
	}
	cp := *s.conversations[id]
	return &cp, nil
}

// Get looks a conversation up by ID.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	cp := *conv
	return &cp, nil
}

// Create inserts a new conversation.
func (s *MemoryStore) Create(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	cp := *conv
	s.conversations[conv.ID] = &cp
	s.byCustomer[customerKey(conv.InstanceName, conv.CustomerJID)] = conv.ID
	return nil
}

// Update overwrites a stored conversation.
func (s *MemoryStore) Update(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.ID]; !ok {
		return ErrConversationNotFound
	}
	conv.UpdatedAt = time.Now().UTC()
	cp := *conv
	s.conversations[conv.ID] = &cp
	return nil
}

// AppendMessage adds a message to the conversation log.
func (s *MemoryStore) AppendMessage(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return nil
}

// ListMessages returns the most recent messages in chronological order.
func (s *MemoryStore) ListMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message(nil), msgs...), nil
}

// ListByStatus returns an account's conversations in the given status,
// oldest activity first.
func (s *MemoryStore) ListByStatus(_ context.Context, accountID string, status Status) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Conversation
	for _, conv := range s.conversations {
		if conv.AccountID == accountID && conv.Status == status {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.Before(out[j].LastMessageAt)
	})
	return out, nil
}
