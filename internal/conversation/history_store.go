package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// historyTTL is how long AI context survives without activity. WhatsApp
// customer support windows also close after a day, so a stale context
// is worse than an empty one.
const historyTTL = 24 * time.Hour

// historyEnvelope is what Redis stores per conversation: the chat turns
// plus the time of the last exchange so the window manager can detect
// long gaps without a second key.
type historyEnvelope struct {
	Messages      []ChatMessage `json:"messages"`
	LastMessageAt time.Time     `json:"last_message_at"`
}

type historyStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func newHistoryStore(rdb *redis.Client, tracer trace.Tracer) *historyStore {
	if rdb == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("zapbot.internal.conversation.history")
	}
	return &historyStore{
		redis:  rdb,
		tracer: tracer,
	}
}

func historyKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:history", conversationID)
}

// Save overwrites the stored context and refreshes the TTL.
func (s *historyStore) Save(ctx context.Context, conversationID string, history []ChatMessage, lastMessageAt time.Time) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_history")
	defer span.End()

	data, err := json.Marshal(historyEnvelope{Messages: history, LastMessageAt: lastMessageAt})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, historyKey(conversationID), data, historyTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

// Load returns the stored context. A missing key is not an error: new
// or expired conversations simply start empty.
func (s *historyStore) Load(ctx context.Context, conversationID string) ([]ChatMessage, time.Time, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, historyKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, time.Time{}, nil
		}
		span.RecordError(err)
		return nil, time.Time{}, fmt.Errorf("conversation: failed to load history: %w", err)
	}

	var env historyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		span.RecordError(err)
		return nil, time.Time{}, fmt.Errorf("conversation: failed to decode history: %w", err)
	}
	return env.Messages, env.LastMessageAt, nil
}

// Clear drops the stored context.
func (s *historyStore) Clear(ctx context.Context, conversationID string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.clear_history")
	defer span.End()

	if err := s.redis.Del(ctx, historyKey(conversationID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to clear history: %w", err)
	}
	return nil
}
