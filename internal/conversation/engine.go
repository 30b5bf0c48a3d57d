package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zapdeskhq/zapbot-platform/internal/business"
	"github.com/zapdeskhq/zapbot-platform/internal/observability/metrics"
	"github.com/zapdeskhq/zapbot-platform/internal/ratelimit"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

// Messenger sends messages through the WhatsApp transport.
type Messenger interface {
	SendText(ctx context.Context, instanceName, toJID, text string) error
}

// MediaMessenger is implemented by transports that can also deliver
// media attachments.
type MediaMessenger interface {
	SendMedia(ctx context.Context, instanceName, toJID, mediaURL, caption string) error
}

// HandoffNotifier alerts the tenant's team when a conversation starts
// waiting for a human agent.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, profile *business.Profile, conv *Conversation, reason string) error
}

// Engine runs the inbound message pipeline: tenant resolution,
// lifecycle management, rate limiting, intent analysis and the AI
// reply. One engine serves all tenants.
type Engine struct {
	*TeamService

	businesses business.Repository
	store      Store
	history    *historyStore
	analyzer   *IntentAnalyzer
	responder  *Responder
	msgLimiter *ratelimit.MessageLimiter
	messenger  Messenger
	notifier   HandoffNotifier
	metrics    *metrics.BotMetrics
	hoursFor   func(*business.Profile) business.Hours
	logger     *logging.Logger
	locks      keyedLocks
	now        func() time.Time
}

// EngineOption customizes engine behavior.
type EngineOption func(*Engine)

// WithHandoffNotifier wires team notifications for handoffs.
func WithHandoffNotifier(n HandoffNotifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithEngineMetrics wires pipeline metrics.
func WithEngineMetrics(m *metrics.BotMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithHoursResolver overrides how a profile's opening hours string is
// turned into an open/closed predicate.
func WithHoursResolver(f func(*business.Profile) business.Hours) EngineOption {
	return func(e *Engine) {
		if f != nil {
			e.hoursFor = f
		}
	}
}

// WithEngineClock overrides the time source. Tests only.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
		if e.TeamService != nil {
			e.TeamService.now = now
		}
	}
}

// NewEngine wires the pipeline together.
func NewEngine(
	businesses business.Repository,
	store Store,
	rdb *redis.Client,
	analyzer *IntentAnalyzer,
	responder *Responder,
	msgLimiter *ratelimit.MessageLimiter,
	messenger Messenger,
	logger *logging.Logger,
	opts ...EngineOption,
) *Engine {
	if businesses == nil {
		panic("conversation: business repository cannot be nil")
	}
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if analyzer == nil {
		panic("conversation: intent analyzer cannot be nil")
	}
	if responder == nil {
		panic("conversation: responder cannot be nil")
	}
	if msgLimiter == nil {
		panic("conversation: message limiter cannot be nil")
	}
	if messenger == nil {
		panic("conversation: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	e := &Engine{
		TeamService: NewTeamService(store, logger),
		businesses:  businesses,
		store:       store,
		history:     newHistoryStore(rdb, nil),
		analyzer:    analyzer,
		responder:   responder,
		msgLimiter:  msgLimiter,
		messenger:   messenger,
		hoursFor:    defaultHoursResolver,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// defaultHoursResolver parses "HH:MM-HH:MM" profile hours; anything
// else means always open.
func defaultHoursResolver(p *business.Profile) business.Hours {
	if p == nil {
		return business.AlwaysOpen{}
	}
	parts := strings.SplitN(strings.TrimSpace(p.OpeningHours), "-", 2)
	if len(parts) != 2 {
		return business.AlwaysOpen{}
	}
	hours, err := business.ParseWindowHours(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), "")
	if err != nil {
		return business.AlwaysOpen{}
	}
	return hours
}

// ProcessInbound runs one customer message through the pipeline and
// returns the reply that went out, if any.
func (e *Engine) ProcessInbound(ctx context.Context, in InboundMessage) (string, error) {
	start := e.now()

	text := strings.TrimSpace(in.Text)
	if in.FromMe || text == "" {
		e.metrics.ObserveInbound(in.InstanceName, "ignored")
		return "", nil
	}

	profile, err := e.businesses.GetByInstanceName(ctx, in.InstanceName)
	if err != nil {
		e.metrics.ObserveInbound(in.InstanceName, "unknown_instance")
		return "", fmt.Errorf("conversation: failed to resolve instance %q: %w", in.InstanceName, err)
	}

	now := e.now()
	credential := e.credentialFor(profile)

	// The lock covers the read-modify-write on conversation state.
	// Transport and AI calls happen outside it so one slow provider
	// call cannot serialize a customer's whole conversation.
	unlock := e.locks.acquire(customerKey(in.InstanceName, in.CustomerJID))
	conv, _, err := e.loadOrCreate(ctx, profile, in, now)
	if err != nil {
		unlock()
		return "", err
	}

	if conv.Status == StatusResolved {
		if err := conv.Reopen(now); err != nil {
			unlock()
			return "", err
		}
	}
	conv.LastMessageAt = now
	if conv.CustomerName == "" && in.CustomerName != "" {
		conv.CustomerName = in.CustomerName
	}

	if err := e.store.AppendMessage(ctx, Message{
		ConversationID: conv.ID,
		Role:           ChatRoleUser,
		Content:        text,
		CreatedAt:      now,
	}); err != nil {
		e.logger.Warn("failed to persist inbound message", "error", err, "conversation_id", conv.ID)
	}
	if err := e.store.Update(ctx, conv); err != nil {
		e.logger.Warn("failed to update conversation", "error", err, "conversation_id", conv.ID)
	}
	status := conv.Status
	unlock()

	if !AllowsAutoReply(status) {
		e.metrics.ObserveInbound(in.InstanceName, "stored_only")
		e.logger.Debug("bot silent: human handling conversation",
			"conversation_id", conv.ID, "status", status)
		return "", nil
	}

	// First contact gets the configured welcome and nothing else; a
	// tenant without one lets the AI produce the greeting below.
	if !conv.WelcomeSent && profile.WelcomeMessage != "" {
		reply := profile.WelcomeMessage
		if !e.send(ctx, profile, conv, reply) {
			e.metrics.ObserveInbound(in.InstanceName, "send_denied")
			return "", nil
		}
		conv.WelcomeSent = true
		e.recordReply(ctx, conv, nil, text, reply, now)
		e.metrics.ObserveReply(in.InstanceName, "welcome")
		e.metrics.ObserveInbound(in.InstanceName, "welcomed")
		return reply, nil
	}

	// Nothing can go out while the instance is over quota, so the AI
	// gateway must not be touched either. The message stays recorded
	// and the customer gets answered on a later pass.
	if !e.msgLimiter.CanSend(conv.InstanceName).Allowed {
		e.metrics.ObserveQuotaDenied(conv.InstanceName, "message")
		e.metrics.ObserveInbound(in.InstanceName, "send_denied")
		e.logger.Warn("send quota exhausted, skipping pipeline",
			"instance", in.InstanceName, "conversation_id", conv.ID)
		return "", nil
	}

	convID := conv.ID.String()
	history, lastAt, err := e.history.Load(ctx, convID)
	if err != nil {
		e.logger.Warn("failed to load history, starting fresh", "error", err, "conversation_id", convID)
		history, lastAt = nil, time.Time{}
	}
	window := PrepareWindow(history, lastAt, e.hoursFor(profile), profile.WelcomeMessage, now)
	if window.Cleared {
		if err := e.history.Clear(ctx, convID); err != nil {
			e.logger.Warn("failed to clear stale history", "error", err, "conversation_id", convID)
		}
	}
	// A returning customer is greeted again before the actual reply.
	if window.WelcomeBack != "" && e.send(ctx, profile, conv, window.WelcomeBack) {
		e.metrics.ObserveReply(in.InstanceName, "welcome_back")
		if err := e.store.AppendMessage(ctx, Message{
			ConversationID: conv.ID,
			Role:           ChatRoleAssistant,
			Content:        window.WelcomeBack,
			CreatedAt:      now,
		}); err != nil {
			e.logger.Warn("failed to persist welcome back", "error", err, "conversation_id", conv.ID)
		}
	}

	analysis := e.analyzer.Analyze(ctx, profile, credential, text)
	if analysis.ShouldTransfer {
		notice, err := e.transfer(ctx, profile, conv, analysis.TransferReason)
		if err != nil {
			return "", err
		}
		e.metrics.ObserveInbound(in.InstanceName, "transferred")
		return notice, nil
	}

	products, err := e.businesses.ListProducts(ctx, profile.AccountID)
	if err != nil {
		e.logger.Warn("failed to load product catalog", "error", err, "account_id", profile.AccountID)
	}

	aiStart := e.now()
	reply := e.responder.Generate(ctx, profile, products, credential, window.Messages, text, window.ReturningCustomer)
	e.metrics.ObserveAICall("reply", e.now().Sub(aiStart).Seconds())
	e.metrics.ObserveAITokens(in.InstanceName, int(reply.Usage.TotalTokens))

	if !e.send(ctx, profile, conv, reply.Text) {
		e.metrics.ObserveInbound(in.InstanceName, "send_denied")
		return "", nil
	}
	e.sendProductImage(ctx, conv, products, text)

	e.recordReply(ctx, conv, window.Messages, text, reply.Text, now)
	source := "fallback"
	if reply.FromAI {
		source = "ai"
	}
	e.metrics.ObserveReply(in.InstanceName, source)
	e.metrics.ObserveInbound(in.InstanceName, "replied")
	e.metrics.ObserveJobLatency(e.now().Sub(start).Seconds())
	e.logger.Info("reply sent",
		"instance", in.InstanceName,
		"conversation_id", conv.ID,
		"intent", analysis.Intent,
		"source", source,
	)
	return reply.Text, nil
}

func (e *Engine) credentialFor(profile *business.Profile) string {
	if profile.GroqAPIKey != "" {
		return ratelimit.CredentialFingerprint(profile.GroqAPIKey)
	}
	return ratelimit.CredentialFingerprint(profile.AccountID)
}

func (e *Engine) loadOrCreate(ctx context.Context, profile *business.Profile, in InboundMessage, now time.Time) (*Conversation, bool, error) {
	conv, err := e.store.GetByCustomer(ctx, in.InstanceName, in.CustomerJID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, false, fmt.Errorf("conversation: failed to load: %w", err)
	}

	conv = &Conversation{
		ID:            uuid.New(),
		AccountID:     profile.AccountID,
		InstanceName:  in.InstanceName,
		CustomerJID:   in.CustomerJID,
		CustomerPhone: phoneFromJID(in.CustomerJID),
		CustomerName:  in.CustomerName,
		Status:        StatusBot,
		StartedAt:     now,
		LastMessageAt: now,
	}
	if err := e.store.Create(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("conversation: failed to create: %w", err)
	}
	return conv, true, nil
}

// transfer hands the conversation to the team and sends the customer a
// notice. The state change is the point of the operation, so a failed
// notice send does not roll it back.
func (e *Engine) transfer(ctx context.Context, profile *business.Profile, conv *Conversation, reason string) (string, error) {
	unlock := e.locks.acquire(customerKey(conv.InstanceName, conv.CustomerJID))
	err := conv.Transfer(reason, e.now())
	if err == nil {
		err = e.store.Update(ctx, conv)
	}
	unlock()
	if err != nil {
		return "", fmt.Errorf("conversation: transfer failed: %w", err)
	}

	e.metrics.ObserveTransfer(conv.InstanceName)
	e.logger.Info("conversation transferred to human",
		"conversation_id", conv.ID, "reason", reason)

	notice := profile.EffectiveTransferMessage()
	if e.send(ctx, profile, conv, notice) {
		e.metrics.ObserveReply(conv.InstanceName, "transfer")
		if err := e.store.AppendMessage(ctx, Message{
			ConversationID: conv.ID,
			Role:           ChatRoleAssistant,
			Content:        notice,
			CreatedAt:      e.now(),
		}); err != nil {
			e.logger.Warn("failed to persist transfer notice", "error", err, "conversation_id", conv.ID)
		}
	}

	if e.notifier != nil {
		if err := e.notifier.NotifyHandoff(ctx, profile, conv, reason); err != nil {
			e.logger.Warn("handoff notification failed", "error", err, "conversation_id", conv.ID)
		}
	}
	return notice, nil
}

// send pushes one message out through the transport, honoring the
// per-instance quota. Quota is only consumed after a successful send.
func (e *Engine) send(ctx context.Context, profile *business.Profile, conv *Conversation, text string) bool {
	decision := e.msgLimiter.CanSend(conv.InstanceName)
	if !decision.Allowed {
		e.metrics.ObserveQuotaDenied(conv.InstanceName, "message")
		return false
	}
	if err := e.messenger.SendText(ctx, conv.InstanceName, conv.CustomerJID, text); err != nil {
		e.logger.Error("failed to send message", "error", err,
			"instance", conv.InstanceName, "conversation_id", conv.ID)
		return false
	}
	e.msgLimiter.RecordSent(conv.InstanceName)
	return true
}

// sendProductImage attaches the catalog photo when the customer
// mentions a product that has one. Best effort, and quota-bound like
// any other outbound message.
func (e *Engine) sendProductImage(ctx context.Context, conv *Conversation, products []business.Product, text string) {
	mm, ok := e.messenger.(MediaMessenger)
	if !ok {
		return
	}
	product := business.FindProductByName(products, text)
	if product == nil || product.ImageURL == "" {
		return
	}
	if !e.msgLimiter.CanSend(conv.InstanceName).Allowed {
		e.metrics.ObserveQuotaDenied(conv.InstanceName, "message")
		return
	}
	if err := mm.SendMedia(ctx, conv.InstanceName, conv.CustomerJID, product.ImageURL, product.Name); err != nil {
		e.logger.Warn("failed to send product image", "error", err,
			"conversation_id", conv.ID, "product", product.Name)
		return
	}
	e.msgLimiter.RecordSent(conv.InstanceName)
}

// recordReply persists the assistant turn and refreshes the AI context.
func (e *Engine) recordReply(ctx context.Context, conv *Conversation, window []ChatMessage, userText, replyText string, now time.Time) {
	if err := e.store.AppendMessage(ctx, Message{
		ConversationID: conv.ID,
		Role:           ChatRoleAssistant,
		Content:        replyText,
		CreatedAt:      now,
	}); err != nil {
		e.logger.Warn("failed to persist reply", "error", err, "conversation_id", conv.ID)
	}
	if err := e.store.Update(ctx, conv); err != nil {
		e.logger.Warn("failed to update conversation", "error", err, "conversation_id", conv.ID)
	}

	history := make([]ChatMessage, 0, len(window)+2)
	history = append(history, window...)
	history = append(history,
		ChatMessage{Role: ChatRoleUser, Content: userText},
		ChatMessage{Role: ChatRoleAssistant, Content: replyText},
	)
	if len(history) > maxWindowMessages {
		history = history[len(history)-maxWindowMessages:]
	}
	if err := e.history.Save(ctx, conv.ID.String(), history, now); err != nil {
		e.logger.Warn("failed to save history", "error", err, "conversation_id", conv.ID)
	}
}

func phoneFromJID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i > 0 {
		return jid[:i]
	}
	return jid
}

// keyedLocks serializes pipeline runs per customer thread.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedLocks) acquire(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
