// Package bootstrap wires the bot pipeline from configuration so the
// api and worker binaries share the same construction logic.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/zapdeskhq/zapbot-platform/internal/business"
	appconfig "github.com/zapdeskhq/zapbot-platform/internal/config"
	"github.com/zapdeskhq/zapbot-platform/internal/conversation"
	"github.com/zapdeskhq/zapbot-platform/internal/messaging"
	"github.com/zapdeskhq/zapbot-platform/internal/ratelimit"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

// OpenBusinessRepository returns the tenant profile repository. Without
// a database URL it falls back to an empty in-memory repository, which
// only makes sense for local development.
func OpenBusinessRepository(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (business.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no DATABASE_URL configured; using empty in-memory business repository")
		return business.NewInMemoryRepository(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping database: %w", err)
	}
	return business.NewPostgresRepository(pool), pool.Close, nil
}

// OpenConversationStore returns the conversation store, Postgres-backed
// when a database URL is configured.
func OpenConversationStore(cfg *appconfig.Config, logger *logging.Logger) (conversation.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no DATABASE_URL configured; conversations will not survive restarts")
		return conversation.NewMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping database: %w", err)
	}
	return conversation.NewPostgresStore(db), func() { _ = db.Close() }, nil
}

// NewRedisClient builds the Redis client used for conversation context
// windows.
func NewRedisClient(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// BuildLLMClient assembles the AI provider chain: Groq primary with an
// optional Gemini fallback.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.LLMClient, error) {
	groq := conversation.NewGroqLLMClient(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel, cfg.GroqTimeout, logger)
	if cfg.GroqAPIKey == "" {
		logger.Warn("no platform Groq key configured; only tenant-supplied keys will reach the provider")
	}

	if cfg.GeminiAPIKey == "" {
		return groq, nil
	}

	gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
	}
	logger.Info("gemini fallback enabled", "model", cfg.GeminiModel)
	return conversation.NewFallbackLLMClient(groq, gemini, logger), nil
}

// BuildEngine wires limiters, AI clients and the WhatsApp transport
// into a pipeline engine.
func BuildEngine(
	ctx context.Context,
	cfg *appconfig.Config,
	businesses business.Repository,
	store conversation.Store,
	rdb *redis.Client,
	logger *logging.Logger,
	opts ...conversation.EngineOption,
) (*conversation.Engine, error) {
	llm, err := BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	aiLimiter := ratelimit.NewAILimiter(ratelimit.AILimits{
		RequestsPerMinute: cfg.AIRequestsPerMinute,
		TokensPerMinute:   cfg.AITokensPerMinute,
		MinSpacing:        cfg.AIMinSpacing,
	}, logger)
	msgLimiter := ratelimit.NewMessageLimiter(ratelimit.MessageLimits{
		PerMinute: cfg.MessagesPerMinute,
		PerHour:   cfg.MessagesPerHour,
		PerDay:    cfg.MessagesPerDay,
	}, logger)

	analyzer := conversation.NewIntentAnalyzer(llm, aiLimiter, logger)
	responder := conversation.NewResponder(llm, aiLimiter, cfg.GroqTimeout, logger)
	messenger := messaging.NewEvolutionClient(cfg.EvolutionBaseURL, cfg.EvolutionAPIKey, logger)

	engine := conversation.NewEngine(
		businesses,
		store,
		rdb,
		analyzer,
		responder,
		msgLimiter,
		messenger,
		logger,
		opts...,
	)
	return engine, nil
}
