package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	// Evolution API (WhatsApp transport)
	EvolutionBaseURL string
	EvolutionAPIKey  string

	// Groq (primary AI provider)
	GroqAPIKey  string
	GroqModel   string
	GroqBaseURL string
	GroqTimeout time.Duration

	// Gemini (fallback AI provider, optional)
	GeminiAPIKey string
	GeminiModel  string

	// Outbound message limits, per connected instance
	MessagesPerMinute int
	MessagesPerHour   int
	MessagesPerDay    int

	// AI gateway limits, per provider credential
	AIRequestsPerMinute int
	AITokensPerMinute   int
	AIMinSpacing        time.Duration

	// Team endpoints auth
	TeamJWTSecret string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	InboundQueueURL     string
	WebhookJobsTable    string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Operator handoff notifications
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		EvolutionBaseURL: getEnv("EVOLUTION_BASE_URL", ""),
		EvolutionAPIKey:  getEnv("EVOLUTION_API_KEY", ""),

		GroqAPIKey:  getEnv("GROQ_API_KEY", ""),
		GroqModel:   getEnv("GROQ_MODEL", "groq/compound"),
		GroqBaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqTimeout: getEnvAsDuration("GROQ_TIMEOUT", 15*time.Second),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		MessagesPerMinute: getEnvAsInt("MESSAGES_PER_MINUTE", 20),
		MessagesPerHour:   getEnvAsInt("MESSAGES_PER_HOUR", 1000),
		MessagesPerDay:    getEnvAsInt("MESSAGES_PER_DAY", 10000),

		AIRequestsPerMinute: getEnvAsInt("AI_REQUESTS_PER_MINUTE", 200),
		AITokensPerMinute:   getEnvAsInt("AI_TOKENS_PER_MINUTE", 200_000),
		AIMinSpacing:        getEnvAsDuration("AI_MIN_SPACING", 350*time.Millisecond),

		TeamJWTSecret: getEnv("TEAM_JWT_SECRET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		InboundQueueURL:     getEnv("INBOUND_QUEUE_URL", ""),
		WebhookJobsTable:    getEnv("WEBHOOK_JOBS_TABLE", "webhook_jobs"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "ZapBot"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "ZapBot"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
