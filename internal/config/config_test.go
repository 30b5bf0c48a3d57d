package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.MessagesPerMinute != 20 {
		t.Errorf("expected 20 messages/minute default, got %d", cfg.MessagesPerMinute)
	}
	if cfg.MessagesPerHour != 1000 {
		t.Errorf("expected 1000 messages/hour default, got %d", cfg.MessagesPerHour)
	}
	if cfg.MessagesPerDay != 10000 {
		t.Errorf("expected 10000 messages/day default, got %d", cfg.MessagesPerDay)
	}
	if cfg.AIRequestsPerMinute != 200 {
		t.Errorf("expected 200 RPM default, got %d", cfg.AIRequestsPerMinute)
	}
	if cfg.AITokensPerMinute != 200_000 {
		t.Errorf("expected 200K TPM default, got %d", cfg.AITokensPerMinute)
	}
	if cfg.AIMinSpacing != 350*time.Millisecond {
		t.Errorf("expected 350ms spacing default, got %s", cfg.AIMinSpacing)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MESSAGES_PER_MINUTE", "5")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("AI_MIN_SPACING", "1s")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Port)
	}
	if cfg.MessagesPerMinute != 5 {
		t.Errorf("expected messages/minute override, got %d", cfg.MessagesPerMinute)
	}
	if !cfg.UseMemoryQueue {
		t.Error("expected memory queue enabled")
	}
	if cfg.AIMinSpacing != time.Second {
		t.Errorf("expected 1s spacing, got %s", cfg.AIMinSpacing)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("AI_MIN_SPACING", "soon")

	cfg := Load()

	if cfg.WorkerCount != 2 {
		t.Errorf("expected default worker count on parse failure, got %d", cfg.WorkerCount)
	}
	if cfg.AIMinSpacing != 350*time.Millisecond {
		t.Errorf("expected default spacing on parse failure, got %s", cfg.AIMinSpacing)
	}
}
