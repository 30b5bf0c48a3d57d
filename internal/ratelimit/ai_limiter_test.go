package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestAILimiter(limits AILimits) (*AILimiter, *time.Time) {
	l := NewAILimiter(limits, nil)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func TestAILimiter_MinimumSpacing(t *testing.T) {
	l, now := newTestAILimiter(AILimits{MinSpacing: 350 * time.Millisecond})

	if d := l.CanCall("cred"); !d.Allowed {
		t.Fatalf("first call should pass: %s", d.Reason)
	}

	*now = now.Add(100 * time.Millisecond)
	d := l.CanCall("cred")
	if d.Allowed {
		t.Fatal("two calls within the spacing window must not both be allowed")
	}
	if d.DelayNeeded != 250*time.Millisecond {
		t.Fatalf("expected 250ms delay needed, got %s", d.DelayNeeded)
	}
	if d.RetryAfter != 0 {
		t.Fatalf("spacing denial should not carry retry-after, got %s", d.RetryAfter)
	}

	*now = now.Add(250 * time.Millisecond)
	if d := l.CanCall("cred"); !d.Allowed {
		t.Fatalf("call after spacing elapsed should pass: %s", d.Reason)
	}
}

func TestAILimiter_RequestCeilingWithSafetyFactor(t *testing.T) {
	l, now := newTestAILimiter(AILimits{
		RequestsPerMinute: 10,
		TokensPerMinute:   1_000_000,
		MinSpacing:        time.Millisecond,
		SafetyFactor:      0.9,
	})

	// floor(10 * 0.9) = 9 requests fit within the safety margin.
	for i := 0; i < 9; i++ {
		if d := l.CanCall("cred"); !d.Allowed {
			t.Fatalf("request %d denied: %s", i+1, d.Reason)
		}
		*now = now.Add(10 * time.Millisecond)
	}

	d := l.CanCall("cred")
	if d.Allowed {
		t.Fatal("tenth request should hit the safety ceiling")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected retry-after until window reset, got %s", d.RetryAfter)
	}
	if !strings.Contains(d.Reason, "request window") {
		t.Fatalf("unexpected denial reason: %s", d.Reason)
	}
}

func TestAILimiter_TokenBudgetUsesEstimate(t *testing.T) {
	l, now := newTestAILimiter(AILimits{
		RequestsPerMinute:      1000,
		TokensPerMinute:        1000,
		MinSpacing:             time.Millisecond,
		EstimatedTokensPerCall: 500,
		SafetyFactor:           0.9,
	})

	if d := l.CanCall("cred"); !d.Allowed {
		t.Fatalf("first call denied: %s", d.Reason)
	}
	// True usage comes in above the estimate.
	l.RecordUsage("cred", 600)

	*now = now.Add(10 * time.Millisecond)
	// 600 + 500 estimate > floor(1000*0.9) = 900.
	d := l.CanCall("cred")
	if d.Allowed {
		t.Fatal("estimate should deny the second call before it happens")
	}
	if !strings.Contains(d.Reason, "token window") {
		t.Fatalf("unexpected denial reason: %s", d.Reason)
	}

	// After the minute window resets, the budget is fresh.
	*now = now.Add(time.Minute)
	if d := l.CanCall("cred"); !d.Allowed {
		t.Fatalf("call after window reset denied: %s", d.Reason)
	}
}

func TestAILimiter_CredentialsAreIsolated(t *testing.T) {
	l, _ := newTestAILimiter(AILimits{MinSpacing: time.Hour})

	if d := l.CanCall("cred-a"); !d.Allowed {
		t.Fatal("first call for cred-a should pass")
	}
	if d := l.CanCall("cred-a"); d.Allowed {
		t.Fatal("cred-a should be blocked by spacing")
	}
	if d := l.CanCall("cred-b"); !d.Allowed {
		t.Fatal("cred-b must not inherit cred-a spacing state")
	}
}

func TestAILimiter_WaitHonorsContext(t *testing.T) {
	l := NewAILimiter(AILimits{MinSpacing: time.Minute}, nil)

	if d := l.CanCall("cred"); !d.Allowed {
		t.Fatal("first call should pass")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Wait(ctx, "cred")
	if err == nil {
		t.Fatal("expected context deadline error from Wait")
	}
}

func TestCredentialFingerprint_TruncatesSecret(t *testing.T) {
	fp := CredentialFingerprint("gsk_live_abcdef123456")
	if fp != "ai-gsk_live_a" {
		t.Fatalf("unexpected fingerprint %q", fp)
	}
	if CredentialFingerprint("abc") != "ai-abc" {
		t.Fatal("short secrets should pass through")
	}
}
