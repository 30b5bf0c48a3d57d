package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

// AILimits caps calls to the language-model provider for one credential.
// Defaults match Groq's published developer-plan ceilings.
type AILimits struct {
	RequestsPerMinute int
	TokensPerMinute   int
	// MinSpacing is the minimum gap between two permitted calls. At
	// 350ms the steady-state rate lands near 171 RPM, comfortably
	// under a 200 RPM ceiling.
	MinSpacing time.Duration
	// EstimatedTokensPerCall is charged against the token window
	// before a call, since true usage is unknown until the provider
	// responds. RecordUsage trues the window up afterwards.
	EstimatedTokensPerCall int
	// SafetyFactor shrinks the provider ceilings to leave margin for
	// clock skew and estimation error.
	SafetyFactor float64
}

// DefaultAILimits returns the Groq developer-plan limits with the
// margins the platform runs with in production.
func DefaultAILimits() AILimits {
	return AILimits{
		RequestsPerMinute:      200,
		TokensPerMinute:        200_000,
		MinSpacing:             350 * time.Millisecond,
		EstimatedTokensPerCall: 500,
		SafetyFactor:           0.9,
	}
}

// CallDecision is the answer to "may this credential call the provider?".
type CallDecision struct {
	Allowed bool
	// RetryAfter is set when a per-minute window is exhausted.
	RetryAfter time.Duration
	// DelayNeeded is set when only the minimum spacing rule blocked
	// the call; waiting it out and retrying once is expected to pass.
	DelayNeeded time.Duration
	Reason      string
}

// UsageStats is a point-in-time snapshot of one credential's windows.
type UsageStats struct {
	RequestsUsed  int
	RequestsLimit int
	TokensUsed    int
	TokensLimit   int
	ResetIn       time.Duration
}

type aiEntry struct {
	mu       sync.Mutex
	lastCall time.Time
	requests window
	tokens   window
}

// AILimiter gates calls to the AI provider per credential key,
// combining a minimum-spacing rule with request and token windows.
type AILimiter struct {
	mu      sync.Mutex
	entries map[string]*aiEntry
	limits  AILimits
	logger  *logging.Logger
	now     func() time.Time
}

// NewAILimiter builds a limiter for the given provider limits.
func NewAILimiter(limits AILimits, logger *logging.Logger) *AILimiter {
	def := DefaultAILimits()
	if limits.RequestsPerMinute <= 0 {
		limits.RequestsPerMinute = def.RequestsPerMinute
	}
	if limits.TokensPerMinute <= 0 {
		limits.TokensPerMinute = def.TokensPerMinute
	}
	if limits.MinSpacing <= 0 {
		limits.MinSpacing = def.MinSpacing
	}
	if limits.EstimatedTokensPerCall <= 0 {
		limits.EstimatedTokensPerCall = def.EstimatedTokensPerCall
	}
	if limits.SafetyFactor <= 0 || limits.SafetyFactor > 1 {
		limits.SafetyFactor = def.SafetyFactor
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AILimiter{
		entries: make(map[string]*aiEntry),
		limits:  limits,
		logger:  logger,
		now:     time.Now,
	}
}

// CredentialFingerprint derives a limiter key from a provider secret
// without retaining the whole credential in memory keys or logs.
func CredentialFingerprint(secret string) string {
	if len(secret) > 10 {
		secret = secret[:10]
	}
	return "ai-" + secret
}

// CanCall checks, in order: minimum spacing, the request window, then
// the token window (charged with the a-priori estimate). On success the
// call timestamp is recorded and the request counter incremented; the
// token counter is only moved later by RecordUsage, once real usage is
// known.
func (l *AILimiter) CanCall(credential string) CallDecision {
	e := l.entry(credential)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := l.now()

	if !e.lastCall.IsZero() {
		if elapsed := now.Sub(e.lastCall); elapsed < l.limits.MinSpacing {
			delay := l.limits.MinSpacing - elapsed
			return CallDecision{
				Allowed:     false,
				DelayNeeded: delay,
				Reason:      fmt.Sprintf("minimum spacing between calls: wait %dms", delay.Milliseconds()),
			}
		}
	}

	l.resetExpired(e, now)

	requestLimit := int(float64(l.limits.RequestsPerMinute) * l.limits.SafetyFactor)
	if e.requests.count+1 > requestLimit {
		return CallDecision{
			Allowed:    false,
			RetryAfter: e.requests.resetAt.Sub(now),
			Reason:     fmt.Sprintf("request window near ceiling: %d/%d RPM", e.requests.count, requestLimit),
		}
	}

	tokenLimit := int(float64(l.limits.TokensPerMinute) * l.limits.SafetyFactor)
	if e.tokens.count+l.limits.EstimatedTokensPerCall > tokenLimit {
		return CallDecision{
			Allowed:    false,
			RetryAfter: e.tokens.resetAt.Sub(now),
			Reason:     fmt.Sprintf("token window near ceiling: %d/%d TPM", e.tokens.count, tokenLimit),
		}
	}

	e.lastCall = now
	e.requests.count++
	return CallDecision{Allowed: true}
}

// Wait blocks for a spacing delay when that is all that stands between
// the caller and the provider, then re-checks once. Callers must treat
// a still-denied decision as final and fall back; retrying in a loop
// would defeat the window limits.
func (l *AILimiter) Wait(ctx context.Context, credential string) (CallDecision, error) {
	decision := l.CanCall(credential)
	if decision.Allowed || decision.DelayNeeded <= 0 {
		return decision, nil
	}

	timer := time.NewTimer(decision.DelayNeeded)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return CallDecision{Allowed: false, Reason: "canceled"}, ctx.Err()
	case <-timer.C:
	}
	return l.CanCall(credential), nil
}

// RecordUsage adds the provider-reported token count to the window.
// The request slot was already consumed by CanCall.
func (l *AILimiter) RecordUsage(credential string, tokensUsed int) {
	if tokensUsed <= 0 {
		return
	}
	e := l.entry(credential)
	e.mu.Lock()
	defer e.mu.Unlock()

	l.resetExpired(e, l.now())
	e.tokens.count += tokensUsed

	if e.tokens.count >= l.limits.TokensPerMinute {
		l.logger.Error("token window exceeded provider ceiling",
			"tokens_used", e.tokens.count, "tokens_limit", l.limits.TokensPerMinute)
	} else if float64(e.tokens.count) >= float64(l.limits.TokensPerMinute)*l.limits.SafetyFactor {
		l.logger.Warn("token window near provider ceiling",
			"tokens_used", e.tokens.count, "tokens_limit", l.limits.TokensPerMinute)
	}
}

// Stats reports the live windows for a credential.
func (l *AILimiter) Stats(credential string) UsageStats {
	e := l.entry(credential)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := l.now()
	l.resetExpired(e, now)
	resetIn := e.tokens.resetAt.Sub(now)
	if resetIn < 0 {
		resetIn = 0
	}
	return UsageStats{
		RequestsUsed:  e.requests.count,
		RequestsLimit: l.limits.RequestsPerMinute,
		TokensUsed:    e.tokens.count,
		TokensLimit:   l.limits.TokensPerMinute,
		ResetIn:       resetIn,
	}
}

// SetClock overrides the time source. Tests only.
func (l *AILimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *AILimiter) entry(credential string) *aiEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[credential]
	if !ok {
		now := l.now()
		e = &aiEntry{
			requests: window{resetAt: now.Add(time.Minute)},
			tokens:   window{resetAt: now.Add(time.Minute)},
		}
		l.entries[credential] = e
	}
	return e
}

// resetExpired restarts both per-minute windows together once either
// has passed its reset, matching how the provider accounts them.
// Caller holds e.mu.
func (l *AILimiter) resetExpired(e *aiEntry, now time.Time) {
	if !now.Before(e.requests.resetAt) {
		e.requests = window{resetAt: now.Add(time.Minute)}
		e.tokens = window{resetAt: now.Add(time.Minute)}
	}
}
