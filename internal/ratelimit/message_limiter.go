package ratelimit

import (
	"time"

	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

// MessageLimits caps outbound sends per connected WhatsApp instance.
// WhatsApp tolerates roughly 20 messages per minute before flagging a
// number, so the defaults stay at that ceiling.
type MessageLimits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// DefaultMessageLimits mirrors the platform-imposed thresholds.
func DefaultMessageLimits() MessageLimits {
	return MessageLimits{PerMinute: 20, PerHour: 1000, PerDay: 10000}
}

// SendDecision is the answer to "may this instance send right now?".
type SendDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// MessageLimiter gates outbound sends per instance name.
type MessageLimiter struct {
	counter *Counter
	logger  *logging.Logger
}

// NewMessageLimiter builds a limiter with the given per-instance limits.
func NewMessageLimiter(limits MessageLimits, logger *logging.Logger) *MessageLimiter {
	if limits.PerMinute <= 0 || limits.PerHour <= 0 || limits.PerDay <= 0 {
		limits = DefaultMessageLimits()
	}
	if logger == nil {
		logger = logging.Default()
	}
	horizons := []Horizon{
		{Name: "minute", Duration: time.Minute, Limit: limits.PerMinute},
		{Name: "hour", Duration: time.Hour, Limit: limits.PerHour},
		{Name: "day", Duration: 24 * time.Hour, Limit: limits.PerDay},
	}
	return &MessageLimiter{
		counter: NewCounter(horizons),
		logger:  logger,
	}
}

// CanSend reports whether instance may send one message. It never
// consumes quota, so callers may check as often as they like; only
// RecordSent moves the counters.
func (l *MessageLimiter) CanSend(instance string) SendDecision {
	res := l.counter.Peek(instance, 1)
	if !res.Allowed {
		l.logger.Warn("outbound message quota exhausted",
			"instance", instance,
			"horizon", res.Horizon,
			"retry_after_s", int(res.RetryAfter.Seconds())+1,
		)
		return SendDecision{Allowed: false, RetryAfter: res.RetryAfter}
	}
	return SendDecision{Allowed: true}
}

// RecordSent books one sent message against every horizon for instance.
// Called after a successful transport call, so the count reflects what
// actually went out even if the window filled up in the meantime.
func (l *MessageLimiter) RecordSent(instance string) {
	l.counter.Record(instance, 1)
}

// SetClock overrides the time source. Tests only.
func (l *MessageLimiter) SetClock(now func() time.Time) {
	l.counter.SetClock(now)
}
