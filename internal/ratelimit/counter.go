package ratelimit

import (
	"sync"
	"time"
)

// Horizon is a quota window: at most Limit consumptions per Duration.
type Horizon struct {
	Name     string
	Duration time.Duration
	Limit    int
}

// Result reports the outcome of a quota check.
type Result struct {
	Allowed bool
	// RetryAfter is how long the caller must wait before the most
	// constrained violated horizon resets. Zero when Allowed.
	RetryAfter time.Duration
	// Horizon names the violated window, for logs and metrics.
	Horizon string
}

type window struct {
	count   int
	resetAt time.Time
}

type entry struct {
	mu      sync.Mutex
	windows []window
}

// Counter tracks consumption per key across several sliding horizons.
// A single Counter is constructed at startup and shared by reference;
// there is no package-level state.
type Counter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	horizons []Horizon
	now      func() time.Time
}

// NewCounter creates a counter over the given horizons.
func NewCounter(horizons []Horizon) *Counter {
	if len(horizons) == 0 {
		panic("ratelimit: at least one horizon required")
	}
	return &Counter{
		entries:  make(map[string]*entry),
		horizons: horizons,
		now:      time.Now,
	}
}

// TryConsume atomically consumes cost from every horizon for key.
// Either all horizons admit the cost and are incremented together, or
// none are touched and the result carries the largest retry-after among
// the violated horizons.
func (c *Counter) TryConsume(key string, cost int) Result {
	if cost <= 0 {
		cost = 1
	}
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := c.now()
	c.resetExpired(e, now)

	res := Result{Allowed: true}
	for i, h := range c.horizons {
		if e.windows[i].count+cost > h.Limit {
			retry := e.windows[i].resetAt.Sub(now)
			if !res.Allowed && retry <= res.RetryAfter {
				continue
			}
			res = Result{Allowed: false, RetryAfter: retry, Horizon: h.Name}
		}
	}
	if !res.Allowed {
		return res
	}

	for i := range e.windows {
		e.windows[i].count += cost
	}
	return res
}

// Peek reports whether TryConsume(key, cost) would currently succeed,
// without consuming anything.
func (c *Counter) Peek(key string, cost int) Result {
	if cost <= 0 {
		cost = 1
	}
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := c.now()
	c.resetExpired(e, now)

	res := Result{Allowed: true}
	for i, h := range c.horizons {
		if e.windows[i].count+cost > h.Limit {
			retry := e.windows[i].resetAt.Sub(now)
			if !res.Allowed && retry <= res.RetryAfter {
				continue
			}
			res = Result{Allowed: false, RetryAfter: retry, Horizon: h.Name}
		}
	}
	return res
}

// Record increments every horizon for key by cost without checking
// limits. Used after an external side effect already happened, so the
// books reflect reality even when the window is saturated.
func (c *Counter) Record(key string, cost int) {
	if cost <= 0 {
		cost = 1
	}
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	c.resetExpired(e, c.now())
	for i := range e.windows {
		e.windows[i].count += cost
	}
}

// Usage returns the live count and reset time for the named horizon.
func (c *Counter) Usage(key, horizon string) (count int, resetAt time.Time) {
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	c.resetExpired(e, c.now())
	for i, h := range c.horizons {
		if h.Name == horizon {
			return e.windows[i].count, e.windows[i].resetAt
		}
	}
	return 0, time.Time{}
}

// SetClock overrides the time source. Tests only.
func (c *Counter) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Counter) entry(key string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		now := c.now()
		e = &entry{windows: make([]window, len(c.horizons))}
		for i, h := range c.horizons {
			e.windows[i] = window{resetAt: now.Add(h.Duration)}
		}
		c.entries[key] = e
	}
	return e
}

// resetExpired lazily starts fresh windows whose resetAt has passed.
// Caller holds e.mu.
func (c *Counter) resetExpired(e *entry, now time.Time) {
	for i, h := range c.horizons {
		if !now.Before(e.windows[i].resetAt) {
			e.windows[i] = window{resetAt: now.Add(h.Duration)}
		}
	}
}
