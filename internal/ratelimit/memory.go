// Package ratelimit enforces a per-client request quota over fixed windows.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is implemented by MemoryLimiter and RedisLimiter.
type Limiter interface {
	Allow(ctx context.Context, clientID string) (bool, error)
	Usage(ctx context.Context, clientID string) (Usage, error)
	Sweep() int
}

var (
	_ Limiter = (*MemoryLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)

// Usage describes a client's position in its current window.
type Usage struct {
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt,omitempty"`
}

func newUsage(count, limit int, resetAt time.Time) Usage {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Usage{Count: count, Limit: limit, Remaining: remaining, ResetAt: resetAt}
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. A single mutex makes
// check-and-increment atomic, so concurrent callers can never exceed the limit.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	limit  int
	period time.Duration
	now    func() time.Time
}

// NewMemoryLimiter allows limit requests per client per period.
func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

// Allow reports whether clientID may make one more request, consuming a unit
// of quota if so. Denied requests consume nothing.
func (l *MemoryLimiter) Allow(_ context.Context, clientID string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[clientID]
	if !ok || !now.Before(w.resetAt) {
		if l.limit <= 0 {
			return false, nil
		}
		l.windows[clientID] = &window{count: 1, resetAt: now.Add(l.period)}
		return true, nil
	}

	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// Usage reports clientID's current window without consuming quota.
func (l *MemoryLimiter) Usage(_ context.Context, clientID string) (Usage, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[clientID]
	if !ok || !now.Before(w.resetAt) {
		return newUsage(0, l.limit, time.Time{}), nil
	}
	return newUsage(w.count, l.limit, w.resetAt), nil
}

// Sweep forgets clients whose window has expired and reports how many.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}
