package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count     int
	resetAt   time.Time
	exhausted bool
}

// Limiter tracks a fixed-window request budget per key.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// Option customizes the limiter.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New builds an empty limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows: map[string]*window{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether a call for key fits in the current window and
// records it. A max of zero denies the key permanently.
func (l *Limiter) Allow(key string, max int, size time.Duration) bool {
	if max <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(size)}
		return true
	}

	if w.exhausted {
		return false
	}
	if w.count < max {
		w.count++
		return true
	}
	return false
}

// Remaining returns how many calls are still admitted in the current
// window. A lapsed window reports the full budget without being reset.
func (l *Limiter) Remaining(key string, max int) int {
	if max <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().After(w.resetAt) {
		return max
	}
	if w.exhausted {
		return 0
	}
	if rem := max - w.count; rem > 0 {
		return rem
	}
	return 0
}

// TimeUntilReset returns the time left in the key's window, or zero when
// no window is active.
func (l *Limiter) TimeUntilReset(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		return 0
	}
	if d := w.resetAt.Sub(l.now()); d > 0 {
		return d
	}
	return 0
}

// ForceExhaust denies key until its current window ends. When no window is
// active a new one of the given size is opened.
func (l *Limiter) ForceExhaust(key string, size time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(size)}
		l.windows[key] = w
	}
	w.exhausted = true
}

// ResetKey drops the state of a single key.
func (l *Limiter) ResetKey(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Reset drops all tracked windows.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = map[string]*window{}
}

// Status is a read-only view of one key used by inspection endpoints.
type Status struct {
	Key            string
	Remaining      int
	MaxRequests    int
	Window         time.Duration
	TimeUntilReset time.Duration
	Limited        bool
}

// Status reports the budget of key without mutating it.
func (l *Limiter) Status(key string, max int, size time.Duration) Status {
	remaining := l.Remaining(key, max)
	return Status{
		Key:            key,
		Remaining:      remaining,
		MaxRequests:    max,
		Window:         size,
		TimeUntilReset: l.TimeUntilReset(key),
		Limited:        remaining == 0,
	}
}
