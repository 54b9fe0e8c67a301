package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/blogem/devkb/models"
)

// RateLimit allows Requests per Window for one caller. Routes sharing a
// non-empty Scope share one budget; otherwise each route counts separately.
type RateLimit struct {
	Requests int
	Window   time.Duration
	Scope    string
}

func (l RateLimit) scope(route string) string {
	if l.Scope != "" {
		return l.Scope
	}
	return route
}

// FixedWindowLimiter counts requests per key in fixed windows. A window
// opens at the first request for its key and resets once Window has elapsed.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
}

type fixedWindow struct {
	start time.Time
	end   time.Time
	count int
}

// NewFixedWindowLimiter creates a limiter; now may be nil to use time.Now
func NewFixedWindowLimiter(now func() time.Time) *FixedWindowLimiter {
	if now == nil {
		now = time.Now
	}
	return &FixedWindowLimiter{
		windows: make(map[string]*fixedWindow),
		now:     now,
	}
}

// Allow counts one request for key. When the window is full it returns
// false and the time until the window resets.
func (l *FixedWindowLimiter) Allow(key string, limit RateLimit) (bool, time.Duration) {
	if limit.Requests <= 0 || limit.Window <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.end) {
		w = &fixedWindow{start: now, end: now.Add(limit.Window)}
		l.windows[key] = w
	}

	if w.count >= limit.Requests {
		return false, w.end.Sub(now)
	}
	w.count++
	return true, 0
}

// Sweep drops windows that have ended and returns how many were dropped
func (l *FixedWindowLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.end) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked windows
func (l *FixedWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// rateLimitKey keys authenticated callers by id and anonymous ones by address,
// within scope
func rateLimitKey(scope string, principal *models.Principal, clientIP string) string {
	if principal != nil {
		return scope + "|actor:" + principal.ID
	}
	return scope + "|ip:" + clientIP
}

func retryAfterSeconds(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
