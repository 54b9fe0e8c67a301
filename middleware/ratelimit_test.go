package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedWindowLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewFixedWindowLimiter(func() time.Time { return now })
	limit := RateLimit{Requests: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		ok, _ := limiter.Allow("ip:10.0.0.1", limit)
		assert.True(t, ok, "request %d", i+1)
	}

	now = now.Add(59 * time.Second)
	ok, retryAfter := limiter.Allow("ip:10.0.0.1", limit)
	assert.False(t, ok)
	assert.Equal(t, time.Second, retryAfter)

	// Other keys have their own window
	ok, _ = limiter.Allow("actor:1", limit)
	assert.True(t, ok)

	// The window resets exactly at start + Window
	now = now.Add(time.Second)
	ok, _ = limiter.Allow("ip:10.0.0.1", limit)
	assert.True(t, ok)
}

func TestFixedWindowLimiter_Disabled(t *testing.T) {
	limiter := NewFixedWindowLimiter(nil)
	for i := 0; i < 10; i++ {
		ok, _ := limiter.Allow("k", RateLimit{})
		assert.True(t, ok)
	}
	assert.Equal(t, 0, limiter.Len())
}

func TestFixedWindowLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewFixedWindowLimiter(func() time.Time { return now })

	limiter.Allow("a", RateLimit{Requests: 1, Window: time.Minute})
	limiter.Allow("b", RateLimit{Requests: 1, Window: time.Hour})
	assert.Equal(t, 2, limiter.Len())

	now = now.Add(time.Minute)
	assert.Equal(t, 1, limiter.Sweep())
	assert.Equal(t, 1, limiter.Len())
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", retryAfterSeconds(0))
	assert.Equal(t, "1", retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, "2", retryAfterSeconds(1500*time.Millisecond))
	assert.Equal(t, "60", retryAfterSeconds(time.Minute))
}
