// Package sessions holds server-side login sessions keyed by an opaque
// identifier that travels to the browser in the session cookie.
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/blogem/devkb/models"
)

// DefaultTTL is how long a session stays valid after it is created
const DefaultTTL = 7 * 24 * time.Hour

// idBytes is the amount of entropy in a session identifier
const idBytes = 32

// maxIDAttempts bounds regeneration when a fresh id collides with a live one
const maxIDAttempts = 5

// ErrIDExhausted is returned when no unused session id could be generated
var ErrIDExhausted = errors.New("could not generate a unique session id")

// Store manages the lifecycle of sessions. Get reports an unknown or expired
// id as (zero, false, nil); errors are reserved for backend failures.
type Store interface {
	Create(ctx context.Context, principal models.Principal) (string, error)
	Get(ctx context.Context, id string) (models.Principal, bool, error)
	Delete(ctx context.Context, id string) error
	Sweep(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
}

// Option configures a Store implementation
type Option func(*options)

type options struct {
	ttl   time.Duration
	now   func() time.Time
	newID func() (string, error)
}

func defaultOptions() options {
	return options{
		ttl:   DefaultTTL,
		now:   time.Now,
		newID: NewID,
	}
}

// WithTTL overrides the session lifetime
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source, used by tests to advance time
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewID returns a base64url encoded identifier read from crypto/rand
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// validatePrincipal rejects principals that must never be embedded in a session
func validatePrincipal(p models.Principal) error {
	if errs := p.Validate(); errs.HasErrors() {
		return errs
	}
	return nil
}
