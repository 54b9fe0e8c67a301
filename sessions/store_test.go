package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/blogem/devkb/models"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func adminPrincipal() models.Principal {
	return models.Principal{
		ID:       "1",
		Name:     "Admin",
		Email:    "admin@example.com",
		Role:     models.RoleAdmin,
		Provider: models.ProviderLocal,
	}
}

func userPrincipal() models.Principal {
	return models.Principal{
		ID:       "github_42",
		Name:     "octocat",
		Role:     models.RoleUser,
		Provider: models.ProviderGitHub,
	}
}

var ctx = context.Background()
