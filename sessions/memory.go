package sessions

import (
	"context"
	"sync"

	"github.com/blogem/devkb/models"
)

// MemoryStore is a mutex guarded in-process Store. Sessions are lost on restart.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]models.Session
	opts options
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		data: make(map[string]models.Session),
		opts: o,
	}
}

// Create stores the principal under a new unpredictable id
func (s *MemoryStore) Create(ctx context.Context, principal models.Principal) (string, error) {
	if err := validatePrincipal(principal); err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.opts.newID()
		if err != nil {
			return "", err
		}

		now := s.opts.now()
		s.mu.Lock()
		if _, taken := s.data[id]; taken {
			s.mu.Unlock()
			continue
		}
		s.data[id] = models.Session{
			ID:        id,
			Principal: principal,
			CreatedAt: now,
			ExpiresAt: now.Add(s.opts.ttl),
		}
		s.mu.Unlock()
		return id, nil
	}

	return "", ErrIDExhausted
}

// Get returns the principal for a live session. Expired entries are removed
// under the same lock as the expiry check.
func (s *MemoryStore) Get(ctx context.Context, id string) (models.Principal, bool, error) {
	if id == "" {
		return models.Principal{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.data[id]
	if !ok {
		return models.Principal{}, false, nil
	}
	if session.Expired(s.opts.now()) {
		delete(s.data, id)
		return models.Principal{}, false, nil
	}
	return session.Principal, true, nil
}

// Delete removes the session. Unknown ids are ignored.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
	return nil
}

// Sweep deletes every expired session and returns how many were removed
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	removed := 0
	for id, session := range s.data {
		if session.Expired(now) {
			delete(s.data, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired or not
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data), nil
}
