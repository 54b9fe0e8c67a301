package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/blogem/devkb/models"
)

// DefaultRedisPrefix namespaces session keys in a shared Redis
const DefaultRedisPrefix = "devkb:session"

// RedisStore keeps sessions in Redis so several instances can share them.
// Expiry is delegated to Redis key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	opts   options
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis backed store. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...Option) *RedisStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		opts:   o,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

// Create stores the principal under a new id with a native key TTL
func (s *RedisStore) Create(ctx context.Context, principal models.Principal) (string, error) {
	if err := validatePrincipal(principal); err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.opts.newID()
		if err != nil {
			return "", err
		}

		now := s.opts.now()
		blob, err := json.Marshal(models.Session{
			ID:        id,
			Principal: principal,
			CreatedAt: now,
			ExpiresAt: now.Add(s.opts.ttl),
		})
		if err != nil {
			return "", fmt.Errorf("failed to encode session: %w", err)
		}

		ok, err := s.client.SetNX(ctx, s.key(id), blob, s.opts.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("failed to store session: %w", err)
		}
		if ok {
			return id, nil
		}
	}

	return "", ErrIDExhausted
}

// Get returns the principal for a live session. A blob that outlived its
// ExpiresAt or cannot be decoded is deleted and reported as absent.
func (s *RedisStore) Get(ctx context.Context, id string) (models.Principal, bool, error) {
	if id == "" {
		return models.Principal{}, false, nil
	}

	blob, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Principal{}, false, nil
	}
	if err != nil {
		return models.Principal{}, false, fmt.Errorf("failed to load session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(blob, &session); err != nil || session.Expired(s.opts.now()) {
		if delErr := s.Delete(ctx, id); delErr != nil {
			return models.Principal{}, false, delErr
		}
		return models.Principal{}, false, nil
	}

	return session.Principal, true, nil
}

// Delete removes the session key. Unknown ids are ignored.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Sweep is a no-op because Redis evicts expired keys itself
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

// Len counts session keys under the store prefix
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return count, nil
}
