package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voxline/voxline-agents/internal/repository"
)

// RedisSessionStore implements SessionStore backed by Redis. A session key
// exists exactly as long as the token it belongs to is honored; logout and
// revocation delete the key before the TTL does.
type RedisSessionStore struct {
	client redis.UniversalClient
}

var _ repository.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore constructs a Redis-backed session store.
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// Add registers a live session with the token's remaining TTL.
func (s *RedisSessionStore) Add(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKey(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Exists reports whether the session is still honored.
func (s *RedisSessionStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	return n > 0, nil
}

// Remove revokes the session.
func (s *RedisSessionStore) Remove(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
