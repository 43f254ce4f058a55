package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"pdfqa/internal/session"
)

const sessionKeyPrefix = "pdfqa:session:"

// SessionCache is a session.Store backed by Redis, shared by every replica
// pointing at the same instance.
type SessionCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

// NewSessionCache returns a Redis store. A zero ttl stores keys without expiry.
func NewSessionCache(client *redisv9.Client, ttl time.Duration) *SessionCache {
	if ttl < 0 {
		ttl = 0
	}
	return &SessionCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *SessionCache) Put(ctx context.Context, key, text string) error {
	if err := c.client.Set(ctx, c.sessionKey(key), text, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session failed: %w", err)
	}
	return nil
}

func (c *SessionCache) Get(ctx context.Context, key string) (string, error) {
	text, err := c.client.Get(ctx, c.sessionKey(key)).Result()
	if errors.Is(err, redisv9.Nil) {
		return "", session.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get session failed: %w", err)
	}
	return text, nil
}

func (c *SessionCache) sessionKey(key string) string {
	return sessionKeyPrefix + key
}
