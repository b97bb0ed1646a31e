// Package cache keeps retrieved reward codes so later lookups skip the
// remote endpoint.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "reward:code:"

func key(verificationID string) string {
	return keyPrefix + verificationID
}

// RedisCache stores codes with a TTL.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedis(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, verificationID string) (string, bool, error) {
	code, err := c.client.Get(ctx, key(verificationID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get reward code: %w", err)
	}
	return code, true, nil
}

func (c *RedisCache) Set(ctx context.Context, verificationID, code string) error {
	if err := c.client.Set(ctx, key(verificationID), code, c.ttl).Err(); err != nil {
		return fmt.Errorf("set reward code: %w", err)
	}
	return nil
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryCache is the single-process variant.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, verificationID string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[verificationID]
	if !ok || (c.ttl > 0 && !c.now().Before(e.expiresAt)) {
		return "", false, nil
	}
	return e.code, true, nil
}

func (c *MemoryCache) Set(_ context.Context, verificationID, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[verificationID] = entry{code: code, expiresAt: c.now().Add(c.ttl)}
	return nil
}
