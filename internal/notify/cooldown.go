package notify

import (
	"context"
	"sync"
	"time"

	"collecte-backend/internal/clock"

	"github.com/go-redis/redis/v8"
)

// CooldownCache grants a key at most once per ttl.
type CooldownCache interface {
	// Acquire returns true when the key was free and is now held for ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryCooldown keeps the windows in process. Entries are swept lazily.
type MemoryCooldown struct {
	mu      sync.Mutex
	clock   clock.Clock
	expires map[string]time.Time
}

func NewMemoryCooldown(clk clock.Clock) *MemoryCooldown {
	if clk == nil {
		clk = clock.System()
	}
	return &MemoryCooldown{clock: clk, expires: make(map[string]time.Time)}
}

func (c *MemoryCooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, exp := range c.expires {
		if !now.Before(exp) {
			delete(c.expires, k)
		}
	}
	if _, held := c.expires[key]; held {
		return false, nil
	}
	c.expires[key] = now.Add(ttl)
	return true, nil
}

// RedisCooldown shares the windows across processes with SET NX.
type RedisCooldown struct {
	client *redis.Client
}

func NewRedisCooldown(client *redis.Client) *RedisCooldown {
	return &RedisCooldown{client: client}
}

func (c *RedisCooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, 1, ttl).Result()
}
