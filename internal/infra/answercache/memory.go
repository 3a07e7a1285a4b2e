package answercache

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

type entry struct {
	answer    string
	expiresAt time.Time
}

// MemoryCache is a process local answer cache with per-entry expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryCache constructs the cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry), now: time.Now}
}

// Get returns a live entry.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false, nil
	}
	return e.answer, true, nil
}

// Set stores an answer. A non-positive ttl never expires.
func (c *MemoryCache) Set(_ context.Context, key, answer string, ttl time.Duration) error {
	e := entry{answer: answer}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

var _ healthbot.AnswerCache = (*MemoryCache)(nil)
