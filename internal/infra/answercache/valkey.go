package answercache

import (
	"context"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

// ValkeyCache shares generated answers across replicas.
type ValkeyCache struct {
	client valkey.Client
	prefix string
}

// NewValkeyCache constructs the cache.
func NewValkeyCache(client valkey.Client, prefix string) *ValkeyCache {
	if prefix == "" {
		prefix = "healthbot:answer"
	}
	return &ValkeyCache{client: client, prefix: prefix}
}

func (c *ValkeyCache) key(k string) string {
	return c.prefix + ":" + k
}

// Get returns a cached answer.
func (c *ValkeyCache) Get(ctx context.Context, key string) (string, bool, error) {
	cmd := c.client.B().Get().Key(c.key(key)).Build()
	val, err := c.client.Do(ctx, cmd).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

// Set stores an answer with an optional expiry.
func (c *ValkeyCache) Set(ctx context.Context, key, answer string, ttl time.Duration) error {
	builder := c.client.B().Set().Key(c.key(key)).Value(answer)
	var cmd valkey.Completed
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return c.client.Do(ctx, cmd).Error()
}

var _ healthbot.AnswerCache = (*ValkeyCache)(nil)
