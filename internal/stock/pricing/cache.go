package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const configVersionKey = "stock:pricing:version"

// ConfigCache keeps tenant pricing configuration in Redis under a versioned
// key; Bump invalidates every tenant at once.
type ConfigCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewConfigCache builds the cache. A nil client disables caching.
func NewConfigCache(client *redis.Client, ttl time.Duration) *ConfigCache {
	return &ConfigCache{client: client, ttl: ttl}
}

func (c *ConfigCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, configVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, configVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *ConfigCache) key(ctx context.Context, tenantID string) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("stock:pricing:%s:%d", tenantID, ver), nil
}

// Fetch returns the cached configuration for tenantID, loading and storing it
// on a miss.
func (c *ConfigCache) Fetch(ctx context.Context, tenantID string, loader func(context.Context) (*TenantPricing, error)) (*TenantPricing, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	key, err := c.key(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cfg TenantPricing
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	cfg, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bump invalidates all cached tenant configuration.
func (c *ConfigCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, configVersionKey).Err()
}
