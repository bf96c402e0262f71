package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores ingested products in Redis as JSON.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewCache constructs a product cache. A nil client or non-positive TTL disables caching.
func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: "catalog:product:"}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get loads a cached product. It reports whether the key existed.
func (c *Cache) Get(ctx context.Context, id string) (Product, bool, error) {
	var p Product
	if !c.enabled() || id == "" {
		return p, false, nil
	}
	data, err := c.client.Get(ctx, c.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return p, false, nil
		}
		return p, false, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, false, err
	}
	return p, true, nil
}

// Set stores p with the configured TTL.
func (c *Cache) Set(ctx context.Context, p Product) error {
	if !c.enabled() || p.ID == "" {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+p.ID, data, c.ttl).Err()
}

// Invalidate drops the cached entry for id.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	if !c.enabled() || id == "" {
		return nil
	}
	return c.client.Del(ctx, c.prefix+id).Err()
}
