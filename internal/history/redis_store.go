package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps stacks as JSON values that expire after the history max age.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisStore constructs a RedisStore. A non-positive ttl keeps keys without expiry.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: "cart:history:"}
}

// Name implements Store.
func (s *RedisStore) Name() string { return "redis" }

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, key string) (Stacks, bool, error) {
	if s == nil || s.client == nil {
		return Stacks{}, false, ErrStoreUnavailable
	}
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Stacks{}, false, nil
		}
		return Stacks{}, false, err
	}
	var st Stacks
	if err := json.Unmarshal(data, &st); err != nil {
		return Stacks{}, false, err
	}
	return st, true, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, key string, st Stacks) error {
	if s == nil || s.client == nil {
		return ErrStoreUnavailable
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.prefix+key, data, ttl).Err()
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return ErrStoreUnavailable
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}
