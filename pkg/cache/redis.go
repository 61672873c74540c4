package cache

import (
	"context"
	"time"

	"github.com/angelmondragon/stockcore/pkg/redis"
)

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(parts ...string) string
}

// Redis shares cached values across processes. Keys are namespaced under sc:cache.
type Redis struct {
	store redisStore
}

func NewRedis(store redisStore) *Redis {
	return &Redis{store: store}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.store.Get(ctx, r.store.CacheKey(key))
	if err != nil {
		if redis.IsNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(val), true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.store.Set(ctx, r.store.CacheKey(key), string(value), ttl)
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	namespaced := make([]string, len(keys))
	for i, key := range keys {
		namespaced[i] = r.store.CacheKey(key)
	}
	return r.store.Del(ctx, namespaced...)
}
