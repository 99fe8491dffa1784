package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "property:"

// RedisStore is a Store backed by Redis, for deployments where several
// instances share one cache. Expiration is delegated to Redis.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

// Get returns the value for key. Redis errors are logged and treated as misses.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("cache: redis get failed", zap.String("key", key), zap.Error(err))
		}
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return b, true
}

// Set stores value under key for ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		zap.L().Warn("cache: redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Has reports whether key exists.
func (s *RedisStore) Has(ctx context.Context, key string) bool {
	n, err := s.rdb.Exists(ctx, s.key(key)).Result()
	if err != nil {
		zap.L().Warn("cache: redis exists failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		zap.L().Warn("cache: redis del failed", zap.String("key", key), zap.Error(err))
	}
}

// Stats returns hit/miss counters observed by this process.
func (s *RedisStore) Stats() Stats {
	hits, misses := s.hits.Load(), s.misses.Load()
	return Stats{
		Backend: "redis",
		Entries: -1,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}
}
