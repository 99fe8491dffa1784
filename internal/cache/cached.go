package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/property-analyzer/internal/monitoring"
)

// Cache wraps a Store with JSON encoding, metrics and duplicate-miss
// suppression.
type Cache struct {
	store       Store
	metrics     *monitoring.Metrics
	group       singleflight.Group
	callTimeout time.Duration
}

// DefaultCallTimeout bounds a shared fill started by Cached.
const DefaultCallTimeout = 2 * time.Minute

// Option configures a Cache.
type Option func(*Cache)

// WithCallTimeout sets the budget of a shared fill. Non-positive values
// keep the default.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// New creates a Cache over store. metrics may be nil.
func New(store Store, metrics *monitoring.Metrics, opts ...Option) *Cache {
	c := &Cache{store: store, metrics: metrics, callTimeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying store.
func (c *Cache) Store() Store { return c.store }

// Has reports whether a live entry exists for key.
func (c *Cache) Has(ctx context.Context, key string) bool {
	return c.store.Has(ctx, key)
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.store.Delete(ctx, key)
}

// GetJSON decodes the entry for key into dest. kind labels the metric.
// Undecodable entries are deleted and reported as misses.
func (c *Cache) GetJSON(ctx context.Context, kind, key string, dest any) bool {
	b, ok := c.store.Get(ctx, key)
	if ok {
		if err := json.Unmarshal(b, dest); err != nil {
			zap.L().Warn("cache: dropping undecodable entry", zap.String("key", key), zap.Error(err))
			c.store.Delete(ctx, key)
			ok = false
		}
	}
	c.metrics.CacheAccess(kind, ok)
	return ok
}

// SetJSON encodes v and stores it under key for ttl.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("cache: encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	c.store.Set(ctx, key, b, ttl)
}

// Stats returns store statistics when the backend tracks them.
func (c *Cache) Stats() Stats {
	if s, ok := c.store.(interface{ Stats() Stats }); ok {
		return s.Stats()
	}
	return Stats{Backend: "unknown", Entries: -1}
}

// Cached wraps fn so its results are stored under keyFn(arg) for ttl.
// Concurrent misses for the same key share one call to fn. The shared call
// runs detached from every caller's cancellation, bounded by the cache's
// call timeout, so one caller giving up never fails the others. Each
// caller stops waiting when its own ctx is done. Errors are returned to
// every waiter and never cached.
func Cached[A, T any](c *Cache, kind string, ttl time.Duration, keyFn func(A) string, fn func(context.Context, A) (T, error)) func(context.Context, A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		key := keyFn(arg)

		var zero, hit T
		if c.GetJSON(ctx, kind, key, &hit) {
			return hit, nil
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		ch := c.group.DoChan(key, func() (v any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = eris.Errorf("cache: fill of %s panicked: %v", kind, r)
				}
			}()

			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
			defer cancel()

			val, err := fn(callCtx, arg)
			if err != nil {
				return nil, err
			}
			c.SetJSON(callCtx, key, val, ttl)
			return val, nil
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return zero, res.Err
			}
			return res.Val.(T), nil
		}
	}
}
