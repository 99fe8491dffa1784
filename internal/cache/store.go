// Package cache is the TTL cache shared by the POI fetcher, the market
// estimator and the prefetch scheduler. Values are stored as opaque JSON
// payloads behind a pluggable Store so a single process can use the
// in-memory store and a multi-instance deployment can use Redis.
package cache

import (
	"context"
	"time"
)

// TTLs per data kind.
const (
	TTLAmenities      = 10 * time.Minute
	TTLInfrastructure = 30 * time.Minute
	TTLMarket         = 30 * time.Minute
)

// Store is a key/value store with per-entry expiration. Implementations are
// best-effort: backend failures are logged and reported as misses.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Has(ctx context.Context, key string) bool
	Delete(ctx context.Context, key string)
}

// Stats contains cache performance counters.
type Stats struct {
	Backend string  `json:"backend"`
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func hitRate(hits, misses int64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}
