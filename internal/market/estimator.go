// Package market estimates land prices around a location from listing
// sources, falling back to a location-keyed statistical estimate and
// finally to a fixed floor. Estimate never fails.
package market

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/property-analyzer/internal/cache"
	"github.com/sells-group/property-analyzer/internal/model"
	"github.com/sells-group/property-analyzer/internal/monitoring"
	"github.com/sells-group/property-analyzer/internal/resilience"
)

const (
	// StatisticalSource names listings synthesized from regional baselines.
	StatisticalSource = "statistical-estimate"
	// FloorSource names the fixed fallback.
	FloorSource = "fallback-floor"

	// floorBasePrice is used when no regional baseline is available.
	floorBasePrice = 20e6

	syntheticListings = 15
	maxListings       = 50
)

type estimateQuery struct {
	Center model.LatLng
	Radius float64
}

// Estimator produces market snapshots.
type Estimator struct {
	sources  []Source
	regions  *Regions
	cache    *cache.Cache
	ttl      time.Duration
	breakers *resilience.Breakers
	limiters map[string]*rate.Limiter
	rps      float64
	retry    resilience.RetryConfig
	timeout  time.Duration
	metrics  *monitoring.Metrics
	now      func() time.Time

	cached func(context.Context, estimateQuery) (model.MarketSnapshot, error)
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithSources sets the listing sources.
func WithSources(s ...Source) Option {
	return func(e *Estimator) { e.sources = append(e.sources, s...) }
}

// WithRegions sets the regional baselines.
func WithRegions(r *Regions) Option {
	return func(e *Estimator) { e.regions = r }
}

// WithCache stores snapshots in c for ttl.
func WithCache(c *cache.Cache, ttl time.Duration) Option {
	return func(e *Estimator) {
		e.cache = c
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithBreakers shares a breaker registry.
func WithBreakers(b *resilience.Breakers) Option {
	return func(e *Estimator) { e.breakers = b }
}

// WithRetry sets the per-source retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(e *Estimator) { e.retry = cfg }
}

// WithTimeout bounds each source attempt.
func WithTimeout(d time.Duration) Option {
	return func(e *Estimator) { e.timeout = d }
}

// WithRateLimit sets requests per second per source.
func WithRateLimit(rps float64) Option {
	return func(e *Estimator) { e.rps = rps }
}

// WithMetrics records source outcomes.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Estimator) { e.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) { e.now = now }
}

// New creates an Estimator. Without WithRegions the embedded baselines are
// used.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		ttl:     cache.TTLMarket,
		rps:     1,
		timeout: 15 * time.Second,
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     8 * time.Second,
			JitterFraction: 0.2,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.regions == nil {
		r, err := DefaultRegions()
		if err != nil {
			zap.L().Error("market: embedded regions unusable", zap.Error(err))
		}
		e.regions = r
	}
	if e.cache == nil {
		e.cache = cache.New(cache.NewMemoryStore(), nil)
	}
	if e.breakers == nil {
		e.breakers = resilience.NewBreakers(resilience.DefaultBreakerConfig())
	}
	e.limiters = make(map[string]*rate.Limiter, len(e.sources))
	for _, s := range e.sources {
		e.limiters[s.Name()] = rate.NewLimiter(rate.Limit(e.rps), 1)
	}
	e.cached = cache.Cached(e.cache, "market", e.ttl, marketKey, e.compute)
	return e
}

// Estimate returns a snapshot for the area. It never fails: with no usable
// listings it synthesizes an estimate, and if that fails it returns a floor
// derived from the base price alone.
func (e *Estimator) Estimate(ctx context.Context, center model.LatLng, radius float64) (snap model.MarketSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("market: estimate panicked, using floor", zap.Any("panic", r))
			snap = e.floor(center)
		}
	}()

	s, err := e.cached(ctx, estimateQuery{Center: center, Radius: radius})
	if err != nil {
		zap.L().Warn("market: estimate failed, using floor", zap.Error(err))
		return e.floor(center)
	}
	return s
}

// Has reports whether a snapshot for the area is cached.
func (e *Estimator) Has(ctx context.Context, center model.LatLng, radius float64) bool {
	return e.cache.Has(ctx, marketKey(estimateQuery{Center: center, Radius: radius}))
}

func marketKey(q estimateQuery) string {
	return cache.Key("market", map[string]any{
		"lat":    cache.Round(q.Center.Lat, 4),
		"lng":    cache.Round(q.Center.Lng, 4),
		"radius": math.Round(q.Radius),
	})
}

func (e *Estimator) compute(ctx context.Context, q estimateQuery) (model.MarketSnapshot, error) {
	listings, infos := e.collect(ctx, q)
	if ctx.Err() != nil {
		return model.MarketSnapshot{}, eris.Wrap(ctx.Err(), "market: estimate cancelled")
	}

	var snap model.MarketSnapshot
	if len(listings) > 0 {
		snap = summarize(listings)
		snap.Sources = infos
	} else {
		var err error
		snap, err = e.statistical(q.Center)
		if err != nil {
			return model.MarketSnapshot{}, err
		}
	}

	if len(snap.Listings) > maxListings {
		snap.Listings = snap.Listings[:maxListings]
	}
	snap.Trend = trendFor(snap.PricePerSqm, e.baseline(q.Center))
	e.finish(&snap)
	return snap, nil
}

// collect queries every source in parallel. A failing source contributes
// no listings.
func (e *Estimator) collect(ctx context.Context, q estimateQuery) ([]model.Listing, []model.SourceInfo) {
	sq := Query{Center: q.Center, Radius: q.Radius, Region: e.regions.regionSlug(q.Center)}
	results := make([][]model.Listing, len(e.sources))
	infos := make([]model.SourceInfo, len(e.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range e.sources {
		g.Go(func() error {
			infos[i] = model.SourceInfo{Name: src.Name(), Type: src.Type()}
			raws, err := e.safeFetch(gctx, src, sq)
			e.metrics.SourceFetch(src.Name(), err)
			if err != nil {
				zap.L().Warn("market: source failed",
					zap.String("source", src.Name()), zap.Error(err))
				return nil
			}
			ls := normalize(src.Name(), raws)
			e.metrics.Listings(src.Name(), len(ls))
			results[i] = ls
			infos[i].Count = len(ls)
			return nil
		})
	}
	_ = g.Wait()

	var all []model.Listing
	for _, ls := range results {
		all = append(all, ls...)
	}
	return all, infos
}

func (e *Estimator) safeFetch(ctx context.Context, src Source, q Query) (raws []RawListing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("market: source %s panicked: %v", src.Name(), r)
		}
	}()
	return e.fetch(ctx, src, q)
}

func (e *Estimator) fetch(ctx context.Context, src Source, q Query) ([]RawListing, error) {
	retry := e.retry
	retry.OnRetry = resilience.LogRetry(src.Name())
	return resilience.Call(ctx, e.breakers.Get(src.Name()), func(ctx context.Context) ([]RawListing, error) {
		return resilience.Retry(ctx, retry, func(ctx context.Context) ([]RawListing, error) {
			if err := e.limiters[src.Name()].Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "market: rate limiter wait")
			}
			ctx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()
			return src.Fetch(ctx, q)
		})
	})
}

// statistical synthesizes listings from the regional base price. Variation
// is seeded by the rounded coordinates, so a location always gets the same
// estimate.
func (e *Estimator) statistical(center model.LatLng) (snap model.MarketSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("market: statistical estimate panicked: %v", r)
		}
	}()
	if e.regions == nil {
		return model.MarketSnapshot{}, eris.New("market: no regional baselines")
	}

	base := e.regions.BasePrice(center)
	rng := rand.New(rand.NewPCG(
		uint64(int64(math.Round(center.Lat*1e3))),
		uint64(int64(math.Round(center.Lng*1e3))),
	))

	listings := make([]model.Listing, syntheticListings)
	for i := range listings {
		pps := base * (0.85 + 0.3*rng.Float64())
		area := math.Round(60 + 240*rng.Float64())
		listings[i] = model.Listing{
			Title:       fmt.Sprintf("Estimated parcel %d", i+1),
			Price:       math.Round(pps * area),
			Area:        area,
			PricePerSqm: math.Round(pps),
			Source:      StatisticalSource,
		}
	}

	snap = summarize(listings)
	snap.Sources = []model.SourceInfo{{Name: StatisticalSource, Type: TypeEstimate, Count: len(listings)}}
	return snap, nil
}

// floor is the last-resort snapshot for a 100 m² reference parcel.
func (e *Estimator) floor(center model.LatLng) model.MarketSnapshot {
	base := e.safeBaseline(center)
	snap := model.MarketSnapshot{
		Min:          math.Round(0.8 * base * refArea),
		Avg:          math.Round(base * refArea),
		Max:          math.Round(1.2 * base * refArea),
		Median:       math.Round(base * refArea),
		ListingCount: 0,
		PricePerSqm:  math.Round(base),
		Trend:        model.TrendStable,
		Sources:      []model.SourceInfo{{Name: FloorSource, Type: TypeEstimate}},
	}
	e.finish(&snap)
	return snap
}

func (e *Estimator) finish(snap *model.MarketSnapshot) {
	snap.LastUpdated = e.now().UTC()
	snap.History = history(snap.PricePerSqm, e.now())
	snap.TrendAnalysis = analyzeTrend(snap.History, snap.ListingCount)
}

func (e *Estimator) baseline(center model.LatLng) float64 {
	if e.regions == nil {
		return floorBasePrice
	}
	return e.regions.BasePrice(center)
}

func (e *Estimator) safeBaseline(center model.LatLng) (base float64) {
	defer func() {
		if recover() != nil || base <= 0 || math.IsNaN(base) {
			base = floorBasePrice
		}
	}()
	return e.baseline(center)
}
