package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-analyzer/internal/analysis"
	"github.com/sells-group/property-analyzer/internal/cache"
	"github.com/sells-group/property-analyzer/internal/config"
	"github.com/sells-group/property-analyzer/internal/market"
	"github.com/sells-group/property-analyzer/internal/monitoring"
	"github.com/sells-group/property-analyzer/internal/poi"
	"github.com/sells-group/property-analyzer/internal/prefetch"
	"github.com/sells-group/property-analyzer/internal/resilience"
	"github.com/sells-group/property-analyzer/internal/scoring"
	anthropicpkg "github.com/sells-group/property-analyzer/pkg/anthropic"
	"github.com/sells-group/property-analyzer/pkg/overpass"
)

// pipelineEnv holds the initialized cache, clients, scheduler and pipeline
// needed by the analyze and serve commands.
type pipelineEnv struct {
	Metrics   *monitoring.Metrics
	Cache     *cache.Cache
	Breakers  *resilience.Breakers
	Scheduler *prefetch.Scheduler // nil when prefetch is disabled
	Pipeline  *analysis.Pipeline

	memory *cache.MemoryStore
	redis  *redis.Client
}

// Close stops background work and releases connections.
func (pe *pipelineEnv) Close() {
	if pe.Scheduler != nil {
		pe.Scheduler.Stop()
	}
	if pe.memory != nil {
		pe.memory.Stop()
	}
	if pe.redis != nil {
		_ = pe.redis.Close()
	}
}

// initPipeline builds every component from cfg. With background set the
// memory sweep and the prefetch scheduler are started. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, c *config.Config, mode string, background bool) (*pipelineEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	env := &pipelineEnv{
		Metrics:  monitoring.New(),
		Breakers: resilience.NewBreakers(resilience.DefaultBreakerConfig()),
	}

	store, err := env.initStore(ctx, c.Cache)
	if err != nil {
		return nil, err
	}
	env.Cache = cache.New(store, env.Metrics)
	if env.memory != nil && background {
		env.memory.Start()
	}

	client := overpass.NewClient(c.Overpass.Endpoint,
		overpass.WithTimeout(time.Duration(c.Overpass.TimeoutSecs)*time.Second),
		overpass.WithRateLimit(c.Overpass.RatePerSec, max(c.Overpass.MaxParallel, 1)),
		overpass.WithRetry(retryConfig(c.Overpass.MaxRetries, "overpass")),
		overpass.WithBreaker(env.Breakers.Get("overpass")),
	)
	fetcher := poi.New(client, env.Cache,
		poi.WithConcurrency(c.Overpass.Concurrency),
		poi.WithLimit(c.Overpass.ResultLimit),
		poi.WithIncludeMinor(c.Overpass.IncludeMinor),
		poi.WithTTL(c.Cache.AmenityTTL, c.Cache.InfrastructureTTL),
		poi.WithMetrics(env.Metrics),
	)

	estimator, err := initEstimator(c, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	var summarizer scoring.Summarizer
	if c.Anthropic.Key != "" {
		summarizer = scoring.NewLLMSummarizer(
			anthropicpkg.NewClient(c.Anthropic.Key),
			c.Anthropic.Model,
			scoring.WithMaxTokens(int64(c.Anthropic.MaxTokens)),
			scoring.WithTimeout(time.Duration(c.Anthropic.TimeoutSecs)*time.Second),
		)
		zap.L().Info("llm summaries enabled", zap.String("model", c.Anthropic.Model))
	} else {
		zap.L().Debug("PROPERTY_ANTHROPIC_KEY not set, using template summaries")
	}

	opts := []analysis.Option{
		analysis.WithMetrics(env.Metrics),
		analysis.WithRadius(c.Analysis.DefaultRadius, c.Analysis.MaxRadius),
	}
	if c.Prefetch.Enabled && background {
		env.Scheduler = prefetch.New(analysis.NewWarmer(fetcher, estimator),
			prefetch.WithTick(c.Prefetch.Tick),
			prefetch.WithBatch(c.Prefetch.Batch),
			prefetch.WithMaxQueue(c.Prefetch.MaxQueue),
			prefetch.WithMaxAge(c.Prefetch.MaxAge),
			prefetch.WithTaskTimeout(c.Prefetch.TaskTimeout),
			prefetch.WithSweep(c.Prefetch.Sweep),
			prefetch.WithMetrics(env.Metrics),
		)
		if err := env.Scheduler.Start(); err != nil {
			env.Scheduler = nil
			env.Close()
			return nil, err
		}
		opts = append(opts, analysis.WithPrefetch(env.Scheduler))
	}

	env.Pipeline = analysis.New(fetcher, estimator, scoring.New(summarizer), opts...)
	return env, nil
}

// initStore connects the configured cache backend.
func (pe *pipelineEnv) initStore(ctx context.Context, c config.CacheConfig) (cache.Store, error) {
	switch c.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, eris.Wrapf(err, "connect redis %s", c.RedisAddr)
		}
		pe.redis = rdb
		zap.L().Info("cache backend: redis", zap.String("addr", c.RedisAddr))
		return cache.NewRedisStore(rdb, c.RedisPrefix), nil
	default:
		pe.memory = cache.NewMemoryStore(cache.WithSweepInterval(c.SweepInterval))
		zap.L().Debug("cache backend: memory")
		return pe.memory, nil
	}
}

func initEstimator(c *config.Config, env *pipelineEnv) (*market.Estimator, error) {
	regions, err := market.DefaultRegions()
	if c.Market.RegionsFile != "" {
		regions, err = market.LoadRegions(c.Market.RegionsFile)
	}
	if err != nil {
		return nil, eris.Wrap(err, "load market regions")
	}

	sources, err := market.NewSources(c.Market.Sources, &http.Client{})
	if err != nil {
		return nil, eris.Wrap(err, "build listing sources")
	}
	if len(sources) == 0 {
		zap.L().Info("no listing sources configured, market prices are estimated")
	}

	return market.New(
		market.WithSources(sources...),
		market.WithRegions(regions),
		market.WithCache(env.Cache, c.Cache.MarketTTL),
		market.WithBreakers(env.Breakers),
		market.WithRetry(retryConfig(c.Market.MaxRetries, "market")),
		market.WithTimeout(time.Duration(c.Market.TimeoutSecs)*time.Second),
		market.WithRateLimit(c.Market.RatePerSec),
		market.WithMetrics(env.Metrics),
	), nil
}

// retryConfig allows maxRetries retries after the first attempt.
func retryConfig(maxRetries int, source string) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.MaxAttempts = max(maxRetries, 0) + 1
	rc.OnRetry = resilience.LogRetry(source)
	return rc
}
