package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-analyzer/internal/config"
	"github.com/sells-group/property-analyzer/internal/model"
	"github.com/sells-group/property-analyzer/internal/prefetch"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load()
	require.NoError(t, err)
	c.Cache.Backend = "memory"
	c.Anthropic.Key = ""
	c.Market.Sources = nil
	return c
}

func TestInitPipeline_Analyze(t *testing.T) {
	env, err := initPipeline(context.Background(), testConfig(t), "analyze", false)
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Pipeline)
	assert.NotNil(t, env.Cache)
	assert.Nil(t, env.Scheduler)
	assert.Equal(t, "memory", env.Cache.Stats().Backend)
}

func TestInitPipeline_ServeStartsScheduler(t *testing.T) {
	c := testConfig(t)
	c.Prefetch.Enabled = true

	env, err := initPipeline(context.Background(), c, "serve", true)
	require.NoError(t, err)
	require.NotNil(t, env.Scheduler)

	env.Scheduler.Notify(prefetchRequestFor(t))
	assert.Positive(t, env.Scheduler.Stats().Queued)

	env.Close()
	env.Scheduler.Notify(prefetchRequestFor(t))
}

func TestInitPipeline_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Cache.Backend = "memcached"

	_, err := initPipeline(context.Background(), c, "analyze", false)
	assert.Error(t, err)
}

func TestInitPipeline_InvalidSweepSpec(t *testing.T) {
	c := testConfig(t)
	c.Prefetch.Sweep = "whenever"

	_, err := initPipeline(context.Background(), c, "serve", true)
	assert.Error(t, err)
}

func TestInitPipeline_RedisUnreachable(t *testing.T) {
	c := testConfig(t)
	c.Cache.Backend = "redis"
	c.Cache.RedisAddr = "127.0.0.1:1"

	_, err := initPipeline(context.Background(), c, "analyze", false)
	assert.Error(t, err)
}

func TestInitPipeline_MissingRegionsFile(t *testing.T) {
	c := testConfig(t)
	c.Market.RegionsFile = "testdata/does-not-exist.yaml"

	_, err := initPipeline(context.Background(), c, "analyze", false)
	assert.Error(t, err)
}

func TestRetryConfig(t *testing.T) {
	rc := retryConfig(2, "market")
	assert.Equal(t, 3, rc.MaxAttempts)
	assert.NotNil(t, rc.OnRetry)

	assert.Equal(t, 1, retryConfig(-1, "overpass").MaxAttempts)
}

func prefetchRequestFor(t *testing.T) prefetch.Request {
	t.Helper()
	return prefetch.Request{Center: model.LatLng{Lat: 10.7769, Lng: 106.7009}, Radius: 1000}
}
