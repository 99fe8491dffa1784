package analysis

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-analyzer/internal/cache"
	"github.com/sells-group/property-analyzer/internal/config"
	"github.com/sells-group/property-analyzer/internal/geometry"
	"github.com/sells-group/property-analyzer/internal/market"
	"github.com/sells-group/property-analyzer/internal/model"
	"github.com/sells-group/property-analyzer/internal/poi"
	"github.com/sells-group/property-analyzer/internal/prefetch"
	"github.com/sells-group/property-analyzer/internal/scoring"
	"github.com/sells-group/property-analyzer/pkg/overpass"
)

var saigon = model.LatLng{Lat: 10.7769, Lng: 106.7009}

// square is a parcel of about 500 m² centred on c.
func square(c model.LatLng) []model.LngLat {
	half := 11.18
	n := geometry.Destination(c, 0, half)
	s := geometry.Destination(c, 180, half)
	e := geometry.Destination(c, 90, half)
	w := geometry.Destination(c, 270, half)
	return []model.LngLat{
		{w.Lng, s.Lat},
		{e.Lng, s.Lat},
		{e.Lng, n.Lat},
		{w.Lng, n.Lat},
	}
}

type fakeQuerier struct {
	mu      sync.Mutex
	queries []string
}

// Query returns a hospital 300 m north and a substation 150 m east.
func (f *fakeQuerier) Query(_ context.Context, ql string) ([]overpass.Element, error) {
	f.mu.Lock()
	f.queries = append(f.queries, ql)
	f.mu.Unlock()

	switch {
	case strings.Contains(ql, "hospital"):
		return []overpass.Element{{
			Type: overpass.TypeNode, ID: 1,
			Lat: saigon.Lat + 0.002698, Lon: saigon.Lng,
			Tags: map[string]string{"amenity": "hospital", "name": "Bệnh viện Quận 1"},
		}}, nil
	case strings.Contains(ql, `"power"`):
		return []overpass.Element{{
			Type: overpass.TypeNode, ID: 2,
			Lat: saigon.Lat, Lon: saigon.Lng + 0.001373,
			Tags: map[string]string{"power": "substation", "name": "Trạm biến áp Bến Thành"},
		}}, nil
	}
	return nil, nil
}

func (f *fakeQuerier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeNotifier struct {
	mu   sync.Mutex
	reqs []prefetch.Request
}

func (n *fakeNotifier) Notify(req prefetch.Request) {
	n.mu.Lock()
	n.reqs = append(n.reqs, req)
	n.mu.Unlock()
}

func TestAnalyze_SaigonHealthcareAndPower(t *testing.T) {
	t.Parallel()

	c := cache.New(cache.NewMemoryStore(), nil)
	q := &fakeQuerier{}
	notifier := &fakeNotifier{}
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := New(
		poi.New(q, c),
		market.New(market.WithCache(c, cache.TTLMarket)),
		scoring.New(nil),
		WithPrefetch(notifier),
		WithClock(func() time.Time { return at }),
	)

	res, err := p.Analyze(context.Background(), model.Request{
		Coordinates: square(saigon),
		Categories:  []model.Category{model.CategoryHealthcare},
		Layers:      []model.Layer{model.LayerPower},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(res.ID)
	assert.NoError(t, err)
	assert.Equal(t, at, res.AnalyzedAt)
	assert.Equal(t, 3, res.FrontageCount)
	assert.InDelta(t, saigon.Lat, res.Center.Lat, 1e-6)
	assert.InDelta(t, 500, res.Area, 10)
	assert.NotEmpty(t, res.Orientation)

	require.Len(t, res.Amenities, 1)
	for _, a := range res.Amenities {
		assert.Equal(t, model.CategoryHealthcare, a.Category)
	}
	assert.InDelta(t, 300, res.Amenities[0].Distance, 5)

	assert.Len(t, res.Infrastructure, 1)

	require.Len(t, res.Infrastructure[model.LayerPower], 1)
	require.Len(t, res.Risks, 1)
	assert.Equal(t, model.SeverityHigh, res.Risks[0].Severity)
	assert.True(t, strings.HasPrefix(res.Risks[0].ID, "power-"))
	assert.Equal(t, 25, res.RiskScore)
	assert.Equal(t, model.SeverityMedium, res.OverallRiskLevel)
	assert.Equal(t, 25, res.AIAnalysis.Scores.Risk)

	require.NotEmpty(t, res.MarketData.Sources)
	assert.Equal(t, market.StatisticalSource, res.MarketData.Sources[0].Name)
	assert.Greater(t, res.MarketData.PricePerSqm, 0.0)

	assert.NotEmpty(t, res.AIAnalysis.Summary)
	assert.GreaterOrEqual(t, res.AIAnalysis.Overall, 0)
	assert.LessOrEqual(t, res.AIAnalysis.Overall, 100)

	require.Len(t, notifier.reqs, 1)
	assert.InDelta(t, DefaultRadius, notifier.reqs[0].Radius, 0)
	assert.Equal(t, []model.Layer{model.LayerPower}, notifier.reqs[0].Layers)

	// A second analysis of the same parcel is served from cache.
	calls := q.calls()
	_, err = p.Analyze(context.Background(), model.Request{
		Coordinates: square(saigon),
		Categories:  []model.Category{model.CategoryHealthcare},
		Layers:      []model.Layer{model.LayerPower},
	})
	require.NoError(t, err)
	assert.Equal(t, calls, q.calls())
}

func TestAnalyze_InvalidGeometry(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{}
	p := New(&stubPOI{}, &stubMarket{}, nil, WithPrefetch(notifier))

	_, err := p.Analyze(context.Background(), model.Request{
		Coordinates: []model.LngLat{{106.7, 10.7}, {106.71, 10.71}},
	})
	assert.ErrorIs(t, err, geometry.ErrInvalidGeometry)
	assert.Empty(t, notifier.reqs)
}

func TestAnalyze_IsolatesPhaseFailures(t *testing.T) {
	t.Parallel()

	fetcher := &stubPOI{panicInfra: true}
	m := &stubMarket{snap: model.MarketSnapshot{PricePerSqm: 40e6, Avg: 4e9, Trend: model.TrendStable}}
	p := New(fetcher, m, nil)

	res, err := p.Analyze(context.Background(), model.Request{Coordinates: square(saigon)})
	require.NoError(t, err)

	assert.NotNil(t, res.Infrastructure)
	assert.NotNil(t, res.Risks)
	assert.Empty(t, res.Risks)
	assert.Equal(t, model.SeverityLow, res.OverallRiskLevel)
	assert.Equal(t, m.snap.PricePerSqm, res.MarketData.PricePerSqm)
	assert.NotNil(t, res.Amenities)
	assert.NotEmpty(t, res.AIAnalysis.Summary)
}

func TestAnalyze_CancelledContextStillReturnsResult(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(poi.New(&fakeQuerier{}, nil), market.New(), nil)
	res, err := p.Analyze(ctx, model.Request{Coordinates: square(saigon), Radius: 500})
	require.NoError(t, err)
	assert.Equal(t, market.FloorSource, res.MarketData.Sources[0].Name)
}

func TestRadius(t *testing.T) {
	t.Parallel()

	p := New(&stubPOI{}, &stubMarket{}, nil, WithRadius(1500, 5000))

	tests := []struct {
		in, want float64
	}{
		{0, 1500},
		{-10, 1500},
		{50, MinRadius},
		{800, 800},
		{5000, 5000},
		{12000, 5000},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, p.radius(tt.in), 0, "radius(%v)", tt.in)
	}

	wide := New(&stubPOI{}, &stubMarket{}, nil, WithRadius(0, 100000))
	assert.InDelta(t, MaxRadius, wide.radius(50000), 0)
	assert.InDelta(t, DefaultRadius, wide.radius(0), 0)
}

func TestAnalyze_DefaultConfigKeepsWideRadius(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	p := New(&stubPOI{}, &stubMarket{}, nil,
		WithRadius(cfg.Analysis.DefaultRadius, cfg.Analysis.MaxRadius),
		WithPrefetch(notifier),
	)

	for _, r := range []float64{10000, 30000} {
		assert.InDelta(t, r, p.radius(r), 0, "radius(%v)", r)
	}

	_, err = p.Analyze(context.Background(), model.Request{Coordinates: square(saigon), Radius: 10000})
	require.NoError(t, err)
	require.Len(t, notifier.reqs, 1)
	assert.InDelta(t, 10000, notifier.reqs[0].Radius, 0)
}
