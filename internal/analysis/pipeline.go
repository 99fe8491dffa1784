// Package analysis runs the full parcel analysis: geometry, amenities,
// infrastructure, risk, market pricing and scoring.
package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/property-analyzer/internal/geometry"
	"github.com/sells-group/property-analyzer/internal/model"
	"github.com/sells-group/property-analyzer/internal/monitoring"
	"github.com/sells-group/property-analyzer/internal/prefetch"
	"github.com/sells-group/property-analyzer/internal/risk"
	"github.com/sells-group/property-analyzer/internal/scoring"
)

// Radius bounds in metres.
const (
	DefaultRadius = 1000.0
	MinRadius     = 100.0
	MaxRadius     = 30000.0
)

// POIFetcher finds amenities and infrastructure around a point.
type POIFetcher interface {
	FetchAmenities(ctx context.Context, center model.LatLng, radius float64, categories []model.Category) []model.Amenity
	FetchInfrastructure(ctx context.Context, center model.LatLng, radius float64, layers []model.Layer) map[model.Layer][]model.Feature
	HasAmenities(ctx context.Context, center model.LatLng, radius float64, categories []model.Category) bool
	HasInfrastructure(ctx context.Context, center model.LatLng, radius float64, layers []model.Layer) bool
}

// MarketEstimator prices land around a point. Estimate never fails.
type MarketEstimator interface {
	Estimate(ctx context.Context, center model.LatLng, radius float64) model.MarketSnapshot
	Has(ctx context.Context, center model.LatLng, radius float64) bool
}

// Scorer scores gathered evidence.
type Scorer interface {
	Score(ctx context.Context, in scoring.Input) model.AnalysisScore
}

// Notifier is told about every analyzed area.
type Notifier interface {
	Notify(req prefetch.Request)
}

// Pipeline analyzes parcels.
type Pipeline struct {
	poi      POIFetcher
	market   MarketEstimator
	scorer   Scorer
	notifier Notifier
	rules    []risk.Rule
	metrics  *monitoring.Metrics
	now      func() time.Time

	defaultRadius float64
	maxRadius     float64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPrefetch notifies n of every analyzed area.
func WithPrefetch(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithMetrics records phase timings and recommendations.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRadius sets the radius used when a request has none, and the largest
// radius accepted.
func WithRadius(def, maxRadius float64) Option {
	return func(p *Pipeline) {
		if def > 0 {
			p.defaultRadius = def
		}
		if maxRadius > 0 {
			p.maxRadius = min(maxRadius, MaxRadius)
		}
	}
}

// WithRiskRules replaces the proximity rules.
func WithRiskRules(rules []risk.Rule) Option {
	return func(p *Pipeline) { p.rules = rules }
}

// WithClock overrides the time source of AnalyzedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. A nil scorer uses the template-only engine.
func New(poi POIFetcher, market MarketEstimator, scorer Scorer, opts ...Option) *Pipeline {
	if scorer == nil {
		scorer = scoring.New(nil)
	}
	p := &Pipeline{
		poi:           poi,
		market:        market,
		scorer:        scorer,
		rules:         risk.DefaultRules,
		now:           time.Now,
		defaultRadius: DefaultRadius,
		maxRadius:     MaxRadius,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Analyze runs every phase for one parcel. The only error is an invalid
// polygon (wrapping geometry.ErrInvalidGeometry); every other failure
// degrades its own part of the result.
func (p *Pipeline) Analyze(ctx context.Context, req model.Request) (*model.Result, error) {
	start := time.Now()
	id := uuid.NewString()
	log := zap.L().With(zap.String("analysis_id", id))

	parcel, err := geometry.Calculate(req.Coordinates)
	if err != nil {
		log.Info("analysis: rejected parcel", zap.Error(err))
		return nil, err
	}
	p.observe(log, "geometry", start)

	radius := p.radius(req.Radius)
	center := parcel.Center

	var (
		amenities  []model.Amenity
		infra      map[model.Layer][]model.Feature
		assessment model.RiskAssessment
		market     model.MarketSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.phase(log, "infrastructure", func() {
			infra = p.poi.FetchInfrastructure(gctx, center, radius, req.Layers)
		})
		// Risk only needs infrastructure, so it starts as soon as that lands.
		p.phase(log, "risk", func() {
			assessment = risk.AssessWith(p.rules, center, infra)
		})
		return nil
	})
	g.Go(func() error {
		p.phase(log, "amenities", func() {
			amenities = p.poi.FetchAmenities(gctx, center, radius, req.Categories)
		})
		return nil
	})
	g.Go(func() error {
		p.phase(log, "market", func() {
			market = p.market.Estimate(gctx, center, radius)
		})
		return nil
	})
	_ = g.Wait()

	if amenities == nil {
		amenities = []model.Amenity{}
	}
	if infra == nil {
		infra = map[model.Layer][]model.Feature{}
	}
	if assessment.Findings == nil {
		assessment = model.RiskAssessment{Findings: []model.RiskFinding{}, OverallLevel: risk.Level(0)}
	}

	var score model.AnalysisScore
	p.phase(log, "scoring", func() {
		score = p.scorer.Score(ctx, scoring.Input{
			Parcel:         parcel,
			Amenities:      amenities,
			Infrastructure: infra,
			Market:         market,
			Risk:           assessment,
		})
	})

	if p.notifier != nil {
		p.notifier.Notify(prefetch.Request{
			Center:     center,
			Radius:     radius,
			Categories: req.Categories,
			Layers:     req.Layers,
		})
	}

	p.metrics.ObservePhase("total", time.Since(start))
	p.metrics.Analysis(string(score.Recommendation))
	log.Info("analysis: complete",
		zap.Float64("area", parcel.Area),
		zap.Float64("radius", radius),
		zap.Int("amenities", len(amenities)),
		zap.Int("risks", len(assessment.Findings)),
		zap.Int("overall", score.Overall),
		zap.String("recommendation", string(score.Recommendation)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &model.Result{
		ID:               id,
		Area:             parcel.Area,
		Orientation:      parcel.Orientation,
		FrontageCount:    parcel.FrontageCount,
		Center:           center,
		Amenities:        amenities,
		Infrastructure:   infra,
		MarketData:       market,
		AIAnalysis:       score,
		Risks:            assessment.Findings,
		OverallRiskLevel: assessment.OverallLevel,
		RiskScore:        assessment.RiskScore,
		AnalyzedAt:       p.now().UTC(),
	}, nil
}

// radius applies the default and clamps to [MinRadius, maxRadius].
func (p *Pipeline) radius(r float64) float64 {
	switch {
	case r <= 0 || math.IsNaN(r):
		return p.defaultRadius
	case r < MinRadius:
		return MinRadius
	case r > p.maxRadius:
		return p.maxRadius
	default:
		return r
	}
}

// phase runs fn, recording its duration. A panic is logged and leaves the
// phase's output at its zero value.
func (p *Pipeline) phase(log *zap.Logger, name string, fn func()) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("analysis: phase panicked",
				zap.String("phase", name),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
		p.observe(log, name, start)
	}()
	fn()
}

func (p *Pipeline) observe(log *zap.Logger, name string, start time.Time) {
	d := time.Since(start)
	p.metrics.ObservePhase(name, d)
	log.Debug("analysis: phase complete", zap.String("phase", name), zap.Duration("duration", d))
}
