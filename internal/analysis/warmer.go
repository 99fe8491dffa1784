package analysis

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/property-analyzer/internal/prefetch"
)

// Warmer fills the cache for prefetch tasks, fetching only the datasets
// that are not already cached.
type Warmer struct {
	poi    POIFetcher
	market MarketEstimator
}

// NewWarmer creates a Warmer over the pipeline's data sources.
func NewWarmer(poi POIFetcher, market MarketEstimator) *Warmer {
	return &Warmer{poi: poi, market: market}
}

// Warm implements prefetch.Warmer. It returns how many datasets it fetched.
func (w *Warmer) Warm(ctx context.Context, t prefetch.Task) (int, error) {
	var jobs []func(context.Context)
	if !w.poi.HasAmenities(ctx, t.Center, t.Radius, t.Categories) {
		jobs = append(jobs, func(ctx context.Context) {
			w.poi.FetchAmenities(ctx, t.Center, t.Radius, t.Categories)
		})
	}
	if !w.poi.HasInfrastructure(ctx, t.Center, t.Radius, t.Layers) {
		jobs = append(jobs, func(ctx context.Context) {
			w.poi.FetchInfrastructure(ctx, t.Center, t.Radius, t.Layers)
		})
	}
	if !w.market.Has(ctx, t.Center, t.Radius) {
		jobs = append(jobs, func(ctx context.Context) {
			w.market.Estimate(ctx, t.Center, t.Radius)
		})
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			job(gctx)
			return nil
		})
	}
	_ = g.Wait()

	// The sources swallow their own errors; a cancelled task is the only
	// failure worth reporting.
	if err := ctx.Err(); err != nil {
		return len(jobs), eris.Wrapf(err, "analysis: warm-up of %s interrupted", t.Key())
	}
	return len(jobs), nil
}
