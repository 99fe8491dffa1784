// Package poi finds notable amenities and infrastructure around a point
// using the Overpass API.
package poi

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/property-analyzer/internal/cache"
	"github.com/sells-group/property-analyzer/internal/geometry"
	"github.com/sells-group/property-analyzer/internal/model"
	"github.com/sells-group/property-analyzer/internal/monitoring"
	"github.com/sells-group/property-analyzer/pkg/overpass"
)

const (
	// walkSpeed is metres per minute.
	walkSpeed = 80.0

	defaultConcurrency = 4
	defaultLimit       = 50
)

type categoryQuery struct {
	Category model.Category
	Center   model.LatLng
	Radius   float64
}

type layerQuery struct {
	Layer  model.Layer
	Center model.LatLng
	Radius float64
}

// Fetcher queries amenity categories and infrastructure layers. Each
// category or layer is cached independently, so overlapping requests reuse
// whatever is already warm.
type Fetcher struct {
	client       overpass.Querier
	cache        *cache.Cache
	metrics      *monitoring.Metrics
	concurrency  int
	limit        int
	includeMinor bool
	amenityTTL   time.Duration
	layerTTL     time.Duration

	amenities      func(context.Context, categoryQuery) ([]model.Amenity, error)
	infrastructure func(context.Context, layerQuery) ([]model.Feature, error)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithConcurrency bounds concurrent Overpass queries per fetch.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithLimit caps results per category or layer.
func WithLimit(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.limit = n
		}
	}
}

// WithIncludeMinor keeps unnamed, unbranded places.
func WithIncludeMinor(v bool) Option {
	return func(f *Fetcher) { f.includeMinor = v }
}

// WithTTL overrides how long amenity and infrastructure results stay
// cached. Zero keeps the default.
func WithTTL(amenities, infrastructure time.Duration) Option {
	return func(f *Fetcher) {
		if amenities > 0 {
			f.amenityTTL = amenities
		}
		if infrastructure > 0 {
			f.layerTTL = infrastructure
		}
	}
}

// WithMetrics records source outcomes.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// New creates a Fetcher. A nil cache gets a private in-memory one.
func New(client overpass.Querier, c *cache.Cache, opts ...Option) *Fetcher {
	if c == nil {
		c = cache.New(cache.NewMemoryStore(), nil)
	}
	f := &Fetcher{
		client:      client,
		cache:       c,
		concurrency: defaultConcurrency,
		limit:       defaultLimit,
		amenityTTL:  cache.TTLAmenities,
		layerTTL:    cache.TTLInfrastructure,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.amenities = cache.Cached(c, "amenities", f.amenityTTL, f.amenityKey, f.queryCategory)
	f.infrastructure = cache.Cached(c, "infrastructure", f.layerTTL, f.layerKey, f.queryLayer)
	return f
}

// FetchAmenities returns notable places for each category, nearest first.
// A failing category contributes nothing. Empty categories means all.
func (f *Fetcher) FetchAmenities(ctx context.Context, center model.LatLng, radius float64, categories []model.Category) []model.Amenity {
	cats := normalizeCategories(categories)
	results := make([][]model.Amenity, len(cats))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, cat := range cats {
		g.Go(func() error {
			list, err := f.amenities(gctx, categoryQuery{Category: cat, Center: center, Radius: radius})
			if err != nil {
				zap.L().Warn("poi: category fetch failed",
					zap.String("category", string(cat)), zap.Error(err))
				return nil
			}
			results[i] = list
			return nil
		})
	}
	_ = g.Wait()

	var all []model.Amenity
	for _, list := range results {
		all = append(all, list...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Distance < all[j].Distance })
	return all
}

// FetchInfrastructure returns features per layer, nearest first. A failing
// layer maps to an empty list. Empty layers means all.
func (f *Fetcher) FetchInfrastructure(ctx context.Context, center model.LatLng, radius float64, layers []model.Layer) map[model.Layer][]model.Feature {
	ls := normalizeLayers(layers)
	results := make([][]model.Feature, len(ls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, layer := range ls {
		g.Go(func() error {
			list, err := f.infrastructure(gctx, layerQuery{Layer: layer, Center: center, Radius: radius})
			if err != nil {
				zap.L().Warn("poi: layer fetch failed",
					zap.String("layer", string(layer)), zap.Error(err))
				return nil
			}
			results[i] = list
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[model.Layer][]model.Feature, len(ls))
	for i, layer := range ls {
		if results[i] == nil {
			out[layer] = []model.Feature{}
			continue
		}
		out[layer] = results[i]
	}
	return out
}

// HasAmenities reports whether every category is already cached.
func (f *Fetcher) HasAmenities(ctx context.Context, center model.LatLng, radius float64, categories []model.Category) bool {
	for _, cat := range normalizeCategories(categories) {
		if !f.cache.Has(ctx, f.amenityKey(categoryQuery{Category: cat, Center: center, Radius: radius})) {
			return false
		}
	}
	return true
}

// HasInfrastructure reports whether every layer is already cached.
func (f *Fetcher) HasInfrastructure(ctx context.Context, center model.LatLng, radius float64, layers []model.Layer) bool {
	for _, layer := range normalizeLayers(layers) {
		if !f.cache.Has(ctx, f.layerKey(layerQuery{Layer: layer, Center: center, Radius: radius})) {
			return false
		}
	}
	return true
}

func (f *Fetcher) amenityKey(q categoryQuery) string {
	return cache.Key("amenities", map[string]any{
		"category": string(q.Category),
		"lat":      cache.Round(q.Center.Lat, 4),
		"lng":      cache.Round(q.Center.Lng, 4),
		"radius":   math.Round(q.Radius),
		"minor":    f.includeMinor,
	})
}

func (f *Fetcher) layerKey(q layerQuery) string {
	return cache.Key("infrastructure", map[string]any{
		"layer":  string(q.Layer),
		"lat":    cache.Round(q.Center.Lat, 4),
		"lng":    cache.Round(q.Center.Lng, 4),
		"radius": math.Round(q.Radius),
	})
}

func (f *Fetcher) queryCategory(ctx context.Context, q categoryQuery) ([]model.Amenity, error) {
	rules := categoryDefs[q.Category]
	els, err := f.client.Query(ctx, buildQuery(rules, []string{"node", "way"}, q.Center, q.Radius))
	f.metrics.SourceFetch("overpass", err)
	if err != nil {
		return nil, err
	}

	out := make([]model.Amenity, 0, len(els))
	for _, el := range els {
		sel, ok := match(rules, el.Tags)
		if !ok {
			continue
		}
		kind := sel.typeOf(el.Tags)
		if !notable(q.Category, kind, el.Tags, f.includeMinor) {
			continue
		}
		pos := model.LatLng{Lat: el.Lat, Lng: el.Lon}
		dist := geometry.Haversine(q.Center, pos)
		if dist > q.Radius {
			continue
		}
		name := displayName(el.Tags)
		if name == "" {
			name = kind
		}
		out = append(out, model.Amenity{
			ID:       el.ID,
			Name:     name,
			Category: q.Category,
			Distance: math.Round(dist),
			WalkTime: int(math.Round(dist / walkSpeed)),
			Lat:      el.Lat,
			Lng:      el.Lon,
			Type:     kind,
			Tags:     el.Tags,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > f.limit {
		out = out[:f.limit]
	}
	return out, nil
}

func (f *Fetcher) queryLayer(ctx context.Context, q layerQuery) ([]model.Feature, error) {
	def := layerDefs[q.Layer]
	els, err := f.client.Query(ctx, buildQuery(def.rules, def.elements, q.Center, q.Radius))
	f.metrics.SourceFetch("overpass", err)
	if err != nil {
		return nil, err
	}

	out := make([]model.Feature, 0, len(els))
	for _, el := range els {
		sel, ok := match(def.rules, el.Tags)
		if !ok {
			continue
		}
		feat := model.Feature{
			ID:    el.ID,
			Name:  displayName(el.Tags),
			Layer: q.Layer,
			Tags:  el.Tags,
		}
		if feat.Name == "" {
			feat.Name = sel.typeOf(el.Tags)
		}

		if len(el.Lines) > 0 && (def.kind == model.FeatureLine || el.Type != overpass.TypeNode) {
			feat.Kind = model.FeatureLine
			feat.Lines = toLatLng(el.Lines)
			d, ok := geometry.NearestOnLines(q.Center, feat.Lines)
			if !ok {
				continue
			}
			feat.Distance = math.Round(d)
		} else {
			feat.Kind = model.FeaturePoint
			feat.Lat, feat.Lng = el.Lat, el.Lon
			feat.Distance = math.Round(geometry.Haversine(q.Center, model.LatLng{Lat: el.Lat, Lng: el.Lon}))
		}
		out = append(out, feat)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > f.limit {
		out = out[:f.limit]
	}
	return out, nil
}

func toLatLng(lines [][]overpass.Point) [][]model.LatLng {
	out := make([][]model.LatLng, 0, len(lines))
	for _, l := range lines {
		pts := make([]model.LatLng, len(l))
		for i, p := range l {
			pts[i] = model.LatLng{Lat: p.Lat, Lng: p.Lon}
		}
		out = append(out, pts)
	}
	return out
}

func normalizeCategories(in []model.Category) []model.Category {
	if len(in) == 0 {
		return model.AllCategories
	}
	seen := make(map[model.Category]bool, len(in))
	out := make([]model.Category, 0, len(in))
	for _, c := range in {
		if !c.Valid() || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func normalizeLayers(in []model.Layer) []model.Layer {
	if len(in) == 0 {
		return model.AllLayers
	}
	seen := make(map[model.Layer]bool, len(in))
	out := make([]model.Layer, 0, len(in))
	for _, l := range in {
		if !l.Valid() || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
