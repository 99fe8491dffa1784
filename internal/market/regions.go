package market

import (
	_ "embed"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/property-analyzer/internal/geometry"
	"github.com/sells-group/property-analyzer/internal/model"
)

//go:embed regions.yaml
var defaultRegionsYAML []byte

// Regions holds location-keyed price baselines.
type Regions struct {
	DefaultBase float64 `yaml:"default_base"`
	Rings       []Ring  `yaml:"rings"`
	Metros      []Metro `yaml:"metros"`
	Industrial  []Zone  `yaml:"industrial_zones"`
}

// Ring scales a metro base price for points within WithinKm of its centre.
type Ring struct {
	WithinKm float64 `yaml:"within_km"`
	Factor   float64 `yaml:"factor"`
}

// Metro is a city centre with a base land price.
type Metro struct {
	Name      string  `yaml:"name"`
	Slug      string  `yaml:"slug"`
	Lat       float64 `yaml:"lat"`
	Lng       float64 `yaml:"lng"`
	BasePrice float64 `yaml:"base_price"`
}

// Zone is an industrial area that depresses nearby land prices.
type Zone struct {
	Name     string  `yaml:"name"`
	Lat      float64 `yaml:"lat"`
	Lng      float64 `yaml:"lng"`
	RadiusKm float64 `yaml:"radius_km"`
	Discount float64 `yaml:"discount"`
}

// DefaultRegions returns the embedded baselines.
func DefaultRegions() (*Regions, error) {
	return ParseRegions(defaultRegionsYAML)
}

// LoadRegions reads baselines from a YAML file. An empty path returns the
// embedded defaults.
func LoadRegions(path string) (*Regions, error) {
	if path == "" {
		return DefaultRegions()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "market: read regions file %s", path)
	}
	return ParseRegions(b)
}

// ParseRegions decodes and validates YAML baselines.
func ParseRegions(b []byte) (*Regions, error) {
	var r Regions
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, eris.Wrap(err, "market: parse regions")
	}
	if r.DefaultBase <= 0 {
		return nil, eris.New("market: regions default_base must be > 0")
	}
	if len(r.Rings) == 0 {
		return nil, eris.New("market: regions need at least one ring")
	}
	for _, m := range r.Metros {
		if m.BasePrice <= 0 {
			return nil, eris.Errorf("market: metro %q has no base_price", m.Name)
		}
	}
	for _, z := range r.Industrial {
		if z.Discount < 0 || z.Discount >= 1 {
			return nil, eris.Errorf("market: zone %q discount must be in [0,1)", z.Name)
		}
	}
	sort.Slice(r.Rings, func(i, j int) bool { return r.Rings[i].WithinKm < r.Rings[j].WithinKm })
	return &r, nil
}

// Nearest returns the closest metro and its distance in km.
func (r *Regions) Nearest(p model.LatLng) (Metro, float64, bool) {
	var (
		best  Metro
		bestD = -1.0
	)
	for _, m := range r.Metros {
		d := geometry.Haversine(p, model.LatLng{Lat: m.Lat, Lng: m.Lng}) / 1000
		if bestD < 0 || d < bestD {
			best, bestD = m, d
		}
	}
	return best, bestD, bestD >= 0
}

// BasePrice returns the baseline price per m² at p.
func (r *Regions) BasePrice(p model.LatLng) float64 {
	base := r.DefaultBase
	if m, d, ok := r.Nearest(p); ok {
		for _, ring := range r.Rings {
			if d <= ring.WithinKm {
				base = m.BasePrice * ring.Factor
				break
			}
		}
	}
	return base * (1 - r.discount(p))
}

// discount returns the largest discount of any zone containing p.
func (r *Regions) discount(p model.LatLng) float64 {
	var best float64
	for _, z := range r.Industrial {
		d := geometry.Haversine(p, model.LatLng{Lat: z.Lat, Lng: z.Lng}) / 1000
		if d <= z.RadiusKm && z.Discount > best {
			best = z.Discount
		}
	}
	return best
}

// regionSlug names the metro a query falls in, for source URL templates.
func (r *Regions) regionSlug(p model.LatLng) string {
	if r == nil {
		return ""
	}
	m, _, ok := r.Nearest(p)
	if !ok {
		return ""
	}
	return m.Slug
}
