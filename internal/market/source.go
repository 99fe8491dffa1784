package market

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-analyzer/internal/config"
	"github.com/sells-group/property-analyzer/internal/model"
)

// Source kinds.
const (
	TypeHTML     = "html"
	TypeAPI      = "api"
	TypeEstimate = "estimate"
)

// Query describes the area listings are requested for.
type Query struct {
	Center model.LatLng
	Radius float64
	// Region is the slug of the nearest metro, for URL templates.
	Region string
}

// RawListing is a listing as scraped, before normalization. Price and Area
// are set when the source reports numbers; otherwise the text fields are
// parsed.
type RawListing struct {
	Title     string
	PriceText string
	AreaText  string
	Price     float64
	Area      float64
	Address   string
	URL       string
}

// Source fetches listings near a location.
type Source interface {
	Name() string
	Type() string
	Fetch(ctx context.Context, q Query) ([]RawListing, error)
}

// NewSources builds sources from configuration.
func NewSources(cfgs []config.SourceConfig, client *http.Client) ([]Source, error) {
	out := make([]Source, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Type {
		case TypeHTML:
			out = append(out, NewHTMLSource(c, client))
		case TypeAPI:
			out = append(out, NewAPISource(c, client))
		default:
			return nil, eris.Errorf("market: source %q has unknown type %q", c.Name, c.Type)
		}
	}
	return out, nil
}

// expandURL fills {lat}, {lng}, {radius} and {region} in a URL template.
func expandURL(tmpl string, q Query) string {
	r := strings.NewReplacer(
		"{lat}", strconv.FormatFloat(q.Center.Lat, 'f', 6, 64),
		"{lng}", strconv.FormatFloat(q.Center.Lng, 'f', 6, 64),
		"{radius}", strconv.FormatFloat(q.Radius, 'f', 0, 64),
		"{region}", url.PathEscape(q.Region),
	)
	return r.Replace(tmpl)
}

// resolveURL makes href absolute against base.
func resolveURL(base, href string) string {
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
