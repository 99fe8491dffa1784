package market

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-analyzer/internal/config"
	"github.com/sells-group/property-analyzer/internal/resilience"
)

// APISource reads listings from a JSON API. Field mappings are dotted
// paths into each item ("price", "ad.size").
type APISource struct {
	cfg    config.SourceConfig
	client *http.Client
}

// NewAPISource creates an APISource. A nil client uses http.DefaultClient.
func NewAPISource(cfg config.SourceConfig, client *http.Client) *APISource {
	if client == nil {
		client = http.DefaultClient
	}
	return &APISource{cfg: cfg, client: client}
}

// Name implements Source.
func (s *APISource) Name() string { return s.cfg.Name }

// Type implements Source.
func (s *APISource) Type() string { return TypeAPI }

// Fetch implements Source.
func (s *APISource) Fetch(ctx context.Context, q Query) ([]RawListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, expandURL(s.cfg.URL, q), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "market: build request for %s", s.cfg.Name)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "market: fetch %s", s.cfg.Name), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckResponse(resp, "market: "+s.cfg.Name); err != nil {
		return nil, err
	}

	var payload any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, eris.Wrapf(err, "market: decode %s response", s.cfg.Name)
	}

	items, ok := lookup(payload, s.cfg.Fields.Items).([]any)
	if !ok {
		return nil, eris.Errorf("market: %s response has no item list at %q", s.cfg.Name, s.cfg.Fields.Items)
	}

	f := s.cfg.Fields
	out := make([]RawListing, 0, len(items))
	for _, it := range items {
		l := RawListing{
			Title:   asString(lookup(it, f.Title)),
			Address: asString(lookup(it, f.Address)),
			URL:     asString(lookup(it, f.URL)),
		}
		switch v := lookup(it, f.Price).(type) {
		case json.Number:
			if n, err := v.Float64(); err == nil && n > 0 {
				l.Price = scaleBare(n)
			}
		case string:
			l.PriceText = v
		}
		switch v := lookup(it, f.Area).(type) {
		case json.Number:
			l.Area, _ = v.Float64()
		case string:
			l.AreaText = v
		}
		if l.Price == 0 && l.PriceText == "" {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// lookup walks a dotted path through decoded JSON. An empty path returns v.
func lookup(v any, path string) any {
	if path == "" {
		return v
	}
	for _, part := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			v = node[part]
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			v = node[i]
		default:
			return nil
		}
	}
	return v
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}
