// Package overpass queries an Overpass API endpoint for OpenStreetMap
// elements. It wraps go-overpass with context cancellation, rate limiting,
// bounded retries and a circuit breaker.
package overpass

import (
	"context"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	goverpass "github.com/serjvanilla/go-overpass"
	"golang.org/x/time/rate"

	"github.com/sells-group/property-analyzer/internal/resilience"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// Element types.
const (
	TypeNode     = "node"
	TypeWay      = "way"
	TypeRelation = "relation"
)

// Point is a single coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Element is a tagged OSM element. Lat/Lon is the node position, or the mean
// of member coordinates for ways and relations. Lines holds one line-string
// per way (a relation contributes one per member way).
type Element struct {
	Type  string
	ID    int64
	Lat   float64
	Lon   float64
	Tags  map[string]string
	Lines [][]Point
}

// Querier runs an Overpass QL query.
type Querier interface {
	Query(ctx context.Context, ql string) ([]Element, error)
}

// Client implements Querier against an HTTP endpoint.
type Client struct {
	endpoint  string
	transport http.RoundTripper
	timeout   time.Duration
	limiter   *rate.Limiter
	breaker   *resilience.Breaker
	retry     resilience.RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit sets the sustained request rate and burst.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithBreaker sets the circuit breaker guarding the endpoint.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithTransport overrides the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// NewClient creates a Client for endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:  endpoint,
		transport: http.DefaultTransport,
		timeout:   30 * time.Second,
		limiter:   rate.NewLimiter(2, 2),
		retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Second,
			MaxBackoff:     5 * time.Second,
			JitterFraction: 0.2,
			OnRetry:        resilience.LogRetry("overpass"),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewBreaker("overpass", resilience.DefaultBreakerConfig())
	}
	return c
}

// Query runs ql and returns the tagged elements sorted by type and ID.
func (c *Client) Query(ctx context.Context, ql string) ([]Element, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]Element, error) {
		return resilience.Retry(ctx, c.retry, func(ctx context.Context) ([]Element, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "overpass: rate limiter wait")
			}
			res, err := c.do(ctx, ql)
			if err != nil {
				return nil, err
			}
			return convert(res), nil
		})
	})
}

// do executes one query. go-overpass does not accept a context, so the
// context is bound through the transport of a per-call HTTP client.
func (c *Client) do(ctx context.Context, ql string) (goverpass.Result, error) {
	tr := &contextTransport{ctx: ctx, base: c.transport}
	hc := &http.Client{Timeout: c.timeout, Transport: tr}
	api := goverpass.NewWithSettings(c.endpoint, 1, hc)
	res, err := api.Query(ql)
	if err != nil {
		if ctx.Err() != nil {
			return goverpass.Result{}, eris.Wrap(ctx.Err(), "overpass: query cancelled")
		}
		// go-overpass may flatten the transport error; keep the typed one.
		if tr.statusErr != nil {
			return goverpass.Result{}, tr.statusErr
		}
		return goverpass.Result{}, eris.Wrap(err, "overpass: query")
	}
	return res, nil
}

// contextTransport attaches ctx to outgoing requests and turns retryable
// HTTP statuses into transient errors.
type contextTransport struct {
	ctx       context.Context
	base      http.RoundTripper
	statusErr error
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, err
	}
	if cerr := resilience.CheckResponse(resp, "overpass"); cerr != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		t.statusErr = cerr
		return nil, cerr
	}
	return resp, nil
}

func convert(res goverpass.Result) []Element {
	out := make([]Element, 0, len(res.Nodes)+len(res.Ways)+len(res.Relations))

	for _, n := range res.Nodes {
		// Untagged nodes are way geometry, not places.
		if n == nil || len(n.Tags) == 0 {
			continue
		}
		out = append(out, Element{Type: TypeNode, ID: n.ID, Lat: n.Lat, Lon: n.Lon, Tags: n.Tags})
	}

	for _, w := range res.Ways {
		if w == nil || len(w.Tags) == 0 {
			continue
		}
		line := wayLine(w)
		if len(line) == 0 {
			continue
		}
		e := Element{Type: TypeWay, ID: w.ID, Tags: w.Tags, Lines: [][]Point{line}}
		e.Lat, e.Lon = mean(e.Lines)
		out = append(out, e)
	}

	for _, r := range res.Relations {
		if r == nil || len(r.Tags) == 0 {
			continue
		}
		var lines [][]Point
		for _, m := range r.Members {
			if m.Way == nil {
				continue
			}
			if line := wayLine(m.Way); len(line) > 0 {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		e := Element{Type: TypeRelation, ID: r.ID, Tags: r.Tags, Lines: lines}
		e.Lat, e.Lon = mean(lines)
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func wayLine(w *goverpass.Way) []Point {
	line := make([]Point, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		if n == nil || (n.Lat == 0 && n.Lon == 0) {
			continue
		}
		line = append(line, Point{Lat: n.Lat, Lon: n.Lon})
	}
	return line
}

func mean(lines [][]Point) (lat, lon float64) {
	var n int
	for _, l := range lines {
		for _, p := range l {
			lat += p.Lat
			lon += p.Lon
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return lat / float64(n), lon / float64(n)
}
