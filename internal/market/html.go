package market

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/property-analyzer/internal/config"
	"github.com/sells-group/property-analyzer/internal/resilience"
)

// HTMLSource scrapes a listing results page with CSS selectors.
type HTMLSource struct {
	cfg    config.SourceConfig
	client *http.Client
}

// NewHTMLSource creates an HTMLSource. A nil client uses http.DefaultClient.
func NewHTMLSource(cfg config.SourceConfig, client *http.Client) *HTMLSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTMLSource{cfg: cfg, client: client}
}

// Name implements Source.
func (s *HTMLSource) Name() string { return s.cfg.Name }

// Type implements Source.
func (s *HTMLSource) Type() string { return TypeHTML }

// Fetch implements Source.
func (s *HTMLSource) Fetch(ctx context.Context, q Query) ([]RawListing, error) {
	pageURL := expandURL(s.cfg.URL, q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "market: build request for %s", s.cfg.Name)
	}
	applyBrowserHeaders(req)
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

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, eris.Wrapf(err, "market: parse html from %s", s.cfg.Name)
	}
	return s.extract(doc, pageURL), nil
}

func (s *HTMLSource) extract(doc *goquery.Document, pageURL string) []RawListing {
	sel := s.cfg.Selectors
	var out []RawListing
	doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		l := RawListing{
			Title:     text(item, sel.Title),
			PriceText: text(item, sel.Price),
			AreaText:  text(item, sel.Area),
			Address:   text(item, sel.Address),
		}
		if sel.Link != "" {
			if href, ok := item.Find(sel.Link).First().Attr("href"); ok {
				l.URL = resolveURL(pageURL, href)
			}
		}
		if l.PriceText == "" {
			return
		}
		out = append(out, l)
	})
	return out
}

func text(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(item.Find(selector).First().Text()), " ")
}

// decodeBody converts non-UTF-8 pages using the declared charset.
func decodeBody(resp *http.Response) (io.Reader, error) {
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return resp.Body, nil
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return resp.Body, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "market: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(resp.Body), nil
}

func applyBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
