package market

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-analyzer/internal/config"
	"github.com/sells-group/property-analyzer/internal/model"
	"github.com/sells-group/property-analyzer/internal/resilience"
)

const listingPage = `<html><body>
<div class="listing">
  <h3 class="title">Đất nền   Quận 7</h3>
  <span class="price">2,5 tỷ</span>
  <span class="area">100 m²</span>
  <span class="addr">Phường Tân Phong, Quận 7</span>
  <a class="link" href="/tin/1">xem</a>
</div>
<div class="listing">
  <h3 class="title">Chưa có giá</h3>
  <span class="area">50 m²</span>
</div>
<div class="listing">
  <h3 class="title">Lô góc</h3>
  <span class="price">45 triệu/m²</span>
  <span class="area">80 m2</span>
</div>
</body></html>`

var testQuery = Query{Center: model.LatLng{Lat: 10.7769, Lng: 106.7009}, Radius: 1000, Region: "tp-hcm"}

func htmlSourceConfig(url string) config.SourceConfig {
	return config.SourceConfig{
		Name:    "listings-html",
		Type:    TypeHTML,
		URL:     url + "/search?lat={lat}&lng={lng}&r={radius}&region={region}",
		Headers: map[string]string{"X-Test": "yes"},
		Selectors: config.SelectorConfig{
			Item:    "div.listing",
			Title:   ".title",
			Price:   ".price",
			Area:    ".area",
			Address: ".addr",
			Link:    "a.link",
		},
	}
}

func TestHTMLSource_Fetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "10.776900", r.URL.Query().Get("lat"))
		assert.Equal(t, "106.700900", r.URL.Query().Get("lng"))
		assert.Equal(t, "1000", r.URL.Query().Get("r"))
		assert.Equal(t, "tp-hcm", r.URL.Query().Get("region"))
		assert.Contains(t, r.Header.Get("Accept-Language"), "vi-VN")
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, listingPage)
	}))
	defer srv.Close()

	src := NewHTMLSource(htmlSourceConfig(srv.URL), srv.Client())
	assert.Equal(t, "listings-html", src.Name())
	assert.Equal(t, TypeHTML, src.Type())

	raws, err := src.Fetch(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	assert.Equal(t, "Đất nền Quận 7", raws[0].Title)
	assert.Equal(t, "2,5 tỷ", raws[0].PriceText)
	assert.Equal(t, "100 m²", raws[0].AreaText)
	assert.Equal(t, "Phường Tân Phong, Quận 7", raws[0].Address)
	assert.Equal(t, srv.URL+"/tin/1", raws[0].URL)
	assert.Equal(t, "45 triệu/m²", raws[1].PriceText)

	listings := normalize(src.Name(), raws)
	require.Len(t, listings, 2)
	assert.InDelta(t, 2.5e9, listings[0].Price, 1)
	assert.InDelta(t, 25e6, listings[0].PricePerSqm, 1)
	assert.InDelta(t, 3.6e9, listings[1].Price, 1)
	assert.InDelta(t, 45e6, listings[1].PricePerSqm, 1)
}

func TestHTMLSource_StatusErrors(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		status    int
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusForbidden, false},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))
		src := NewHTMLSource(htmlSourceConfig(srv.URL), srv.Client())
		_, err := src.Fetch(context.Background(), testQuery)
		srv.Close()

		require.Error(t, err)
		assert.Equal(t, tt.transient, resilience.IsTransient(err), "status %d", tt.status)
	}
}

func TestHTMLSource_DecodesCharset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "Café" in Latin-1.
		_, _ = w.Write([]byte("<div class=\"listing\"><h3 class=\"title\">Caf\xe9</h3><span class=\"price\">3 t\xfd</span></div>"))
	}))
	defer srv.Close()

	src := NewHTMLSource(htmlSourceConfig(srv.URL), srv.Client())
	raws, err := src.Fetch(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "Café", raws[0].Title)
}

func TestAPISource_Fetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "tp-hcm", r.URL.Query().Get("region"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"ads":[
			{"subject":"Nhà phố","price":2500000000,"size":100,"address":"Quận 7","url":"https://example.vn/1"},
			{"subject":"Đất thổ cư","price":"3 tỷ","size":"120 m²"},
			{"subject":"Không giá"}
		]}}`)
	}))
	defer srv.Close()

	src := NewAPISource(config.SourceConfig{
		Name: "listings-api",
		Type: TypeAPI,
		URL:  srv.URL + "/ads?region={region}",
		Fields: config.FieldConfig{
			Items:   "data.ads",
			Title:   "subject",
			Price:   "price",
			Area:    "size",
			Address: "address",
			URL:     "url",
		},
	}, srv.Client())
	assert.Equal(t, TypeAPI, src.Type())

	raws, err := src.Fetch(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	assert.Equal(t, "Nhà phố", raws[0].Title)
	assert.InDelta(t, 2.5e9, raws[0].Price, 1)
	assert.InDelta(t, 100, raws[0].Area, 0)
	assert.Equal(t, "https://example.vn/1", raws[0].URL)
	assert.Equal(t, "3 tỷ", raws[1].PriceText)
	assert.Equal(t, "120 m²", raws[1].AreaText)

	listings := normalize(src.Name(), raws)
	require.Len(t, listings, 2)
	assert.InDelta(t, 25e6, listings[1].PricePerSqm, 1)
}

func TestAPISource_MissingItems(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":{}}`)
	}))
	defer srv.Close()

	src := NewAPISource(config.SourceConfig{Name: "api", URL: srv.URL, Fields: config.FieldConfig{Items: "data.ads"}}, srv.Client())
	_, err := src.Fetch(context.Background(), testQuery)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no item list")
}

func TestNewSources(t *testing.T) {
	t.Parallel()

	srcs, err := NewSources([]config.SourceConfig{
		{Name: "a", Type: TypeHTML, URL: "https://a.example"},
		{Name: "b", Type: TypeAPI, URL: "https://b.example"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, TypeHTML, srcs[0].Type())
	assert.Equal(t, TypeAPI, srcs[1].Type())

	_, err = NewSources([]config.SourceConfig{{Name: "c", Type: "ftp"}}, nil)
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	doc := map[string]any{"a": map[string]any{"b": []any{"x", map[string]any{"c": "y"}}}}
	assert.Equal(t, "y", lookup(doc, "a.b.1.c"))
	assert.Equal(t, "x", lookup(doc, "a.b.0"))
	assert.Nil(t, lookup(doc, "a.b.5"))
	assert.Nil(t, lookup(doc, "a.z.c"))
	assert.Equal(t, doc, lookup(doc, ""))
}

func TestNormalizeDropsImplausible(t *testing.T) {
	t.Parallel()

	got := normalize("s", []RawListing{
		{PriceText: "2 tỷ", AreaText: "100 m²"},
		{PriceText: "Thỏa thuận", AreaText: "100 m²"},
		{PriceText: "2 tỷ", AreaText: "5 m²"},
		{PriceText: "50 triệu", AreaText: "5000 m²"},
		{Price: 3e9},
	})
	require.Len(t, got, 1)
	assert.InDelta(t, 20e6, got[0].PricePerSqm, 1)
	assert.Equal(t, "s", got[0].Source)
}
