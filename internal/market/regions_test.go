package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-analyzer/internal/model"
)

func TestDefaultRegions(t *testing.T) {
	t.Parallel()

	r, err := DefaultRegions()
	require.NoError(t, err)
	assert.Len(t, r.Metros, 8)
	assert.NotEmpty(t, r.Industrial)
	for i := 1; i < len(r.Rings); i++ {
		assert.Less(t, r.Rings[i-1].WithinKm, r.Rings[i].WithinKm)
	}
}

func TestBasePrice(t *testing.T) {
	t.Parallel()

	r, err := DefaultRegions()
	require.NoError(t, err)

	tests := []struct {
		name string
		p    model.LatLng
		want float64
	}{
		{"saigon centre", model.LatLng{Lat: 10.7769, Lng: 106.7009}, 150e6},
		{"inside tan thuan zone", model.LatLng{Lat: 10.7608, Lng: 106.7280}, 150e6 * 0.65 * 0.85},
		{"hanoi centre", model.LatLng{Lat: 21.0285, Lng: 105.8542}, 140e6},
		{"open ocean", model.LatLng{Lat: 0, Lng: 0}, 6e6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, r.BasePrice(tt.p), 1)
		})
	}
}

func TestBasePriceDecreasesWithDistance(t *testing.T) {
	t.Parallel()

	r, err := DefaultRegions()
	require.NoError(t, err)

	// Heading north from Hanoi avoids every industrial zone.
	prev := r.BasePrice(model.LatLng{Lat: 21.0285, Lng: 105.8542})
	for _, dLat := range []float64{0.05, 0.1, 0.2, 0.4} {
		cur := r.BasePrice(model.LatLng{Lat: 21.0285 + dLat, Lng: 105.8542})
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestNearestAndSlug(t *testing.T) {
	t.Parallel()

	r, err := DefaultRegions()
	require.NoError(t, err)

	m, km, ok := r.Nearest(model.LatLng{Lat: 16.06, Lng: 108.21})
	require.True(t, ok)
	assert.Equal(t, "da-nang", m.Slug)
	assert.Less(t, km, 2.0)

	assert.Equal(t, "tp-hcm", r.regionSlug(model.LatLng{Lat: 10.78, Lng: 106.70}))

	var nilRegions *Regions
	assert.Empty(t, nilRegions.regionSlug(model.LatLng{}))
}

func TestParseRegionsValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"no default", "rings: [{within_km: 1, factor: 1}]", "default_base"},
		{"no rings", "default_base: 1", "ring"},
		{"bad discount", "default_base: 1\nrings: [{within_km: 1, factor: 1}]\nindustrial_zones: [{name: z, discount: 1}]", "discount"},
		{"metro without price", "default_base: 1\nrings: [{within_km: 1, factor: 1}]\nmetros: [{name: m}]", "base_price"},
		{"malformed", "default_base: [", "parse regions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRegions([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadRegions(t *testing.T) {
	t.Parallel()

	r, err := LoadRegions("")
	require.NoError(t, err)
	assert.NotEmpty(t, r.Metros)

	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_base: 9000000\nrings:\n  - within_km: 30\n    factor: 0.5\n  - within_km: 5\n    factor: 1\n"), 0o644))

	r, err = LoadRegions(path)
	require.NoError(t, err)
	assert.InDelta(t, 9e6, r.BasePrice(model.LatLng{}), 1)
	assert.InDelta(t, 5.0, r.Rings[0].WithinKm, 0)

	_, err = LoadRegions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
