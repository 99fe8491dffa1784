package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_OrderIndependent(t *testing.T) {
	a := Key("amenities", map[string]any{"category": "healthcare", "lat": 10.7769, "lng": 106.7009, "radius": 1000.0})
	b := Key("amenities", map[string]any{"radius": 1000.0, "lng": 106.7009, "lat": 10.7769, "category": "healthcare"})

	assert.Equal(t, a, b)
	assert.Equal(t, "amenities:category=healthcare&lat=10.7769&lng=106.7009&radius=1000", a)
}

func TestKey_KindSeparatesNamespaces(t *testing.T) {
	params := map[string]any{"lat": 1.0}
	assert.NotEqual(t, Key("amenities", params), Key("infrastructure", params))
}

func TestKey_SlicesSorted(t *testing.T) {
	a := Key("prefetch", map[string]any{"layers": []string{"power", "roads"}})
	b := Key("prefetch", map[string]any{"layers": []string{"roads", "power"}})
	assert.Equal(t, a, b)
	assert.Equal(t, "prefetch:layers=power,roads", a)
}

func TestKey_ValueTypes(t *testing.T) {
	got := Key("x", map[string]any{"b": true, "i": 3, "n": nil, "l": int64(7)})
	assert.Equal(t, "x:b=true&i=3&l=7&n=", got)
	assert.Equal(t, "x:", Key("x", nil))
}

func TestKey_DoesNotMutateInput(t *testing.T) {
	layers := []string{"water", "power"}
	Key("x", map[string]any{"layers": layers})
	assert.Equal(t, []string{"water", "power"}, layers)
}

func TestRound(t *testing.T) {
	assert.InDelta(t, 10.7769, Round(10.776912, 4), 1e-12)
	assert.InDelta(t, 106.7009, Round(106.70085, 4), 1e-12)
	assert.InDelta(t, -0.0001, Round(-0.00014, 4), 1e-12)
}
