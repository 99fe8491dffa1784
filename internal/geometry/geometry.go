// Package geometry derives parcel metrics (area, centroid, orientation,
// frontage) from a user-drawn polygon and provides the geodesic helpers used
// across the analysis pipeline.
package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/property-analyzer/internal/model"
)

// ErrInvalidGeometry is returned for polygons that cannot describe a parcel.
var ErrInvalidGeometry = eris.New("geometry: invalid geometry")

// earthRadius is the mean Earth radius in meters.
const earthRadius = 6371008.8

// minVertices is the smallest vertex count that encloses an area.
const minVertices = 3

// degenerateArea is the squared-degree area below which a ring is treated as
// collinear. A 1 m² parcel is roughly 8e-11.
const degenerateArea = 1e-13

// Calculate computes the metrics of a parcel. The polygon does not need to be
// explicitly closed.
func Calculate(coords []model.LngLat) (model.Parcel, error) {
	if len(coords) < minVertices {
		return model.Parcel{}, eris.Wrapf(ErrInvalidGeometry, "need at least %d vertices, got %d", minVertices, len(coords))
	}
	for i, c := range coords {
		if !finite(c.Lng()) || !finite(c.Lat()) {
			return model.Parcel{}, eris.Wrapf(ErrInvalidGeometry, "vertex %d is not a finite coordinate", i)
		}
		if math.Abs(c.Lat()) > 90 || math.Abs(c.Lng()) > 180 {
			return model.Parcel{}, eris.Wrapf(ErrInvalidGeometry, "vertex %d is out of range", i)
		}
	}

	center := centroid(coords)
	first := model.LatLng{Lat: coords[0].Lat(), Lng: coords[0].Lng()}
	second := model.LatLng{Lat: coords[1].Lat(), Lng: coords[1].Lng()}

	vertices := make([]model.LngLat, len(coords))
	copy(vertices, coords)

	return model.Parcel{
		Vertices:      vertices,
		Area:          math.Round(area(coords, center.Lat)),
		Orientation:   OrientationFor(Bearing(first, second)),
		FrontageCount: len(coords) - 1,
		Center:        center,
	}, nil
}

// area projects the ring onto a local equirectangular plane (meters) and
// returns its planar area.
func area(coords []model.LngLat, refLat float64) float64 {
	kx := toRad(1) * earthRadius * math.Cos(toRad(refLat))
	ky := toRad(1) * earthRadius
	origin := coords[0]

	flat := make([]float64, 0, 2*(len(coords)+1))
	for _, c := range coords {
		flat = append(flat, (c.Lng()-origin.Lng())*kx, (c.Lat()-origin.Lat())*ky)
	}
	flat = closeRing(flat)

	poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	return math.Abs(poly.Area())
}

// centroid returns the area-weighted centroid of the polygon, falling back to
// the vertex mean when the ring is degenerate.
func centroid(coords []model.LngLat) model.LatLng {
	origin := coords[0]
	flat := make([]float64, 0, 2*(len(coords)+1))
	for _, c := range coords {
		flat = append(flat, c.Lng()-origin.Lng(), c.Lat()-origin.Lat())
	}
	flat = closeRing(flat)

	poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	if math.Abs(poly.Area()) > degenerateArea {
		if c, err := xy.Centroid(poly); err == nil && finite(c.X()) && finite(c.Y()) {
			return model.LatLng{Lat: origin.Lat() + c.Y(), Lng: origin.Lng() + c.X()}
		}
	}

	var sumLat, sumLng float64
	for _, c := range coords {
		sumLat += c.Lat()
		sumLng += c.Lng()
	}
	n := float64(len(coords))
	return model.LatLng{Lat: sumLat / n, Lng: sumLng / n}
}

// closeRing appends the first XY pair when the ring is open.
func closeRing(flat []float64) []float64 {
	n := len(flat)
	if n >= 4 && (flat[0] != flat[n-2] || flat[1] != flat[n-1]) {
		flat = append(flat, flat[0], flat[1])
	}
	return flat
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
