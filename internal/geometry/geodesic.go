package geometry

import (
	"math"

	"github.com/sells-group/property-analyzer/internal/model"
)

// compassSectors lists orientations clockwise from North. Each sector spans
// 45° centered on its label.
var compassSectors = [8]model.Orientation{
	model.OrientationNorth,
	model.OrientationNortheast,
	model.OrientationEast,
	model.OrientationSoutheast,
	model.OrientationSouth,
	model.OrientationSouthwest,
	model.OrientationWest,
	model.OrientationNorthwest,
}

// OrientationFor buckets a bearing in degrees into one of 8 compass labels.
// [337.5, 360) and [0, 22.5) map to North.
func OrientationFor(bearing float64) model.Orientation {
	b := normalizeBearing(bearing)
	idx := int(math.Floor((b+22.5)/45)) % len(compassSectors)
	return compassSectors[idx]
}

// Bearing returns the initial great-circle bearing from a to b in [0, 360).
func Bearing(a, b model.LatLng) float64 {
	phi1, phi2 := toRad(a.Lat), toRad(b.Lat)
	dLambda := toRad(b.Lng - a.Lng)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return normalizeBearing(toDeg(math.Atan2(y, x)))
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b model.LatLng) float64 {
	phi1, phi2 := toRad(a.Lat), toRad(b.Lat)
	dPhi := toRad(b.Lat - a.Lat)
	dLambda := toRad(b.Lng - a.Lng)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Destination returns the point reached by travelling meters from p along
// the given initial bearing.
func Destination(p model.LatLng, bearing, meters float64) model.LatLng {
	delta := meters / earthRadius
	theta := toRad(bearing)
	phi1, lambda1 := toRad(p.Lat), toRad(p.Lng)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(phi1), math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	lng := math.Mod(toDeg(lambda2)+540, 360) - 180
	return model.LatLng{Lat: toDeg(phi2), Lng: lng}
}

// NearestOnLines returns the smallest vertex distance from p to any of the
// given line-strings, and false if there are no vertices.
func NearestOnLines(p model.LatLng, lines [][]model.LatLng) (float64, bool) {
	best := math.Inf(1)
	for _, line := range lines {
		for _, v := range line {
			if d := Haversine(p, v); d < best {
				best = d
			}
		}
	}
	return best, !math.IsInf(best, 1)
}

func normalizeBearing(b float64) float64 {
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	return b
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
