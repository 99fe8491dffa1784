package model

// LngLat is a single polygon vertex in GeoJSON order: [lng, lat].
type LngLat [2]float64

// Lng returns the longitude component.
func (p LngLat) Lng() float64 { return p[0] }

// Lat returns the latitude component.
func (p LngLat) Lat() float64 { return p[1] }

// LatLng is a point expressed as latitude/longitude.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Orientation is one of the 8 compass labels a parcel can face.
type Orientation string

const (
	OrientationNorth     Orientation = "North"
	OrientationNortheast Orientation = "Northeast"
	OrientationEast      Orientation = "East"
	OrientationSoutheast Orientation = "Southeast"
	OrientationSouth     Orientation = "South"
	OrientationSouthwest Orientation = "Southwest"
	OrientationWest      Orientation = "West"
	OrientationNorthwest Orientation = "Northwest"
)

// Parcel holds the geometric metrics derived from a user-drawn polygon.
type Parcel struct {
	Vertices      []LngLat    `json:"-"`
	Area          float64     `json:"area"`
	Orientation   Orientation `json:"orientation"`
	FrontageCount int         `json:"frontageCount"`
	Center        LatLng      `json:"center"`
}
