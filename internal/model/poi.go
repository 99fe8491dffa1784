package model

// Category is an amenity category that can be requested.
type Category string

const (
	CategoryEducation     Category = "education"
	CategoryHealthcare    Category = "healthcare"
	CategoryShopping      Category = "shopping"
	CategoryEntertainment Category = "entertainment"
	CategoryTransport     Category = "transport"
)

// AllCategories lists every supported amenity category.
var AllCategories = []Category{
	CategoryEducation,
	CategoryHealthcare,
	CategoryShopping,
	CategoryEntertainment,
	CategoryTransport,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range AllCategories {
		if k == c {
			return true
		}
	}
	return false
}

// Layer is an infrastructure layer that can be requested.
type Layer string

const (
	LayerRoads      Layer = "roads"
	LayerMetro      Layer = "metro"
	LayerBusRoutes  Layer = "bus_routes"
	LayerMetroLines Layer = "metro_lines"
	LayerIndustrial Layer = "industrial"
	LayerPower      Layer = "power"
	LayerCemetery   Layer = "cemetery"
	LayerWater      Layer = "water"
)

// AllLayers lists every supported infrastructure layer.
var AllLayers = []Layer{
	LayerRoads,
	LayerMetro,
	LayerBusRoutes,
	LayerMetroLines,
	LayerIndustrial,
	LayerPower,
	LayerCemetery,
	LayerWater,
}

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool {
	for _, k := range AllLayers {
		if k == l {
			return true
		}
	}
	return false
}

// Amenity is a notable point of interest near the parcel.
type Amenity struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	Category Category          `json:"category"`
	Distance float64           `json:"distance"`
	WalkTime int               `json:"walkTime"`
	Lat      float64           `json:"lat"`
	Lng      float64           `json:"lng"`
	Type     string            `json:"type"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// FeatureKind distinguishes point features from line features.
type FeatureKind string

const (
	FeaturePoint FeatureKind = "point"
	FeatureLine  FeatureKind = "line"
)

// Feature is an infrastructure element within a layer. Point features carry
// Lat/Lng; line features carry one or more line-strings in Lines.
type Feature struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	Layer    Layer             `json:"layer"`
	Kind     FeatureKind       `json:"kind"`
	Lat      float64           `json:"lat,omitempty"`
	Lng      float64           `json:"lng,omitempty"`
	Lines    [][]LatLng        `json:"lines,omitempty"`
	Distance float64           `json:"distance"`
	Tags     map[string]string `json:"tags,omitempty"`
}
