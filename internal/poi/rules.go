package poi

import (
	"github.com/sells-group/property-analyzer/internal/model"
)

// filter matches a tag key against a set of values. An empty value set
// matches any value.
type filter struct {
	key    string
	values []string
}

// selector is a conjunction of filters. A rule set is a disjunction of
// selectors.
type selector []filter

func (s selector) matches(tags map[string]string) bool {
	for _, f := range s {
		v, ok := tags[f.key]
		if !ok {
			return false
		}
		if len(f.values) == 0 {
			continue
		}
		found := false
		for _, want := range f.values {
			if v == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// typeOf returns the value of the selector's first filter, which names the
// kind of place ("hospital", "bus_stop").
func (s selector) typeOf(tags map[string]string) string {
	if len(s) == 0 {
		return ""
	}
	return tags[s[0].key]
}

func one(key string, values ...string) selector {
	return selector{{key: key, values: values}}
}

// categoryDefs maps each amenity category to its tag rules.
var categoryDefs = map[model.Category][]selector{
	model.CategoryHealthcare: {
		one("amenity", "hospital", "clinic", "doctors", "pharmacy", "dentist"),
		one("healthcare"),
	},
	model.CategoryEducation: {
		one("amenity", "school", "kindergarten", "university", "college"),
	},
	model.CategoryShopping: {
		one("shop", "supermarket", "mall", "convenience", "department_store", "marketplace"),
		one("amenity", "marketplace"),
	},
	model.CategoryEntertainment: {
		one("amenity", "cinema", "theatre", "restaurant", "cafe"),
		one("leisure", "park", "sports_centre", "fitness_centre"),
	},
	model.CategoryTransport: {
		one("public_transport", "station"),
		one("railway", "station", "subway_entrance"),
		one("highway", "bus_stop"),
		one("amenity", "bus_station"),
	},
}

// layerDef describes how an infrastructure layer is queried.
type layerDef struct {
	rules []selector
	// elements lists the OSM element types queried (node, way, relation).
	elements []string
	kind     model.FeatureKind
}

var layerDefs = map[model.Layer]layerDef{
	model.LayerRoads: {
		rules:    []selector{one("highway", "primary", "secondary", "trunk", "tertiary", "motorway")},
		elements: []string{"way"},
		kind:     model.FeatureLine,
	},
	model.LayerMetro: {
		rules: []selector{
			{{key: "railway", values: []string{"station", "subway_entrance"}}, {key: "station", values: []string{"subway"}}},
			{{key: "railway", values: []string{"station", "subway_entrance"}}, {key: "subway", values: []string{"yes"}}},
		},
		elements: []string{"node", "way"},
		kind:     model.FeaturePoint,
	},
	model.LayerBusRoutes: {
		rules:    []selector{one("route", "bus")},
		elements: []string{"relation"},
		kind:     model.FeatureLine,
	},
	model.LayerMetroLines: {
		rules:    []selector{one("route", "subway", "light_rail")},
		elements: []string{"relation"},
		kind:     model.FeatureLine,
	},
	model.LayerIndustrial: {
		rules:    []selector{one("landuse", "industrial"), one("man_made", "works")},
		elements: []string{"node", "way"},
		kind:     model.FeaturePoint,
	},
	model.LayerPower: {
		rules:    []selector{one("power", "plant", "substation", "tower", "line")},
		elements: []string{"node", "way"},
		kind:     model.FeaturePoint,
	},
	model.LayerCemetery: {
		rules:    []selector{one("landuse", "cemetery"), one("amenity", "grave_yard")},
		elements: []string{"node", "way"},
		kind:     model.FeaturePoint,
	},
	model.LayerWater: {
		rules:    []selector{one("natural", "water"), one("waterway", "river", "canal", "stream")},
		elements: []string{"way", "relation"},
		kind:     model.FeatureLine,
	},
}

// match returns the first selector in rules that matches tags.
func match(rules []selector, tags map[string]string) (selector, bool) {
	for _, s := range rules {
		if s.matches(tags) {
			return s, true
		}
	}
	return nil, false
}
