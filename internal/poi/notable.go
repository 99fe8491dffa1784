package poi

import (
	"github.com/sells-group/property-analyzer/internal/model"
	"github.com/sells-group/property-analyzer/internal/textnorm"
)

// chains are well-known local and international operators. Matching is
// accent- and case-insensitive.
var chains = []string{
	"Co.op", "Coopmart", "Co.opXtra", "WinMart", "VinMart", "Bách Hóa Xanh",
	"Circle K", "FamilyMart", "Ministop", "GS25", "7-Eleven", "B's mart",
	"Big C", "GO!", "Aeon", "Lotte Mart", "Emart", "MM Mega Market", "Vincom",
	"Highlands", "Phúc Long", "Trung Nguyên", "The Coffee House", "Katinat",
	"Starbucks", "KFC", "Lotteria", "Jollibee", "McDonald's", "Pizza Hut",
	"Pharmacity", "Long Châu", "An Khang", "Guardian",
	"Vinmec", "Hoàn Mỹ", "Vinschool", "CGV", "Galaxy", "Lotte Cinema",
}

// crossRefTags mark places documented outside OSM.
var crossRefTags = []string{"wikidata", "wikipedia", "brand:wikidata"}

// notable decides whether a place of the given category is worth
// reporting. Named, branded, chain-operated and cross-referenced places
// always are. Beyond that each category has its own hard rules, and
// anything they do not keep is minor.
func notable(cat model.Category, kind string, tags map[string]string, includeMinor bool) bool {
	if tags["name"] != "" || tags["name:vi"] != "" || tags["name:en"] != "" || tags["brand"] != "" {
		return true
	}
	if textnorm.ContainsAny(tags["operator"], chains...) {
		return true
	}
	for _, k := range crossRefTags {
		if tags[k] != "" {
			return true
		}
	}

	switch cat {
	case model.CategoryHealthcare:
		if kind == "hospital" || kind == "pharmacy" {
			return true
		}
	case model.CategoryTransport:
		// Major hubs only; bare stops and entrances are minor.
		if kind == "station" || kind == "bus_station" {
			return true
		}
	case model.CategoryShopping:
		if kind == "bank" {
			return true
		}
	case model.CategoryEducation:
		// Schools count once named, which the checks above cover.
	}
	return includeMinor
}

func displayName(tags map[string]string) string {
	for _, k := range []string{"name", "name:vi", "name:en", "brand"} {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return ""
}
