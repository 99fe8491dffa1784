package model

import "time"

// Trend is the direction of the local market relative to its regional baseline.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// SourceInfo records how many listings a source contributed.
type SourceInfo struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Listing is a normalized listing. Prices are in VND, areas in m².
type Listing struct {
	Title       string  `json:"title,omitempty"`
	Price       float64 `json:"price"`
	Area        float64 `json:"area"`
	PricePerSqm float64 `json:"pricePerSqm"`
	Address     string  `json:"address,omitempty"`
	Source      string  `json:"source"`
	URL         string  `json:"url,omitempty"`
}

// PricePoint is one month of synthesized price history.
type PricePoint struct {
	Month       string  `json:"month"`
	Price       float64 `json:"price"`
	PricePerSqm float64 `json:"pricePerSqm"`
}

// TrendAnalysis summarizes price movement over the synthesized history.
type TrendAnalysis struct {
	MonthlyChange   float64 `json:"monthlyChange"`
	QuarterlyChange float64 `json:"quarterlyChange"`
	YearlyChange    float64 `json:"yearlyChange"`
	Confidence      float64 `json:"confidence"`
	Narrative       string  `json:"narrative"`
	ProjectedPrice  float64 `json:"projectedPrice"`
}

// MarketSnapshot is the market pricing view for an area.
type MarketSnapshot struct {
	Min           float64        `json:"min"`
	Avg           float64        `json:"avg"`
	Max           float64        `json:"max"`
	Median        float64        `json:"median"`
	ListingCount  int            `json:"listingCount"`
	PricePerSqm   float64        `json:"pricePerSqm"`
	Trend         Trend          `json:"trend"`
	Sources       []SourceInfo   `json:"sources"`
	Listings      []Listing      `json:"listings,omitempty"`
	LastUpdated   time.Time      `json:"lastUpdated"`
	History       []PricePoint   `json:"history,omitempty"`
	TrendAnalysis *TrendAnalysis `json:"trendAnalysis,omitempty"`
}
