package market

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sells-group/property-analyzer/internal/model"
)

// Sanity bounds for usable listings.
const (
	minArea        = 10.0
	maxArea        = 100000.0
	minPricePerSqm = 1e6
	maxPricePerSqm = 2e9

	// trendBand is the relative deviation from the regional baseline that
	// counts as a rising or falling market.
	trendBand = 0.05

	historyMonths = 12
	annualGrowth  = 0.08
	seasonalAmp   = 0.03

	// refArea prices history points and the floor snapshot.
	refArea = 100.0
)

// normalize converts raw listings to usable listings, dropping anything
// unparseable or outside the sanity bounds.
func normalize(source string, raws []RawListing) []model.Listing {
	out := make([]model.Listing, 0, len(raws))
	for _, r := range raws {
		area := r.Area
		if area <= 0 && r.AreaText != "" {
			area, _ = ParseArea(r.AreaText)
		}
		price := r.Price
		if price <= 0 && r.PriceText != "" {
			price, _ = ParsePrice(r.PriceText, area)
		}
		l, ok := usable(model.Listing{
			Title:   r.Title,
			Price:   price,
			Area:    area,
			Address: r.Address,
			Source:  source,
			URL:     r.URL,
		})
		if ok {
			out = append(out, l)
		}
	}
	return out
}

func usable(l model.Listing) (model.Listing, bool) {
	if l.Price <= 0 || l.Area <= minArea || l.Area >= maxArea {
		return l, false
	}
	l.PricePerSqm = math.Round(l.Price / l.Area)
	if l.PricePerSqm < minPricePerSqm || l.PricePerSqm > maxPricePerSqm {
		return l, false
	}
	return l, true
}

// summarize derives price statistics from a non-empty listing set.
func summarize(listings []model.Listing) model.MarketSnapshot {
	prices := make([]float64, len(listings))
	var sumPrice, sumPPS float64
	for i, l := range listings {
		prices[i] = l.Price
		sumPrice += l.Price
		sumPPS += l.PricePerSqm
	}
	sort.Float64s(prices)

	n := float64(len(listings))
	return model.MarketSnapshot{
		Min:          math.Round(prices[0]),
		Max:          math.Round(prices[len(prices)-1]),
		Avg:          math.Round(sumPrice / n),
		Median:       math.Round(median(prices)),
		ListingCount: len(listings),
		PricePerSqm:  math.Round(sumPPS / n),
		Listings:     listings,
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// trendFor compares realized price per m² with the regional baseline.
func trendFor(pricePerSqm, baseline float64) model.Trend {
	if baseline <= 0 || pricePerSqm <= 0 {
		return model.TrendStable
	}
	dev := (pricePerSqm - baseline) / baseline
	switch {
	case dev > trendBand:
		return model.TrendUp
	case dev < -trendBand:
		return model.TrendDown
	default:
		return model.TrendStable
	}
}

// history back-projects twelve monthly points ending at now from the
// current price per m², applying annual growth and a seasonal swing.
func history(pricePerSqm float64, now time.Time) []model.PricePoint {
	if pricePerSqm <= 0 {
		return nil
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	nowSeason := seasonal(now.Month())

	out := make([]model.PricePoint, historyMonths)
	for i := range out {
		monthsAgo := historyMonths - 1 - i
		t := start.AddDate(0, -monthsAgo, 0)
		growth := math.Pow(1+annualGrowth, -float64(monthsAgo)/12)
		pps := pricePerSqm * growth * seasonal(t.Month()) / nowSeason
		out[i] = model.PricePoint{
			Month:       t.Format("2006-01"),
			PricePerSqm: math.Round(pps),
			Price:       math.Round(pps * refArea),
		}
	}
	return out
}

func seasonal(m time.Month) float64 {
	return 1 + seasonalAmp*math.Sin(2*math.Pi*float64(m)/12)
}

// analyzeTrend summarizes a history. Confidence rises with listing volume
// and falls with month-to-month volatility.
func analyzeTrend(h []model.PricePoint, listingCount int) *model.TrendAnalysis {
	if len(h) < 2 {
		return nil
	}
	last := h[len(h)-1].PricePerSqm
	pct := func(from float64) float64 {
		if from <= 0 {
			return 0
		}
		return round2((last - from) / from * 100)
	}

	monthly := make([]float64, 0, len(h)-1)
	for i := 1; i < len(h); i++ {
		if h[i-1].PricePerSqm > 0 {
			monthly = append(monthly, (h[i].PricePerSqm-h[i-1].PricePerSqm)/h[i-1].PricePerSqm*100)
		}
	}
	volatility := math.Min(stddev(monthly)/10, 0.4)
	volume := math.Min(float64(listingCount)/100, 0.3)
	confidence := clamp(0.5+volume-volatility, 0.1, 0.95)

	quarterIdx := len(h) - 4
	if quarterIdx < 0 {
		quarterIdx = 0
	}
	avgDelta := (last - h[0].PricePerSqm) / float64(len(h)-1)
	projected := last + 3*avgDelta*0.5

	ta := &model.TrendAnalysis{
		MonthlyChange:   pct(h[len(h)-2].PricePerSqm),
		QuarterlyChange: pct(h[quarterIdx].PricePerSqm),
		YearlyChange:    pct(h[0].PricePerSqm),
		Confidence:      round2(confidence),
		ProjectedPrice:  math.Round(projected),
	}
	ta.Narrative = narrative(ta)
	return ta
}

func narrative(ta *model.TrendAnalysis) string {
	dir := "held steady"
	switch {
	case ta.YearlyChange > 1:
		dir = "rose"
	case ta.YearlyChange < -1:
		dir = "fell"
	}
	outlook := "flat"
	switch {
	case ta.YearlyChange > 5:
		outlook = "moderately positive"
	case ta.YearlyChange > 1:
		outlook = "slightly positive"
	case ta.YearlyChange < -1:
		outlook = "negative"
	}
	return fmt.Sprintf("Prices %s %.1f%% over the past year (%.1f%% last quarter, %.1f%% last month). Three-month outlook is %s at %.0f%% confidence.",
		dir, math.Abs(ta.YearlyChange), ta.QuarterlyChange, ta.MonthlyChange, outlook, ta.Confidence*100)
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
