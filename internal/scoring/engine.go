// Package scoring turns the gathered evidence for a parcel into sub-scores,
// an overall score, a recommendation and a short written summary.
package scoring

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/property-analyzer/internal/model"
)

// Weights of the overall score. Risk contributes as 100 - risk.
const (
	weightAmenities   = 0.25
	weightPlanning    = 0.20
	weightSafety      = 0.20
	weightResidential = 0.20
	weightInvestment  = 0.15
)

// Input is everything the engine scores.
type Input struct {
	Parcel         model.Parcel
	Amenities      []model.Amenity
	Infrastructure map[model.Layer][]model.Feature
	Market         model.MarketSnapshot
	Risk           model.RiskAssessment
}

// Engine scores parcels.
type Engine struct {
	summarizer Summarizer
}

// New creates an Engine. A nil summarizer uses the template summary.
func New(s Summarizer) *Engine {
	if s == nil {
		s = TemplateSummarizer{}
	}
	return &Engine{summarizer: s}
}

// Score computes the analysis score. The summary falls back to the template
// when the summarizer fails or returns nothing.
func (e *Engine) Score(ctx context.Context, in Input) model.AnalysisScore {
	s := model.AnalysisScore{
		Scores: model.SubScores{
			Amenities:   amenityScore(in.Amenities),
			Planning:    planningScore(in.Infrastructure),
			Residential: residentialScore(in),
			Investment:  investmentScore(in),
			Risk:        clampScore(in.Risk.RiskScore),
		},
		EstimatedPrice: estimatedPrice(in.Parcel, in.Market),
	}
	s.Overall = overall(s.Scores)
	s.Recommendation = recommend(s.Overall, s.Scores.Risk)

	summary, err := e.summarizer.Summarize(ctx, in, s)
	if err != nil {
		zap.L().Warn("scoring: summary failed, using template", zap.Error(err))
	}
	if err != nil || strings.TrimSpace(summary) == "" {
		summary = TemplateSummary(in, s)
	}
	s.Summary = strings.TrimSpace(summary)
	return s
}

// amenityScore awards 10 per amenity within 1 km and 5 per amenity within
// 3 km, at most 25 per category.
func amenityScore(amenities []model.Amenity) int {
	perCategory := make(map[model.Category]int)
	for _, a := range amenities {
		switch {
		case a.Distance < 1000:
			perCategory[a.Category] += 10
		case a.Distance <= 3000:
			perCategory[a.Category] += 5
		}
	}
	total := 0
	for _, v := range perCategory {
		total += min(v, 25)
	}
	return clampScore(total)
}

func planningScore(infra map[model.Layer][]model.Feature) int {
	score := 50
	if len(infra[model.LayerRoads]) > 0 {
		score += 15
	}
	if len(infra[model.LayerMetro]) > 0 {
		score += 20
	}
	if d, ok := nearestDistance(infra[model.LayerWater]); ok && d >= 100 && d <= 2000 {
		score += 10
	}
	return clampScore(score)
}

func residentialScore(in Input) int {
	counts := make(map[model.Category]int)
	for _, a := range in.Amenities {
		counts[a.Category]++
	}
	score := 60 +
		min(counts[model.CategoryEducation]*3, 10) +
		min(counts[model.CategoryHealthcare]*3, 10) +
		min(counts[model.CategoryShopping]*2, 8)

	for _, f := range in.Risk.Findings {
		if f.Severity == model.SeverityHigh {
			score -= 15
		}
	}
	switch in.Parcel.Orientation {
	case model.OrientationEast, model.OrientationSoutheast, model.OrientationSouth:
		score += 5
	}
	return clampScore(score)
}

func investmentScore(in Input) int {
	score := 50
	switch in.Market.Trend {
	case model.TrendUp:
		score += 15
	case model.TrendDown:
		score -= 10
	}
	if len(in.Infrastructure[model.LayerMetro]) > 0 {
		score += 20
	}
	if len(in.Infrastructure[model.LayerRoads]) >= 3 {
		score += 10
	}
	if in.Parcel.Area > 100 && in.Parcel.Area < 500 {
		score += 5
	}
	return clampScore(score)
}

func overall(s model.SubScores) int {
	v := weightAmenities*float64(s.Amenities) +
		weightPlanning*float64(s.Planning) +
		weightSafety*float64(100-s.Risk) +
		weightResidential*float64(s.Residential) +
		weightInvestment*float64(s.Investment)
	return clampScore(int(math.Round(v)))
}

func recommend(overall, risk int) model.Recommendation {
	switch {
	case overall >= 70 && risk < 30:
		return model.RecommendBuy
	case overall >= 50 || risk < 50:
		return model.RecommendConsider
	default:
		return model.RecommendAvoid
	}
}

// estimatedPrice values the parcel at the market price per m², or at the
// market average when the parcel has no area.
func estimatedPrice(p model.Parcel, m model.MarketSnapshot) float64 {
	if p.Area > 0 && m.PricePerSqm > 0 {
		return math.Round(m.PricePerSqm * p.Area)
	}
	return m.Avg
}

func nearestDistance(features []model.Feature) (float64, bool) {
	best, ok := 0.0, false
	for _, f := range features {
		if !ok || f.Distance < best {
			best, ok = f.Distance, true
		}
	}
	return best, ok
}

func clampScore(v int) int {
	return max(0, min(100, v))
}
