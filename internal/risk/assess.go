// Package risk grades proximity hazards around a parcel.
package risk

import (
	"fmt"
	"math"

	"github.com/sells-group/property-analyzer/internal/geometry"
	"github.com/sells-group/property-analyzer/internal/model"
)

const (
	maxScore        = 100
	highThreshold   = 40
	mediumThreshold = 15
)

// Tier applies when the nearest feature is closer than Within metres.
type Tier struct {
	Within   float64
	Severity model.Severity
	Points   int
}

// Rule grades distance to the nearest feature of a layer. Tiers are
// ordered nearest first; the first tier whose bound exceeds the distance
// applies.
type Rule struct {
	Layer model.Layer
	Title string
	Icon  string
	Tiers []Tier
}

// DefaultRules are the proximity rules applied by Assess.
var DefaultRules = []Rule{
	{
		Layer: model.LayerIndustrial,
		Title: "Industrial zone nearby",
		Icon:  "factory",
		Tiers: []Tier{
			{Within: 500, Severity: model.SeverityHigh, Points: 30},
			{Within: 2000, Severity: model.SeverityMedium, Points: 15},
		},
	},
	{
		Layer: model.LayerPower,
		Title: "Power infrastructure nearby",
		Icon:  "zap",
		Tiers: []Tier{
			{Within: 200, Severity: model.SeverityHigh, Points: 25},
			{Within: 500, Severity: model.SeverityMedium, Points: 10},
		},
	},
	{
		Layer: model.LayerCemetery,
		Title: "Cemetery nearby",
		Icon:  "cross",
		Tiers: []Tier{
			{Within: 300, Severity: model.SeverityHigh, Points: 20},
			{Within: 1000, Severity: model.SeverityLow, Points: 5},
		},
	},
}

// Assess applies DefaultRules.
func Assess(center model.LatLng, infra map[model.Layer][]model.Feature) model.RiskAssessment {
	return AssessWith(DefaultRules, center, infra)
}

// AssessWith grades the nearest feature of each rule's layer. Missing
// layers and features beyond every tier produce no finding.
func AssessWith(rules []Rule, center model.LatLng, infra map[model.Layer][]model.Feature) model.RiskAssessment {
	out := model.RiskAssessment{Findings: []model.RiskFinding{}}

	for _, r := range rules {
		feat, dist, ok := nearest(center, infra[r.Layer])
		if !ok {
			continue
		}
		t, ok := r.tierFor(dist)
		if !ok {
			continue
		}

		d := math.Round(dist)
		out.Findings = append(out.Findings, model.RiskFinding{
			ID:          fmt.Sprintf("%s-%d", r.Layer, feat.ID),
			Severity:    t.Severity,
			Title:       r.Title,
			Description: describe(r.Layer, feat.Name, d),
			Distance:    &d,
			Icon:        r.Icon,
		})
		out.RiskScore += t.Points
	}

	if out.RiskScore > maxScore {
		out.RiskScore = maxScore
	}
	out.OverallLevel = Level(out.RiskScore)
	return out
}

// Level maps a risk score to an overall severity.
func Level(score int) model.Severity {
	switch {
	case score >= highThreshold:
		return model.SeverityHigh
	case score >= mediumThreshold:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func (r Rule) tierFor(dist float64) (Tier, bool) {
	for _, t := range r.Tiers {
		if dist < t.Within {
			return t, true
		}
	}
	return Tier{}, false
}

// nearest returns the closest feature, measuring line features to their
// nearest vertex.
func nearest(center model.LatLng, feats []model.Feature) (model.Feature, float64, bool) {
	var (
		best  model.Feature
		bestD = math.Inf(1)
	)
	for _, f := range feats {
		d, ok := distanceTo(center, f)
		if !ok {
			continue
		}
		if d < bestD {
			best, bestD = f, d
		}
	}
	return best, bestD, !math.IsInf(bestD, 1)
}

func distanceTo(center model.LatLng, f model.Feature) (float64, bool) {
	if f.Kind == model.FeatureLine || len(f.Lines) > 0 {
		return geometry.NearestOnLines(center, f.Lines)
	}
	if f.Lat == 0 && f.Lng == 0 {
		return 0, false
	}
	return geometry.Haversine(center, model.LatLng{Lat: f.Lat, Lng: f.Lng}), true
}

func describe(layer model.Layer, name string, dist float64) string {
	label := string(layer)
	switch layer {
	case model.LayerIndustrial:
		label = "Industrial facility"
	case model.LayerPower:
		label = "Power installation"
	case model.LayerCemetery:
		label = "Cemetery"
	}
	if name != "" {
		return fmt.Sprintf("%s (%s) is %.0f m from the parcel", label, name, dist)
	}
	return fmt.Sprintf("%s is %.0f m from the parcel", label, dist)
}
