package model

import "time"

// Severity grades a single risk finding.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// RiskFinding is a proximity risk detected near the parcel.
type RiskFinding struct {
	ID          string   `json:"id"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Distance    *float64 `json:"distance,omitempty"`
	Icon        string   `json:"icon"`
}

// RiskAssessment is the aggregate of all risk findings for a location.
type RiskAssessment struct {
	Findings     []RiskFinding `json:"findings"`
	OverallLevel Severity      `json:"overallLevel"`
	RiskScore    int           `json:"riskScore"`
}

// Recommendation is the final buy/consider/avoid verdict.
type Recommendation string

const (
	RecommendBuy      Recommendation = "buy"
	RecommendConsider Recommendation = "consider"
	RecommendAvoid    Recommendation = "avoid"
)

// SubScores holds the individual scoring dimensions, each in [0,100].
type SubScores struct {
	Amenities   int `json:"amenities"`
	Planning    int `json:"planning"`
	Residential int `json:"residential"`
	Investment  int `json:"investment"`
	Risk        int `json:"risk"`
}

// AnalysisScore is the output of the scoring engine.
type AnalysisScore struct {
	Scores         SubScores      `json:"scores"`
	Overall        int            `json:"overall"`
	Recommendation Recommendation `json:"recommendation"`
	EstimatedPrice float64        `json:"estimatedPrice"`
	Summary        string         `json:"summary"`
}

// Request is the input to a single parcel analysis.
type Request struct {
	Coordinates []LngLat   `json:"coordinates"`
	Radius      float64    `json:"radius"`
	Categories  []Category `json:"categories"`
	Layers      []Layer    `json:"layers"`
}

// Result is the full analysis output returned to the caller.
type Result struct {
	ID               string              `json:"id"`
	Area             float64             `json:"area"`
	Orientation      Orientation         `json:"orientation"`
	FrontageCount    int                 `json:"frontageCount"`
	Center           LatLng              `json:"center"`
	Amenities        []Amenity           `json:"amenities"`
	Infrastructure   map[Layer][]Feature `json:"infrastructure"`
	MarketData       MarketSnapshot      `json:"marketData"`
	AIAnalysis       AnalysisScore       `json:"aiAnalysis"`
	Risks            []RiskFinding       `json:"risks"`
	OverallRiskLevel Severity            `json:"overallRiskLevel"`
	RiskScore        int                 `json:"riskScore"`
	AnalyzedAt       time.Time           `json:"analyzedAt"`
}
