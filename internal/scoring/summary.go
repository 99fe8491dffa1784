package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-analyzer/internal/model"
	"github.com/sells-group/property-analyzer/pkg/anthropic"
)

// Summarizer writes the narrative summary of a scored parcel.
type Summarizer interface {
	Summarize(ctx context.Context, in Input, score model.AnalysisScore) (string, error)
}

// TemplateSummarizer produces the deterministic template summary.
type TemplateSummarizer struct{}

// Summarize implements Summarizer.
func (TemplateSummarizer) Summarize(_ context.Context, in Input, score model.AnalysisScore) (string, error) {
	return TemplateSummary(in, score), nil
}

const summarySystemPrompt = `You are a land investment analyst in Vietnam. Write a concise assessment of a land parcel for a prospective buyer, in 4 to 6 sentences of plain English prose. Cover the overall score and recommendation, nearby amenities, infrastructure, risks and the market trend, and say what the parcel is best suited for. Use only the facts provided. Do not use headings, bullet points or markdown.`

// LLMSummarizer asks Claude for the summary.
type LLMSummarizer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// LLMOption configures an LLMSummarizer.
type LLMOption func(*LLMSummarizer)

// WithMaxTokens caps the response length.
func WithMaxTokens(n int64) LLMOption {
	return func(s *LLMSummarizer) { s.maxTokens = n }
}

// WithTimeout bounds each summary request.
func WithTimeout(d time.Duration) LLMOption {
	return func(s *LLMSummarizer) { s.timeout = d }
}

// NewLLMSummarizer creates an LLMSummarizer using model.
func NewLLMSummarizer(client anthropic.Client, model string, opts ...LLMOption) *LLMSummarizer {
	s := &LLMSummarizer{
		client:    client,
		model:     model,
		maxTokens: 600,
		timeout:   20 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, in Input, score model.AnalysisScore) (string, error) {
	payload, err := json.MarshalIndent(promptFacts(in, score), "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "scoring: encode prompt facts")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	temp := 0.3
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		System:      summarySystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: "Parcel analysis:\n" + string(payload)}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "scoring: llm summary")
	}
	resp.Usage.LogCost(s.model, "summary")

	text := resp.Text()
	if text == "" {
		return "", eris.New("scoring: llm returned no text")
	}
	zap.L().Debug("scoring: llm summary generated", zap.Int("chars", len(text)))
	return text, nil
}

type factsAmenity struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Distance float64 `json:"distance_m"`
}

type facts struct {
	AreaSqm        float64         `json:"area_sqm"`
	Orientation    string          `json:"orientation"`
	FrontageCount  int             `json:"frontage_count"`
	Scores         model.SubScores `json:"scores"`
	Overall        int             `json:"overall"`
	Recommendation string          `json:"recommendation"`
	EstimatedPrice float64         `json:"estimated_price_vnd"`
	PricePerSqm    float64         `json:"market_price_per_sqm_vnd"`
	Trend          string          `json:"market_trend"`
	ListingCount   int             `json:"listing_count"`
	RiskLevel      string          `json:"risk_level"`
	Risks          []string        `json:"risks"`
	Infrastructure map[string]int  `json:"infrastructure_counts"`
	Amenities      []factsAmenity  `json:"closest_amenities"`
	AmenityCounts  map[string]int  `json:"amenity_counts"`
}

func promptFacts(in Input, score model.AnalysisScore) facts {
	f := facts{
		AreaSqm:        in.Parcel.Area,
		Orientation:    string(in.Parcel.Orientation),
		FrontageCount:  in.Parcel.FrontageCount,
		Scores:         score.Scores,
		Overall:        score.Overall,
		Recommendation: string(score.Recommendation),
		EstimatedPrice: score.EstimatedPrice,
		PricePerSqm:    in.Market.PricePerSqm,
		Trend:          string(in.Market.Trend),
		ListingCount:   in.Market.ListingCount,
		RiskLevel:      string(in.Risk.OverallLevel),
		Risks:          make([]string, 0, len(in.Risk.Findings)),
		Infrastructure: make(map[string]int, len(in.Infrastructure)),
		AmenityCounts:  make(map[string]int),
	}
	for _, r := range in.Risk.Findings {
		f.Risks = append(f.Risks, r.Description)
	}
	for layer, features := range in.Infrastructure {
		f.Infrastructure[string(layer)] = len(features)
	}
	for _, a := range in.Amenities {
		f.AmenityCounts[string(a.Category)]++
	}
	for _, a := range closest(in.Amenities, 8) {
		f.Amenities = append(f.Amenities, factsAmenity{Name: a.Name, Category: string(a.Category), Distance: a.Distance})
	}
	return f
}

func closest(amenities []model.Amenity, n int) []model.Amenity {
	out := append([]model.Amenity(nil), amenities...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// TemplateSummary builds a deterministic summary covering the overall
// score, amenity density, risk, market trend and suitability.
func TemplateSummary(in Input, s model.AnalysisScore) string {
	var b strings.Builder

	fmt.Fprintf(&b, "This parcel scores %d/100 overall and is rated %q. ", s.Overall, s.Recommendation)
	b.WriteString(overallComment(s.Overall))
	b.WriteString(" ")

	walkable := 0
	counts := make(map[model.Category]int)
	for _, a := range in.Amenities {
		counts[a.Category]++
		if a.Distance < 1000 {
			walkable++
		}
	}
	switch len(in.Amenities) {
	case 0:
		b.WriteString("No notable amenities were found in the search area. ")
	default:
		fmt.Fprintf(&b, "There are %d notable amenities nearby, %d of them within 1 km, strongest in %s. ",
			len(in.Amenities), walkable, strongest(counts))
	}

	switch len(in.Risk.Findings) {
	case 0:
		b.WriteString("No proximity risks were detected. ")
	default:
		fmt.Fprintf(&b, "Risk is %s (score %d): %s. ", in.Risk.OverallLevel, in.Risk.RiskScore, worstFinding(in.Risk.Findings))
	}

	fmt.Fprintf(&b, "The local market is %s at about %s VND/m²", trendWord(in.Market.Trend), millions(in.Market.PricePerSqm))
	if s.EstimatedPrice > 0 {
		fmt.Fprintf(&b, ", putting the parcel near %s VND", billions(s.EstimatedPrice))
	}
	b.WriteString(". ")

	b.WriteString(suitability(s.Scores))
	return b.String()
}

func overallComment(overall int) string {
	switch {
	case overall >= 80:
		return "It is an excellent location."
	case overall >= 70:
		return "It is a strong location."
	case overall >= 50:
		return "It is a reasonable location with some drawbacks."
	default:
		return "It has significant weaknesses."
	}
}

func strongest(counts map[model.Category]int) string {
	var (
		best  model.Category
		bestN int
	)
	for _, c := range model.AllCategories {
		if counts[c] > bestN {
			best, bestN = c, counts[c]
		}
	}
	return string(best)
}

func worstFinding(findings []model.RiskFinding) string {
	rank := map[model.Severity]int{model.SeverityHigh: 3, model.SeverityMedium: 2, model.SeverityLow: 1}
	worst := findings[0]
	for _, f := range findings[1:] {
		if rank[f.Severity] > rank[worst.Severity] {
			worst = f
		}
	}
	return worst.Description
}

func trendWord(t model.Trend) string {
	switch t {
	case model.TrendUp:
		return "rising"
	case model.TrendDown:
		return "softening"
	default:
		return "stable"
	}
}

func suitability(s model.SubScores) string {
	switch {
	case s.Residential >= 70 && s.Residential >= s.Investment:
		return "Best suited to residential use."
	case s.Investment >= 70:
		return "Best suited to investment holding."
	case s.Risk >= 40:
		return "Suitable only after the identified risks are reviewed."
	default:
		return "Suitable for mixed residential or investment use."
	}
}

func millions(v float64) string {
	return fmt.Sprintf("%.1f million", v/1e6)
}

func billions(v float64) string {
	return fmt.Sprintf("%.2f billion", v/1e9)
}
