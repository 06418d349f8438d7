package synthesis

import (
	"time"

	"feedback-radar/feedback"
	"feedback-radar/trend"
)

// NarrativeInput is the aggregated view handed to the narrative writer.
type NarrativeInput struct {
	CompanyName       string   `json:"companyName"`
	TotalItems        int      `json:"totalItems"`
	HighSignalCount   int      `json:"highSignalCount"`
	NoiseCount        int      `json:"noiseCount"`
	ConstructiveCount int      `json:"constructiveCount"`
	PraiseCount       int      `json:"praiseCount"`
	NeutralCount      int      `json:"neutralCount"`
	FocusAreasText    string   `json:"focusAreasText"`
	NewUserCount      int      `json:"newUserCount"`
	PowerUserCount    int      `json:"powerUserCount"`
	ChurnedCount      int      `json:"churnedCount"`
	SampleQuotes      []string `json:"sampleQuotes"`
}

// Narrative is the prose part of a report as returned by the writer.
type Narrative struct {
	TLDR            string               `json:"tldr"`
	Highlights      []string             `json:"highlights"`
	ExecutiveBrief  string               `json:"executiveBrief"`
	Sentiment       NarrativeSentiment   `json:"sentiment"`
	FocusAreas      []NarrativeFocusArea `json:"focusAreas"`
	BrandStrengths  []BrandStrength      `json:"brandStrengths"`
	SuggestedOKRs   []OKR                `json:"suggestedOKRs"`
	PriorityMatrix  PriorityMatrix       `json:"priorityMatrix"`
	ExpectationGaps []ExpectationGap     `json:"expectationGaps"`
}

// NarrativeSentiment carries only the mood. The percentage breakdown is
// computed from type counts so comparisons stay deterministic.
type NarrativeSentiment struct {
	Mood string `json:"mood"`
}

type NarrativeFocusArea struct {
	Title            string   `json:"title"`
	Category         string   `json:"category,omitempty"`
	SeverityLabel    string   `json:"severityLabel,omitempty" jsonschema:"enum=Critical,enum=High,enum=Medium,enum=Low"`
	RootCause        string   `json:"rootCause,omitempty"`
	Description      string   `json:"description,omitempty"`
	SuggestedAction  string   `json:"suggestedAction,omitempty"`
	AffectedSegments []string `json:"affectedSegments,omitempty"`
	ImpactScore      float64  `json:"impactScore,omitempty"`
}

type BrandStrength struct {
	Title    string `json:"title"`
	Evidence string `json:"evidence"`
}

type OKR struct {
	Objective  string   `json:"objective"`
	KeyResults []string `json:"keyResults"`
}

type PriorityMatrix struct {
	QuickWins     []string `json:"quickWins"`
	MajorProjects []string `json:"majorProjects"`
	FillIns       []string `json:"fillIns"`
	Deprioritize  []string `json:"deprioritize"`
}

type ExpectationGap struct {
	Expectation string `json:"expectation"`
	Reality     string `json:"reality"`
	Severity    string `json:"severity,omitempty"`
}

// FocusArea is a computed focus area merged with its narrative fields.
type FocusArea struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Category         string          `json:"category"`
	Frequency        int             `json:"frequency"`
	ImpactScore      float64         `json:"impactScore"`
	TopQuote         string          `json:"topQuote,omitempty"`
	Quotes           []string        `json:"quotes"`
	AffectedSegments []string        `json:"affectedSegments"`
	Stakes           feedback.Stakes `json:"stakes"`
	ScoreRationale   string          `json:"scoreRationale"`
	SeverityLabel    string          `json:"severityLabel,omitempty"`
	RootCause        string          `json:"rootCause,omitempty"`
	Description      string          `json:"description,omitempty"`
	SuggestedAction  string          `json:"suggestedAction,omitempty"`
	ItemIDs          []string        `json:"itemIds"`
	Trend            *trend.Tag      `json:"trend,omitempty"`
}

// RawScore exposes one item's impact for downstream recomputation.
type RawScore struct {
	ID     string              `json:"id"`
	Impact feedback.ImpactData `json:"impact"`
}

// Report is the final output of a synthesis run.
type Report struct {
	CompanyName     string           `json:"companyName"`
	TLDR            string           `json:"tldr"`
	Highlights      []string         `json:"highlights"`
	ExecutiveBrief  string           `json:"executiveBrief"`
	Sentiment       trend.Sentiment  `json:"sentiment"`
	FocusAreas      []FocusArea      `json:"focusAreas"`
	BrandStrengths  []BrandStrength  `json:"brandStrengths"`
	SuggestedOKRs   []OKR            `json:"suggestedOKRs"`
	PriorityMatrix  PriorityMatrix   `json:"priorityMatrix"`
	ExpectationGaps []ExpectationGap `json:"expectationGaps"`
	Metadata        trend.Metadata   `json:"metadata"`
	RawScores       []RawScore       `json:"rawScores"`
	Comparison      trend.Comparison `json:"comparison"`
	WhatsNew        trend.Digest     `json:"whatsNew"`

	// ComputedAreas holds every clustered area, including those the
	// narrative left out. Snapshots are taken from it.
	ComputedAreas []trend.AreaStat `json:"computedAreas,omitempty"`
}

// AreaStats returns the comparable view of the report's focus areas.
func (r *Report) AreaStats() []trend.AreaStat {
	stats := make([]trend.AreaStat, len(r.FocusAreas))
	for i, fa := range r.FocusAreas {
		stats[i] = trend.AreaStat{
			Title:         fa.Title,
			Category:      fa.Category,
			Frequency:     fa.Frequency,
			ImpactScore:   fa.ImpactScore,
			SeverityLabel: fa.SeverityLabel,
		}
	}
	return stats
}

// Snapshot derives the baseline record for the next run.
func (r *Report) Snapshot(id string) trend.Snapshot {
	created, err := time.Parse(time.RFC3339, r.Metadata.AnalysisDate)
	if err != nil {
		created = time.Now()
	}
	areas := r.ComputedAreas
	if areas == nil {
		areas = r.AreaStats()
	}
	return trend.NewSnapshot(id, r.CompanyName, created, areas, r.Sentiment, r.Metadata)
}
