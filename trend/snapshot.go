// Package trend compares a synthesis run against the previous snapshot.
package trend

import "time"

// AreaStat is the comparable view of one focus area.
type AreaStat struct {
	Title         string  `json:"title"`
	Category      string  `json:"category"`
	Frequency     int     `json:"frequency"`
	ImpactScore   float64 `json:"impactScore"`
	SeverityLabel string  `json:"severityLabel,omitempty"`
}

// Key identifies an area across runs.
func (a AreaStat) Key() string {
	return a.Category + ":" + a.Title
}

// Sentiment is the percentage breakdown of a run plus its mood label.
type Sentiment struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
	Mood     string  `json:"mood,omitempty"`
}

// PositiveRatio returns the positive share in [0,1].
func (s Sentiment) PositiveRatio() float64 {
	total := s.Positive + s.Neutral + s.Negative
	if total <= 0 {
		return 0
	}
	return s.Positive / total
}

// Metadata describes the corpus behind a run.
type Metadata struct {
	TotalAnalyzed   int      `json:"totalAnalyzed"`
	HighSignalCount int      `json:"highSignalCount"`
	NoiseFiltered   int      `json:"noiseFiltered"`
	DataSources     []string `json:"dataSources"`
	AnalysisDate    string   `json:"analysisDate"`
}

// SnapshotArea is the persisted form of a focus area.
type SnapshotArea struct {
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	Frequency   int     `json:"frequency"`
	ImpactScore float64 `json:"impactScore"`
}

// Snapshot is the record of a completed run used as the next run's baseline.
type Snapshot struct {
	ID          string         `json:"id"`
	CompanyName string         `json:"companyName"`
	CreatedAt   time.Time      `json:"createdAt"`
	FocusAreas  []SnapshotArea `json:"focusAreas"`
	Sentiment   Sentiment      `json:"sentiment"`
	Metadata    Metadata       `json:"metadata"`
}

// NewSnapshot copies the given run state into a new snapshot.
func NewSnapshot(id, company string, createdAt time.Time, areas []AreaStat, sentiment Sentiment, meta Metadata) Snapshot {
	snapAreas := make([]SnapshotArea, len(areas))
	for i, a := range areas {
		snapAreas[i] = SnapshotArea{
			Title:       a.Title,
			Category:    a.Category,
			Frequency:   a.Frequency,
			ImpactScore: a.ImpactScore,
		}
	}
	meta.DataSources = append([]string{}, meta.DataSources...)
	return Snapshot{
		ID:          id,
		CompanyName: company,
		CreatedAt:   createdAt.UTC(),
		FocusAreas:  snapAreas,
		Sentiment:   sentiment,
		Metadata:    meta,
	}
}

func (a SnapshotArea) stat() AreaStat {
	return AreaStat{
		Title:       a.Title,
		Category:    a.Category,
		Frequency:   a.Frequency,
		ImpactScore: a.ImpactScore,
	}
}
