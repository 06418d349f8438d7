package trend

import "fmt"

// Tag is the trend annotation attached to a current focus area.
type Tag struct {
	ChangeType        ChangeType `json:"changeType"`
	PreviousFrequency int        `json:"previousFrequency"`
	FrequencyDelta    int        `json:"frequencyDelta"`
	ImpactDelta       float64    `json:"impactDelta"`
	Insight           string     `json:"insight"`
}

// Annotate returns one tag per current area, aligned by index. Areas the
// comparison does not know about, and every area on a first run, are tagged new.
func Annotate(current []AreaStat, cmp Comparison) []Tag {
	known := make(map[string]AreaChange)
	if cmp.Changes != nil {
		for _, bucket := range [][]AreaChange{
			cmp.Changes.NewIssues,
			cmp.Changes.ImprovedIssues,
			cmp.Changes.WorsenedIssues,
			cmp.Changes.StableIssues,
		} {
			for _, c := range bucket {
				known[c.Key()] = c
			}
		}
	}

	tags := make([]Tag, len(current))
	for i, a := range current {
		c, ok := known[a.Key()]
		if !ok {
			c = newChange(a)
		}
		tags[i] = Tag{
			ChangeType:        c.ChangeType,
			PreviousFrequency: c.PreviousFrequency,
			FrequencyDelta:    c.FrequencyDelta,
			ImpactDelta:       c.ImpactDelta,
			Insight:           c.Insight,
		}
	}
	return tags
}

// Digest is the short "what's new" summary of a comparison.
type Digest struct {
	IsFirstRun  bool     `json:"isFirstRun"`
	Headline    string   `json:"headline"`
	Highlights  []string `json:"highlights"`
	HealthScore *int     `json:"healthScore,omitempty"`
	Sentiment   string   `json:"sentiment,omitempty"`
	Volume      string   `json:"volume,omitempty"`
}

// WhatsNew summarises a comparison, most urgent changes first.
func WhatsNew(cmp Comparison) Digest {
	if cmp.IsFirstRun || cmp.Changes == nil {
		return Digest{
			IsFirstRun: true,
			Headline:   "First analysis: baseline established",
			Highlights: []string{},
		}
	}

	c := cmp.Changes
	d := Digest{
		Headline: fmt.Sprintf("%d new, %d worsened, %d improved, %d resolved",
			len(c.NewIssues), len(c.WorsenedIssues), len(c.ImprovedIssues), len(c.ResolvedIssues)),
		Highlights: []string{},
	}
	for _, bucket := range [][]AreaChange{c.NewIssues, c.WorsenedIssues, c.ImprovedIssues, c.ResolvedIssues} {
		for _, change := range bucket {
			d.Highlights = append(d.Highlights, change.Insight)
		}
	}
	if cmp.Trends != nil {
		health := cmp.Trends.HealthScore
		d.HealthScore = &health
		d.Sentiment = string(cmp.Trends.Sentiment.Direction)
		d.Volume = fmt.Sprintf("%s (%+.1f%%)", cmp.Trends.Volume.Direction, cmp.Trends.Volume.PercentChange)
	}
	return d
}
