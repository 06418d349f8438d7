package trend

import (
	"fmt"
	"math"
	"strings"
)

// ChangeType is the bucket an area falls into.
type ChangeType string

const (
	ChangeNew      ChangeType = "new"
	ChangeImproved ChangeType = "improved"
	ChangeWorsened ChangeType = "worsened"
	ChangeResolved ChangeType = "resolved"
	ChangeStable   ChangeType = "stable"
)

// Direction of a sentiment or volume trend.
type Direction string

const (
	DirectionImproving Direction = "improving"
	DirectionDeclining Direction = "declining"
	DirectionUp        Direction = "up"
	DirectionDown      Direction = "down"
	DirectionStable    Direction = "stable"
)

// SeverityCritical is the severity label that penalises a new issue.
const SeverityCritical = "Critical"

const (
	frequencyThreshold = 2
	impactThreshold    = 1.0
	sentimentThreshold = 0.02
	volumeThreshold    = 10.0

	baseHealth           = 50
	sentimentHealth      = 15
	resolvedHealth       = 5
	criticalNewHealth    = 10
	worsenedHealth       = 3
	improvedHealth       = 3
	minHealth, maxHealth = 0, 100
)

// AreaChange is an area annotated with its change against the previous run.
type AreaChange struct {
	AreaStat
	ChangeType        ChangeType `json:"changeType"`
	PreviousFrequency int        `json:"previousFrequency"`
	FrequencyDelta    int        `json:"frequencyDelta"`
	ImpactDelta       float64    `json:"impactDelta"`
	Insight           string     `json:"insight"`
}

// Changes holds the five disjoint buckets.
type Changes struct {
	NewIssues      []AreaChange `json:"newIssues"`
	ImprovedIssues []AreaChange `json:"improvedIssues"`
	WorsenedIssues []AreaChange `json:"worsenedIssues"`
	ResolvedIssues []AreaChange `json:"resolvedIssues"`
	StableIssues   []AreaChange `json:"stableIssues"`
}

// SentimentTrend compares positive ratios.
type SentimentTrend struct {
	Direction Direction `json:"direction"`
	Delta     float64   `json:"delta"`
	Current   float64   `json:"current"`
	Previous  float64   `json:"previous"`
}

// VolumeTrend compares analyzed item counts.
type VolumeTrend struct {
	Direction     Direction `json:"direction"`
	PercentChange float64   `json:"percentChange"`
	Current       int       `json:"current"`
	Previous      int       `json:"previous"`
}

// Trends aggregates the comparison.
type Trends struct {
	Sentiment      SentimentTrend `json:"sentiment"`
	Volume         VolumeTrend    `json:"volume"`
	ResolutionRate int            `json:"resolutionRate"`
	NewIssueRate   int            `json:"newIssueRate"`
	HealthScore    int            `json:"healthScore"`
}

// Comparison is the result of comparing a run with the previous snapshot.
// On a first run Changes and Trends are nil.
type Comparison struct {
	IsFirstRun         bool     `json:"isFirstRun"`
	PreviousSnapshotID string   `json:"previousSnapshotId,omitempty"`
	Changes            *Changes `json:"changes"`
	Trends             *Trends  `json:"trends"`
}

// FirstRun is the comparison returned when there is no previous snapshot.
func FirstRun() Comparison {
	return Comparison{IsFirstRun: true}
}

// Compare classifies every current and previous area into exactly one bucket
// and computes the aggregate trends.
func Compare(current []AreaStat, sentiment Sentiment, meta Metadata, previous *Snapshot) Comparison {
	if previous == nil {
		return FirstRun()
	}

	prevByKey := make(map[string]AreaStat, len(previous.FocusAreas))
	var prevOrder []string
	for _, a := range previous.FocusAreas {
		s := a.stat()
		if _, dup := prevByKey[s.Key()]; dup {
			continue
		}
		prevByKey[s.Key()] = s
		prevOrder = append(prevOrder, s.Key())
	}

	changes := &Changes{
		NewIssues:      []AreaChange{},
		ImprovedIssues: []AreaChange{},
		WorsenedIssues: []AreaChange{},
		ResolvedIssues: []AreaChange{},
		StableIssues:   []AreaChange{},
	}
	seen := make(map[string]bool, len(current))
	for _, cur := range current {
		key := cur.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		prev, ok := prevByKey[key]
		if !ok {
			changes.NewIssues = append(changes.NewIssues, newChange(cur))
			continue
		}
		c := classify(cur, prev)
		switch c.ChangeType {
		case ChangeImproved:
			changes.ImprovedIssues = append(changes.ImprovedIssues, c)
		case ChangeWorsened:
			changes.WorsenedIssues = append(changes.WorsenedIssues, c)
		default:
			changes.StableIssues = append(changes.StableIssues, c)
		}
	}
	for _, key := range prevOrder {
		if !seen[key] {
			changes.ResolvedIssues = append(changes.ResolvedIssues, resolvedChange(prevByKey[key]))
		}
	}

	sentTrend := sentimentTrend(sentiment, previous.Sentiment)
	trends := &Trends{
		Sentiment:      sentTrend,
		Volume:         volumeTrend(meta.TotalAnalyzed, previous.Metadata.TotalAnalyzed),
		ResolutionRate: rate(len(changes.ResolvedIssues), len(prevOrder)),
		NewIssueRate:   rate(len(changes.NewIssues), len(seen)),
		HealthScore:    healthScore(sentTrend.Direction, changes),
	}

	return Comparison{
		PreviousSnapshotID: previous.ID,
		Changes:            changes,
		Trends:             trends,
	}
}

func classify(cur, prev AreaStat) AreaChange {
	freqDelta := cur.Frequency - prev.Frequency
	impactDelta := cur.ImpactScore - prev.ImpactScore

	c := AreaChange{
		AreaStat:          cur,
		PreviousFrequency: prev.Frequency,
		FrequencyDelta:    freqDelta,
		ImpactDelta:       round1(impactDelta),
	}

	// Improvement is checked first and wins when both thresholds trip.
	switch {
	case freqDelta < -frequencyThreshold || impactDelta < -impactThreshold:
		c.ChangeType = ChangeImproved
		if freqDelta < 0 {
			c.Insight = fmt.Sprintf("%q has improved: %d fewer mentions", cur.Title, -freqDelta)
		} else {
			c.Insight = fmt.Sprintf("%q has improved: impact down %.1f", cur.Title, -impactDelta)
		}
	case freqDelta > frequencyThreshold || impactDelta > impactThreshold:
		c.ChangeType = ChangeWorsened
		if freqDelta > 0 {
			c.Insight = fmt.Sprintf("%q is growing: +%d more mentions", cur.Title, freqDelta)
		} else {
			c.Insight = fmt.Sprintf("%q is growing: impact up %.1f", cur.Title, impactDelta)
		}
	default:
		c.ChangeType = ChangeStable
		c.Insight = fmt.Sprintf("%q is holding steady at %d mentions", cur.Title, cur.Frequency)
	}
	return c
}

func newChange(cur AreaStat) AreaChange {
	return AreaChange{
		AreaStat:       cur,
		ChangeType:     ChangeNew,
		FrequencyDelta: 0,
		Insight:        fmt.Sprintf("New %s detected: %q", humanize(cur.Category), cur.Title),
	}
}

func resolvedChange(prev AreaStat) AreaChange {
	return AreaChange{
		AreaStat: AreaStat{
			Title:       prev.Title,
			Category:    prev.Category,
			ImpactScore: prev.ImpactScore,
		},
		ChangeType:        ChangeResolved,
		PreviousFrequency: prev.Frequency,
		FrequencyDelta:    -prev.Frequency,
		ImpactDelta:       round1(-prev.ImpactScore),
		Insight:           fmt.Sprintf("%q no longer appearing in feedback", prev.Title),
	}
}

func sentimentTrend(cur, prev Sentiment) SentimentTrend {
	c, p := cur.PositiveRatio(), prev.PositiveRatio()
	delta := c - p
	t := SentimentTrend{
		Direction: DirectionStable,
		Delta:     round3(delta),
		Current:   round3(c),
		Previous:  round3(p),
	}
	switch {
	case delta > sentimentThreshold:
		t.Direction = DirectionImproving
	case delta < -sentimentThreshold:
		t.Direction = DirectionDeclining
	}
	return t
}

func volumeTrend(cur, prev int) VolumeTrend {
	var pct float64
	switch {
	case prev > 0:
		pct = float64(cur-prev) / float64(prev) * 100
	case cur > 0:
		pct = 100
	}
	t := VolumeTrend{
		Direction:     DirectionStable,
		PercentChange: round1(pct),
		Current:       cur,
		Previous:      prev,
	}
	switch {
	case pct > volumeThreshold:
		t.Direction = DirectionUp
	case pct < -volumeThreshold:
		t.Direction = DirectionDown
	}
	return t
}

func rate(count, total int) int {
	return int(math.Round(float64(count) / float64(max(1, total)) * 100))
}

func healthScore(sentiment Direction, c *Changes) int {
	score := baseHealth
	switch sentiment {
	case DirectionImproving:
		score += sentimentHealth
	case DirectionDeclining:
		score -= sentimentHealth
	}
	score += resolvedHealth * len(c.ResolvedIssues)
	for _, n := range c.NewIssues {
		if strings.EqualFold(n.SeverityLabel, SeverityCritical) {
			score -= criticalNewHealth
		}
	}
	score -= worsenedHealth * len(c.WorsenedIssues)
	score += improvedHealth * len(c.ImprovedIssues)
	return min(maxHealth, max(minHealth, score))
}

func humanize(category string) string {
	return strings.ReplaceAll(category, "_", " ")
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
