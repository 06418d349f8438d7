// Package synthesis turns classified feedback into a prioritized report.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"feedback-radar/cluster"
	"feedback-radar/feedback"
	"feedback-radar/impact"
	"feedback-radar/signal"
	"feedback-radar/trend"
)

const (
	defaultMaxAreas  = 10
	defaultMaxQuotes = 20
)

// ErrInvalidNarrative is returned when the narrative lacks a focusAreas array.
var ErrInvalidNarrative = errors.New("narrative missing focusAreas")

// Narrator writes the prose part of a report.
type Narrator interface {
	Narrate(ctx context.Context, input NarrativeInput) (*Narrative, error)
}

// Request is the input of one synthesis run.
type Request struct {
	CompanyName string
	Items       []feedback.ClassifiedItem
	DataSources []string
	// Previous is the baseline snapshot; nil on a first run.
	Previous *trend.Snapshot
}

// TypeCounts is the distribution of item types.
type TypeCounts struct {
	Constructive int `json:"constructive"`
	Praise       int `json:"praise"`
	Neutral      int `json:"neutral"`
}

// SegmentCounts is the distribution of inferred user segments.
type SegmentCounts struct {
	NewUser   int `json:"newUser"`
	PowerUser int `json:"powerUser"`
	Churned   int `json:"churned"`
	General   int `json:"general"`
}

// Analysis is the deterministic part of a run.
type Analysis struct {
	Scored     []feedback.ScoredItem `json:"-"`
	Partition  signal.Result         `json:"-"`
	FocusAreas []cluster.FocusArea   `json:"focusAreas"`
	Types      TypeCounts            `json:"types"`
	Segments   SegmentCounts         `json:"segments"`
}

// Synthesizer runs the scoring, filtering, clustering and narrative steps.
type Synthesizer struct {
	scorer    *impact.Scorer
	clusterer *cluster.Clusterer
	narrator  Narrator
	now       func() time.Time
	maxAreas  int
	maxQuotes int
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

func WithScorer(s *impact.Scorer) Option {
	return func(sy *Synthesizer) {
		sy.scorer = s
	}
}

func WithClusterer(c *cluster.Clusterer) Option {
	return func(sy *Synthesizer) {
		sy.clusterer = c
	}
}

// WithClock sets the time source for the analysis date.
func WithClock(now func() time.Time) Option {
	return func(sy *Synthesizer) {
		sy.now = now
	}
}

// NewSynthesizer creates a synthesizer. narrator may be nil when only Analyze is used.
func NewSynthesizer(narrator Narrator, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		scorer:    impact.NewScorer(),
		clusterer: cluster.NewClusterer(),
		narrator:  narrator,
		now:       time.Now,
		maxAreas:  defaultMaxAreas,
		maxQuotes: defaultMaxQuotes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze scores, partitions and clusters items without calling the narrator.
func (s *Synthesizer) Analyze(items []feedback.ClassifiedItem) Analysis {
	scored := s.scorer.ScoreAll(feedback.CountSimilar(items))
	part := signal.Partition(scored)

	a := Analysis{
		Scored:     scored,
		Partition:  part,
		FocusAreas: s.clusterer.Cluster(part.HighSignal),
	}
	for _, it := range items {
		switch it.Type {
		case feedback.TypeConstructive:
			a.Types.Constructive++
		case feedback.TypePraise:
			a.Types.Praise++
		default:
			a.Types.Neutral++
		}
	}
	for _, it := range part.HighSignal {
		switch feedback.InferUserType(it.Title, it.Body) {
		case feedback.SegmentNewUser:
			a.Segments.NewUser++
		case feedback.SegmentPowerUser:
			a.Segments.PowerUser++
		case feedback.SegmentChurned:
			a.Segments.Churned++
		default:
			a.Segments.General++
		}
	}
	return a
}

// Synthesize produces the full report. A narrator failure, an invalid
// narrative or a cancelled context fails the whole run.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*Report, error) {
	if s.narrator == nil {
		return nil, errors.New("synthesize: no narrator configured")
	}

	a := s.Analyze(req.Items)

	input := s.narrativeInput(req.CompanyName, a)
	narr, err := s.narrator.Narrate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("generate narrative: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generate narrative: %w", err)
	}
	if err := ValidateNarrative(narr); err != nil {
		return nil, err
	}

	report := &Report{
		CompanyName:     req.CompanyName,
		TLDR:            narr.TLDR,
		Highlights:      nonNilStrings(narr.Highlights),
		ExecutiveBrief:  narr.ExecutiveBrief,
		Sentiment:       SentimentOf(a.Types, narr.Sentiment.Mood),
		FocusAreas:      MergeFocusAreas(a.FocusAreas, narr.FocusAreas),
		BrandStrengths:  narr.BrandStrengths,
		SuggestedOKRs:   narr.SuggestedOKRs,
		PriorityMatrix:  narr.PriorityMatrix,
		ExpectationGaps: narr.ExpectationGaps,
		Metadata: trend.Metadata{
			TotalAnalyzed:   len(req.Items),
			HighSignalCount: len(a.Partition.HighSignal),
			NoiseFiltered:   len(a.Partition.Noise),
			DataSources:     append([]string{}, req.DataSources...),
			AnalysisDate:    s.now().UTC().Format(time.RFC3339),
		},
		RawScores: rawScores(a.Scored),
	}

	// Areas the narrative did not cover still take part in the comparison.
	computed := AreaStatsOf(a.FocusAreas)
	for i, fa := range report.FocusAreas {
		computed[i].SeverityLabel = fa.SeverityLabel
	}
	report.ComputedAreas = computed
	report.Comparison = trend.Compare(computed, report.Sentiment, report.Metadata, req.Previous)
	for i, tag := range trend.Annotate(report.AreaStats(), report.Comparison) {
		tag := tag // per-iteration copy (pre-Go 1.22 loop semantics)
		report.FocusAreas[i].Trend = &tag
	}
	report.WhatsNew = trend.WhatsNew(report.Comparison)

	return report, nil
}

// ValidateNarrative checks the narrative is usable for merging.
func ValidateNarrative(n *Narrative) error {
	if n == nil || n.FocusAreas == nil {
		return ErrInvalidNarrative
	}
	return nil
}

// MergeFocusAreas pairs computed areas with narrative entries by index.
// Computed numbers win; narrative prose is kept. Unpaired entries on either
// side are dropped.
func MergeFocusAreas(computed []cluster.FocusArea, narrated []NarrativeFocusArea) []FocusArea {
	n := min(len(computed), len(narrated))
	merged := make([]FocusArea, 0, n)
	for i := 0; i < n; i++ {
		c, nf := computed[i], narrated[i]

		segments := make([]string, 0, len(c.AffectedSegments))
		for _, seg := range c.AffectedSegments {
			segments = append(segments, string(seg))
		}
		if len(segments) == 0 {
			segments = append(segments, nf.AffectedSegments...)
		}

		merged = append(merged, FocusArea{
			ID:               c.ID,
			Title:            c.Title,
			Category:         string(c.Category),
			Frequency:        c.Frequency,
			ImpactScore:      math.Round(c.AvgImpact*10) / 10,
			TopQuote:         c.TopQuote,
			Quotes:           c.Quotes,
			AffectedSegments: segments,
			Stakes:           c.Stakes,
			ScoreRationale:   c.ScoreRationale,
			SeverityLabel:    nf.SeverityLabel,
			RootCause:        nf.RootCause,
			Description:      nf.Description,
			SuggestedAction:  nf.SuggestedAction,
			ItemIDs:          c.ItemIDs(),
		})
	}
	return merged
}

// SentimentOf converts type counts into a percentage breakdown.
func SentimentOf(types TypeCounts, mood string) trend.Sentiment {
	total := types.Constructive + types.Praise + types.Neutral
	s := trend.Sentiment{Mood: mood}
	if total == 0 {
		return s
	}
	pct := func(n int) float64 {
		return math.Round(float64(n)/float64(total)*1000) / 10
	}
	s.Positive = pct(types.Praise)
	s.Negative = pct(types.Constructive)
	s.Neutral = pct(types.Neutral)
	return s
}

// AreaStatsOf returns the comparable view of computed focus areas.
func AreaStatsOf(areas []cluster.FocusArea) []trend.AreaStat {
	stats := make([]trend.AreaStat, len(areas))
	for i, a := range areas {
		stats[i] = trend.AreaStat{
			Title:       a.Title,
			Category:    string(a.Category),
			Frequency:   a.Frequency,
			ImpactScore: a.AvgImpact,
		}
	}
	return stats
}

func (s *Synthesizer) narrativeInput(company string, a Analysis) NarrativeInput {
	return NarrativeInput{
		CompanyName:       company,
		TotalItems:        len(a.Scored),
		HighSignalCount:   len(a.Partition.HighSignal),
		NoiseCount:        len(a.Partition.Noise),
		ConstructiveCount: a.Types.Constructive,
		PraiseCount:       a.Types.Praise,
		NeutralCount:      a.Types.Neutral,
		FocusAreasText:    focusAreasText(a.FocusAreas, s.maxAreas),
		NewUserCount:      a.Segments.NewUser,
		PowerUserCount:    a.Segments.PowerUser,
		ChurnedCount:      a.Segments.Churned,
		SampleQuotes:      sampleQuotes(a.Partition.HighSignal, s.maxQuotes),
	}
}

func focusAreasText(areas []cluster.FocusArea, limit int) string {
	if len(areas) == 0 {
		return "No high-signal focus areas."
	}
	var b strings.Builder
	for i, a := range areas {
		if i >= limit {
			break
		}
		segs := make([]string, len(a.AffectedSegments))
		for j, s := range a.AffectedSegments {
			segs[j] = string(s)
		}
		fmt.Fprintf(&b, "%d. [%s] %s: %d mentions, avg impact %.1f, segments: %s",
			i+1, a.Category, a.Title, a.Frequency, a.AvgImpact, strings.Join(segs, ", "))
		if a.TopQuote != "" {
			fmt.Fprintf(&b, ", quote: %q", a.TopQuote)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func sampleQuotes(items []feedback.ScoredItem, limit int) []string {
	quotes := []string{}
	for _, it := range items {
		if len(quotes) >= limit {
			break
		}
		if q := it.Summary.KeyQuote; q != "" {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

func rawScores(items []feedback.ScoredItem) []RawScore {
	scores := make([]RawScore, len(items))
	for i, it := range items {
		scores[i] = RawScore{ID: it.ID, Impact: it.Impact}
	}
	return scores
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
