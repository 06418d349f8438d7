package impact

import (
	"fmt"
	"math"
	"strings"
	"time"

	"feedback-radar/feedback"
)

// Fixed sub-score weights.
const (
	ReachWeight     = 0.4
	SentimentWeight = 0.3
	VelocityWeight  = 0.3
)

const (
	maxSubScore      = 10.0
	defaultSentiment = 7.0
	neutralSentiment = 5.0
)

// Scorer computes impact scores for classified items.
type Scorer struct {
	now func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock sets the time source used for velocity.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

// NewScorer creates a scorer using the wall clock unless overridden.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the impact of one item. corpusSize is the size of the batch
// the item belongs to and is reserved for normalization.
func (s *Scorer) Score(item feedback.ClassifiedItem, corpusSize int) feedback.ImpactData {
	upvotes := nonNegative(item.Upvotes)
	comments := nonNegative(item.NumComments)

	reach := math.Min(maxSubScore, float64(upvotes+comments*2)/20)
	sentiment := clamp(sentimentOf(item), 0, maxSubScore)
	velocity := s.velocity(upvotes, comments, item.CreatedAt)

	score := round1(reach*ReachWeight + sentiment*SentimentWeight + velocity*VelocityWeight)

	return feedback.ImpactData{
		Score: score,
		Breakdown: feedback.Breakdown{
			Reach:     feedback.SubScore{Value: reach, Weight: ReachWeight},
			Sentiment: feedback.SubScore{Value: sentiment, Weight: SentimentWeight},
			Velocity:  feedback.SubScore{Value: velocity, Weight: VelocityWeight},
		},
		Rationale: rationale(score, reach, sentiment, velocity, upvotes, item.SimilarReports),
		Stakes:    stakesFor(item, score),
	}
}

// ScoreAll scores every item against the size of the whole batch, keeping input order.
func (s *Scorer) ScoreAll(items []feedback.ClassifiedItem) []feedback.ScoredItem {
	if len(items) == 0 {
		return nil
	}
	scored := make([]feedback.ScoredItem, len(items))
	for i, item := range items {
		scored[i] = feedback.ScoredItem{
			ClassifiedItem: item,
			Impact:         s.Score(item, len(items)),
		}
	}
	return scored
}

func (s *Scorer) velocity(upvotes, comments int, createdAt time.Time) float64 {
	// Items without a timestamp are treated as old.
	if createdAt.IsZero() {
		return 0
	}
	ageHours := math.Max(1, s.now().Sub(createdAt).Hours())
	perHour := float64(upvotes+comments) / ageHours
	return math.Min(maxSubScore, perHour*2)
}

func sentimentOf(item feedback.ClassifiedItem) float64 {
	switch item.Type {
	case feedback.TypeConstructive:
		if item.ProblemMetadata != nil && item.ProblemMetadata.ImpactScore != nil {
			return *item.ProblemMetadata.ImpactScore
		}
		return defaultSentiment
	case feedback.TypePraise:
		if item.DelightMetadata != nil && item.DelightMetadata.Shareability != nil {
			return *item.DelightMetadata.Shareability
		}
		return defaultSentiment
	}
	return neutralSentiment
}

func rationale(score, reach, sentiment, velocity float64, upvotes, similar int) string {
	var parts []string
	switch {
	case reach >= 7:
		parts = append(parts, fmt.Sprintf("high visibility (%d upvotes)", upvotes))
	case reach >= 4:
		parts = append(parts, "moderate reach")
	}
	if sentiment >= 8 {
		parts = append(parts, "strong sentiment intensity")
	}
	if velocity >= 6 {
		parts = append(parts, "rapid engagement growth")
	}
	if similar > 5 {
		parts = append(parts, fmt.Sprintf("%d+ similar reports", similar))
	}

	if len(parts) == 0 {
		return "Standard priority based on typical engagement levels."
	}
	return fmt.Sprintf("Scored %.1f/10 due to %s.", score, strings.Join(parts, ", "))
}

func stakesFor(item feedback.ClassifiedItem, score float64) feedback.Stakes {
	switch item.Type {
	case feedback.TypeConstructive:
		if score >= 7 {
			segment := feedback.InferUserType(item.Title, item.Body)
			return feedback.Stakes{
				Type:    feedback.StakesRisk,
				Message: fmt.Sprintf("Risk if ignored: potential churn of %s, negative word-of-mouth amplification.", segment.Label()),
			}
		}
		return feedback.Stakes{
			Type:    feedback.StakesRisk,
			Message: "Risk if ignored: ongoing friction that erodes user satisfaction over time.",
		}
	case feedback.TypePraise:
		return feedback.Stakes{
			Type:    feedback.StakesUpside,
			Message: "Upside if amplified: social proof for marketing, potential case study opportunity.",
		}
	}
	return feedback.Stakes{
		Type:    feedback.StakesNeutral,
		Message: "Monitor for changes in sentiment or volume.",
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
