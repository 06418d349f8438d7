package signal

import (
	"math"
	"sort"
	"unicode/utf8"

	"feedback-radar/feedback"
)

// Threshold is the minimum signal score for an item to count as high-signal.
const Threshold = 0.5

const baseScore = 0.5

// Result holds scored items split into high-signal and noise buckets.
type Result struct {
	HighSignal []feedback.ScoredItem `json:"highSignal"`
	Noise      []feedback.ScoredItem `json:"noise"`
}

// Score returns the signal score of an item in [0,1].
func Score(item feedback.ClassifiedItem) float64 {
	score := baseScore

	switch item.Type {
	case feedback.TypeConstructive:
		score += 0.2
	case feedback.TypePraise:
		score += 0.1
	}

	bodyLen := utf8.RuneCountInString(item.Body)
	if bodyLen > 200 {
		score += 0.1
	}
	if bodyLen > 500 {
		score += 0.1
	}

	if item.Upvotes > 10 {
		score += 0.05
	}
	if item.Upvotes > 50 {
		score += 0.1
	}
	if item.Upvotes > 100 {
		score += 0.1
	}

	if item.ProblemMetadata != nil {
		score += 0.1
		if s := item.ProblemMetadata.ImpactScore; s != nil && *s >= 7 {
			score += 0.1
		}
	}

	if item.Category == feedback.CategoryRantOpinion {
		score -= 0.2
	}
	if bodyLen < 50 {
		score -= 0.2
	}

	return round4(math.Max(0, math.Min(1, score)))
}

// Partition scores every item and partitions it. HighSignal is sorted by impact
// score descending with ties kept in input order; Noise keeps input order.
func Partition(items []feedback.ScoredItem) Result {
	p := Result{
		HighSignal: []feedback.ScoredItem{},
		Noise:      []feedback.ScoredItem{},
	}
	for _, item := range items {
		item.SignalScore = Score(item.ClassifiedItem)
		if item.SignalScore >= Threshold {
			p.HighSignal = append(p.HighSignal, item)
		} else {
			p.Noise = append(p.Noise, item)
		}
	}

	sort.SliceStable(p.HighSignal, func(i, j int) bool {
		return p.HighSignal[i].Impact.Score > p.HighSignal[j].Impact.Score
	})

	return p
}

// round4 absorbs float drift from the additive adjustments so that, for
// example, 0.5 + 0.2 - 0.2 compares equal to the threshold.
func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
