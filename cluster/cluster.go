// Package cluster groups high-signal feedback into focus areas.
package cluster

import (
	"sort"

	"feedback-radar/feedback"
)

// Category is the focus-area category.
type Category string

const (
	CategoryFeatureRequest    Category = "feature_request"
	CategoryUsabilityFriction Category = "usability_friction"
	CategoryBug               Category = "bug"
	CategoryPraise            Category = "praise"
)

// FocusArea aggregates items sharing a category and feature area.
// It is built once per run and not modified afterwards.
type FocusArea struct {
	ID               string                 `json:"id"`
	Title            string                 `json:"title"`
	Category         Category               `json:"category"`
	Items            []feedback.ScoredItem  `json:"items"`
	Frequency        int                    `json:"frequency"`
	AvgImpact        float64                `json:"avgImpact"`
	TopQuote         string                 `json:"topQuote,omitempty"`
	Quotes           []string               `json:"quotes"`
	AffectedSegments []feedback.UserSegment `json:"affectedSegments"`
	Stakes           feedback.Stakes        `json:"stakes"`
	ScoreRationale   string                 `json:"scoreRationale"`
}

// ItemIDs returns the source ids of the members in insertion order.
func (f FocusArea) ItemIDs() []string {
	ids := make([]string, len(f.Items))
	for i, it := range f.Items {
		ids[i] = it.ID
	}
	return ids
}

// Representative picks the member whose stakes and rationale describe the area.
type Representative func(members []feedback.ScoredItem) feedback.ScoredItem

// FirstMember returns the first item appended to the area. Results therefore
// depend on input order.
func FirstMember(members []feedback.ScoredItem) feedback.ScoredItem {
	return members[0]
}

// HighestImpact returns the member with the highest impact score, first on ties.
func HighestImpact(members []feedback.ScoredItem) feedback.ScoredItem {
	best := members[0]
	for _, m := range members[1:] {
		if m.Impact.Score > best.Impact.Score {
			best = m
		}
	}
	return best
}

// Clusterer groups items into focus areas.
type Clusterer struct {
	representative Representative
}

// Option configures a Clusterer.
type Option func(*Clusterer)

// WithRepresentative overrides how the representative member is chosen.
func WithRepresentative(r Representative) Option {
	return func(c *Clusterer) {
		c.representative = r
	}
}

// NewClusterer creates a clusterer that takes stakes from the first member.
func NewClusterer(opts ...Option) *Clusterer {
	c := &Clusterer{representative: FirstMember}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cluster groups items by category and feature area and returns the areas
// sorted by average impact, descending. Areas with equal averages keep the
// order in which their first member was seen.
func (c *Clusterer) Cluster(items []feedback.ScoredItem) []FocusArea {
	var order []string
	builders := make(map[string]*builder)

	for _, item := range items {
		cat := CategoryOf(item.ClassifiedItem)
		area := item.FeatureArea()
		key := Key(cat, area)

		b, ok := builders[key]
		if !ok {
			b = newBuilder(key, area, cat)
			builders[key] = b
			order = append(order, key)
		}
		b.add(item)
	}

	areas := make([]FocusArea, 0, len(order))
	for _, key := range order {
		areas = append(areas, builders[key].freeze(c.representative))
	}

	sort.SliceStable(areas, func(i, j int) bool {
		return areas[i].AvgImpact > areas[j].AvgImpact
	})
	return areas
}

// Key returns the stable focus-area id.
func Key(cat Category, featureArea string) string {
	return string(cat) + ":" + featureArea
}

// CategoryOf maps an item onto a focus-area category. Praise is checked
// before the classification category.
func CategoryOf(item feedback.ClassifiedItem) Category {
	if item.Type == feedback.TypePraise {
		return CategoryPraise
	}
	switch item.Category {
	case feedback.CategoryFeatureRequest:
		return CategoryFeatureRequest
	case feedback.CategoryBug:
		return CategoryBug
	}
	return CategoryUsabilityFriction
}

type builder struct {
	id       string
	title    string
	category Category
	members  []feedback.ScoredItem
	sum      float64
	quotes   []string
	segments []feedback.UserSegment
	seen     map[feedback.UserSegment]bool
}

func newBuilder(id, title string, cat Category) *builder {
	return &builder{
		id:       id,
		title:    title,
		category: cat,
		seen:     make(map[feedback.UserSegment]bool),
	}
}

func (b *builder) add(item feedback.ScoredItem) {
	b.members = append(b.members, item)
	b.sum += item.Impact.Score
	if q := item.Summary.KeyQuote; q != "" {
		b.quotes = append(b.quotes, q)
	}
	seg := feedback.InferUserType(item.Title, item.Body)
	if !b.seen[seg] {
		b.seen[seg] = true
		b.segments = append(b.segments, seg)
	}
}

func (b *builder) freeze(pick Representative) FocusArea {
	rep := pick(b.members)
	area := FocusArea{
		ID:               b.id,
		Title:            b.title,
		Category:         b.category,
		Items:            append([]feedback.ScoredItem(nil), b.members...),
		Frequency:        len(b.members),
		AvgImpact:        b.sum / float64(len(b.members)),
		Quotes:           append([]string{}, b.quotes...),
		AffectedSegments: append([]feedback.UserSegment(nil), b.segments...),
		Stakes:           rep.Impact.Stakes,
		ScoreRationale:   rep.Impact.Rationale,
	}
	if len(b.quotes) > 0 {
		area.TopQuote = b.quotes[0]
	}
	return area
}
