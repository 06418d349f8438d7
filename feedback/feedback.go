package feedback

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ItemType is the sentiment class assigned by classification.
type ItemType string

const (
	TypeConstructive ItemType = "Constructive"
	TypePraise       ItemType = "Praise"
	TypeNeutral      ItemType = "Neutral"
)

// Category is the classification category of an item.
type Category string

const (
	CategoryFeatureRequest    Category = "Feature Request"
	CategoryUsabilityFriction Category = "Usability Friction"
	CategorySupportQuestion   Category = "Support Question"
	CategoryRantOpinion       Category = "Rant/Opinion"
	CategoryNA                Category = "N/A"
	// CategoryBug is accepted from older classifications and maps to the bug focus-area category.
	CategoryBug Category = "Bug"
)

// ParseItemType maps a classifier label onto an ItemType.
func ParseItemType(s string) (ItemType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "constructive":
		return TypeConstructive, nil
	case "praise":
		return TypePraise, nil
	case "neutral":
		return TypeNeutral, nil
	}
	return "", fmt.Errorf("unknown item type %q", s)
}

// ParseCategory maps a classifier label onto a Category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "feature request":
		return CategoryFeatureRequest, nil
	case "usability friction":
		return CategoryUsabilityFriction, nil
	case "support question":
		return CategorySupportQuestion, nil
	case "rant/opinion":
		return CategoryRantOpinion, nil
	case "n/a", "":
		return CategoryNA, nil
	case "bug":
		return CategoryBug, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// RawPost is a forum post before classification.
type RawPost struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url,omitempty"`
	Author      string    `json:"author,omitempty"`
	Upvotes     int       `json:"upvotes"`
	NumComments int       `json:"numComments"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ProblemMetadata describes a Constructive item.
type ProblemMetadata struct {
	RootCause     string   `json:"rootCause,omitempty"`
	FeatureArea   string   `json:"featureArea,omitempty"`
	ImpactType    string   `json:"impactType,omitempty"`
	UrgencySignal string   `json:"urgencySignal,omitempty"`
	ImpactScore   *float64 `json:"impactScore,omitempty"`
	UrgencyScore  *float64 `json:"urgencyScore,omitempty"`
	EffortScore   *float64 `json:"effortScore,omitempty"`
}

// DelightMetadata describes a Praise item.
type DelightMetadata struct {
	AhaMoment           string   `json:"ahaMoment,omitempty"`
	ValuePropValidation string   `json:"valuePropValidation,omitempty"`
	Shareability        *float64 `json:"shareability,omitempty"`
}

// Summary holds the actionable digest of one item.
type Summary struct {
	ActionableInsight string `json:"actionableInsight,omitempty"`
	ReplyDraft        string `json:"replyDraft,omitempty"`
	KeyQuote          string `json:"keyQuote,omitempty"`
}

// ClassifiedItem is one unit of feedback after classification.
type ClassifiedItem struct {
	RawPost
	Type            ItemType         `json:"type"`
	Category        Category         `json:"category"`
	Confidence      float64          `json:"confidence"`
	Reasoning       string           `json:"reasoning,omitempty"`
	ProblemMetadata *ProblemMetadata `json:"problemMetadata,omitempty"`
	DelightMetadata *DelightMetadata `json:"delightMetadata,omitempty"`
	Summary         Summary          `json:"summary"`
	// SimilarReports counts other items in the same batch reporting the same feature area.
	SimilarReports int `json:"similarReports,omitempty"`
}

var (
	ErrProblemMetadataMismatch = errors.New("problemMetadata present on non-Constructive item")
	ErrDelightMetadataMismatch = errors.New("delightMetadata present on non-Praise item")
)

// Validate checks that metadata matches the item type.
func (c ClassifiedItem) Validate() error {
	if c.ProblemMetadata != nil && c.Type != TypeConstructive {
		return fmt.Errorf("item %s: %w", c.ID, ErrProblemMetadataMismatch)
	}
	if c.DelightMetadata != nil && c.Type != TypePraise {
		return fmt.Errorf("item %s: %w", c.ID, ErrDelightMetadataMismatch)
	}
	return nil
}

// Degraded builds the fallback classification for a post whose classification failed.
func Degraded(post RawPost, cause error) ClassifiedItem {
	return ClassifiedItem{
		RawPost:    post,
		Type:       TypeNeutral,
		Category:   CategoryNA,
		Confidence: 0,
		Reasoning:  fmt.Sprintf("classification failed: %v", cause),
	}
}

// IsDegraded reports whether the item is a classification fallback.
func (c ClassifiedItem) IsDegraded() bool {
	return c.Type == TypeNeutral && c.Category == CategoryNA && c.Confidence == 0 &&
		strings.HasPrefix(c.Reasoning, "classification failed:")
}

// FeatureArea returns the problem feature area, falling back to the aha moment, then "General".
func (c ClassifiedItem) FeatureArea() string {
	if c.ProblemMetadata != nil && c.ProblemMetadata.FeatureArea != "" {
		return c.ProblemMetadata.FeatureArea
	}
	if c.DelightMetadata != nil && c.DelightMetadata.AhaMoment != "" {
		return c.DelightMetadata.AhaMoment
	}
	return "General"
}

// CountSimilar sets SimilarReports on each item to the number of other items
// sharing its problem feature area (case-insensitive). Items without one get 0.
func CountSimilar(items []ClassifiedItem) []ClassifiedItem {
	counts := make(map[string]int)
	for _, it := range items {
		if k := problemArea(it); k != "" {
			counts[k]++
		}
	}
	out := make([]ClassifiedItem, len(items))
	for i, it := range items {
		it.SimilarReports = 0
		if k := problemArea(it); k != "" {
			it.SimilarReports = counts[k] - 1
		}
		out[i] = it
	}
	return out
}

func problemArea(it ClassifiedItem) string {
	if it.ProblemMetadata == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(it.ProblemMetadata.FeatureArea))
}

// Float returns a pointer to v, for optional metadata scores.
func Float(v float64) *float64 {
	return &v
}
