package classifier

import (
	"fmt"
	"math"

	"feedback-radar/feedback"
)

// response is the JSON shape the model must return.
type response struct {
	Type            string                    `json:"type" jsonschema:"enum=Constructive,enum=Praise,enum=Neutral"`
	Category        string                    `json:"category" jsonschema:"enum=Feature Request,enum=Usability Friction,enum=Support Question,enum=Rant/Opinion,enum=N/A"`
	Confidence      float64                   `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Reasoning       string                    `json:"reasoning"`
	ProblemMetadata *feedback.ProblemMetadata `json:"problemMetadata,omitempty" jsonschema:"description=Only when type is Constructive"`
	DelightMetadata *feedback.DelightMetadata `json:"delightMetadata,omitempty" jsonschema:"description=Only when type is Praise"`
	Summary         feedback.Summary          `json:"summary"`
}

func (r response) toItem(post feedback.RawPost) (feedback.ClassifiedItem, error) {
	typ, err := feedback.ParseItemType(r.Type)
	if err != nil {
		return feedback.ClassifiedItem{}, err
	}
	cat, err := feedback.ParseCategory(r.Category)
	if err != nil {
		return feedback.ClassifiedItem{}, err
	}

	item := feedback.ClassifiedItem{
		RawPost:    post,
		Type:       typ,
		Category:   cat,
		Confidence: math.Max(0, math.Min(1, r.Confidence)),
		Reasoning:  r.Reasoning,
		Summary:    r.Summary,
	}

	// Metadata is only kept for the matching type.
	if typ == feedback.TypeConstructive && r.ProblemMetadata != nil {
		pm := *r.ProblemMetadata
		pm.ImpactScore = clampScore(pm.ImpactScore, 1, 10)
		pm.UrgencyScore = clampScore(pm.UrgencyScore, 1, 10)
		pm.EffortScore = clampScore(pm.EffortScore, 1, 10)
		item.ProblemMetadata = &pm
	}
	if typ == feedback.TypePraise && r.DelightMetadata != nil {
		dm := *r.DelightMetadata
		dm.Shareability = clampScore(dm.Shareability, 1, 10)
		item.DelightMetadata = &dm
	}

	if err := item.Validate(); err != nil {
		return feedback.ClassifiedItem{}, err
	}
	return item, nil
}

func systemPrompt(company string) string {
	return fmt.Sprintf(`You triage user feedback about %s for a product team.
Classify each post as Constructive (a problem or request), Praise, or Neutral.
Only Constructive posts carry problemMetadata and only Praise posts carry delightMetadata.
Scores are on a 1-10 scale. Respond with a single JSON object and nothing else.`, company)
}

func buildPrompt(post feedback.RawPost, schema string) string {
	body := []rune(post.Body)
	if len(body) > maxBodyRunes {
		body = body[:maxBodyRunes]
	}
	return fmt.Sprintf(`Classify the following post.

Source: %s
Title: %s
Upvotes: %d
Comments: %d

Body:
%s

Respond with JSON matching this schema:
%s`, post.Source, post.Title, post.Upvotes, post.NumComments, string(body), schema)
}
