// Package narrative writes the prose part of a report with an LLM.
package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"feedback-radar/llm"
	"feedback-radar/synthesis"
)

// ErrMissingFocusAreas is returned when the model omits the focusAreas array.
var ErrMissingFocusAreas = fmt.Errorf("narrative response: %w", synthesis.ErrInvalidNarrative)

const defaultMaxTokens = 8192

// Writer implements synthesis.Narrator.
type Writer struct {
	client    llm.Client
	maxTokens int
}

// NewWriter creates a narrative writer.
func NewWriter(client llm.Client) *Writer {
	return &Writer{client: client, maxTokens: defaultMaxTokens}
}

// Narrate asks the model for the report narrative and validates the result.
func (w *Writer) Narrate(ctx context.Context, input synthesis.NarrativeInput) (*synthesis.Narrative, error) {
	schema, err := llm.SchemaJSON(&synthesis.Narrative{})
	if err != nil {
		return nil, err
	}

	text, err := w.client.Complete(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    buildPrompt(input, schema),
		MaxTokens: w.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	return Parse(text)
}

// Parse decodes model output into a narrative. A response without a
// focusAreas array is rejected.
func Parse(text string) (*synthesis.Narrative, error) {
	var fields map[string]json.RawMessage
	if err := llm.DecodeJSON(text, &fields); err != nil {
		return nil, err
	}
	raw, ok := fields["focusAreas"]
	if !ok || strings.TrimSpace(string(raw)) == "null" {
		return nil, ErrMissingFocusAreas
	}

	var n synthesis.Narrative
	if err := llm.DecodeJSON(text, &n); err != nil {
		return nil, err
	}
	if n.FocusAreas == nil {
		return nil, ErrMissingFocusAreas
	}
	return &n, nil
}

// IsMissingFocusAreas reports whether err came from a narrative without focus areas.
func IsMissingFocusAreas(err error) bool {
	return errors.Is(err, synthesis.ErrInvalidNarrative)
}

const systemPrompt = `You are a product strategist turning aggregated user feedback statistics into a concise strategic brief.
Use only the numbers and quotes you are given. Keep focus areas in the order provided.
Respond with a single JSON object and nothing else.`

func buildPrompt(in synthesis.NarrativeInput, schema string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\n\n", in.CompanyName)
	fmt.Fprintf(&b, "Items analyzed: %d (high signal: %d, noise filtered: %d)\n", in.TotalItems, in.HighSignalCount, in.NoiseCount)
	fmt.Fprintf(&b, "Type distribution: constructive %d, praise %d, neutral %d\n", in.ConstructiveCount, in.PraiseCount, in.NeutralCount)
	fmt.Fprintf(&b, "User segments: new users %d, power users %d, churned %d\n\n", in.NewUserCount, in.PowerUserCount, in.ChurnedCount)
	b.WriteString("Focus areas (highest impact first):\n")
	b.WriteString(in.FocusAreasText)
	b.WriteString("\n\n")
	if len(in.SampleQuotes) > 0 {
		b.WriteString("Sample quotes:\n")
		for _, q := range in.SampleQuotes {
			fmt.Fprintf(&b, "- %q\n", q)
		}
		b.WriteString("\n")
	}
	b.WriteString("Return one focusAreas entry per focus area above, in the same order, with severityLabel (Critical, High, Medium or Low), rootCause and affectedSegments.\n\n")
	b.WriteString("Respond with JSON matching this schema:\n")
	b.WriteString(schema)
	return b.String()
}
