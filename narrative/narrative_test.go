package narrative

import (
	"context"
	"errors"
	"strings"
	"testing"

	"feedback-radar/llm"
	"feedback-radar/synthesis"
)

type mockClient struct {
	response string
	err      error
	last     llm.Request
}

func (m *mockClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	m.last = req
	return m.response, m.err
}

func (m *mockClient) Model() string { return "mock" }

func testInput() synthesis.NarrativeInput {
	return synthesis.NarrativeInput{
		CompanyName:       "Acme",
		TotalItems:        40,
		HighSignalCount:   25,
		NoiseCount:        15,
		ConstructiveCount: 20,
		PraiseCount:       12,
		NeutralCount:      8,
		FocusAreasText:    "1. [bug] Sync: 6 mentions, avg impact 7.2, segments: power_user",
		NewUserCount:      4,
		PowerUserCount:    9,
		ChurnedCount:      2,
		SampleQuotes:      []string{"sync ate my notes"},
	}
}

func TestNarrate(t *testing.T) {
	client := &mockClient{response: "```json\n" + `{
		"tldr": "Sync reliability dominates feedback.",
		"highlights": ["Sync complaints up"],
		"executiveBrief": "Fix sync.",
		"sentiment": {"mood": "frustrated"},
		"focusAreas": [{"title": "Sync", "severityLabel": "Critical", "rootCause": "conflict handling", "affectedSegments": ["power users"]}],
		"brandStrengths": [{"title": "Search", "evidence": "praised often"}],
		"suggestedOKRs": [{"objective": "Reliable sync", "keyResults": ["0 data-loss reports"]}],
		"priorityMatrix": {"quickWins": ["retry banner"], "majorProjects": ["CRDT sync"]},
		"expectationGaps": [{"expectation": "offline works", "reality": "conflicts"}]
	}` + "\n```"}

	w := NewWriter(client)
	n, err := w.Narrate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}

	if n.TLDR != "Sync reliability dominates feedback." {
		t.Errorf("TLDR = %q", n.TLDR)
	}
	if len(n.FocusAreas) != 1 || n.FocusAreas[0].SeverityLabel != "Critical" {
		t.Errorf("FocusAreas = %+v", n.FocusAreas)
	}
	if n.Sentiment.Mood != "frustrated" {
		t.Errorf("Mood = %q", n.Sentiment.Mood)
	}
	if len(n.SuggestedOKRs) != 1 || n.SuggestedOKRs[0].KeyResults[0] != "0 data-loss reports" {
		t.Errorf("SuggestedOKRs = %+v", n.SuggestedOKRs)
	}

	for _, want := range []string{
		"Company: Acme",
		"Items analyzed: 40 (high signal: 25, noise filtered: 15)",
		"constructive 20, praise 12, neutral 8",
		"new users 4, power users 9, churned 2",
		"[bug] Sync: 6 mentions",
		`- "sync ate my notes"`,
		`"focusAreas"`,
	} {
		if !strings.Contains(client.last.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(client.last.Prompt, `"positive"`) {
		t.Error("prompt schema should not ask for sentiment percentages")
	}
	if client.last.System == "" {
		t.Error("system prompt should be set")
	}
}

func TestNarrateErrors(t *testing.T) {
	tests := []struct {
		name        string
		client      *mockClient
		wantMissing bool
	}{
		{"client error", &mockClient{err: errors.New("timeout")}, false},
		{"not json", &mockClient{response: "Sorry, I can't."}, false},
		{"missing focusAreas", &mockClient{response: `{"tldr": "x"}`}, true},
		{"null focusAreas", &mockClient{response: `{"tldr": "x", "focusAreas": null}`}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewWriter(tt.client).Narrate(context.Background(), testInput())
			if err == nil {
				t.Fatal("expected error")
			}
			if n != nil {
				t.Errorf("narrative = %+v, want nil", n)
			}
			if IsMissingFocusAreas(err) != tt.wantMissing {
				t.Errorf("IsMissingFocusAreas(%v) = %v, want %v", err, !tt.wantMissing, tt.wantMissing)
			}
		})
	}
}

func TestParseEmptyFocusAreas(t *testing.T) {
	n, err := Parse(`{"tldr": "quiet week", "focusAreas": []}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if n.FocusAreas == nil || len(n.FocusAreas) != 0 {
		t.Errorf("FocusAreas = %#v, want empty non-nil", n.FocusAreas)
	}
}
