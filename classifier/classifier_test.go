package classifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedback-radar/feedback"
	"feedback-radar/llm"
)

type mockClient struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	prompts   []string
	inflight  int32
	peak      int32
}

func (m *mockClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	cur := atomic.AddInt32(&m.inflight, 1)
	defer atomic.AddInt32(&m.inflight, -1)
	for {
		peak := atomic.LoadInt32(&m.peak)
		if cur <= peak || atomic.CompareAndSwapInt32(&m.peak, peak, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, req.Prompt)
	if m.err != nil {
		return "", m.err
	}
	for title, resp := range m.responses {
		if strings.Contains(req.Prompt, "Title: "+title+"\n") {
			return resp, nil
		}
	}
	return `{"type":"Neutral","category":"N/A","confidence":0.5,"reasoning":"default","summary":{}}`, nil
}

func (m *mockClient) Model() string { return "mock" }

type mockCache struct {
	items  map[string]feedback.ClassifiedItem
	stored []string
}

func newMockCache() *mockCache {
	return &mockCache{items: make(map[string]feedback.ClassifiedItem)}
}

func (m *mockCache) Lookup(ctx context.Context, id string) (*feedback.ClassifiedItem, bool, error) {
	if it, ok := m.items[id]; ok {
		return &it, true, nil
	}
	return nil, false, nil
}

func (m *mockCache) Store(ctx context.Context, item feedback.ClassifiedItem) error {
	m.stored = append(m.stored, item.ID)
	m.items[item.ID] = item
	return nil
}

func TestClassifyConstructive(t *testing.T) {
	client := &mockClient{responses: map[string]string{
		"Sync is broken": "```json\n" + `{
			"type": "Constructive",
			"category": "Usability Friction",
			"confidence": 1.4,
			"reasoning": "describes a failure",
			"problemMetadata": {"featureArea": "Sync", "impactScore": 12, "rootCause": "conflicts"},
			"delightMetadata": {"ahaMoment": "should be dropped"},
			"summary": {"keyQuote": "sync loses notes"}
		}` + "\n```",
	}}
	c := New(client, WithCompany("Acme"))

	post := feedback.RawPost{ID: "hn:1", Title: "Sync is broken", Body: "it loses notes", Upvotes: 12}
	item, err := c.Classify(context.Background(), post)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if item.Type != feedback.TypeConstructive {
		t.Errorf("Type = %q, want Constructive", item.Type)
	}
	if item.Category != feedback.CategoryUsabilityFriction {
		t.Errorf("Category = %q", item.Category)
	}
	if item.Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped to 1", item.Confidence)
	}
	if item.ProblemMetadata == nil || item.ProblemMetadata.FeatureArea != "Sync" {
		t.Fatalf("ProblemMetadata = %+v", item.ProblemMetadata)
	}
	if *item.ProblemMetadata.ImpactScore != 10 {
		t.Errorf("ImpactScore = %v, want clamped to 10", *item.ProblemMetadata.ImpactScore)
	}
	if item.DelightMetadata != nil {
		t.Error("DelightMetadata should be dropped for Constructive items")
	}
	if item.Summary.KeyQuote != "sync loses notes" {
		t.Errorf("KeyQuote = %q", item.Summary.KeyQuote)
	}
	if item.Upvotes != 12 || item.ID != "hn:1" {
		t.Errorf("raw post fields not carried over: %+v", item.RawPost)
	}
	if !strings.Contains(client.prompts[0], `"problemMetadata"`) {
		t.Error("prompt should include the response schema")
	}
}

func TestClassifyDegradesOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		client  *mockClient
		wantErr string
	}{
		{"llm error", &mockClient{err: errors.New("quota exceeded")}, "quota exceeded"},
		{"bad json", &mockClient{responses: map[string]string{"t": "I cannot help"}}, "parse model JSON"},
		{"unknown type", &mockClient{responses: map[string]string{"t": `{"type":"Angry","category":"N/A"}`}}, "unknown item type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.client)
			item, err := c.Classify(context.Background(), feedback.RawPost{ID: "x", Title: "t"})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
			if !item.IsDegraded() {
				t.Errorf("item should be degraded, got %+v", item)
			}
			if !strings.Contains(item.Reasoning, tt.wantErr) {
				t.Errorf("Reasoning = %q, should name the error", item.Reasoning)
			}
		})
	}
}

func TestClassifyUsesCache(t *testing.T) {
	cache := newMockCache()
	cache.items["hn:1"] = feedback.ClassifiedItem{
		RawPost:  feedback.RawPost{ID: "hn:1", Upvotes: 1},
		Type:     feedback.TypePraise,
		Category: feedback.CategoryNA,
	}
	client := &mockClient{}
	c := New(client, WithCache(cache))

	item, err := c.Classify(context.Background(), feedback.RawPost{ID: "hn:1", Title: "x", Upvotes: 50})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if item.Type != feedback.TypePraise {
		t.Errorf("Type = %q, want cached Praise", item.Type)
	}
	if item.Upvotes != 50 {
		t.Errorf("Upvotes = %d, want fresh engagement 50", item.Upvotes)
	}
	if len(client.prompts) != 0 {
		t.Errorf("LLM called %d times on cache hit", len(client.prompts))
	}

	if _, err := c.Classify(context.Background(), feedback.RawPost{ID: "hn:2", Title: "y"}); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(cache.stored) != 1 || cache.stored[0] != "hn:2" {
		t.Errorf("stored = %v, want [hn:2]", cache.stored)
	}
}

func TestClassifyDoesNotCacheFailures(t *testing.T) {
	cache := newMockCache()
	c := New(&mockClient{err: errors.New("down")}, WithCache(cache))

	c.Classify(context.Background(), feedback.RawPost{ID: "hn:1"})

	if len(cache.stored) != 0 {
		t.Errorf("degraded item should not be cached, stored = %v", cache.stored)
	}
}

func TestClassifyAllBatches(t *testing.T) {
	client := &mockClient{responses: map[string]string{
		"bad": "not json at all",
	}}
	c := New(client, WithBatchPolicy(BatchPolicy{Size: 2, Delay: time.Millisecond}))

	posts := []feedback.RawPost{
		{ID: "1", Title: "a"},
		{ID: "2", Title: "bad"},
		{ID: "3", Title: "c"},
		{ID: "4", Title: "d"},
		{ID: "5", Title: "e"},
	}

	batch := c.ClassifyAll(context.Background(), posts)

	if len(batch.Items) != len(posts) {
		t.Fatalf("got %d items, want %d", len(batch.Items), len(posts))
	}
	for i, item := range batch.Items {
		if item.ID != posts[i].ID {
			t.Errorf("Items[%d].ID = %s, want %s", i, item.ID, posts[i].ID)
		}
	}
	if len(batch.Failures) != 1 || batch.Failures[0].PostID != "2" {
		t.Errorf("Failures = %v, want one failure for post 2", batch.Failures)
	}
	if !batch.Items[1].IsDegraded() {
		t.Error("failed post should be degraded")
	}
	if peak := atomic.LoadInt32(&client.peak); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= batch size 2", peak)
	}
}

func TestClassifyAllCancelledBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockClient{}
	c := New(client, WithBatchPolicy(BatchPolicy{Size: 1, Delay: time.Hour}))

	posts := []feedback.RawPost{{ID: "1", Title: "a"}, {ID: "2", Title: "b"}, {ID: "3", Title: "c"}}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	batch := c.ClassifyAll(ctx, posts)

	if len(batch.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(batch.Items))
	}
	if batch.Items[0].IsDegraded() {
		t.Error("first post should have been classified before cancellation")
	}
	if len(batch.Failures) != 2 {
		t.Fatalf("got %d failures, want 2", len(batch.Failures))
	}
	for _, f := range batch.Failures {
		if !errors.Is(f, context.Canceled) {
			t.Errorf("failure %v should wrap context.Canceled", f)
		}
	}
}

func TestClassifyAllEmpty(t *testing.T) {
	batch := New(&mockClient{}).ClassifyAll(context.Background(), nil)
	if len(batch.Items) != 0 || len(batch.Failures) != 0 {
		t.Errorf("unexpected batch for empty input: %+v", batch)
	}
}
