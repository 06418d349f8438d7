package hn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/search_by_date" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("query") != "Acme" {
			t.Errorf("query = %q, want Acme", q.Get("query"))
		}
		if q.Get("tags") != "story" {
			t.Errorf("tags = %q, want story", q.Get("tags"))
		}
		if q.Get("hitsPerPage") != "2" {
			t.Errorf("hitsPerPage = %q, want 2", q.Get("hitsPerPage"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hits": [
			{"objectID": "101", "title": "Acme sync is broken", "url": "https://example.com/a", "author": "pg",
			 "points": 42, "num_comments": 7, "created_at_i": 1700000000, "story_text": "<p>It loses notes.<p>Every day."},
			{"objectID": "102", "title": "Show HN: Acme plugin", "points": null, "num_comments": null, "created_at_i": 0},
			{"objectID": "103", "title": "extra"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	posts, err := client.Search(context.Background(), "Acme", TagStory, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}

	p := posts[0]
	if p.ID != "hn:101" {
		t.Errorf("ID = %q, want hn:101", p.ID)
	}
	if p.Source != "hackernews" {
		t.Errorf("Source = %q, want hackernews", p.Source)
	}
	if p.Title != "Acme sync is broken" {
		t.Errorf("Title = %q", p.Title)
	}
	if p.Body != "It loses notes.\nEvery day." {
		t.Errorf("Body = %q, want markup stripped", p.Body)
	}
	if p.Upvotes != 42 || p.NumComments != 7 {
		t.Errorf("Upvotes, NumComments = %d, %d, want 42, 7", p.Upvotes, p.NumComments)
	}
	if !p.CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("CreatedAt = %v", p.CreatedAt)
	}

	if posts[1].Upvotes != 0 || !posts[1].CreatedAt.IsZero() {
		t.Errorf("null fields should map to zero values: %+v", posts[1])
	}
}

func TestSearchComment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits": [{"objectID": "9", "story_title": "Ask HN: note apps?",
			"story_url": "https://example.com/s", "comment_text": "Acme &amp; friends crash <i>constantly</i>"}]}`))
	}))
	defer server.Close()

	posts, err := NewClient(WithBaseURL(server.URL)).Search(context.Background(), "Acme", TagComment, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(posts))
	}
	if posts[0].Title != "Ask HN: note apps?" {
		t.Errorf("Title = %q, want story title fallback", posts[0].Title)
	}
	if posts[0].URL != "https://example.com/s" {
		t.Errorf("URL = %q, want story url fallback", posts[0].URL)
	}
	if posts[0].Body != "Acme & friends crash constantly" {
		t.Errorf("Body = %q", posts[0].Body)
	}
}

func TestSearchFeedbackDedupes(t *testing.T) {
	var tags []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := r.URL.Query().Get("tags")
		tags = append(tags, tag)
		switch tag {
		case TagStory:
			w.Write([]byte(`{"hits": [{"objectID": "1", "title": "a"}, {"objectID": "2", "title": "b"}]}`))
		case TagComment:
			w.Write([]byte(`{"hits": [{"objectID": "2", "comment_text": "dup"}, {"objectID": "3", "comment_text": "c"}]}`))
		}
	}))
	defer server.Close()

	posts, err := NewClient(WithBaseURL(server.URL)).SearchFeedback(context.Background(), "Acme", 10)
	if err != nil {
		t.Fatalf("SearchFeedback failed: %v", err)
	}

	if len(tags) != 2 || tags[0] != TagStory || tags[1] != TagComment {
		t.Errorf("tags queried = %v, want [story comment]", tags)
	}
	want := []string{"hn:1", "hn:2", "hn:3"}
	if len(posts) != len(want) {
		t.Fatalf("got %d posts, want %d", len(posts), len(want))
	}
	for i, id := range want {
		if posts[i].ID != id {
			t.Errorf("posts[%d].ID = %q, want %q", i, posts[i].ID, id)
		}
	}
	if posts[1].Title != "b" {
		t.Errorf("first occurrence should win, got %+v", posts[1])
	}
}

func TestSearchFeedbackLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tags") == TagStory {
			w.Write([]byte(`{"hits": [{"objectID": "1"}, {"objectID": "2"}]}`))
			return
		}
		w.Write([]byte(`{"hits": [{"objectID": "3"}, {"objectID": "4"}]}`))
	}))
	defer server.Close()

	posts, err := NewClient(WithBaseURL(server.URL)).SearchFeedback(context.Background(), "Acme", 3)
	if err != nil {
		t.Fatalf("SearchFeedback failed: %v", err)
	}
	if len(posts) != 3 {
		t.Errorf("got %d posts, want 3", len(posts))
	}
}

func TestSearchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewClient(WithBaseURL(server.URL)).Search(context.Background(), "Acme", TagStory, 5)
	if err == nil {
		t.Error("expected error for 429 response")
	}

	_, err = NewClient(WithBaseURL(server.URL)).SearchFeedback(context.Background(), "Acme", 5)
	if err == nil {
		t.Error("SearchFeedback should propagate search errors")
	}
}

func TestSearchInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	_, err := NewClient(WithBaseURL(server.URL)).Search(context.Background(), "Acme", "", 5)
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(`{"hits": []}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(WithBaseURL(server.URL)).Search(ctx, "Acme", TagStory, 5)
	if err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"a<p>b", "a\nb"},
		{`see <a href="https://x.y">docs</a> &quot;now&quot;`, `see docs "now"`},
		{"<pre><code>x := 1</code></pre>", "x := 1"},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultClient(t *testing.T) {
	client := NewClient()
	if client.baseURL != defaultBaseURL {
		t.Errorf("baseURL = %q, want %q", client.baseURL, defaultBaseURL)
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", client.httpClient.Timeout)
	}
}
