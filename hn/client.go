package hn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"feedback-radar/feedback"
)

const (
	defaultBaseURL = "https://hn.algolia.com"
	sourceName     = "hackernews"
	maxHitsPerPage = 1000
)

// Search tags accepted by the Algolia API.
const (
	TagStory   = "story"
	TagComment = "comment"
)

// Hit is one search result from the HN Algolia API.
type Hit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	StoryTitle  string `json:"story_title"`
	URL         string `json:"url"`
	StoryURL    string `json:"story_url"`
	Author      string `json:"author"`
	Points      *int   `json:"points"`
	NumComments *int   `json:"num_comments"`
	CreatedAtI  int64  `json:"created_at_i"`
	StoryText   string `json:"story_text"`
	CommentText string `json:"comment_text"`
}

type searchResponse struct {
	Hits []Hit `json:"hits"`
}

// Client searches Hacker News for mentions of a company.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a new HN search client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns the most recent posts matching query with the given tag.
func (c *Client) Search(ctx context.Context, query, tag string, limit int) ([]feedback.RawPost, error) {
	params := url.Values{}
	params.Set("query", query)
	if tag != "" {
		params.Set("tags", tag)
	}
	if limit > 0 {
		params.Set("hitsPerPage", strconv.Itoa(min(limit, maxHitsPerPage)))
	}
	endpoint := c.baseURL + "/api/v1/search_by_date?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	posts := make([]feedback.RawPost, 0, len(sr.Hits))
	for _, h := range sr.Hits {
		posts = append(posts, h.Post())
	}
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// SearchFeedback searches stories and comments, dropping duplicate ids and
// keeping first-seen order. Stories come first.
func (c *Client) SearchFeedback(ctx context.Context, query string, limit int) ([]feedback.RawPost, error) {
	seen := make(map[string]bool)
	var out []feedback.RawPost
	for _, tag := range []string{TagStory, TagComment} {
		posts, err := c.Search(ctx, query, tag, limit)
		if err != nil {
			return nil, err
		}
		for _, p := range posts {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Post converts a hit into a raw post.
func (h Hit) Post() feedback.RawPost {
	title := h.Title
	if title == "" {
		title = h.StoryTitle
	}
	link := h.URL
	if link == "" {
		link = h.StoryURL
	}
	body := h.StoryText
	if body == "" {
		body = h.CommentText
	}

	p := feedback.RawPost{
		ID:     "hn:" + h.ObjectID,
		Source: sourceName,
		Title:  title,
		Body:   PlainText(body),
		URL:    link,
		Author: h.Author,
	}
	if h.Points != nil {
		p.Upvotes = *h.Points
	}
	if h.NumComments != nil {
		p.NumComments = *h.NumComments
	}
	if h.CreatedAtI > 0 {
		p.CreatedAt = time.Unix(h.CreatedAtI, 0).UTC()
	}
	return p
}

// PlainText strips markup from an HN text field, turning paragraph breaks into newlines.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "p" || string(name) == "br" {
				b.WriteString("\n")
			}
		}
	}
}
