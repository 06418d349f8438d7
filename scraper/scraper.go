package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"feedback-radar/feedback"
)

const (
	defaultMaxContentLen = 4000
	userAgent            = "Mozilla/5.0 (compatible; feedback-radar/1.0)"
)

// Scraper extracts readable content from web pages linked by posts.
type Scraper struct {
	httpClient    *http.Client
	maxContentLen int
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		s.httpClient.Timeout = d
	}
}

// WithMaxContentLength sets the maximum content length, in characters.
func WithMaxContentLength(n int) Option {
	return func(s *Scraper) {
		s.maxContentLen = n
	}
}

// NewScraper creates a new content scraper.
func NewScraper(opts ...Option) *Scraper {
	s := &Scraper{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		maxContentLen: defaultMaxContentLen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape extracts readable text content from a URL.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", fmt.Errorf("parse content: %w", err)
	}

	return truncate(strings.TrimSpace(article.TextContent), s.maxContentLen), nil
}

// PostError records a post that could not be enriched.
type PostError struct {
	PostID string
	URL    string
	Err    error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("enrich %s (%s): %v", e.PostID, e.URL, e.Err)
}

func (e *PostError) Unwrap() error { return e.Err }

// NeedsEnrichment reports whether a post links somewhere but has no text of its own.
func NeedsEnrichment(p feedback.RawPost) bool {
	return strings.TrimSpace(p.Body) == "" && p.URL != ""
}

// Enrich fills the body of link-only posts with the linked article text.
// Posts that fail keep their empty body and are reported in the error list.
// The returned slice is a copy in input order.
func (s *Scraper) Enrich(ctx context.Context, posts []feedback.RawPost) ([]feedback.RawPost, []*PostError) {
	out := make([]feedback.RawPost, len(posts))
	copy(out, posts)

	var errs []*PostError
	for i := range out {
		if !NeedsEnrichment(out[i]) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, &PostError{PostID: out[i].ID, URL: out[i].URL, Err: err})
			continue
		}
		content, err := s.Scrape(ctx, out[i].URL)
		if err != nil {
			errs = append(errs, &PostError{PostID: out[i].ID, URL: out[i].URL, Err: err})
			continue
		}
		out[i].Body = content
	}
	return out, errs
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
