// Package classifier labels raw posts with an LLM.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"feedback-radar/feedback"
	"feedback-radar/llm"
)

const (
	defaultBatchSize  = 5
	defaultBatchDelay = time.Second
	maxBodyRunes      = 4000
)

// Cache stores successful classifications by post id.
type Cache interface {
	Lookup(ctx context.Context, id string) (*feedback.ClassifiedItem, bool, error)
	Store(ctx context.Context, item feedback.ClassifiedItem) error
}

// BatchPolicy runs Size classifications concurrently, then pauses for Delay.
type BatchPolicy struct {
	Size  int
	Delay time.Duration
}

// Classifier classifies posts one at a time or in batches.
type Classifier struct {
	client  llm.Client
	company string
	policy  BatchPolicy
	cache   Cache

	schemaOnce sync.Once
	schema     string
	schemaErr  error
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithCompany names the company the feedback is about.
func WithCompany(name string) Option {
	return func(c *Classifier) {
		c.company = name
	}
}

// WithBatchPolicy overrides the batch size and inter-batch delay.
func WithBatchPolicy(p BatchPolicy) Option {
	return func(c *Classifier) {
		if p.Size > 0 {
			c.policy.Size = p.Size
		}
		if p.Delay >= 0 {
			c.policy.Delay = p.Delay
		}
	}
}

// WithCache enables a classification cache.
func WithCache(cache Cache) Option {
	return func(c *Classifier) {
		c.cache = cache
	}
}

// New creates a classifier backed by client.
func New(client llm.Client, opts ...Option) *Classifier {
	c := &Classifier{
		client:  client,
		company: "the product",
		policy:  BatchPolicy{Size: defaultBatchSize, Delay: defaultBatchDelay},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify labels one post. On failure it returns the degraded item together
// with the error, so callers can keep the item.
func (c *Classifier) Classify(ctx context.Context, post feedback.RawPost) (feedback.ClassifiedItem, error) {
	if c.cache != nil {
		cached, ok, err := c.cache.Lookup(ctx, post.ID)
		if err != nil {
			slog.Warn("classification cache lookup failed", "id", post.ID, "error", err)
		} else if ok {
			cached.RawPost = post
			return *cached, nil
		}
	}

	item, err := c.classify(ctx, post)
	if err != nil {
		return feedback.Degraded(post, err), err
	}

	if c.cache != nil {
		if err := c.cache.Store(ctx, item); err != nil {
			slog.Warn("classification cache store failed", "id", post.ID, "error", err)
		}
	}
	return item, nil
}

func (c *Classifier) classify(ctx context.Context, post feedback.RawPost) (feedback.ClassifiedItem, error) {
	schema, err := c.responseSchema()
	if err != nil {
		return feedback.ClassifiedItem{}, err
	}

	text, err := c.client.Complete(ctx, llm.Request{
		System: systemPrompt(c.company),
		Prompt: buildPrompt(post, schema),
	})
	if err != nil {
		return feedback.ClassifiedItem{}, fmt.Errorf("complete: %w", err)
	}

	var resp response
	if err := llm.DecodeJSON(text, &resp); err != nil {
		return feedback.ClassifiedItem{}, err
	}
	return resp.toItem(post)
}

func (c *Classifier) responseSchema() (string, error) {
	c.schemaOnce.Do(func() {
		c.schema, c.schemaErr = llm.SchemaJSON(&response{})
	})
	return c.schema, c.schemaErr
}

// Failure records a post whose classification degraded.
type Failure struct {
	PostID string
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("classify %s: %v", f.PostID, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Batch is the outcome of ClassifyAll. Items are in input order and include
// degraded items for every failure.
type Batch struct {
	Items    []feedback.ClassifiedItem
	Failures []Failure
}

// ClassifyAll classifies posts in fixed-size concurrent batches with a pause
// between batches. Posts not reached before ctx is cancelled are degraded.
func (c *Classifier) ClassifyAll(ctx context.Context, posts []feedback.RawPost) Batch {
	items := make([]feedback.ClassifiedItem, len(posts))
	errs := make([]error, len(posts))

	for start := 0; start < len(posts); start += c.policy.Size {
		end := min(start+c.policy.Size, len(posts))

		if start > 0 {
			if err := pause(ctx, c.policy.Delay); err != nil {
				for i := start; i < len(posts); i++ {
					items[i] = feedback.Degraded(posts[i], err)
					errs[i] = err
				}
				break
			}
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i // per-iteration copy (pre-Go 1.22 loop semantics)
			g.Go(func() error {
				items[i], errs[i] = c.Classify(ctx, posts[i])
				return nil
			})
		}
		g.Wait()

		slog.Debug("classification batch done", "from", start, "to", end, "total", len(posts))
	}

	b := Batch{Items: items}
	for i, err := range errs {
		if err != nil {
			b.Failures = append(b.Failures, Failure{PostID: posts[i].ID, Err: err})
		}
	}
	return b
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func clampScore(v *float64, lo, hi float64) *float64 {
	if v == nil {
		return nil
	}
	c := math.Max(lo, math.Min(hi, *v))
	return &c
}
