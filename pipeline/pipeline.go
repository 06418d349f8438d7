// Package pipeline runs one end-to-end feedback analysis: fetch, enrich,
// classify, synthesize, persist and notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"feedback-radar/classifier"
	"feedback-radar/feedback"
	"feedback-radar/metrics"
	"feedback-radar/scraper"
	"feedback-radar/storage"
	"feedback-radar/synthesis"
	"feedback-radar/trend"
)

// Stage names used in StageError.
const (
	StageScraping       = "scraping"
	StageClassification = "classification"
	StageSynthesis      = "synthesis"
	StageStorage        = "storage"
	StageNotification   = "notification"
)

const defaultMaxItems = 100

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// StageError names the stage an error happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Source searches a forum for posts about a company.
type Source interface {
	SearchFeedback(ctx context.Context, query string, limit int) ([]feedback.RawPost, error)
}

// Enricher fills in the body of link-only posts.
type Enricher interface {
	Enrich(ctx context.Context, posts []feedback.RawPost) ([]feedback.RawPost, []*scraper.PostError)
}

// Classifier classifies posts in batches.
type Classifier interface {
	ClassifyAll(ctx context.Context, posts []feedback.RawPost) classifier.Batch
}

// Synthesizer turns classified items into a report.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request) (*synthesis.Report, error)
}

// Store persists reports and snapshots.
type Store interface {
	LatestSnapshot(ctx context.Context, company string) (*trend.Snapshot, error)
	SaveSnapshot(ctx context.Context, s trend.Snapshot) error
	SaveReport(ctx context.Context, id string, report *synthesis.Report) error
}

// Notifier delivers a finished report.
type Notifier interface {
	NotifyReport(ctx context.Context, report *synthesis.Report) error
}

// Result is everything a run produced, including partial output on failure.
type Result struct {
	Posts    []feedback.RawPost
	Items    []feedback.ClassifiedItem
	Report   *synthesis.Report
	Snapshot *trend.Snapshot
	Errors   []*StageError
}

func (r *Result) record(stage string, err error) *StageError {
	se := &StageError{Stage: stage, Err: err}
	r.Errors = append(r.Errors, se)
	metrics.StageFailuresTotal.WithLabelValues(stage).Inc()
	return se
}

// Runner orchestrates a pipeline run.
type Runner struct {
	company     string
	queries     []string
	maxItems    int
	source      Source
	enricher    Enricher
	classifier  Classifier
	synthesizer Synthesizer
	store       Store
	notifier    Notifier
	newID       func() string

	mu sync.Mutex
}

// Option configures a Runner.
type Option func(*Runner)

// WithQueries sets the search queries. Defaults to the company name.
func WithQueries(queries ...string) Option {
	return func(r *Runner) {
		r.queries = queries
	}
}

// WithMaxItems caps the number of posts analyzed per run.
func WithMaxItems(n int) Option {
	return func(r *Runner) {
		r.maxItems = n
	}
}

// WithEnricher sets the link enricher.
func WithEnricher(e Enricher) Option {
	return func(r *Runner) {
		r.enricher = e
	}
}

// WithNotifier sets the report notifier.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithIDGenerator sets the snapshot id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		r.newID = fn
	}
}

// NewRunner creates a new pipeline runner.
func NewRunner(
	company string,
	source Source,
	classifier Classifier,
	synthesizer Synthesizer,
	store Store,
	opts ...Option,
) *Runner {
	r := &Runner{
		company:     company,
		maxItems:    defaultMaxItems,
		source:      source,
		classifier:  classifier,
		synthesizer: synthesizer,
		store:       store,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.queries) == 0 {
		r.queries = []string{company}
	}
	return r
}

// Run executes one pipeline run. Stage failures that still allow a report
// are collected in Result.Errors and Run returns a nil error. Fetch and
// synthesis failures end the run and are returned as a *StageError along
// with the partial result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if !r.mu.TryLock() {
		metrics.RunsTotal.WithLabelValues("skipped").Inc()
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.RunDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	slog.Info("starting pipeline run", "company", r.company, "queries", len(r.queries), "max_items", r.maxItems)
	res := &Result{}

	posts, err := r.fetch(ctx, res)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return res, err
	}
	res.Posts = posts
	slog.Info("fetched posts", "stage", StageScraping, "items", len(posts))

	if r.enricher != nil && len(posts) > 0 {
		enriched, errs := r.enricher.Enrich(ctx, posts)
		for _, e := range errs {
			slog.Warn("enrichment failed", "stage", StageScraping, "post", e.PostID, "error", e.Err)
			res.record(StageScraping, e)
		}
		res.Posts = enriched
	}

	batch := r.classifier.ClassifyAll(ctx, res.Posts)
	res.Items = batch.Items
	for _, f := range batch.Failures {
		res.record(StageClassification, f)
	}
	metrics.ClassificationsTotal.WithLabelValues("ok").Add(float64(len(batch.Items) - len(batch.Failures)))
	metrics.ClassificationsTotal.WithLabelValues("degraded").Add(float64(len(batch.Failures)))
	slog.Info("classified posts", "stage", StageClassification, "items", len(batch.Items), "failures", len(batch.Failures))

	previous, err := r.store.LatestSnapshot(ctx, r.company)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		previous = nil
	case err != nil:
		slog.Warn("failed to load previous snapshot, treating as first run", "stage", StageStorage, "error", err)
		res.record(StageStorage, fmt.Errorf("load previous snapshot: %w", err))
		previous = nil
	}

	report, err := r.synthesizer.Synthesize(ctx, synthesis.Request{
		CompanyName: r.company,
		Items:       res.Items,
		DataSources: dataSources(res.Posts),
		Previous:    previous,
	})
	if err != nil {
		se := res.record(StageSynthesis, err)
		slog.Error("synthesis failed", "stage", StageSynthesis, "error", err)
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return res, se
	}
	res.Report = report
	metrics.HighSignalItems.Set(float64(report.Metadata.HighSignalCount))
	if t := report.Comparison.Trends; t != nil {
		metrics.HealthScore.Set(float64(t.HealthScore))
	}

	id := r.newID()
	snap := report.Snapshot(id)
	res.Snapshot = &snap
	if err := r.store.SaveReport(ctx, id, report); err != nil {
		slog.Warn("failed to save report", "stage", StageStorage, "error", err)
		res.record(StageStorage, fmt.Errorf("save report: %w", err))
	}
	if err := r.store.SaveSnapshot(ctx, snap); err != nil {
		slog.Warn("failed to save snapshot", "stage", StageStorage, "error", err)
		res.record(StageStorage, fmt.Errorf("save snapshot: %w", err))
	}

	if r.notifier != nil {
		if err := r.notifier.NotifyReport(ctx, report); err != nil {
			slog.Warn("failed to send notification", "stage", StageNotification, "error", err)
			res.record(StageNotification, err)
		}
	}

	result := "success"
	if len(res.Errors) > 0 {
		result = "partial"
	}
	metrics.RunsTotal.WithLabelValues(result).Inc()

	slog.Info("pipeline run complete",
		"company", r.company,
		"snapshot", id,
		"focus_areas", len(report.FocusAreas),
		"errors", len(res.Errors),
		"duration", time.Since(start),
	)
	return res, nil
}

// fetch runs every query, dropping duplicate posts. It only fails when no
// query succeeded.
func (r *Runner) fetch(ctx context.Context, res *Result) ([]feedback.RawPost, error) {
	seen := make(map[string]bool)
	var posts []feedback.RawPost
	failed := 0
	var lastErr *StageError

	for _, q := range r.queries {
		found, err := r.source.SearchFeedback(ctx, q, r.maxItems)
		if err != nil {
			slog.Warn("search failed", "stage", StageScraping, "query", q, "error", err)
			lastErr = res.record(StageScraping, fmt.Errorf("search %q: %w", q, err))
			failed++
			continue
		}
		for _, p := range found {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			posts = append(posts, p)
		}
	}

	if lastErr != nil && failed == len(r.queries) {
		return nil, lastErr
	}
	if r.maxItems > 0 && len(posts) > r.maxItems {
		posts = posts[:r.maxItems]
	}
	return posts, nil
}

func dataSources(posts []feedback.RawPost) []string {
	var sources []string
	for _, p := range posts {
		if p.Source != "" && !slices.Contains(sources, p.Source) {
			sources = append(sources, p.Source)
		}
	}
	slices.Sort(sources)
	return sources
}
