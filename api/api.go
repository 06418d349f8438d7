// Package api exposes reports, snapshots and offline analysis over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feedback-radar/cluster"
	"feedback-radar/feedback"
	"feedback-radar/signal"
	"feedback-radar/storage"
	"feedback-radar/synthesis"
	"feedback-radar/trend"
)

const (
	defaultSnapshotLimit = 20
	maxSnapshotLimit     = 200
	maxAnalyzeItems      = 5000
)

// Store reads persisted reports and snapshots.
type Store interface {
	Ping(ctx context.Context) error
	LatestReport(ctx context.Context, company string) (*storage.StoredReport, error)
	ListSnapshots(ctx context.Context, company string, limit int) ([]trend.Snapshot, error)
}

// Analyzer runs the deterministic scoring, filtering and clustering steps.
type Analyzer interface {
	Analyze(items []feedback.ClassifiedItem) synthesis.Analysis
}

// RunTrigger starts a pipeline run in the background.
type RunTrigger interface {
	TriggerRun(ctx context.Context) error
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	store    Store
	analyzer Analyzer
	trigger  RunTrigger
	company  string
	now      func() time.Time
}

// NewHandlers creates the handlers. trigger may be nil, in which case
// POST /api/v1/runs is not registered.
func NewHandlers(store Store, analyzer Analyzer, trigger RunTrigger, company string) *Handlers {
	return &Handlers{
		store:    store,
		analyzer: analyzer,
		trigger:  trigger,
		company:  company,
		now:      time.Now,
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/reports/latest", h.GetLatestReport)
		v1.GET("/snapshots", h.ListSnapshots)
		v1.POST("/analyze", h.Analyze)
		if h.trigger != nil {
			v1.POST("/runs", h.TriggerRun)
		}
	}
	return router
}

// HealthCheck returns the health status of the service.
func (h *Handlers) HealthCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "feedback-radar",
	})
}

// GetLatestReport returns the most recent report for ?company= (default: configured company).
func (h *Handlers) GetLatestReport(c *gin.Context) {
	company := c.DefaultQuery("company", h.company)

	sr, err := h.store.LatestReport(c.Request.Context(), company)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report for company"})
		return
	}
	if err != nil {
		slog.Error("failed to load latest report", "company", company, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        sr.ID,
		"createdAt": sr.CreatedAt,
		"report":    sr.Report,
	})
}

// ListSnapshots returns recent snapshots, newest first.
func (h *Handlers) ListSnapshots(c *gin.Context) {
	company := c.DefaultQuery("company", h.company)

	limit := defaultSnapshotLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSnapshotLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	snaps, err := h.store.ListSnapshots(c.Request.Context(), company, limit)
	if err != nil {
		slog.Error("failed to list snapshots", "company", company, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list snapshots"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	CompanyName string                    `json:"companyName"`
	Items       []feedback.ClassifiedItem `json:"items" binding:"required"`
	Previous    *trend.Snapshot           `json:"previous"`
}

// AnalyzeResponse is the deterministic analysis of a posted corpus.
type AnalyzeResponse struct {
	HighSignalCount int                     `json:"highSignalCount"`
	NoiseCount      int                     `json:"noiseCount"`
	Types           synthesis.TypeCounts    `json:"types"`
	Segments        synthesis.SegmentCounts `json:"segments"`
	Sentiment       trend.Sentiment         `json:"sentiment"`
	FocusAreas      []cluster.FocusArea     `json:"focusAreas"`
	Noise           []feedback.ScoredItem   `json:"noise"`
	Comparison      trend.Comparison        `json:"comparison"`
	WhatsNew        trend.Digest            `json:"whatsNew"`
}

// Analyze scores, filters and clusters posted items without calling an LLM,
// and compares the result with an optional previous snapshot.
func (h *Handlers) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if len(req.Items) > maxAnalyzeItems {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many items"})
		return
	}
	for _, it := range req.Items {
		if err := it.Validate(); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
	}

	resp := Analyze(h.analyzer, req, h.now())
	c.JSON(http.StatusOK, resp)
}

// Analyze runs the deterministic analysis for a request. It is shared with the CLI.
func Analyze(analyzer Analyzer, req AnalyzeRequest, now time.Time) AnalyzeResponse {
	a := analyzer.Analyze(req.Items)
	sentiment := synthesis.SentimentOf(a.Types, "")
	meta := trend.Metadata{
		TotalAnalyzed:   len(req.Items),
		HighSignalCount: len(a.Partition.HighSignal),
		NoiseFiltered:   len(a.Partition.Noise),
		DataSources:     dataSources(req.Items),
		AnalysisDate:    now.UTC().Format(time.RFC3339),
	}
	cmp := trend.Compare(synthesis.AreaStatsOf(a.FocusAreas), sentiment, meta, req.Previous)

	return AnalyzeResponse{
		HighSignalCount: len(a.Partition.HighSignal),
		NoiseCount:      len(a.Partition.Noise),
		Types:           a.Types,
		Segments:        a.Segments,
		Sentiment:       sentiment,
		FocusAreas:      a.FocusAreas,
		Noise:           noiseOrEmpty(a.Partition),
		Comparison:      cmp,
		WhatsNew:        trend.WhatsNew(cmp),
	}
}

// TriggerRun starts a pipeline run.
func (h *Handlers) TriggerRun(c *gin.Context) {
	if err := h.trigger.TriggerRun(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func noiseOrEmpty(p signal.Result) []feedback.ScoredItem {
	if p.Noise == nil {
		return []feedback.ScoredItem{}
	}
	return p.Noise
}

func dataSources(items []feedback.ClassifiedItem) []string {
	seen := make(map[string]bool)
	sources := []string{}
	for _, it := range items {
		if it.Source != "" && !seen[it.Source] {
			seen[it.Source] = true
			sources = append(sources, it.Source)
		}
	}
	return sources
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
