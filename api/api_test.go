package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedback-radar/feedback"
	"feedback-radar/metrics"
	"feedback-radar/storage"
	"feedback-radar/synthesis"
	"feedback-radar/trend"
)

type mockStore struct {
	pingErr   error
	report    *storage.StoredReport
	snapshots []trend.Snapshot
	listErr   error
	company   string
	limit     int
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockStore) LatestReport(ctx context.Context, company string) (*storage.StoredReport, error) {
	m.company = company
	if m.report == nil {
		return nil, storage.ErrNotFound
	}
	return m.report, nil
}

func (m *mockStore) ListSnapshots(ctx context.Context, company string, limit int) ([]trend.Snapshot, error) {
	m.company, m.limit = company, limit
	return m.snapshots, m.listErr
}

type mockTrigger struct {
	err error
}

func (m *mockTrigger) TriggerRun(ctx context.Context) error { return m.err }

func setup(store *mockStore, trigger RunTrigger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewHandlers(store, synthesis.NewSynthesizer(nil), trigger, "Acme"))
}

func do(router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	w := do(setup(&mockStore{}, nil), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)

	w = do(setup(&mockStore{pingErr: errors.New("database is closed")}, nil), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database is closed")
}

func TestGetLatestReport(t *testing.T) {
	store := &mockStore{}
	router := setup(store, nil)

	w := do(router, http.MethodGet, "/api/v1/reports/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Acme", store.company, "default company")

	store.report = &storage.StoredReport{
		ID:        "snap-1",
		Company:   "Other",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Report:    &synthesis.Report{CompanyName: "Other", TLDR: "All quiet."},
	}
	w = do(router, http.MethodGet, "/api/v1/reports/latest?company=Other", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Other", store.company)

	var body struct {
		ID     string           `json:"id"`
		Report synthesis.Report `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "snap-1", body.ID)
	assert.Equal(t, "All quiet.", body.Report.TLDR)
}

func TestListSnapshots(t *testing.T) {
	store := &mockStore{snapshots: []trend.Snapshot{{ID: "s2"}, {ID: "s1"}}}
	router := setup(store, nil)

	w := do(router, http.MethodGet, "/api/v1/snapshots?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, store.limit)
	assert.JSONEq(t, `2`, string(mustField(t, w.Body.Bytes(), "count")))

	w = do(router, http.MethodGet, "/api/v1/snapshots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultSnapshotLimit, store.limit)

	for _, bad := range []string{"0", "-1", "abc", "201"} {
		w = do(router, http.MethodGet, "/api/v1/snapshots?limit="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", bad)
	}

	store.listErr = errors.New("disk I/O error")
	w = do(router, http.MethodGet, "/api/v1/snapshots", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "disk I/O", "internal errors are not leaked")
}

func constructive(id, area string) feedback.ClassifiedItem {
	return feedback.ClassifiedItem{
		RawPost: feedback.RawPost{
			ID:      id,
			Source:  "hackernews",
			Title:   area + " problem",
			Body:    strings.Repeat("The "+area+" feature keeps failing for our whole team. ", 5),
			Upvotes: 40,
		},
		Type:            feedback.TypeConstructive,
		Category:        feedback.CategoryUsabilityFriction,
		Confidence:      0.9,
		ProblemMetadata: &feedback.ProblemMetadata{FeatureArea: area},
		Summary:         feedback.Summary{KeyQuote: area + " is broken"},
	}
}

func TestAnalyzeFirstRun(t *testing.T) {
	items := []feedback.ClassifiedItem{
		constructive("1", "Sync"),
		constructive("2", "Sync"),
		constructive("3", "Export"),
		{RawPost: feedback.RawPost{ID: "4", Body: "meh"}, Type: feedback.TypeNeutral, Category: feedback.CategoryRantOpinion},
	}
	body, _ := json.Marshal(AnalyzeRequest{Items: items})

	w := do(setup(&mockStore{}, nil), http.MethodPost, "/api/v1/analyze", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.HighSignalCount)
	assert.Equal(t, 1, resp.NoiseCount)
	assert.Equal(t, 3, resp.Types.Constructive)
	assert.Equal(t, 1, resp.Types.Neutral)
	require.Len(t, resp.FocusAreas, 2)
	assert.Equal(t, "Sync", resp.FocusAreas[0].Title)
	assert.Equal(t, 2, resp.FocusAreas[0].Frequency)
	assert.True(t, resp.Comparison.IsFirstRun)
	assert.Nil(t, resp.Comparison.Changes)
	assert.Equal(t, "First analysis: baseline established", resp.WhatsNew.Headline)
}

func TestAnalyzeWithPrevious(t *testing.T) {
	previous := trend.NewSnapshot("prev", "Acme", time.Now().Add(-24*time.Hour),
		[]trend.AreaStat{
			{Title: "Sync", Category: "usability_friction", Frequency: 2},
			{Title: "Billing", Category: "usability_friction", Frequency: 4},
		},
		trend.Sentiment{Positive: 10, Neutral: 10, Negative: 80},
		trend.Metadata{TotalAnalyzed: 6},
	)
	body, _ := json.Marshal(AnalyzeRequest{
		Items:    []feedback.ClassifiedItem{constructive("1", "Sync"), constructive("2", "Sync")},
		Previous: &previous,
	})

	w := do(setup(&mockStore{}, nil), http.MethodPost, "/api/v1/analyze", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Comparison.IsFirstRun)
	assert.Equal(t, "prev", resp.Comparison.PreviousSnapshotID)
	require.NotNil(t, resp.Comparison.Changes)
	require.Len(t, resp.Comparison.Changes.ResolvedIssues, 1)
	assert.Equal(t, "Billing", resp.Comparison.Changes.ResolvedIssues[0].Title)
	ch := resp.Comparison.Changes
	assert.Empty(t, ch.NewIssues)
	assert.Len(t, append(append(ch.StableIssues, ch.ImprovedIssues...), ch.WorsenedIssues...), 1,
		"Sync is matched against its previous entry")
	require.NotNil(t, resp.WhatsNew.HealthScore)
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	router := setup(&mockStore{}, nil)

	w := do(router, http.MethodPost, "/api/v1/analyze", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/api/v1/analyze", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code, "items is required")

	w = do(router, http.MethodPost, "/api/v1/analyze",
		[]byte(`{"items":[{"id":"x","type":"Praise","category":"N/A","problemMetadata":{"featureArea":"Sync"},"summary":{}}]}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAnalyzeEmpty(t *testing.T) {
	w := do(setup(&mockStore{}, nil), http.MethodPost, "/api/v1/analyze", []byte(`{"items":[]}`))
	require.Equal(t, http.StatusOK, w.Code)

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.HighSignalCount)
	assert.Empty(t, resp.FocusAreas)
}

func TestTriggerRun(t *testing.T) {
	w := do(setup(&mockStore{}, nil), http.MethodPost, "/api/v1/runs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "route absent without a trigger")

	w = do(setup(&mockStore{}, &mockTrigger{}), http.MethodPost, "/api/v1/runs", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = do(setup(&mockStore{}, &mockTrigger{err: errors.New("pipeline run already in progress")}), http.MethodPost, "/api/v1/runs", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Register()
	metrics.HealthScore.Set(71)

	w := do(setup(&mockStore{}, nil), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "feedback_radar_health_score 71")
}

func mustField(t *testing.T, data []byte, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	return m[key]
}
