package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhub/event-importer/internal/api/handler"
	"github.com/eventhub/event-importer/internal/cache"
	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/importer"
	"github.com/eventhub/event-importer/internal/metrics"
	"github.com/eventhub/event-importer/internal/occasion"
	"github.com/eventhub/event-importer/internal/runs"
)

type fakePinger struct{ err error }

func (p fakePinger) HealthCheck(context.Context) error { return p.err }

type fakeRuns struct {
	started   []string
	startErr  error
	snapshots map[string]runs.Snapshot
	running   map[string]bool
}

func (f *fakeRuns) Start(_ context.Context, provider string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, provider)
	return "run-1", nil
}

func (f *fakeRuns) Get(id string) (runs.Snapshot, bool) {
	s, ok := f.snapshots[id]
	return s, ok
}

func (f *fakeRuns) Cancel(id string) bool { return f.running[id] }

type fakeCounter struct {
	calls  int
	counts occasion.Counts
	err    error
}

func (f *fakeCounter) Counts(context.Context, time.Time) (occasion.Counts, error) {
	f.calls++
	return f.counts, f.err
}

type fixture struct {
	router   http.Handler
	runs     *fakeRuns
	counter  *fakeCounter
	cache    *cache.Cache
	registry *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		runs:     &fakeRuns{snapshots: map[string]runs.Snapshot{}, running: map[string]bool{}},
		counter:  &fakeCounter{counts: occasion.Counts{Total: 10, Upcoming: 7, Expired: 3, Events: 4}},
		cache:    cache.New(true),
		registry: prometheus.NewRegistry(),
	}
	metrics.NewImportMetrics(f.registry).ObserveOccasion("INSERTED")

	providers := config.Providers{
		config.ProviderCBIS: {Cron: true, PostStatus: "publish", Keys: []config.Credential{{Name: "Region A", APIKey: "secret"}}},
	}
	h := handler.New(fakePinger{}, f.cache, f.runs, f.counter, providers, nil)
	cfg := &config.Config{CORSAllowOrigins: []string{"http://localhost:3000"}}
	f.router = NewRouter(h, f.registry, cfg)
	return f
}

func (f *fixture) do(method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// --------------------------------------------------------------------------
// Health
// --------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))
}

func TestHealthDB_Down(t *testing.T) {
	f := newFixture(t)
	h := handler.New(fakePinger{err: errors.New("no db")}, nil, f.runs, f.counter, nil, nil)
	router := NewRouter(h, f.registry, &config.Config{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// --------------------------------------------------------------------------
// Imports
// --------------------------------------------------------------------------

func TestStartImport(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/import/cbis", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "run-1", decode(t, rec)["run_id"])
	assert.Equal(t, "/api/v1/import/runs/run-1", rec.Header().Get("Location"))
	assert.Equal(t, []string{"cbis"}, f.runs.started)
}

func TestStartImport_UnknownProvider(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/import/eventbrite", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.runs.started)
}

func TestStartImport_InProgress(t *testing.T) {
	f := newFixture(t)
	f.runs.startErr = runs.ErrInProgress
	rec := f.do(http.MethodPost, "/api/v1/import/xcap", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "IMPORT_IN_PROGRESS")
}

func TestStartImport_NotConfigured(t *testing.T) {
	f := newFixture(t)
	f.runs.startErr = importer.ErrConfig
	rec := f.do(http.MethodPost, "/api/v1/import/arcgis", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetRun(t *testing.T) {
	f := newFixture(t)
	f.runs.snapshots["abc"] = runs.Snapshot{
		RunID: "abc", Provider: "cbis", KeyIndex: 1, KeyCount: 2, State: importer.StateRunning,
		Counters: importer.Counters{Events: 5, Locations: 2},
		Failures: []string{}, Warnings: []string{"w"},
	}

	rec := f.do(http.MethodGet, "/api/v1/import/runs/abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "running", body["state"])
	assert.Equal(t, map[string]any{"events": 5.0, "locations": 2.0, "contacts": 0.0}, body["counters"])

	rec = f.do(http.MethodGet, "/api/v1/import/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRun(t *testing.T) {
	f := newFixture(t)
	f.runs.snapshots["abc"] = runs.Snapshot{RunID: "abc"}
	f.runs.snapshots["old"] = runs.Snapshot{RunID: "old"}
	f.runs.running["abc"] = true

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodDelete, "/api/v1/import/runs/abc", nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(http.MethodDelete, "/api/v1/import/runs/old", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/v1/import/runs/none", nil).Code)
}

// --------------------------------------------------------------------------
// Actions
// --------------------------------------------------------------------------

func TestAction_Import(t *testing.T) {
	f := newFixture(t)
	for _, p := range config.ProviderNames {
		rec := f.do(http.MethodPost, "/api/v1/actions/import_"+p, nil)
		assert.Equal(t, http.StatusAccepted, rec.Code, p)
	}
	assert.Equal(t, config.ProviderNames, f.runs.started)
}

func TestAction_CollectOccasions(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/actions/collect_occasions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 10.0, body["total"])
	assert.Equal(t, 3.0, body["expired"])
}

func TestAction_Unknown(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/v1/actions/drop_tables", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/v1/actions/import_other", nil).Code)
}

// --------------------------------------------------------------------------
// Occasion summary
// --------------------------------------------------------------------------

func TestOccasionSummary_CachedWithETag(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/occasions/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = f.do(http.MethodGet, "/api/v1/occasions/summary", nil)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rec = f.do(http.MethodGet, "/api/v1/occasions/summary", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Equal(t, 1, f.counter.calls)

	f.cache.Invalidate(handler.OccasionSummaryKey)
	f.do(http.MethodGet, "/api/v1/occasions/summary", nil)
	assert.Equal(t, 2, f.counter.calls)
}

func TestOccasionSummary_Error(t *testing.T) {
	f := newFixture(t)
	f.counter.err = errors.New("db down")
	rec := f.do(http.MethodGet, "/api/v1/occasions/summary", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --------------------------------------------------------------------------
// Providers, metrics, rate limit
// --------------------------------------------------------------------------

func TestProviders_NoSecrets(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Region A")
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "eventimport_occasions_total"))
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RateLimitMiddleware(2, time.Minute)(ok)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	// burst is half the window allowance
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "limits are per client IP")
}
