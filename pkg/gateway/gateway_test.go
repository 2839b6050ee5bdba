package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riakgu/strym/pkg/eventstore"
	"github.com/riakgu/strym/pkg/ingestion"
	"github.com/riakgu/strym/pkg/logstream"
	"github.com/riakgu/strym/pkg/query"
	"github.com/riakgu/strym/pkg/stats"
)

type fakeHealth struct {
	err error
}

func (f *fakeHealth) Health(_ context.Context) (*eventstore.HealthStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &eventstore.HealthStatus{Status: "ok"}, nil
}

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func newFakeLimiter() *fakeLimiter { return &fakeLimiter{counts: map[string]int64{}} }

func (f *fakeLimiter) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeLimiter) TTL(_ context.Context, _ string) (time.Duration, error) {
	return 60 * time.Second, nil
}

type fakeStore struct{}

func (f *fakeStore) Insert(_ context.Context, event logstream.LogEvent) (logstream.LogEvent, error) {
	event.ID = "1"
	event.CreatedAt = time.Now().UTC()
	return event, nil
}
func (f *fakeStore) GetByID(_ context.Context, id string) (logstream.LogEvent, error) {
	return logstream.LogEvent{ID: id}, nil
}
func (f *fakeStore) Query(_ context.Context, _ eventstore.QueryParams) (eventstore.QueryResult, error) {
	return eventstore.QueryResult{}, nil
}
func (f *fakeStore) Search(_ context.Context, _, _ string, _ int) ([]eventstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeStore) AggregateSummary(_ context.Context, tr eventstore.TimeRange, _ string) (eventstore.Summary, error) {
	return eventstore.Summary{TimeRange: tr}, nil
}
func (f *fakeStore) AggregateTimeseries(_ context.Context, _ eventstore.TimeRange, _ eventstore.BucketSize, _ eventstore.GroupBy, _ string) ([]eventstore.Bucket, error) {
	return nil, nil
}

type fakeCache struct{}

func (f *fakeCache) Get(_ context.Context, _ string, _ map[string]any, _ any) bool { return false }
func (f *fakeCache) InvalidatePrefix(_ context.Context, _ string) int              { return 0 }
func (f *fakeCache) Set(_ context.Context, _ string, _ map[string]any, _ any, _ time.Duration) {
}

type fakeBus struct{}

func (f *fakeBus) Publish(_ context.Context, _ []byte) error { return nil }

type fakeLocal struct{}

func (f *fakeLocal) Fanout(_ logstream.LogEvent, _ func(string, logstream.LogEvent) any) {}

func newTestGateway(health *fakeHealth, limiter *fakeLimiter) (*Gateway, *gin.Engine) {
	store := &fakeStore{}
	cache := &fakeCache{}
	pipeline := ingestion.New(store, cache, &fakeBus{}, &fakeLocal{})
	queryService := query.New(store, cache)
	statsService := stats.New(store)
	registry := logstream.NewRegistry()

	gw := New(health, limiter, pipeline, queryService, statsService, registry, "test-key", "strym")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	gw.RegisterRoutes(router)
	return gw, router
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

func TestGateway_HealthIsExemptFromAuthAndRateLimit(t *testing.T) {
	_, router := newTestGateway(&fakeHealth{}, newFakeLimiter())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGateway_MissingAPIKeyReturns401(t *testing.T) {
	_, router := newTestGateway(&fakeHealth{}, newFakeLimiter())

	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "AuthenticationError", body["error"]["type"])
}

func TestGateway_ValidAPIKeyPassesAuth(t *testing.T) {
	_, router := newTestGateway(&fakeHealth{}, newFakeLimiter())

	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	req.Header.Set("X-API-Key", "test-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGateway_RateLimitExceededReturns429WithHeaders(t *testing.T) {
	limiter := newFakeLimiter()
	_, router := newTestGateway(&fakeHealth{}, limiter)

	var last *httptest.ResponseRecorder
	for i := 0; i < 101; i++ {
		req := httptest.NewRequest(http.MethodGet, "/logs", nil)
		req.Header.Set("X-API-Key", "test-key")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w
	}

	require.NotNil(t, last)
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}

func TestGateway_RateLimiterBackendFailureFailsOpen(t *testing.T) {
	limiter := newFakeLimiter()
	limiter.err = assert.AnError
	_, router := newTestGateway(&fakeHealth{}, limiter)

	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	req.Header.Set("X-API-Key", "test-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGateway_IngestRejectsInvalidSeverityWith400(t *testing.T) {
	_, router := newTestGateway(&fakeHealth{}, newFakeLimiter())

	req := httptest.NewRequest(http.MethodPost, "/logs", jsonBody(`{"source":{"app_id":"api"},"severity":"trace","message":"ok"}`))
	req.Header.Set("X-API-Key", "test-key")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGateway_IngestAccepted(t *testing.T) {
	_, router := newTestGateway(&fakeHealth{}, newFakeLimiter())

	req := httptest.NewRequest(http.MethodPost, "/logs", jsonBody(`{"source":{"app_id":"api"},"severity":"info","message":"ok"}`))
	req.Header.Set("X-API-Key", "test-key")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}
