package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelinal/gamesearch/internal/app"
	"github.com/pelinal/gamesearch/internal/cache"
	"github.com/pelinal/gamesearch/internal/clock"
	"github.com/pelinal/gamesearch/internal/config"
	"github.com/pelinal/gamesearch/internal/history"
	"github.com/pelinal/gamesearch/internal/metrics"
	"github.com/pelinal/gamesearch/internal/progress"
	"github.com/pelinal/gamesearch/internal/progress/sinks"
	"github.com/pelinal/gamesearch/internal/search"
	"github.com/pelinal/gamesearch/internal/sites"
)

type mockSearcher struct {
	lastReq app.SearchRequest
	resp    app.SearchResponse
	err     error
}

func (m *mockSearcher) Search(_ context.Context, req app.SearchRequest) (app.SearchResponse, error) {
	m.lastReq = req
	return m.resp, m.err
}

func newTestServer(t *testing.T, deps Deps, cfg config.Config) *Server {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	return NewServer(deps, cfg)
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Deps{Searcher: &mockSearcher{}}, config.Config{})

	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = doRequest(t, s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody(t, rec)["status"])
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	m.ObserveSearch(time.Second, 3)

	s := newTestServer(t, Deps{Searcher: &mockSearcher{}, Gatherer: reg, Metrics: m}, config.Config{})
	rec := doRequest(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gamesearch_searches_total")
}

func TestPostSearch(t *testing.T) {
	t.Parallel()

	mock := &mockSearcher{resp: app.SearchResponse{
		SearchID: "0192aeb8-0000-7000-8000-000000000000",
		Query:    "elden ring",
		Results: []search.Result{
			{Site: "fitgirl", Title: "Elden Ring [v1.02.3] (45 GB)", URL: "https://example.com/elden"},
			{Site: "dodi", Title: "Elden Ring", URL: "https://example.org/elden"},
		},
		Took:  1500 * time.Millisecond,
		Sites: []string{"dodi", "fitgirl"},
	}}
	s := newTestServer(t, Deps{Searcher: mock}, config.Config{})

	rec := doRequest(t, s, http.MethodPost, "/v1/search",
		`{"query":"elden ring","sites":["fitgirl","dodi"],"limit":5,"dedupe":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "elden ring", mock.lastReq.Query)
	assert.Equal(t, []string{"fitgirl", "dodi"}, mock.lastReq.Sites)
	assert.Equal(t, 5, mock.lastReq.Limit)
	assert.True(t, mock.lastReq.Dedupe)

	var body searchResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, mock.resp.SearchID, body.SearchID)
	assert.Equal(t, int64(1500), body.DurationMS)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Results, 2)
	require.NotNil(t, body.Results[0].Metadata)
	assert.Equal(t, "45GB", body.Results[0].Metadata.FileSize)
	assert.Equal(t, "v1.02.3", body.Results[0].Metadata.Version)
	assert.Nil(t, body.Results[1].Metadata)
}

func TestPostSearchBadRequests(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Deps{Searcher: &mockSearcher{}}, config.Config{})

	rec := doRequest(t, s, http.MethodPost, "/v1/search", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/search", `{"query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "query is required", decodeBody(t, rec)["error"])
}

func TestSearchErrorMapping(t *testing.T) {
	t.Parallel()

	mock := &mockSearcher{err: app.ErrNoTerms}
	s := newTestServer(t, Deps{Searcher: mock}, config.Config{})
	rec := doRequest(t, s, http.MethodPost, "/v1/search", `{"query":"-excluded"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mock.err = context.DeadlineExceeded
	rec = doRequest(t, s, http.MethodPost, "/v1/search", `{"query":"elden ring"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetSearchQueryParams(t *testing.T) {
	t.Parallel()

	mock := &mockSearcher{resp: app.SearchResponse{Query: "elden ring"}}
	s := newTestServer(t, Deps{Searcher: mock}, config.Config{})

	rec := doRequest(t, s, http.MethodGet,
		"/v1/search?q=elden+ring&sites=fitgirl,dodi&limit=7&no_cache=1&dedupe=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "elden ring", mock.lastReq.Query)
	assert.Equal(t, []string{"fitgirl", "dodi"}, mock.lastReq.Sites)
	assert.Equal(t, 7, mock.lastReq.Limit)
	assert.True(t, mock.lastReq.NoCache)
	assert.True(t, mock.lastReq.Dedupe)

	rec = doRequest(t, s, http.MethodGet, "/v1/search?q=elden&limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSites(t *testing.T) {
	t.Parallel()

	registry, err := sites.BuiltinRegistry()
	require.NoError(t, err)
	s := newTestServer(t, Deps{Searcher: &mockSearcher{}, Registry: registry}, config.Config{})

	rec := doRequest(t, s, http.MethodGet, "/v1/sites", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, len(sites.Builtin()), body["count"])
	list, ok := body["sites"].([]any)
	require.True(t, ok)
	first, ok := list[0].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, first["name"])
	assert.NotEmpty(t, first["base_url"])
	assert.NotEmpty(t, first["kind"])
}

func TestListEvents(t *testing.T) {
	t.Parallel()

	store := sinks.NewEventStore(8)
	evt := progress.Event{
		TS:      time.Now(),
		Stage:   progress.StageSiteDone,
		Site:    "fitgirl",
		Results: 4,
		Dur:     2 * time.Second,
	}
	require.NoError(t, store.Consume(context.Background(), []progress.Event{evt}))

	s := newTestServer(t, Deps{Searcher: &mockSearcher{}, Events: store}, config.Config{})
	rec := doRequest(t, s, http.MethodGet, "/v1/events?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])

	rec = doRequest(t, s, http.MethodGet, "/v1/events?limit=-2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListHistory(t *testing.T) {
	t.Parallel()

	mem := history.NewMemory()
	require.NoError(t, mem.StoreSearch(context.Background(), history.Record{
		ID:        "rec-1",
		QueryHash: "abc",
		Query:     "elden ring",
		Sites:     3,
		Results:   12,
		Duration:  1200 * time.Millisecond,
		CreatedAt: time.Now(),
	}))

	s := newTestServer(t, Deps{Searcher: &mockSearcher{}, History: mem}, config.Config{})
	rec := doRequest(t, s, http.MethodGet, "/v1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])
	searches, ok := body["searches"].([]any)
	require.True(t, ok)
	entry, ok := searches[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "elden ring", entry["query"])
	assert.EqualValues(t, 1200, entry["duration_ms"])
}

type stubStore struct{}

func (stubStore) StoreSearch(context.Context, history.Record) error { return nil }
func (stubStore) Close()                                            {}

func TestListHistoryRequiresMemoryBackend(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Deps{Searcher: &mockSearcher{}, History: stubStore{}}, config.Config{})
	rec := doRequest(t, s, http.MethodGet, "/v1/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCacheEndpoints(t *testing.T) {
	t.Parallel()

	c := cache.New(5, clock.System())
	c.Add("elden ring", []search.Result{{Site: "fitgirl", Title: "Elden Ring", URL: "https://example.com"}})
	c.Add("baldur", []search.Result{{Site: "dodi", Title: "BG3", URL: "https://example.org"}})

	saves := 0
	deps := Deps{
		Searcher:  &mockSearcher{},
		Cache:     c,
		SaveCache: func() error { saves++; return nil },
	}
	s := newTestServer(t, deps, config.Config{})

	rec := doRequest(t, s, http.MethodGet, "/v1/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["size"])
	assert.EqualValues(t, 5, body["max_size"])
	entries, ok := body["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	newest, ok := entries[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "baldur", newest["query"])

	rec = doRequest(t, s, http.MethodDelete, "/v1/cache/elden%20ring", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, saves)

	rec = doRequest(t, s, http.MethodDelete, "/v1/cache/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/v1/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["cleared"])
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 2, saves)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	var cfg config.Config
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sekrit"
	s := newTestServer(t, Deps{Searcher: &mockSearcher{}}, cfg)

	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rec = doRequest(t, s, http.MethodGet, "/healthz?api_key=sekrit", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
