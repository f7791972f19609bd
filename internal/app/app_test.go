package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelinal/gamesearch/internal/config"
	"github.com/pelinal/gamesearch/internal/history"
	"github.com/pelinal/gamesearch/internal/progress"
	"github.com/pelinal/gamesearch/internal/sites"
)

const probePage = `<html><body>
<h2 class="entry-title"><a href="/game/elden-ring-deluxe">Elden Ring Deluxe Edition</a></h2>
<h2 class="entry-title"><a href="/game/other">Totally Unrelated Game</a></h2>
</body></html>`

func newProbeServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, probePage)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestConfig(t *testing.T, siteTable map[string]sites.Site, allow []string) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.Search.Limit = 10
	cfg.Search.Concurrency = 3
	cfg.Search.Sites = allow
	cfg.Search.DedupThreshold = 0.85
	cfg.Fetch.TimeoutSeconds = 5
	cfg.Fetch.Attempts = 1
	cfg.Fetch.UserAgent = "gamesearch-test/1"
	cfg.RateLimit.BaseDelayMS = 1
	cfg.RateLimit.MaxDelayMS = 10
	cfg.RateLimit.BackoffMultiplier = 2
	cfg.RateLimit.MaxFailures = 5
	cfg.Breaker.FailureThreshold = 5
	cfg.Breaker.RecoverySeconds = 30
	cfg.Cache.Enabled = true
	cfg.Cache.MaxSize = 10
	cfg.Cache.TTLHours = 1
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.json")
	cfg.History.Backend = "memory"
	cfg.Server.Port = 8080
	cfg.Sites = siteTable
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestSearchEndToEnd(t *testing.T) {
	srv, hits := newProbeServer(t)
	cfg := newTestConfig(t, map[string]sites.Site{
		"probe": {BaseURL: srv.URL + "/", QueryParam: "s", ResultSelector: "h2.entry-title a"},
	}, []string{"probe"})
	a := newTestApp(t, cfg)

	resp, err := a.Search(context.Background(), SearchRequest{Query: "Elden Ring"})
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.NotEmpty(t, resp.SearchID)
	assert.Equal(t, "elden ring", resp.Query)
	assert.Equal(t, []string{"probe"}, resp.Sites)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "probe", resp.Results[0].Site)
	assert.Equal(t, "Elden Ring Deluxe Edition", resp.Results[0].Title)
	assert.Equal(t, srv.URL+"/game/elden-ring-deluxe", resp.Results[0].URL)
	assert.EqualValues(t, 1, hits.Load())

	// Second run is served from the cache without touching the site.
	again, err := a.Search(context.Background(), SearchRequest{Query: "elden ring"})
	require.NoError(t, err)
	assert.True(t, again.CacheHit)
	assert.Equal(t, resp.Results, again.Results)
	assert.NotEqual(t, resp.SearchID, again.SearchID)
	assert.EqualValues(t, 1, hits.Load())

	if _, err := os.Stat(cfg.Cache.Path); assert.NoError(t, err) {
		assert.Equal(t, 1, a.Cache().Len())
	}

	recs := a.History().(*history.Memory).Recent(0)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].CacheHit)
	assert.False(t, recs[1].CacheHit)
	assert.Equal(t, 1, recs[1].Sites)
	assert.Equal(t, 1, recs[1].Results)
	assert.NotEmpty(t, recs[1].QueryHash)
}

func TestSearchEmitsProgressEvents(t *testing.T) {
	srv, _ := newProbeServer(t)
	cfg := newTestConfig(t, map[string]sites.Site{
		"probe": {BaseURL: srv.URL + "/", QueryParam: "s", ResultSelector: "h2.entry-title a"},
	}, []string{"probe"})
	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)

	resp, err := a.Search(context.Background(), SearchRequest{Query: "elden ring"})
	require.NoError(t, err)

	// Close flushes the hub so every event is in the store.
	a.Close(context.Background())

	events := a.Events().Recent(0)
	require.Len(t, events, 4)
	stages := make(map[progress.Stage]int)
	for _, evt := range events {
		stages[evt.Stage]++
		assert.Equal(t, resp.SearchID, evt.SearchUUID().String())
	}
	assert.Equal(t, 1, stages[progress.StageSearchStart])
	assert.Equal(t, 1, stages[progress.StageSiteStart])
	assert.Equal(t, 1, stages[progress.StageSiteDone])
	assert.Equal(t, 1, stages[progress.StageSearchDone])

	// Newest first: the terminal event leads.
	assert.Equal(t, progress.StageSearchDone, events[0].Stage)
	assert.Equal(t, 1, events[0].Results)
}

func TestSearchNoCacheBypassesLookupAndStore(t *testing.T) {
	srv, hits := newProbeServer(t)
	cfg := newTestConfig(t, map[string]sites.Site{
		"probe": {BaseURL: srv.URL + "/", QueryParam: "s", ResultSelector: "h2.entry-title a"},
	}, []string{"probe"})
	a := newTestApp(t, cfg)

	for i := 0; i < 2; i++ {
		resp, err := a.Search(context.Background(), SearchRequest{Query: "elden ring", NoCache: true})
		require.NoError(t, err)
		assert.False(t, resp.CacheHit)
	}
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, 0, a.Cache().Len())
}

func TestSearchUnknownSiteReported(t *testing.T) {
	srv, hits := newProbeServer(t)
	cfg := newTestConfig(t, map[string]sites.Site{
		"probe": {BaseURL: srv.URL + "/", QueryParam: "s", ResultSelector: "h2.entry-title a"},
	}, []string{"probe"})
	a := newTestApp(t, cfg)

	resp, err := a.Search(context.Background(), SearchRequest{Query: "nothing here", Sites: []string{"nope"}})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, []string{"nope"}, resp.Unknown)
	assert.EqualValues(t, 0, hits.Load())
}

func TestSearchExcludeOperatorFiltersAndSkipsCache(t *testing.T) {
	srv, hits := newProbeServer(t)
	cfg := newTestConfig(t, map[string]sites.Site{
		"probe": {BaseURL: srv.URL + "/", QueryParam: "s", ResultSelector: "h2.entry-title a"},
	}, []string{"probe"})
	a := newTestApp(t, cfg)

	resp, err := a.Search(context.Background(), SearchRequest{Query: "elden ring -deluxe"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	// Nothing was cached, so the same filtered query fetches again.
	_, err = a.Search(context.Background(), SearchRequest{Query: "elden ring -deluxe"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestSearchSiteOperatorNarrowsSelection(t *testing.T) {
	srv, hits := newProbeServer(t)
	table := map[string]sites.Site{
		"probe":  {BaseURL: srv.URL + "/", QueryParam: "s", ResultSelector: "h2.entry-title a"},
		"mirror": {BaseURL: srv.URL + "/", QueryParam: "s", ResultSelector: "h2.entry-title a"},
	}
	cfg := newTestConfig(t, table, []string{"probe", "mirror"})
	a := newTestApp(t, cfg)

	resp, err := a.Search(context.Background(), SearchRequest{Query: "elden ring site:probe"})
	require.NoError(t, err)
	assert.Equal(t, []string{"probe"}, resp.Sites)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "probe", resp.Results[0].Site)
	assert.EqualValues(t, 1, hits.Load())
}

func TestSearchDedupeCollapsesCrossSiteDuplicates(t *testing.T) {
	srv, _ := newProbeServer(t)
	table := map[string]sites.Site{
		"probe":  {BaseURL: srv.URL + "/", QueryParam: "s", ResultSelector: "h2.entry-title a"},
		"mirror": {BaseURL: srv.URL + "/", QueryParam: "s", ResultSelector: "h2.entry-title a"},
	}
	cfg := newTestConfig(t, table, []string{"probe", "mirror"})
	a := newTestApp(t, cfg)

	plain, err := a.Search(context.Background(), SearchRequest{Query: "elden ring", NoCache: true})
	require.NoError(t, err)
	require.Len(t, plain.Results, 2)

	deduped, err := a.Search(context.Background(), SearchRequest{Query: "elden ring", NoCache: true, Dedupe: true})
	require.NoError(t, err)
	require.Len(t, deduped.Results, 1)
	// Merge sorts by site name, so the first occurrence wins.
	assert.Equal(t, "mirror", deduped.Results[0].Site)
}

func TestSearchRejectsOperatorOnlyQuery(t *testing.T) {
	srv, _ := newProbeServer(t)
	cfg := newTestConfig(t, map[string]sites.Site{
		"probe": {BaseURL: srv.URL + "/", QueryParam: "s", ResultSelector: "h2.entry-title a"},
	}, []string{"probe"})
	a := newTestApp(t, cfg)

	for _, q := range []string{"", "   ", "-deluxe", "site:probe"} {
		_, err := a.Search(context.Background(), SearchRequest{Query: q})
		assert.Error(t, err, "query %q", q)
	}
}

func TestSearchRequestLimitTruncatesCachedResults(t *testing.T) {
	page := `<html><body>
<h2 class="entry-title"><a href="/a">elden ring a</a></h2>
<h2 class="entry-title"><a href="/b">elden ring b</a></h2>
<h2 class="entry-title"><a href="/c">elden ring c</a></h2>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)
	cfg := newTestConfig(t, map[string]sites.Site{
		"probe": {BaseURL: srv.URL + "/", QueryParam: "s", ResultSelector: "h2.entry-title a"},
	}, []string{"probe"})
	a := newTestApp(t, cfg)

	first, err := a.Search(context.Background(), SearchRequest{Query: "elden ring"})
	require.NoError(t, err)
	require.Len(t, first.Results, 3)

	second, err := a.Search(context.Background(), SearchRequest{Query: "elden ring", Limit: 2})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Len(t, second.Results, 2)
}

func TestNewRejectsUnknownHistoryBackend(t *testing.T) {
	cfg := newTestConfig(t, nil, nil)
	cfg.History.Backend = "bolt"
	_, err := New(context.Background(), cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history backend")
}
