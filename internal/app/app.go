// Package app wires the long-lived services of gamesearch into a single
// container: configuration, logging, the site registry, transports, the
// search cache, history, metrics and the progress hub. It is initialized
// once at startup and shared by the CLI commands and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pelinal/gamesearch/internal/analyze"
	"github.com/pelinal/gamesearch/internal/antidetect"
	"github.com/pelinal/gamesearch/internal/cache"
	"github.com/pelinal/gamesearch/internal/clock"
	"github.com/pelinal/gamesearch/internal/config"
	"github.com/pelinal/gamesearch/internal/fetch"
	queryhash "github.com/pelinal/gamesearch/internal/hash/sha256"
	"github.com/pelinal/gamesearch/internal/history"
	iduuid "github.com/pelinal/gamesearch/internal/id/uuid"
	"github.com/pelinal/gamesearch/internal/logging"
	"github.com/pelinal/gamesearch/internal/metrics"
	"github.com/pelinal/gamesearch/internal/parse"
	"github.com/pelinal/gamesearch/internal/progress"
	"github.com/pelinal/gamesearch/internal/progress/sinks"
	"github.com/pelinal/gamesearch/internal/ratelimit"
	"github.com/pelinal/gamesearch/internal/render"
	"github.com/pelinal/gamesearch/internal/resilience"
	"github.com/pelinal/gamesearch/internal/search"
	"github.com/pelinal/gamesearch/internal/sites"
	"github.com/pelinal/gamesearch/internal/solver"
)

// Options carries process-level overrides that are not part of the config
// file, typically sourced from CLI flags.
type Options struct {
	// Cookie is a raw Cookie header value forwarded on every fetch, solver
	// request and rendered navigation for the lifetime of the App.
	Cookie string
	// NoRender forces the no-op renderer even when rendering is enabled in
	// the configuration.
	NoRender bool
}

// App holds the shared services. Construct with New and release with Close.
type App struct {
	cfg  config.Config
	opts Options

	log      *zap.Logger
	registry *sites.Registry

	promReg *prometheus.Registry
	metrics *metrics.Metrics

	limiter  *ratelimit.Limiter
	breakers *resilience.BreakerSet
	fetcher  *fetch.Fetcher
	solver   *solver.Client
	renderer search.Renderer
	parser   *parse.Parser

	cache     *cache.Cache
	cachePath string
	cacheTTL  time.Duration

	history history.Store
	hub     *progress.Hub
	events  *sinks.EventStore

	idgen  *iduuid.Generator
	hasher *queryhash.Hasher
	clk    clock.Clock
}

// New builds the full service graph from cfg. The context bounds slow
// constructors such as the history database pool.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	log, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	registry, err := cfg.BuildRegistry()
	if err != nil {
		return nil, fmt.Errorf("build site registry: %w", err)
	}

	promReg := prometheus.NewRegistry()
	m, err := metrics.New(promReg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	clk := clock.System()

	limiter := ratelimit.New(ratelimit.Config{
		BaseDelay:         time.Duration(cfg.RateLimit.BaseDelayMS) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.RateLimit.MaxDelayMS) * time.Millisecond,
		BackoffMultiplier: cfg.RateLimit.BackoffMultiplier,
		JitterFactor:      cfg.RateLimit.JitterFactor,
		MaxFailures:       cfg.RateLimit.MaxFailures,
	}, clk, m.ObserveRateLimitDelay)

	breakers := resilience.NewBreakerSet(resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.Breaker.RecoverySeconds) * time.Second,
	}, clk, func(site string, from, to resilience.State) {
		m.ObserveBreakerTransition(site, to.String())
		log.Debug("circuit breaker transition",
			zap.String("site", site),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	})

	var rotator *antidetect.Rotator
	proxyURL := cfg.Fetch.Proxy
	if cfg.AntiDetect.RotateUserAgent || cfg.AntiDetect.RandomizeHeaders || cfg.AntiDetect.ProxyURL != "" {
		aopts := antidetect.Options{
			RotateUserAgent:  cfg.AntiDetect.RotateUserAgent,
			RandomizeHeaders: cfg.AntiDetect.RandomizeHeaders,
		}
		if cfg.AntiDetect.ProxyURL != "" {
			proxy, perr := antidetect.ParseProxy(cfg.AntiDetect.ProxyURL)
			if perr != nil {
				return nil, fmt.Errorf("parse anti-detection proxy: %w", perr)
			}
			aopts.Proxy = &proxy
			if proxyURL == "" {
				proxyURL = proxy.URL()
			}
		}
		rotator = antidetect.NewRotator(aopts)
	}

	client, err := fetch.NewClient(fetch.ClientConfig{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		Proxy:     proxyURL,
		Rotator:   rotator,
	})
	if err != nil {
		return nil, fmt.Errorf("init http client: %w", err)
	}
	fetcher := fetch.NewFetcher(client, fetch.FetcherConfig{
		MaxAttempts: cfg.Fetch.Attempts,
		Limiter:     limiter,
		Observer:    m.ObserveFetch,
		Log:         log,
	})

	var solverClient *solver.Client
	if cfg.Solver.Enabled {
		solverClient = solver.New(cfg.Solver.URL, log)
	}

	var renderer search.Renderer = render.Noop{}
	if cfg.Render.Enabled && !opts.NoRender {
		renderer = render.NewBrowser(render.Config{
			MaxParallel:          cfg.Render.MaxParallel,
			UserAgent:            renderUserAgent(cfg),
			NavigationTimeout:    time.Duration(cfg.Render.NavTimeoutSeconds) * time.Second,
			NavigationsPerSecond: cfg.Render.NavigationsPerSecond,
			Cookie:               opts.Cookie,
		}, log)
	}

	cachePath := cfg.Cache.Path
	if cachePath == "" {
		cachePath, err = cache.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve cache path: %w", err)
		}
	}
	searchCache, err := cache.Load(cachePath, cfg.Cache.MaxSize, clk)
	if err != nil {
		log.Warn("cache snapshot unreadable, starting empty",
			zap.String("path", cachePath), zap.Error(err))
	}
	cacheTTL := time.Duration(cfg.Cache.TTLHours) * time.Hour
	if cacheTTL <= 0 {
		cacheTTL = cache.DefaultTTL
	}

	var store history.Store
	switch cfg.History.Backend {
	case "", "memory":
		store = history.NewMemory()
	case "postgres":
		store, err = history.NewPostgres(ctx, history.PostgresConfig{
			DSN:   cfg.History.DSN,
			Table: cfg.History.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("init history store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}

	events := sinks.NewEventStore(0)
	hub := progress.NewHub(progress.Config{
		Logger: log.Named("progress"),
	}, sinks.NewLogSink(log.Named("events")), events)

	return &App{
		cfg:       cfg,
		opts:      opts,
		log:       log,
		registry:  registry,
		promReg:   promReg,
		metrics:   m,
		limiter:   limiter,
		breakers:  breakers,
		fetcher:   fetcher,
		solver:    solverClient,
		renderer:  renderer,
		parser:    parse.New(log),
		cache:     searchCache,
		cachePath: cachePath,
		cacheTTL:  cacheTTL,
		history:   store,
		hub:       hub,
		events:    events,
		idgen:     iduuid.New(),
		hasher:    queryhash.New(),
		clk:       clk,
	}, nil
}

func renderUserAgent(cfg config.Config) string {
	if cfg.Fetch.UserAgent != "" {
		return cfg.Fetch.UserAgent
	}
	return antidetect.DefaultUserAgent()
}

// Close releases long-lived resources. The context bounds the flush of
// buffered progress events.
func (a *App) Close(ctx context.Context) {
	if err := a.hub.Close(ctx); err != nil {
		a.log.Warn("progress hub close", zap.Error(err))
	}
	if b, ok := a.renderer.(*render.Browser); ok {
		b.Close()
	}
	a.history.Close()
	_ = a.log.Sync()
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.log }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Registry returns the merged site registry.
func (a *App) Registry() *sites.Registry { return a.registry }

// Cache returns the search cache.
func (a *App) Cache() *cache.Cache { return a.cache }

// CachePath returns the path the cache snapshot is persisted to.
func (a *App) CachePath() string { return a.cachePath }

// SaveCache persists the current cache contents to disk.
func (a *App) SaveCache() error { return a.cache.Save(a.cachePath) }

// History returns the search history store.
func (a *App) History() history.Store { return a.history }

// Events returns the in-memory progress event store.
func (a *App) Events() *sinks.EventStore { return a.events }

// Metrics returns the metrics recorder.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// PromRegistry returns the Prometheus registry backing Metrics.
func (a *App) PromRegistry() *prometheus.Registry { return a.promReg }

// SearchRequest describes one search invocation.
type SearchRequest struct {
	// Query is the raw user input, advanced operators included.
	Query string
	// Sites narrows the search to the named sites. Empty means every site
	// the configuration allows.
	Sites []string
	// Limit caps results per site. Zero means the configured default.
	Limit int
	// NoCache bypasses the cache for both lookup and store.
	NoCache bool
	// Dedupe collapses near-duplicate titles across sites.
	Dedupe bool
	// Cookie overrides the process-level Cookie header for this search.
	Cookie string
}

// SearchResponse is the outcome of one search invocation.
type SearchResponse struct {
	SearchID string
	// Query is the normalized term string sent to the sites.
	Query    string
	Results  []search.Result
	CacheHit bool
	Took     time.Duration
	// Sites lists the site names that were searched.
	Sites []string
	// Unknown lists requested site names that matched nothing.
	Unknown []string
}

// ErrNoTerms reports a query that is empty once operators are stripped.
var ErrNoTerms = errors.New("query has no searchable terms")

// Search runs the full pipeline: cache consult, per-site fetch fan-out,
// merge, operator filtering, optional dedup, cache write and history
// record. Per-site failures degrade to partial results, never to an error.
func (a *App) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	adv := search.ParseAdvanced(req.Query)
	terms := search.Normalize(adv.SearchTerms())
	if terms == "" {
		return SearchResponse{}, fmt.Errorf("query %q: %w", req.Query, ErrNoTerms)
	}
	// The cache key keeps the operators so that differently filtered
	// searches never alias each other.
	cacheKey := search.Normalize(req.Query)

	id, err := a.idgen.NewUUID()
	if err != nil {
		return SearchResponse{}, fmt.Errorf("allocate search id: %w", err)
	}
	searchID := progress.UUIDToBytes(id)

	limit := req.Limit
	if limit <= 0 {
		limit = a.cfg.Search.Limit
	}

	log := logging.ForSearch(a.log, id.String())
	start := a.clk.Now()
	a.emit(progress.Event{SearchID: searchID, Stage: progress.StageSearchStart, Query: terms})

	useCache := a.cfg.Cache.Enabled && !req.NoCache
	if useCache {
		if entry, ok := a.cache.Get(cacheKey); ok {
			a.metrics.ObserveCacheHit()
			results := entry.Results
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}
			took := a.clk.Now().Sub(start)
			a.recordHistory(ctx, id.String(), cacheKey, 0, len(results), true, took)
			a.emit(progress.Event{
				SearchID: searchID,
				Stage:    progress.StageSearchDone,
				Query:    terms,
				Results:  len(results),
				Dur:      took,
				Note:     "cache",
			})
			log.Info("search served from cache",
				zap.String("query", terms), zap.Int("results", len(results)))
			return SearchResponse{
				SearchID: id.String(),
				Query:    terms,
				Results:  results,
				CacheHit: true,
				Took:     took,
			}, nil
		}
		a.metrics.ObserveCacheMiss()
	}

	selected, unknown := a.selectSites(req.Sites, adv.SiteFilter())
	if len(unknown) > 0 {
		log.Warn("unknown sites requested", zap.Strings("sites", unknown))
	}
	if len(selected) == 0 {
		took := a.clk.Now().Sub(start)
		a.emit(progress.Event{
			SearchID: searchID,
			Stage:    progress.StageSearchDone,
			Query:    terms,
			Dur:      took,
			Note:     "no sites selected",
		})
		log.Warn("no sites selected", zap.String("query", terms))
		return SearchResponse{SearchID: id.String(), Query: terms, Took: took, Unknown: unknown}, nil
	}

	taskOpts := search.TaskOptions{
		Limit:           limit,
		SolverEnabled:   a.cfg.Solver.Enabled,
		SolverPreferred: a.cfg.Solver.Preferred,
		NoRender:        a.opts.NoRender || !a.cfg.Render.Enabled,
		Cookies:         a.cookieHeaders(req.Cookie),
	}
	tasks := a.buildTasks(selected, taskOpts, log)

	hooks := search.Hooks{
		OnSiteStart: func(site string) {
			a.emit(progress.Event{SearchID: searchID, Stage: progress.StageSiteStart, Site: site, Query: terms})
		},
		OnSiteDone: func(out search.SiteOutcome) {
			a.metrics.ObserveSiteOutcome(out.Site, len(out.Results), out.Err)
			evt := progress.Event{
				SearchID: searchID,
				Stage:    progress.StageSiteDone,
				Site:     out.Site,
				Strategy: out.Strategy,
				Results:  len(out.Results),
				Dur:      out.Took,
			}
			if out.Err != nil {
				evt.Stage = progress.StageSiteError
				evt.Note = out.Err.Error()
			}
			a.emit(evt)
		},
	}
	orch := search.NewOrchestrator(a.cfg.Search.Concurrency, log, hooks)
	results := orch.Search(ctx, terms, tasks, 0)

	if adv.HasOperators() {
		results = search.FilterAdvanced(results, adv)
	}
	if req.Dedupe {
		results = analyze.Deduplicate(results, a.dedupThreshold())
	}

	took := a.clk.Now().Sub(start)

	if useCache && len(results) > 0 {
		a.cache.AddWithTTL(cacheKey, results, a.cacheTTL)
		if err := a.cache.Save(a.cachePath); err != nil {
			log.Warn("cache save failed", zap.String("path", a.cachePath), zap.Error(err))
		}
	}

	a.recordHistory(ctx, id.String(), cacheKey, len(selected), len(results), false, took)
	a.metrics.ObserveSearch(took, len(results))
	a.emit(progress.Event{
		SearchID: searchID,
		Stage:    progress.StageSearchDone,
		Query:    terms,
		Results:  len(results),
		Dur:      took,
	})
	log.Info("search complete",
		zap.String("query", terms),
		zap.Int("sites", len(selected)),
		zap.Int("results", len(results)),
		zap.Duration("took", took))

	names := make([]string, len(selected))
	for i, s := range selected {
		names[i] = s.Name
	}
	return SearchResponse{
		SearchID: id.String(),
		Query:    terms,
		Results:  results,
		Took:     took,
		Sites:    names,
		Unknown:  unknown,
	}, nil
}

// selectSites resolves the sites to search: the configured allowlist,
// narrowed by the request and by any site: operators in the query.
func (a *App) selectSites(requested, operatorFilter []string) ([]sites.Site, []string) {
	base, _ := a.registry.Select(a.cfg.Search.Sites)

	var unknown []string
	if len(requested) > 0 {
		want := make(map[string]bool, len(requested))
		for _, name := range requested {
			want[strings.ToLower(strings.TrimSpace(name))] = false
		}
		var narrowed []sites.Site
		for _, s := range base {
			key := strings.ToLower(s.Name)
			if _, ok := want[key]; ok {
				want[key] = true
				narrowed = append(narrowed, s)
			}
		}
		for _, name := range requested {
			if !want[strings.ToLower(strings.TrimSpace(name))] {
				unknown = append(unknown, name)
			}
		}
		base = narrowed
	}

	if len(operatorFilter) > 0 {
		var narrowed []sites.Site
		for _, s := range base {
			name := strings.ToLower(s.Name)
			for _, tok := range operatorFilter {
				if strings.Contains(name, tok) {
					narrowed = append(narrowed, s)
					break
				}
			}
		}
		base = narrowed
	}
	return base, unknown
}

func (a *App) buildTasks(selected []sites.Site, opts search.TaskOptions, log *zap.Logger) []*search.Task {
	var solv search.Solver
	if a.solver != nil {
		solv = a.solver
	}
	tasks := make([]*search.Task, 0, len(selected))
	for _, site := range selected {
		deps := search.TaskDeps{
			Fetcher:  a.fetcher,
			Solver:   solv,
			Renderer: a.renderer,
			Parser:   a.parser,
			Feed:     a.parser,
			JSON:     a.parser,
			Breaker:  a.breakers.For(site.Name),
			Log:      log,
		}
		tasks = append(tasks, search.NewTask(site, deps, opts))
	}
	return tasks
}

func (a *App) dedupThreshold() float64 {
	if t := a.cfg.Search.DedupThreshold; t > 0 {
		return t
	}
	return analyze.DefaultThreshold
}

func (a *App) cookieHeaders(reqCookie string) map[string]string {
	cookie := reqCookie
	if cookie == "" {
		cookie = a.opts.Cookie
	}
	if cookie == "" {
		return nil
	}
	return map[string]string{"Cookie": cookie}
}

func (a *App) recordHistory(ctx context.Context, id, query string, siteCount, results int, cacheHit bool, took time.Duration) {
	rec := history.Record{
		ID:        id,
		QueryHash: a.hasher.HashQuery(query),
		Query:     query,
		Sites:     siteCount,
		Results:   results,
		CacheHit:  cacheHit,
		Duration:  took,
		CreatedAt: a.clk.Now(),
	}
	if err := a.history.StoreSearch(ctx, rec); err != nil {
		a.log.Warn("history record failed", zap.Error(err))
	}
}

func (a *App) emit(evt progress.Event) {
	if a.hub == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = a.clk.Now()
	}
	a.hub.Emit(evt)
}
