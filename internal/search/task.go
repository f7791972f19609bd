package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pelinal/gamesearch/internal/sites"
)

// resultCap bounds accumulation across candidate URLs so a pathological page
// cannot exhaust memory.
const resultCap = 5000

// feedCap bounds how many feed entries a fallback extraction may return.
const feedCap = 50

// Fetcher retrieves a page body over plain HTTP with retry and pacing.
// An empty body with a nil error means the site answered with nothing
// usable (auth wall, redirect, missing page).
type Fetcher interface {
	Fetch(ctx context.Context, site, url string) (string, error)
	FetchWithHeaders(ctx context.Context, site, url string, headers map[string]string) (string, error)
}

// Solver retrieves a page body through the bot-defense solving proxy.
type Solver interface {
	Solve(ctx context.Context, url string, headers map[string]string) (string, error)
}

// Renderer retrieves a page body through a headless browser session.
type Renderer interface {
	RenderSearch(ctx context.Context, site sites.Site, query string) (string, error)
}

// Parser extracts results from raw HTML. It must tolerate empty input and
// never panic on malformed markup.
type Parser interface {
	Parse(site sites.Site, html, query string) []Result
}

// FeedExtractor pulls results out of a site's syndication feed body.
type FeedExtractor interface {
	ExtractFeed(site sites.Site, body, query string, max int) []Result
}

// JSONExtractor pulls results out of an alternate JSON endpoint payload.
type JSONExtractor interface {
	ExtractJSON(site sites.Site, body, query string) []Result
}

// Breaker is the per-site circuit breaker surface the task drives.
type Breaker interface {
	Check() error
	RecordSuccess()
	RecordFailure()
}

// TaskDeps carries the collaborators one site task runs against. Solver,
// Renderer, Feed and JSON are optional; a nil collaborator disables the
// strategies that need it.
type TaskDeps struct {
	Fetcher  Fetcher
	Solver   Solver
	Renderer Renderer
	Parser   Parser
	Feed     FeedExtractor
	JSON     JSONExtractor
	Breaker  Breaker
	Log      *zap.Logger
}

// TaskOptions are the per-invocation knobs shared across all site tasks of
// one search run.
type TaskOptions struct {
	// Limit truncates the site's final result list when positive.
	Limit int
	// SolverEnabled globally allows routing through the solver proxy.
	SolverEnabled bool
	// SolverPreferred routes JS-requiring sites through the solver instead
	// of the headless renderer. Set when the operator points the tool at a
	// reachable solver deployment.
	SolverPreferred bool
	// NoRender disables the headless rendering strategies.
	NoRender bool
	// Cookies are forwarded on direct fetches and solver calls.
	Cookies map[string]string
}

// Task searches exactly one site for one normalized query, walking an
// ordered fallback chain until a strategy yields results:
//
//	render-first  whole-page rendering for JS-only sites
//	primary       fetch each candidate URL, direct or via solver
//	endpoints     alternate JSON endpoints declared by the site
//	feed          the site's syndication feed
//	render        last-resort rendering if not already tried
//
// A failed strategy contributes zero results and the chain moves on.
type Task struct {
	site     sites.Site
	deps     TaskDeps
	opts     TaskOptions
	log      *zap.Logger
	strategy string
}

// NewTask builds a task for one site. Deps.Fetcher, Deps.Parser and
// Deps.Breaker must be non-nil; the rest are optional.
func NewTask(site sites.Site, deps TaskDeps, opts TaskOptions) *Task {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Task{
		site: site,
		deps: deps,
		opts: opts,
		log:  log.With(zap.String("site", site.Name)),
	}
}

// Site returns the descriptor this task searches.
func (t *Task) Site() sites.Site {
	return t.site
}

// Strategy names the stage that produced the last run's results, "none"
// when every stage came back empty. Valid after Run returns.
func (t *Task) Strategy() string {
	return t.strategy
}

// Run executes the fallback chain and returns the site's filtered,
// truncated results. Run never returns an error: a site that yields
// nothing is an empty slice, whatever the reason.
func (t *Task) Run(ctx context.Context, query string) []Result {
	pageURLs := PageURLs(t.site, query)

	var results []Result
	renderTried := false
	t.strategy = "none"

	if t.renderFirst() {
		renderTried = true
		if results = t.render(ctx, query); len(results) > 0 {
			t.strategy = "render-first"
		}
	}
	if len(results) == 0 {
		if results = t.primary(ctx, query, pageURLs); len(results) > 0 {
			t.strategy = "primary"
		}
	}
	if len(results) == 0 && t.site.AltEndpoints != nil && t.deps.JSON != nil {
		if results = t.altEndpoints(ctx, query); len(results) > 0 {
			t.strategy = "endpoints"
		}
	}
	if len(results) == 0 && t.site.Feed != nil && t.deps.Feed != nil {
		if results = t.feed(ctx, query); len(results) > 0 {
			t.strategy = "feed"
		}
	}
	if len(results) == 0 && !renderTried && t.canRender() {
		if results = t.render(ctx, query); len(results) > 0 {
			t.strategy = "render"
		}
	}

	results = PostFilter(t.site, query, results)
	for i := range results {
		results[i].Title = t.site.CleanTitle(results[i].Title)
	}
	if t.opts.Limit > 0 && len(results) > t.opts.Limit {
		results = results[:t.opts.Limit]
	}
	t.log.Debug("site task finished", zap.Int("results", len(results)))
	return results
}

// renderFirst reports whether rendering should run before any HTTP fetch.
// JS-only sites produce an empty shell over plain HTTP, so fetching first
// just wastes the site's patience. A preferred solver deployment overrides
// this and takes the primary path instead.
func (t *Task) renderFirst() bool {
	return t.site.RequiresJS && t.canRender() && !t.solverFor()
}

func (t *Task) canRender() bool {
	return t.deps.Renderer != nil && !t.opts.NoRender
}

// solverFor decides the transport for primary fetches: the solver when the
// site sits behind bot defenses, or when it needs JS and the operator has
// pointed the tool at a solver.
func (t *Task) solverFor() bool {
	if !t.opts.SolverEnabled || t.deps.Solver == nil {
		return false
	}
	return t.site.RequiresSolver || (t.site.RequiresJS && t.opts.SolverPreferred)
}

func (t *Task) primary(ctx context.Context, query string, pageURLs []string) []Result {
	var results []Result
	useSolver := t.solverFor()
	for _, pageURL := range pageURLs {
		if err := t.deps.Breaker.Check(); err != nil {
			t.log.Debug("circuit open, skipping fetch", zap.String("url", pageURL))
			break
		}
		html, err := t.fetchPage(ctx, pageURL, useSolver)
		if err != nil {
			t.deps.Breaker.RecordFailure()
			t.log.Debug("page fetch failed", zap.String("url", pageURL), zap.Error(err))
			html = ""
		} else {
			t.deps.Breaker.RecordSuccess()
		}
		results = append(results, t.deps.Parser.Parse(t.site, html, query)...)
		if len(results) >= resultCap {
			break
		}
	}
	return results
}

func (t *Task) fetchPage(ctx context.Context, pageURL string, useSolver bool) (string, error) {
	if useSolver {
		return t.deps.Solver.Solve(ctx, pageURL, t.opts.Cookies)
	}
	if len(t.opts.Cookies) > 0 {
		return t.deps.Fetcher.FetchWithHeaders(ctx, t.site.Name, pageURL, t.opts.Cookies)
	}
	return t.deps.Fetcher.Fetch(ctx, t.site.Name, pageURL)
}

// altEndpoints queries the site's declared JSON endpoints in order and
// returns the first nonempty extraction.
func (t *Task) altEndpoints(ctx context.Context, query string) []Result {
	spec := t.site.AltEndpoints
	enc := EncodeQuery(query)
	headers := map[string]string{
		"Accept":           "application/json, text/plain, */*",
		"X-Requested-With": "XMLHttpRequest",
	}
	if spec.Referer != "" {
		headers["Referer"] = expandQuery(spec.Referer, enc)
	}
	for k, v := range t.opts.Cookies {
		headers[k] = v
	}

	useSolver := t.solverFor()
	for _, tmpl := range spec.URLs {
		endpoint := expandQuery(tmpl, enc)
		var body string
		var err error
		if useSolver {
			body, err = t.deps.Solver.Solve(ctx, endpoint, headers)
		} else {
			body, err = t.deps.Fetcher.FetchWithHeaders(ctx, t.site.Name, endpoint, headers)
		}
		if err != nil || body == "" {
			continue
		}
		if results := t.deps.JSON.ExtractJSON(t.site, body, query); len(results) > 0 {
			t.log.Debug("alternate endpoint produced results",
				zap.String("endpoint", endpoint), zap.Int("results", len(results)))
			return results
		}
	}
	return nil
}

// feed fetches the site's syndication feed. Feeds always go through the
// direct fetcher; routing them via the solver gets the solver IP flagged.
func (t *Task) feed(ctx context.Context, query string) []Result {
	feedURL := t.site.BaseURL + t.site.Feed.Path
	body, err := t.deps.Fetcher.Fetch(ctx, t.site.Name, feedURL)
	if err != nil || body == "" {
		return nil
	}
	results := t.deps.Feed.ExtractFeed(t.site, body, query, feedCap)
	if len(results) > 0 {
		t.log.Debug("feed fallback produced results", zap.Int("results", len(results)))
	}
	return results
}

func (t *Task) render(ctx context.Context, query string) []Result {
	start := time.Now()
	html, err := t.deps.Renderer.RenderSearch(ctx, t.site, query)
	if err != nil || html == "" {
		t.log.Debug("render produced no page", zap.Error(err), zap.Duration("took", time.Since(start)))
		return nil
	}
	results := t.deps.Parser.Parse(t.site, html, query)
	t.log.Debug("rendered page parsed",
		zap.Int("results", len(results)), zap.Duration("took", time.Since(start)))
	return results
}

func expandQuery(tmpl, encodedQuery string) string {
	return strings.ReplaceAll(tmpl, "{query}", encodedQuery)
}
