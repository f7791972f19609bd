package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pelinal/gamesearch/internal/analyze"
	"github.com/pelinal/gamesearch/internal/app"
	"github.com/pelinal/gamesearch/internal/cache"
	"github.com/pelinal/gamesearch/internal/clock"
	"github.com/pelinal/gamesearch/internal/config"
	"github.com/pelinal/gamesearch/internal/history"
	"github.com/pelinal/gamesearch/internal/metrics"
	"github.com/pelinal/gamesearch/internal/progress/sinks"
	"github.com/pelinal/gamesearch/internal/sites"
)

// requestTimeout bounds one API request end to end. Searches fan out to
// slow sites, so this sits well above the per-fetch timeout.
const requestTimeout = 60 * time.Second

// Searcher runs one search through the pipeline. *app.App satisfies it.
type Searcher interface {
	Search(ctx context.Context, req app.SearchRequest) (app.SearchResponse, error)
}

// Deps collects the services the HTTP layer exposes. Searcher is required;
// everything else degrades to an unavailable response when nil.
type Deps struct {
	Searcher  Searcher
	Registry  *sites.Registry
	Cache     *cache.Cache
	Events    *sinks.EventStore
	History   history.Store
	Gatherer  prometheus.Gatherer
	Metrics   *metrics.Metrics
	SaveCache func() error
	Logger    *zap.Logger
	Clock     clock.Clock
}

// Server wires HTTP handlers to the search pipeline and its stores.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	log    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	s := &Server{deps: deps, cfg: cfg, log: log.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.log))
	r.Use(recoverMiddleware(s.log))
	r.Use(timeoutMiddleware(requestTimeout))
	r.Use(deps.Metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", s.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.postSearch)
		r.Get("/search", s.getSearch)
		r.Get("/sites", s.listSites)
		r.Get("/events", s.listEvents)
		r.Get("/history", s.listHistory)
		r.Route("/cache", func(r chi.Router) {
			r.Get("/", s.listCache)
			r.Delete("/", s.clearCache)
			r.Delete("/{query}", s.removeCacheEntry)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The pipeline has no hard downstream dependencies; a constructed App
	// is a ready App.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) metricsHandler() http.HandlerFunc {
	if s.deps.Gatherer == nil {
		return func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "metrics unavailable")
		}
	}
	h := promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})
	return h.ServeHTTP
}

type searchRequestDTO struct {
	Query   string   `json:"query"`
	Sites   []string `json:"sites,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	NoCache bool     `json:"no_cache,omitempty"`
	Dedupe  bool     `json:"dedupe,omitempty"`
	Cookie  string   `json:"cookie,omitempty"`
}

type searchResponseDTO struct {
	SearchID   string      `json:"search_id"`
	Query      string      `json:"query"`
	CacheHit   bool        `json:"cache_hit"`
	DurationMS int64       `json:"duration_ms"`
	Sites      []string    `json:"sites,omitempty"`
	Unknown    []string    `json:"unknown_sites,omitempty"`
	Count      int         `json:"count"`
	Results    []resultDTO `json:"results"`
}

type resultDTO struct {
	Site  string `json:"site"`
	Title string `json:"title"`
	URL   string `json:"url"`
	// Metadata carries size, version, build and date tokens recovered from
	// the release title, when any were present.
	Metadata *analyze.Metadata `json:"metadata,omitempty"`
}

func (s *Server) postSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.runSearch(w, r, req)
}

func (s *Server) getSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := searchRequestDTO{
		Query:   q.Get("q"),
		NoCache: boolParam(q.Get("no_cache")),
		Dedupe:  boolParam(q.Get("dedupe")),
	}
	if v := strings.TrimSpace(q.Get("sites")); v != "" {
		req.Sites = strings.Split(v, ",")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		req.Limit = n
	}
	s.runSearch(w, r, req)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, req searchRequestDTO) {
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	resp, err := s.deps.Searcher.Search(r.Context(), app.SearchRequest{
		Query:   req.Query,
		Sites:   req.Sites,
		Limit:   req.Limit,
		NoCache: req.NoCache,
		Dedupe:  req.Dedupe,
		Cookie:  req.Cookie,
	})
	if err != nil {
		if errors.Is(err, app.ErrNoTerms) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, toSearchDTO(resp))
}

func toSearchDTO(resp app.SearchResponse) searchResponseDTO {
	results := make([]resultDTO, 0, len(resp.Results))
	for _, r := range resp.Results {
		dto := resultDTO{Site: r.Site, Title: r.Title, URL: r.URL}
		if md := analyze.ExtractMetadata(r.Title); md.HasData() {
			dto.Metadata = &md
		}
		results = append(results, dto)
	}
	return searchResponseDTO{
		SearchID:   resp.SearchID,
		Query:      resp.Query,
		CacheHit:   resp.CacheHit,
		DurationMS: resp.Took.Milliseconds(),
		Sites:      resp.Sites,
		Unknown:    resp.Unknown,
		Count:      len(results),
		Results:    results,
	}
}

type siteDTO struct {
	Name           string `json:"name"`
	BaseURL        string `json:"base_url"`
	Kind           string `json:"kind"`
	Pages          int    `json:"pages"`
	RequiresJS     bool   `json:"requires_js,omitempty"`
	RequiresSolver bool   `json:"requires_solver,omitempty"`
	HasFeed        bool   `json:"has_feed,omitempty"`
	AltEndpoints   int    `json:"alt_endpoints,omitempty"`
}

func (s *Server) listSites(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "site registry unavailable")
		return
	}
	all := s.deps.Registry.All()
	out := make([]siteDTO, 0, len(all))
	for _, site := range all {
		dto := siteDTO{
			Name:           site.Name,
			BaseURL:        site.BaseURL,
			Kind:           site.Kind.String(),
			Pages:          site.Pages,
			RequiresJS:     site.RequiresJS,
			RequiresSolver: site.RequiresSolver,
			HasFeed:        site.Feed != nil,
		}
		if site.AltEndpoints != nil {
			dto.AltEndpoints = len(site.AltEndpoints.URLs)
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": out, "count": len(out)})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			}
			if reqID, ok := r.Context().Value(requestIDKey{}).(string); ok {
				fields = append(fields, zap.String("request_id", reqID))
			}
			log.Info("request completed", fields...)
		})
	}
}

func recoverMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func boolParam(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
