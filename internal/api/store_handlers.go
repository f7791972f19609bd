package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pelinal/gamesearch/internal/history"
	"github.com/pelinal/gamesearch/internal/progress"
)

const (
	defaultEventLimit   = 100
	maxEventLimit       = 1000
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type eventDTO struct {
	SearchID   string    `json:"search_id"`
	TS         time.Time `json:"ts"`
	Stage      string    `json:"stage"`
	Query      string    `json:"query,omitempty"`
	Site       string    `json:"site,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	Results    int       `json:"results"`
	DurationMS int64     `json:"duration_ms"`
	Note       string    `json:"note,omitempty"`
}

// listEvents handles GET /v1/events?limit=. It returns the most recent
// progress events, newest first.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event store unavailable")
		return
	}
	limit, err := parseLimit(r, defaultEventLimit, maxEventLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events := s.deps.Events.Recent(limit)
	out := make([]eventDTO, 0, len(events))
	for _, evt := range events {
		out = append(out, toEventDTO(evt))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "count": len(out)})
}

func toEventDTO(evt progress.Event) eventDTO {
	return eventDTO{
		SearchID:   evt.SearchUUID().String(),
		TS:         evt.TS,
		Stage:      string(evt.Stage),
		Query:      evt.Query,
		Site:       evt.Site,
		Strategy:   evt.Strategy,
		Results:    evt.Results,
		DurationMS: evt.Dur.Milliseconds(),
		Note:       evt.Note,
	}
}

type searchRecordDTO struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	QueryHash  string    `json:"query_hash"`
	Sites      int       `json:"sites"`
	Results    int       `json:"results"`
	CacheHit   bool      `json:"cache_hit"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// listHistory handles GET /v1/history?limit=. Listing reads back through the
// memory store; the postgres store is write-only from this process, so
// deployments using it get their listings from the database directly.
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	mem, ok := s.deps.History.(*history.Memory)
	if !ok || mem == nil {
		writeError(w, http.StatusServiceUnavailable, "history listing requires the memory backend")
		return
	}
	limit, err := parseLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs := mem.Recent(limit)
	out := make([]searchRecordDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, searchRecordDTO{
			ID:         rec.ID,
			Query:      rec.Query,
			QueryHash:  rec.QueryHash,
			Sites:      rec.Sites,
			Results:    rec.Results,
			CacheHit:   rec.CacheHit,
			DurationMS: rec.Duration.Milliseconds(),
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"searches": out, "count": len(out)})
}

type cacheEntryDTO struct {
	Query               string `json:"query"`
	Results             int    `json:"results"`
	AgeSeconds          int64  `json:"age_seconds"`
	RemainingTTLSeconds int64  `json:"remaining_ttl_seconds"`
	Expired             bool   `json:"expired"`
}

// listCache handles GET /v1/cache. Entries come back newest first.
func (s *Server) listCache(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache unavailable")
		return
	}
	now := s.deps.Clock.Now()
	entries := s.deps.Cache.EntriesNewestFirst()
	out := make([]cacheEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, cacheEntryDTO{
			Query:               e.Query,
			Results:             len(e.Results),
			AgeSeconds:          int64(e.Age(now).Seconds()),
			RemainingTTLSeconds: int64(e.RemainingTTL(now).Seconds()),
			Expired:             e.Expired(now),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  out,
		"size":     s.deps.Cache.Len(),
		"max_size": s.deps.Cache.MaxSize(),
	})
}

// clearCache handles DELETE /v1/cache.
func (s *Server) clearCache(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache unavailable")
		return
	}
	cleared := s.deps.Cache.Len()
	s.deps.Cache.Clear()
	s.persistCache()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}

// removeCacheEntry handles DELETE /v1/cache/{query}. The query segment is
// URL-encoded.
func (s *Server) removeCacheEntry(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache unavailable")
		return
	}
	raw := chi.URLParam(r, "query")
	query, err := url.PathUnescape(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query encoding")
		return
	}
	if !s.deps.Cache.Remove(query) {
		writeError(w, http.StatusNotFound, "cache entry not found")
		return
	}
	s.persistCache()
	writeJSON(w, http.StatusOK, map[string]string{"removed": query})
}

func (s *Server) persistCache() {
	if s.deps.SaveCache == nil {
		return
	}
	if err := s.deps.SaveCache(); err != nil {
		s.log.Warn("cache save failed", zap.Error(err))
	}
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}
