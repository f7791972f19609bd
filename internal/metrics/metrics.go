// Package metrics exposes Prometheus collectors for the search pipeline and
// the API server. Collectors register against an injected Registerer so
// tests and embedders can use private registries; nothing touches the global
// default registry.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns every collector the pipeline reports into. A nil *Metrics is
// valid and drops all observations, so wiring stays optional.
type Metrics struct {
	searchesTotal  *prometheus.CounterVec
	searchDuration prometheus.Histogram
	searchResults  prometheus.Histogram

	cacheEvents *prometheus.CounterVec

	siteSearches  *prometheus.CounterVec
	fetchRequests *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	rateLimitDelay     *prometheus.HistogramVec
	breakerTransitions *prometheus.CounterVec

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	requestsInAir prometheus.Gauge
}

// New builds the collectors and registers them against reg. A nil reg falls
// back to the process-default registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		searchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamesearch_searches_total",
			Help: "Completed searches partitioned by result source.",
		}, []string{"source"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gamesearch_search_duration_seconds",
			Help:    "Wall time per completed live search.",
			Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 20, 45, 90},
		}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gamesearch_search_results",
			Help:    "Merged result count per completed search.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamesearch_cache_events_total",
			Help: "Search cache lookups partitioned by outcome.",
		}, []string{"outcome"}),
		siteSearches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamesearch_site_searches_total",
			Help: "Per-site task completions partitioned by result.",
		}, []string{"site", "result"}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamesearch_fetch_requests_total",
			Help: "Fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamesearch_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by site and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		}, []string{"site", "status_class"}),
		rateLimitDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamesearch_rate_limit_delay_seconds",
			Help:    "Imposed pacing delay before a site request.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamesearch_breaker_transitions_total",
			Help: "Circuit breaker state changes partitioned by site and new state.",
		}, []string{"site", "to"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamesearch_http_requests_total",
			Help: "API requests partitioned by method and status code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamesearch_http_request_duration_seconds",
			Help:    "API request latency partitioned by method and route.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 45},
		}, []string{"method", "route"}),
		requestsInAir: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gamesearch_http_requests_in_flight",
			Help: "API requests currently being served.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		m.searchesTotal,
		m.searchDuration,
		m.searchResults,
		m.cacheEvents,
		m.siteSearches,
		m.fetchRequests,
		m.fetchDuration,
		m.rateLimitDelay,
		m.breakerTransitions,
		m.httpRequests,
		m.httpDuration,
		m.requestsInAir,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register search collector: %w", err)
		}
	}
	return m, nil
}

// ObserveSearch records a completed live search.
func (m *Metrics) ObserveSearch(took time.Duration, results int) {
	if m == nil {
		return
	}
	m.searchesTotal.WithLabelValues("live").Inc()
	m.searchDuration.Observe(took.Seconds())
	m.searchResults.Observe(float64(results))
}

// ObserveCacheHit records a search answered from cache.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.searchesTotal.WithLabelValues("cache").Inc()
	m.cacheEvents.WithLabelValues("hit").Inc()
}

// ObserveCacheMiss records a cache lookup that found nothing fresh.
func (m *Metrics) ObserveCacheMiss() {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues("miss").Inc()
}

// ObserveSiteOutcome records one per-site task completion.
func (m *Metrics) ObserveSiteOutcome(site string, results int, err error) {
	if m == nil {
		return
	}
	result := "success"
	switch {
	case err != nil:
		result = "error"
	case results == 0:
		result = "empty"
	}
	m.siteSearches.WithLabelValues(orUnknown(site), result).Inc()
}

// ObserveFetch records one fetch attempt's outcome. The signature matches
// the fetcher's Observer hook.
func (m *Metrics) ObserveFetch(site string, status int, took time.Duration, err error) {
	if m == nil {
		return
	}
	class := statusClass(status, err)
	m.fetchRequests.WithLabelValues(orUnknown(site), class).Inc()
	if took > 0 {
		m.fetchDuration.WithLabelValues(orUnknown(site), class).Observe(took.Seconds())
	}
}

// ObserveRateLimitDelay records an imposed pacing wait. The signature
// matches the rate limiter's observe hook.
func (m *Metrics) ObserveRateLimitDelay(site string, delay time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitDelay.WithLabelValues(orUnknown(site)).Observe(delay.Seconds())
}

// ObserveBreakerTransition records a circuit state change.
func (m *Metrics) ObserveBreakerTransition(site, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(orUnknown(site), to).Inc()
}

// ObserveHTTPRequest records one served API request.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func statusClass(status int, err error) string {
	if err != nil && status == 0 {
		return "error"
	}
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}

func orUnknown(site string) string {
	if site == "" {
		return "unknown"
	}
	return site
}
