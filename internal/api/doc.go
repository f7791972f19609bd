// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST/GET /v1/search to run a search through the full pipeline.
//   - GET /v1/sites, /v1/events and /v1/history for introspection.
//   - GET/DELETE /v1/cache... to inspect and manage the search cache.
package api
