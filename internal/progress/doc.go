// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces that search runs use to report their milestones. It
// batches events on a background goroutine and fans them out to pluggable
// sinks such as the structured log or the recent-events store behind the
// API's events endpoint.
package progress
