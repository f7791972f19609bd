// Package sinks implements concrete progress consumers: structured logging
// and the bounded in-memory store behind the API's events endpoint. Each
// sink satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
