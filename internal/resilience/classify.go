package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Category buckets a raw failure into the class that decides whether and how
// fast to retry it. Classification is site-independent.
type Category uint8

const (
	// CategoryUnknown is anything the classifier cannot place.
	CategoryUnknown Category = iota
	// CategoryNetwork covers connect/reset/timeout/DNS failures.
	CategoryNetwork
	// CategoryRateLimit covers HTTP 429 and throttle messages.
	CategoryRateLimit
	// CategoryAuth covers 401/403; treated as soft, never retried.
	CategoryAuth
	// CategoryServerError covers 5xx responses.
	CategoryServerError
	// CategoryParse covers extraction failures; not transient.
	CategoryParse
	// CategoryCircuitOpen marks requests rejected by an open breaker.
	CategoryCircuitOpen
)

func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryAuth:
		return "auth"
	case CategoryServerError:
		return "server_error"
	case CategoryParse:
		return "parse"
	case CategoryCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// HTTPError carries a status code through the error chain so classification
// can use the code instead of scraping the message.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// ClassifyStatus maps an HTTP status code to a category.
func ClassifyStatus(code int) Category {
	switch {
	case code == 429:
		return CategoryRateLimit
	case code == 401 || code == 403:
		return CategoryAuth
	case code >= 500:
		return CategoryServerError
	default:
		return CategoryUnknown
	}
}

// Classify buckets err. Typed errors win over message matching: HTTPError by
// status, net.Error and context deadline as network, breaker rejections as
// circuit-open. Message matching covers errors that arrive as opaque strings
// from transports and parsers.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, ErrCircuitOpen) {
		return CategoryCircuitOpen
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if cat := ClassifyStatus(httpErr.StatusCode); cat != CategoryUnknown {
			return cat
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "too many", "rate limit"):
		return CategoryRateLimit
	case containsAny(msg, "401", "403", "unauthorized", "forbidden"):
		return CategoryAuth
	case containsAny(msg, "500", "502", "503", "504", "server error"):
		return CategoryServerError
	case containsAny(msg, "connection", "timeout", "timed out", "dns", "refused", "reset", "network"):
		return CategoryNetwork
	case containsAny(msg, "parse", "selector", "html", "invalid"):
		return CategoryParse
	case strings.Contains(msg, "circuit"):
		return CategoryCircuitOpen
	default:
		return CategoryUnknown
	}
}

// Retryable reports whether a failure category is worth another attempt.
// Auth and redirects are policy "no content" outcomes, parse failures are
// deterministic, so only transient transport-level classes retry.
func Retryable(c Category) bool {
	switch c {
	case CategoryNetwork, CategoryRateLimit, CategoryServerError:
		return true
	default:
		return false
	}
}

// ShouldTrip reports whether a failure category counts against a site's
// circuit breaker. Matches the retryable set: persistent transient failures
// are exactly the signal the breaker exists for.
func ShouldTrip(c Category) bool {
	return Retryable(c)
}

const maxBackoff = 30 * time.Second

// Backoff returns the sleep before retry number attempt (zero-based) of a
// failure in category c: a per-category base doubled per attempt, the
// exponent capped at 5 and the result capped at 30s.
func Backoff(c Category, attempt int) time.Duration {
	var base time.Duration
	switch c {
	case CategoryRateLimit:
		base = 2000 * time.Millisecond
	case CategoryServerError:
		base = 1000 * time.Millisecond
	case CategoryNetwork:
		base = 500 * time.Millisecond
	default:
		base = 300 * time.Millisecond
	}

	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		attempt = 5
	}
	d := base << uint(attempt)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
