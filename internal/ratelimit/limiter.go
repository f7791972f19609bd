// Package ratelimit implements per-site adaptive request pacing. Instead of a
// fixed token bucket, each site's delay tracks twice its observed average
// response time and backs off exponentially on failures, so slow or unhappy
// sites are hit less often without slowing the healthy ones.
package ratelimit

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/pelinal/gamesearch/internal/clock"
)

// ErrTooManyFailures signals that a site has failed so often in a row that
// the caller should abandon it for this run.
var ErrTooManyFailures = errors.New("too many consecutive failures")

// sampleWindow bounds the response-time ring buffer per site.
const sampleWindow = 5

// Config holds the pacing parameters shared by every site's state.
type Config struct {
	// BaseDelay is the floor for the inter-request delay.
	BaseDelay time.Duration
	// MaxDelay is the ceiling for the inter-request delay.
	MaxDelay time.Duration
	// BackoffMultiplier scales the delay on each recorded failure.
	BackoffMultiplier float64
	// JitterFactor adds up to wait*factor of random jitter to each sleep so
	// concurrent site tasks don't fall into lockstep.
	JitterFactor float64
	// MaxFailures is the consecutive-failure count at which the site is
	// refused further requests for the run.
	MaxFailures int
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	} else if c.JitterFactor == 0 {
		c.JitterFactor = 0.1
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	return c
}

type siteState struct {
	lastRequest  time.Time
	currentDelay time.Duration
	failures     int
	samples      []time.Duration
	avgResponse  time.Duration
}

// Limiter manages pacing state for every site, keyed by site name. State is
// created lazily on first use; the map is mutex-guarded for concurrent key
// insertion, while each site has a single task mutating it at a time.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	clk     clock.Clock
	states  map[string]*siteState
	sleep   func(ctx context.Context, d time.Duration) error
	observe func(site string, delay time.Duration)
}

// New creates a Limiter. observe, when non-nil, receives every imposed wait
// for metrics.
func New(cfg Config, clk clock.Clock, observe func(site string, delay time.Duration)) *Limiter {
	if clk == nil {
		clk = clock.System()
	}
	return &Limiter{
		cfg:     cfg.withDefaults(),
		clk:     clk,
		states:  make(map[string]*siteState),
		sleep:   sleepContext,
		observe: observe,
	}
}

// WaitForSite blocks until the site may be hit again. It fails immediately
// with ErrTooManyFailures once the site's consecutive-failure count has
// reached MaxFailures. The first request for a site never waits. The sleep is
// context-aware; last-request time is stamped after the wait completes.
func (l *Limiter) WaitForSite(ctx context.Context, site string) error {
	l.mu.Lock()
	st := l.stateLocked(site)
	if st.failures >= l.cfg.MaxFailures {
		l.mu.Unlock()
		return fmt.Errorf("site %s: %w", site, ErrTooManyFailures)
	}
	var wait time.Duration
	if !st.lastRequest.IsZero() {
		if elapsed := l.clk.Now().Sub(st.lastRequest); elapsed < st.currentDelay {
			wait = st.currentDelay - elapsed
		}
	}
	l.mu.Unlock()

	if wait > 0 {
		wait += jitter(wait, l.cfg.JitterFactor)
		if l.observe != nil {
			l.observe(site, wait)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return fmt.Errorf("rate limit wait for %s: %w", site, err)
		}
	}

	l.mu.Lock()
	st.lastRequest = l.clk.Now()
	l.mu.Unlock()
	return nil
}

// RecordSuccess resets the failure count, folds responseTime into the
// bounded sample ring and re-derives the delay as twice the average response
// time, clamped to [BaseDelay, MaxDelay].
func (l *Limiter) RecordSuccess(site string, responseTime time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateLocked(site)
	st.failures = 0
	st.samples = append(st.samples, responseTime)
	if len(st.samples) > sampleWindow {
		st.samples = st.samples[1:]
	}
	var total time.Duration
	for _, s := range st.samples {
		total += s
	}
	st.avgResponse = total / time.Duration(len(st.samples))
	st.currentDelay = l.clamp(2 * st.avgResponse)
}

// RecordFailure bumps the failure count, returning ErrTooManyFailures once
// the count exceeds MaxFailures; otherwise it backs the delay off by the
// configured multiplier.
func (l *Limiter) RecordFailure(site string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateLocked(site)
	st.failures++
	if st.failures > l.cfg.MaxFailures {
		return fmt.Errorf("site %s: %w", site, ErrTooManyFailures)
	}
	st.currentDelay = l.clamp(time.Duration(float64(st.currentDelay) * l.cfg.BackoffMultiplier))
	return nil
}

// Snapshot reports a site's pacing state for logs, metrics and tests.
type Snapshot struct {
	CurrentDelay time.Duration
	Failures     int
	AvgResponse  time.Duration
	SampleCount  int
}

// Snapshot returns the current state for site. Unknown sites report the
// defaults they would start with.
func (l *Limiter) Snapshot(site string) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateLocked(site)
	return Snapshot{
		CurrentDelay: st.currentDelay,
		Failures:     st.failures,
		AvgResponse:  st.avgResponse,
		SampleCount:  len(st.samples),
	}
}

func (l *Limiter) stateLocked(site string) *siteState {
	st, ok := l.states[site]
	if !ok {
		st = &siteState{currentDelay: l.cfg.BaseDelay}
		l.states[site] = st
	}
	return st
}

func (l *Limiter) clamp(d time.Duration) time.Duration {
	if d < l.cfg.BaseDelay {
		return l.cfg.BaseDelay
	}
	if d > l.cfg.MaxDelay {
		return l.cfg.MaxDelay
	}
	return d
}

func jitter(wait time.Duration, factor float64) time.Duration {
	if wait <= 0 || factor <= 0 {
		return 0
	}
	span := int64(float64(wait) * factor)
	if span <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(span+1))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
