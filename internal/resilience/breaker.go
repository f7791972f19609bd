// Package resilience provides the per-site circuit breaker and the error
// classification that drives retry and backoff decisions.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/pelinal/gamesearch/internal/clock"
)

// ErrCircuitOpen is returned by Check while a breaker is open and the
// recovery timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker's position in its recovery cycle.
type State uint8

const (
	// StateClosed admits all requests.
	StateClosed State = iota
	// StateOpen fails fast until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen admits a probe request to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls when a breaker opens and how long it stays open.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker from closed.
	FailureThreshold int
	// RecoveryTimeout is how long an open breaker rejects requests before
	// allowing a half-open probe.
	RecoveryTimeout time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	return c
}

// Breaker is a fault-tolerance gate for a single site. State is a tagged
// value guarded by a mutex rather than packed atomics so transitions stay
// readable and the zero-value states cannot be confused.
type Breaker struct {
	mu           sync.Mutex
	cfg          BreakerConfig
	clk          clock.Clock
	state        State
	failures     int
	lastFailure  time.Time
	onTransition func(from, to State)
}

// NewBreaker builds a closed breaker. onTransition, when non-nil, is invoked
// for every state change; it runs under the breaker's lock and must not call
// back into the breaker.
func NewBreaker(cfg BreakerConfig, clk clock.Clock, onTransition func(from, to State)) *Breaker {
	if clk == nil {
		clk = clock.System()
	}
	return &Breaker{
		cfg:          cfg.withDefaults(),
		clk:          clk,
		state:        StateClosed,
		onTransition: onTransition,
	}
}

// Check reports whether a request may proceed. Closed and half-open admit the
// request. Open admits it only once the recovery timeout has elapsed, moving
// to half-open for that probe; otherwise it returns ErrCircuitOpen.
func (b *Breaker) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if b.clk.Now().Sub(b.lastFailure) >= b.cfg.RecoveryTimeout {
			b.transition(StateHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess resets the failure count and closes a half-open breaker.
// Successes while open are not expected but still reset the counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
}

// RecordFailure counts a failure and stamps its time. A half-open breaker
// reopens immediately; a closed breaker opens at the failure threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.clk.Now()

	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateOpen:
		// Already open; nothing to do beyond the stamp above.
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}

// BreakerSet holds one breaker per site, created lazily on first use. Only
// the map itself needs guarding; each site runs as a single task so its
// breaker sees no cross-task contention beyond its own lock.
type BreakerSet struct {
	mu           sync.Mutex
	cfg          BreakerConfig
	clk          clock.Clock
	onTransition func(site string, from, to State)
	breakers     map[string]*Breaker
}

// NewBreakerSet builds an empty set. onTransition, when non-nil, receives
// every breaker transition along with the owning site name.
func NewBreakerSet(cfg BreakerConfig, clk clock.Clock, onTransition func(site string, from, to State)) *BreakerSet {
	if clk == nil {
		clk = clock.System()
	}
	return &BreakerSet{
		cfg:          cfg.withDefaults(),
		clk:          clk,
		onTransition: onTransition,
		breakers:     make(map[string]*Breaker),
	}
}

// For returns the breaker for site, creating it on first use.
func (s *BreakerSet) For(site string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.breakers[site]; ok {
		return b
	}
	var hook func(from, to State)
	if s.onTransition != nil {
		hook = func(from, to State) { s.onTransition(site, from, to) }
	}
	b := NewBreaker(s.cfg, s.clk, hook)
	s.breakers[site] = b
	return b
}

// States returns a snapshot of every known breaker's state, keyed by site.
func (s *BreakerSet) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]State, len(s.breakers))
	for site, b := range s.breakers {
		out[site] = b.State()
	}
	return out
}
