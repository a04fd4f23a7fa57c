package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	goredis "github.com/go-redis/redis/v8"
)

// ErrCircuitOpen is returned without calling fn while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls rejected until the cool-down ends
	StateHalfOpen              // a single probe is in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerCounts are cumulative breaker statistics.
type BreakerCounts struct {
	Trips    int64 // closed or half-open → open
	Rejected int64 // calls refused with ErrCircuitOpen
	Failures int64 // current consecutive failures
}

// CircuitBreaker guards Redis writes. maxFailures consecutive failures open
// it; after cooldown the next caller becomes the only probe. A successful
// probe closes the breaker, a failed one reopens it.
type CircuitBreaker struct {
	maxFailures int
	cooldown    time.Duration
	clk         clock.Clock

	mu       sync.Mutex
	state    State
	openedAt time.Time
	probing  bool
	counts   BreakerCounts

	// IsFailure decides which errors count against the breaker. The default
	// ignores redis.Nil and context cancellation.
	IsFailure func(err error) bool

	// OnStateChange is called after each transition, outside the lock.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker. A nil clk uses the wall clock.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration, clk clock.Clock) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		clk:         clk,
		IsFailure:   defaultIsFailure,
	}
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, goredis.Nil) && !errors.Is(err, context.Canceled)
}

// Execute runs fn unless the breaker is rejecting calls.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var from State
	changed := false
	defer func() {
		cb.mu.Unlock()
		if changed {
			cb.notify(from, StateHalfOpen)
		}
	}()

	switch cb.state {
	case StateOpen:
		if cb.clk.Since(cb.openedAt) <= cb.cooldown {
			cb.counts.Rejected++
			return false, ErrCircuitOpen
		}
		from, changed = cb.state, true
		cb.state = StateHalfOpen
		cb.probing = true
		return true, nil
	case StateHalfOpen:
		if cb.probing {
			cb.counts.Rejected++
			return false, ErrCircuitOpen
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	failed := err != nil && cb.IsFailure(err)

	switch {
	case probe && failed:
		cb.probing = false
		cb.open()
	case probe:
		cb.probing = false
		cb.state = StateClosed
		cb.counts.Failures = 0
	case failed:
		cb.counts.Failures++
		if cb.state == StateClosed && cb.counts.Failures >= int64(cb.maxFailures) {
			cb.open()
		}
	case err == nil:
		cb.counts.Failures = 0
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

// open must be called with mu held.
func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.openedAt = cb.clk.Now()
	cb.counts.Trips++
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}

// CurrentState returns the breaker position.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a copy of the breaker statistics.
func (cb *CircuitBreaker) Counts() BreakerCounts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}
