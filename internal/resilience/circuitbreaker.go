// Package resilience guards the client against a failing server with a
// circuit breaker. Requests are refused locally while the circuit is open.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed allows requests to pass through normally.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows limited requests to test recovery.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig contains configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// HalfOpenMaxRequests caps concurrent probes while half-open.
	HalfOpenMaxRequests int
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	def := DefaultCircuitBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}
	return c
}

// CircuitBreaker counts consecutive failures against one server. It is safe
// for concurrent use.
type CircuitBreaker struct {
	mu              sync.Mutex
	name            string
	state           CircuitState
	failureCount    int
	successCount    int
	halfOpenCount   int
	lastFailureTime time.Time
	config          CircuitBreakerConfig
	now             func() time.Time
	onStateChange   func(name string, from, to CircuitState)
}

// NewCircuitBreaker creates a closed circuit breaker. Zero config fields
// take their defaults.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		state:  StateClosed,
		config: cfg.withDefaults(),
		now:    time.Now,
	}
}

// OnStateChange sets a callback for state transitions. The callback runs
// synchronously after the breaker's lock is released.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Allow reports whether a request may be sent.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	var (
		allowed bool
		changed func()
	)
	switch cb.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.config.Timeout {
			changed = cb.transitionTo(StateHalfOpen)
			cb.halfOpenCount = 1
			allowed = true
		}
	case StateHalfOpen:
		if cb.halfOpenCount < cb.config.HalfOpenMaxRequests {
			cb.halfOpenCount++
			allowed = true
		}
	}
	cb.mu.Unlock()

	if changed != nil {
		changed()
	}
	return allowed
}

// RecordSuccess records a request that reached a healthy server.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var changed func()
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.halfOpenCount > 0 {
			cb.halfOpenCount--
		}
		if cb.successCount >= cb.config.SuccessThreshold {
			changed = cb.transitionTo(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
			cb.halfOpenCount = 0
		}
	}
	cb.mu.Unlock()

	if changed != nil {
		changed()
	}
}

// RecordFailure records a transport failure or server-side error.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var changed func()
	cb.lastFailureTime = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			changed = cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		changed = cb.transitionTo(StateOpen)
		cb.successCount = 0
		cb.halfOpenCount = 0
	}
	cb.mu.Unlock()

	if changed != nil {
		changed()
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset closes the circuit and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.transitionTo(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCount = 0
	cb.mu.Unlock()

	if changed != nil {
		changed()
	}
}

// transitionTo must be called with cb.mu held. It returns the state change
// notification to run once the lock is released, or nil.
func (cb *CircuitBreaker) transitionTo(next CircuitState) func() {
	if cb.state == next {
		return nil
	}
	prev := cb.state
	cb.state = next

	fn := cb.onStateChange
	if fn == nil {
		return nil
	}
	name := cb.name
	return func() { fn(name, prev, next) }
}
