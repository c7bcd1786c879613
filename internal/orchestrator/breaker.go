package orchestrator

import (
	"sync"
	"time"
)

// BreakerState is the lifecycle state of a circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

const (
	breakerFailureThreshold = 5
	breakerSuccessThreshold = 3
	breakerTimeout          = 60 * time.Second
)

// CircuitBreaker guards one servicer. Five consecutive failures open it;
// after the timeout a single probe is allowed through, and three consecutive
// probe successes close it again.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         BreakerState
	failureCount  int
	successCount  int
	probeInFlight bool
	openedAt      time.Time
	now           func() time.Time
}

func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{state: BreakerClosed, now: time.Now}
}

// IsOpen reports whether the breaker is blocking attempts. When the open
// timeout has elapsed it transitions to half-open and admits exactly one
// caller as the probe; further callers are blocked until the probe's outcome
// is recorded.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) > breakerTimeout {
			cb.state = BreakerHalfOpen
			cb.successCount = 0
			cb.probeInFlight = true
			return false
		}
		return true
	case BreakerHalfOpen:
		if cb.probeInFlight {
			return true
		}
		cb.probeInFlight = true
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure streak and, in half-open, advances the
// probe count toward closing.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state == BreakerHalfOpen {
		cb.probeInFlight = false
		cb.successCount++
		if cb.successCount >= breakerSuccessThreshold {
			cb.state = BreakerClosed
			cb.successCount = 0
		}
	}
}

// RecordFailure advances the failure streak. A failure during half-open
// reopens immediately and restarts the timeout.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerHalfOpen {
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
		cb.successCount = 0
		cb.failureCount = 0
		cb.probeInFlight = false
		return
	}

	cb.failureCount++
	if cb.failureCount >= breakerFailureThreshold {
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
		cb.failureCount = 0
	}
}

// State returns the current state without side effects.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
