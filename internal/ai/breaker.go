package ai

import (
	"log"
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker gates requests to the upstream completion API. It trips
// open after a run of consecutive failures and lets a single trial call
// through once the recovery window has elapsed.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	recoveryWindow   time.Duration
	now              func() time.Time

	failureCount int
	state        breakerState
	openedAt     time.Time
}

func NewCircuitBreaker(failureThreshold int, recoveryWindow time.Duration) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}

	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryWindow:   recoveryWindow,
		now:              time.Now,
	}
}

// AllowsRequest reports whether a call may be attempted right now. While
// open, the first query at or past the recovery deadline moves the breaker
// to half-open and is allowed as the trial call. Half-open does not hold
// callers back, so concurrent queries in that window all go through; the
// first recorded failure re-opens the breaker either way.
func (b *CircuitBreaker) AllowsRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if !b.now().Before(b.openedAt.Add(b.recoveryWindow)) {
			b.state = breakerHalfOpen
			log.Printf("circuit breaker half-open, allowing trial request")
			return true
		}
		return false
	default:
		return true
	}
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	if b.state != breakerClosed {
		b.state = breakerClosed
		log.Printf("circuit breaker closed")
	}
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	if b.state == breakerHalfOpen || b.failureCount >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = b.now()
		log.Printf("circuit breaker opened failures=%d", b.failureCount)
	}
}

// FailureCount returns the number of failures recorded since the last
// success.
func (b *CircuitBreaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
