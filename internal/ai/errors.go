package ai

import "errors"

// Chat surfaces one of these sentinels so callers can pick user-facing copy
// without matching on message strings.
var (
	// ErrServiceUnavailable means the circuit breaker rejected the call
	// before any network attempt.
	ErrServiceUnavailable = errors.New("ai service unavailable, circuit open")

	// ErrUpstreamTransient means retries were exhausted against transient
	// statuses or connection errors.
	ErrUpstreamTransient = errors.New("upstream unavailable after retries")

	// ErrUpstreamRejected means the upstream answered with a non-retriable
	// status other than the invalid-model case.
	ErrUpstreamRejected = errors.New("upstream rejected request")

	// ErrInvalidModel means the requested model was refused and every
	// configured fallback failed too.
	ErrInvalidModel = errors.New("model not available")
)
