// Package circuit stops dispatching calls to a node that keeps failing to
// answer, and probes it again after a cooldown.
package circuit

import (
	"context"
	"errors"
)

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed   State = iota // Calls flow.
	StateOpen                  // Calls fail fast.
	StateHalfOpen              // A limited number of probes flow.
)

const (
	ReasonCircuitOpen               = "circuit_open"
	ReasonCircuitHalfOpenProbeLimit = "circuit_half_open_probe_limit"
)

// ErrCircuitOpen is the cause of failures produced without dispatching.
var ErrCircuitOpen = errors.New("nodecall: circuit open")

func (s State) String() string {
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

// Decision is the answer to Allow.
type Decision struct {
	Allowed bool
	State   State
	Reason  string
}

// CircuitBreaker tracks the health of one remote operation.
type CircuitBreaker interface {
	Allow(ctx context.Context) Decision

	// RecordSuccess reports that the node answered.
	RecordSuccess(ctx context.Context)

	// RecordFailure reports that the node could not be reached in time.
	RecordFailure(ctx context.Context)

	// Release returns an allowed call's slot without judging the node, for
	// calls abandoned by the caller.
	Release(ctx context.Context)

	State() State
}
