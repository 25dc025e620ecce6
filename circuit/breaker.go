package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/aponysus/nodecall/policy"
)

const (
	DefaultThreshold = 5
	DefaultCooldown  = 10 * time.Second
)

// ConsecutiveFailureBreaker opens after threshold consecutive failures and
// lets a single probe through once cooldown has passed.
type ConsecutiveFailureBreaker struct {
	mu sync.Mutex

	state State

	threshold int
	cooldown  time.Duration
	maxProbes int

	consecutiveFailures int
	openTime            time.Time
	probesSent          int
	probesSuccessful    int
	probesRequired      int

	nowFn    func() time.Time
	onChange func(from, to State)
}

// NewConsecutiveFailureBreaker uses DefaultThreshold and DefaultCooldown for
// non-positive arguments.
func NewConsecutiveFailureBreaker(threshold int, cooldown time.Duration) *ConsecutiveFailureBreaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &ConsecutiveFailureBreaker{
		state:          StateClosed,
		threshold:      threshold,
		cooldown:       cooldown,
		maxProbes:      1,
		probesRequired: 1,
	}
}

// FromPolicy builds a breaker from a normalized circuit policy.
func FromPolicy(p policy.CircuitPolicy) *ConsecutiveFailureBreaker {
	return NewConsecutiveFailureBreaker(p.Threshold, p.Cooldown)
}

func (cb *ConsecutiveFailureBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.updateStateLocked()
}

func (cb *ConsecutiveFailureBreaker) Allow(context.Context) Decision {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.updateStateLocked() {
	case StateOpen:
		return Decision{Allowed: false, State: StateOpen, Reason: ReasonCircuitOpen}
	case StateHalfOpen:
		if cb.probesSent >= cb.maxProbes {
			return Decision{Allowed: false, State: StateHalfOpen, Reason: ReasonCircuitHalfOpenProbeLimit}
		}
		cb.probesSent++
		return Decision{Allowed: true, State: StateHalfOpen}
	default:
		return Decision{Allowed: true, State: StateClosed}
	}
}

func (cb *ConsecutiveFailureBreaker) RecordSuccess(context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.updateStateLocked() {
	case StateClosed:
		cb.consecutiveFailures = 0
	case StateHalfOpen:
		cb.probesSuccessful++
		if cb.probesSuccessful >= cb.probesRequired {
			cb.transitionTo(StateClosed)
		} else {
			cb.probesSent--
		}
	}
}

func (cb *ConsecutiveFailureBreaker) RecordFailure(context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.updateStateLocked() {
	case StateClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.threshold {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

func (cb *ConsecutiveFailureBreaker) Release(context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.updateStateLocked() == StateHalfOpen && cb.probesSent > 0 {
		cb.probesSent--
	}
}

func (cb *ConsecutiveFailureBreaker) updateStateLocked() State {
	if cb.state == StateOpen && cb.now().Sub(cb.openTime) >= cb.cooldown {
		cb.transitionTo(StateHalfOpen)
	}
	return cb.state
}

func (cb *ConsecutiveFailureBreaker) transitionTo(newState State) {
	from := cb.state
	cb.state = newState
	switch newState {
	case StateClosed:
		cb.consecutiveFailures = 0
		cb.probesSent = 0
		cb.probesSuccessful = 0
	case StateOpen:
		cb.openTime = cb.now()
		cb.consecutiveFailures = 0
	case StateHalfOpen:
		cb.probesSent = 0
		cb.probesSuccessful = 0
	}
	if cb.onChange != nil && from != newState {
		cb.onChange(from, newState)
	}
}

func (cb *ConsecutiveFailureBreaker) now() time.Time {
	if cb.nowFn != nil {
		return cb.nowFn()
	}
	return time.Now()
}

// SetClock overrides the breaker clock, primarily for tests.
func (cb *ConsecutiveFailureBreaker) SetClock(f func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.nowFn = f
}

// OnStateChange registers f to run on every transition. f runs with the
// breaker locked and must not call back into it.
func (cb *ConsecutiveFailureBreaker) OnStateChange(f func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onChange = f
}
