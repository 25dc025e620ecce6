// Package strategy defines the cross-cutting policies that decorate remote
// calls and the capability slots they fill.
package strategy

import (
	"context"

	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/result"
)

// Capability is a slot that at most one Strategy fills per Context.
type Capability int

const (
	CapConnect Capability = iota + 1
	CapSecurity
	CapTimeout
	CapTrace
	CapRateLimit
	CapCircuit
	CapRetry
)

func (c Capability) String() string {
	switch c {
	case CapConnect:
		return "connect"
	case CapSecurity:
		return "security"
	case CapTimeout:
		return "timeout"
	case CapTrace:
		return "trace"
	case CapRateLimit:
		return "rate_limit"
	case CapCircuit:
		return "circuit"
	case CapRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// ParseCapability is the inverse of Capability.String.
func ParseCapability(s string) (Capability, bool) {
	for c := CapConnect; c <= CapRetry; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// Necessary lists the capabilities every global Context carries.
var Necessary = []Capability{CapConnect, CapTimeout, CapSecurity}

// Priorities order strategies from innermost (lowest, nearest the transport)
// to outermost.
const (
	PriorityConnect   = 100
	PrioritySecurity  = 200
	PriorityTimeout   = 300
	PriorityTrace     = 400
	PriorityRateLimit = 500
	PriorityCircuit   = 600
	PriorityRetry     = 700
)

// Call is the type-erased shape of a remote call.
type Call func(ctx context.Context, req any) *result.Handle[any]

// Invocation is a call tagged with its stable identity, such as
// "blockchain.status".
type Invocation struct {
	ID   string
	Call Call
}

// Strategy decorates an invocation with one cross-cutting behaviour.
//
// Apply must return an Invocation with the same ID. Strategies hold no
// per-call state; anything an attempt needs lives in the returned closure.
type Strategy interface {
	Capability() Capability
	Priority() int
	Apply(next Invocation) Invocation
}

type custom struct {
	cap      Capability
	priority int
	apply    func(Invocation) Invocation
}

// New builds a Strategy from a function, for behaviours without a dedicated type.
func New(cap Capability, priority int, apply func(Invocation) Invocation) Strategy {
	return &custom{cap: cap, priority: priority, apply: apply}
}

func (c *custom) Capability() Capability { return c.cap }
func (c *custom) Priority() int          { return c.priority }

func (c *custom) Apply(next Invocation) Invocation {
	if c.apply == nil {
		return next
	}
	return c.apply(next)
}

// Guard protects a raw invocation: a panic or a nil handle becomes an
// Internal failure instead of escaping to whichever goroutine drives the call.
func Guard(inv Invocation) Invocation {
	next := inv.Call
	return Invocation{
		ID: inv.ID,
		Call: func(ctx context.Context, req any) (h *result.Handle[any]) {
			defer func() {
				if r := recover(); r != nil {
					h = result.Failed[any](fault.Recover(inv.ID, r))
				}
			}()
			if next == nil {
				return result.Failed[any](fault.Internal("no remote call bound for "+inv.ID, nil))
			}
			h = next(ctx, req)
			if h == nil {
				return result.Failed[any](fault.Internal(inv.ID+" returned nil handle", nil))
			}
			return h
		},
	}
}
