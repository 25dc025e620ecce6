package strategy

import (
	"context"
	"time"

	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/policy"
	"github.com/aponysus/nodecall/result"
)

// DefaultTimeout is installed when a client configures none.
const DefaultTimeout = policy.DefaultTimeout

// Timeout bounds a single attempt.
type Timeout struct {
	d time.Duration
}

// NewTimeout returns a Timeout of d, or DefaultTimeout when d is not positive.
func NewTimeout(d time.Duration) *Timeout {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &Timeout{d: d}
}

func (t *Timeout) Duration() time.Duration { return t.d }
func (t *Timeout) Capability() Capability  { return CapTimeout }
func (t *Timeout) Priority() int           { return PriorityTimeout }

// Apply gives each attempt a deadline. If the inner call has not resolved
// when it passes, the attempt resolves with Timeout and any late inner
// result is discarded.
func (t *Timeout) Apply(next Invocation) Invocation {
	d := t.d
	return Invocation{
		ID: next.ID,
		Call: func(ctx context.Context, req any) *result.Handle[any] {
			attemptCtx, cancel := context.WithTimeout(ctx, d)
			p := result.NewPromise[any]()

			timer := time.AfterFunc(d, func() {
				p.Resolve(result.Failure[any](fault.Timeout(next.ID+" exceeded "+d.String(), context.DeadlineExceeded)))
				cancel()
			})
			next.Call(attemptCtx, req).OnComplete(func(r result.Result[any]) {
				timer.Stop()
				cancel()
				p.Resolve(r)
			})
			return p.Handle()
		},
	}
}
