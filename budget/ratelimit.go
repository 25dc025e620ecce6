package budget

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/policy"
	"github.com/aponysus/nodecall/result"
	"github.com/aponysus/nodecall/strategy"
)

// RateLimit is the RateLimit capability. Calls over the rate are delayed on
// a timer, never by blocking the caller.
type RateLimit struct {
	limiter *KeyedLimiter
	clock   func() time.Time
}

type Option func(*RateLimit)

// WithClock sets the clock used to take tokens.
func WithClock(now func() time.Time) Option {
	return func(r *RateLimit) {
		if now != nil {
			r.clock = now
		}
	}
}

// WithIdleTTL sets how long an unused identity keeps its bucket.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *RateLimit) {
		if r.limiter != nil && ttl > 0 {
			r.limiter.idleTTL = ttl
		}
	}
}

// NewRateLimit allows perSecond calls per identity with bursts of up to
// burst. A non-positive perSecond disables limiting.
func NewRateLimit(perSecond float64, burst int, opts ...Option) *RateLimit {
	if burst < 1 {
		burst = 1
	}
	r := &RateLimit{
		limiter: NewKeyedLimiter(perSecond, burst, DefaultIdleTTL),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromPolicy builds a RateLimit from a normalized policy.
func FromPolicy(p policy.RateLimitPolicy) *RateLimit {
	return NewRateLimit(p.PerSecond, p.Burst)
}

func (r *RateLimit) Limiter() *KeyedLimiter           { return r.limiter }
func (r *RateLimit) Capability() strategy.Capability { return strategy.CapRateLimit }
func (r *RateLimit) Priority() int                   { return strategy.PriorityRateLimit }

func (r *RateLimit) Apply(next strategy.Invocation) strategy.Invocation {
	guarded := strategy.Guard(next)
	return strategy.Invocation{
		ID: next.ID,
		Call: func(ctx context.Context, req any) *result.Handle[any] {
			now := r.clock()
			res := r.limiter.Reserve(next.ID, now)
			if !res.OK() {
				return result.Failed[any](fault.Internal("rate limit cannot admit "+next.ID, nil))
			}

			delay := res.DelayFrom(now)
			if delay <= 0 {
				return guarded.Call(ctx, req)
			}
			if deadline, ok := ctx.Deadline(); ok && now.Add(delay).After(deadline) {
				res.CancelAt(now)
				return result.Failed[any](fault.Timeout(next.ID+" rate limited past deadline", context.DeadlineExceeded))
			}
			return delayed(ctx, delay, res, func() *result.Handle[any] {
				return guarded.Call(ctx, req)
			})
		},
	}
}

// delayed runs dispatch after d unless ctx ends first, in which case the
// reservation is returned.
func delayed(ctx context.Context, d time.Duration, res interface{ Cancel() }, dispatch func() *result.Handle[any]) *result.Handle[any] {
	p := result.NewPromise[any]()

	var (
		mu        sync.Mutex
		claimed   atomic.Bool
		timer     *time.Timer
		stopWatch func() bool
	)

	mu.Lock()
	stopWatch = context.AfterFunc(ctx, func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		mu.Lock()
		t := timer
		mu.Unlock()
		if t != nil {
			t.Stop()
		}
		res.Cancel()
		err := fault.FromContext(ctx, "waiting for rate limit")
		if err == nil {
			err = fault.Cancelled("waiting for rate limit", context.Cause(ctx))
		}
		p.Resolve(result.Failure[any](err))
	})
	mu.Unlock()

	t := time.AfterFunc(d, func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		mu.Lock()
		stop := stopWatch
		mu.Unlock()
		stop()
		dispatch().OnComplete(func(r result.Result[any]) { p.Resolve(r) })
	})
	mu.Lock()
	timer = t
	mu.Unlock()

	return p.Handle()
}
