// Package retry re-invokes calls that fail with transient errors.
//
// Waiting between attempts is scheduled on a timer rather than spent
// sleeping, so a call waiting for its next attempt holds no goroutine.
package retry

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aponysus/nodecall/classify"
	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/observe"
	"github.com/aponysus/nodecall/result"
	"github.com/aponysus/nodecall/strategy"
)

const (
	DefaultMaxAttempts = 3
	DefaultInterval    = 100 * time.Millisecond
)

// Stopper cancels a scheduled function. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func()) Stopper

func afterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

// Strategy is the Retry capability. MaxAttempts counts every attempt,
// including the first.
type Strategy struct {
	maxAttempts int
	interval    time.Duration
	classifier  classify.Classifier
	schedule    Scheduler
	clock       func() time.Time
}

// New returns a Retry strategy. Without options it makes up to
// DefaultMaxAttempts attempts DefaultInterval apart, retrying connection
// failures and timeouts.
func New(opts ...Option) *Strategy {
	s := &Strategy{
		maxAttempts: DefaultMaxAttempts,
		interval:    DefaultInterval,
		classifier:  classify.Transient{},
		schedule:    afterFunc,
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Strategy) MaxAttempts() int                { return s.maxAttempts }
func (s *Strategy) Interval() time.Duration         { return s.interval }
func (s *Strategy) Classifier() classify.Classifier { return s.classifier }
func (s *Strategy) Capability() strategy.Capability { return strategy.CapRetry }
func (s *Strategy) Priority() int                   { return strategy.PriorityRetry }

// Apply returns an invocation that repeats next until it succeeds, fails
// with an error the classifier does not consider retryable, or runs out of
// attempts. The last result is returned unchanged.
func (s *Strategy) Apply(next strategy.Invocation) strategy.Invocation {
	guarded := strategy.Guard(next)
	return strategy.Invocation{
		ID: next.ID,
		Call: func(ctx context.Context, req any) *result.Handle[any] {
			l := &loop{
				s:    s,
				next: guarded,
				ctx:  ctx,
				req:  req,
				p:    result.NewPromise[any](),
			}
			l.rec, _ = observe.RecorderFromContext(ctx)
			if info, ok := observe.AttemptFromContext(ctx); ok {
				l.callID = info.CallID
			}
			l.attempt(0)
			return l.p.Handle()
		},
	}
}

// loop holds the state of one retried call.
type loop struct {
	s      *Strategy
	next   strategy.Invocation
	ctx    context.Context
	req    any
	p      *result.Promise[any]
	rec    *observe.Recorder
	callID string
}

func (l *loop) attempt(n int) {
	actx := observe.WithAttemptInfo(l.ctx, observe.AttemptInfo{
		ID:      l.next.ID,
		Attempt: n,
		CallID:  l.callID,
	})
	start := l.s.clock()
	l.next.Call(actx, l.req).OnComplete(func(r result.Result[any]) {
		l.settle(n, start, r)
	})
}

func (l *loop) settle(n int, start time.Time, r result.Result[any]) {
	var err *fault.Error
	if r.HasError() {
		err = r.Err()
	}

	out, panicErr := classifyWithRecovery(l.s.classifier, err, l.next.ID)
	more := out.Kind == classify.OutcomeRetryable && n+1 < l.s.maxAttempts && panicErr == nil

	rec := observe.AttemptRecord{
		Attempt:   n,
		StartTime: start,
		EndTime:   l.s.clock(),
		Outcome:   out,
		Err:       err,
	}
	if more {
		rec.Wait = l.s.interval
	}
	l.rec.Attempt(l.ctx, rec)

	switch {
	case panicErr != nil:
		l.p.Resolve(result.Failure[any](panicErr))
	case !more:
		l.p.Resolve(r)
	default:
		l.wait(n + 1)
	}
}

// wait schedules attempt n after the interval, or resolves the call if ctx
// ends first.
func (l *loop) wait(n int) {
	msg := l.next.ID + " waiting for attempt " + strconv.Itoa(n+1)
	if err := fault.FromContext(l.ctx, msg); err != nil {
		l.p.Resolve(result.Failure[any](err))
		return
	}

	var (
		mu        sync.Mutex
		claimed   atomic.Bool
		timer     Stopper
		stopWatch func() bool
	)

	mu.Lock()
	stopWatch = context.AfterFunc(l.ctx, func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		mu.Lock()
		t := timer
		mu.Unlock()
		if t != nil {
			t.Stop()
		}
		err := fault.FromContext(l.ctx, msg)
		if err == nil {
			err = fault.Cancelled(msg, context.Cause(l.ctx))
		}
		l.p.Resolve(result.Failure[any](err))
	})
	mu.Unlock()

	t := l.s.schedule(l.s.interval, func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		mu.Lock()
		stop := stopWatch
		mu.Unlock()
		stop()
		l.attempt(n)
	})
	mu.Lock()
	timer = t
	mu.Unlock()
}

func classifyWithRecovery(c classify.Classifier, err *fault.Error, id string) (out classify.Outcome, panicErr *fault.Error) {
	defer func() {
		if r := recover(); r != nil {
			out = classify.Outcome{Kind: classify.OutcomeAbort, Reason: "panic_in_classifier"}
			panicErr = fault.Recover("classifier for "+id, r)
		}
	}()

	out = c.Classify(err)
	if out.Kind == classify.OutcomeUnknown {
		if out.Reason == "" {
			out.Reason = "unknown_outcome"
		}
		out.Kind = classify.OutcomeAbort
	}
	if out.Reason == "" {
		out.Reason = out.Kind.String()
	}
	return out, nil
}
