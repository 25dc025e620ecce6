// Package chain folds the strategies of a scope.Context into a single
// decorator and applies it to remote calls.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aponysus/nodecall/classify"
	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/observe"
	"github.com/aponysus/nodecall/result"
	"github.com/aponysus/nodecall/scope"
	"github.com/aponysus/nodecall/strategy"
)

// Chain is immutable once built and safe for concurrent use.
type Chain struct {
	scope      *scope.Context
	strategies []strategy.Strategy
	observer   observe.Observer
	clock      func() time.Time
	logger     *zap.Logger
	cache      *cache
}

type config struct {
	observer observe.Observer
	clock    func() time.Time
	logger   *zap.Logger
}

// Option configures a Chain.
type Option func(*config)

// WithObserver receives the lifecycle of every decorated call.
func WithObserver(o observe.Observer) Option {
	return func(c *config) { c.observer = o }
}

// WithClock sets the clock used for call timelines.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds the chain for c. A nil c uses scope.Default().
func New(c *scope.Context, opts ...Option) *Chain {
	cfg := config{clock: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if c == nil {
		c = scope.Default()
	}
	return &Chain{
		scope:      c,
		strategies: c.Strategies(),
		observer:   observe.Multi(cfg.observer),
		clock:      cfg.clock,
		logger:     cfg.logger,
		cache:      newCache(),
	}
}

func (ch *Chain) Scope() *scope.Context { return ch.scope }

// Strategies returns the chain's strategies from innermost to outermost.
func (ch *Chain) Strategies() []strategy.Strategy {
	return append([]strategy.Strategy(nil), ch.strategies...)
}

// DecorateOption narrows the strategies applied to one invocation.
type DecorateOption func(*selection)

type selection struct {
	only    map[strategy.Capability]bool
	without map[strategy.Capability]bool
}

// Only applies just the listed capabilities.
func Only(caps ...strategy.Capability) DecorateOption {
	return func(s *selection) {
		if s.only == nil {
			s.only = make(map[strategy.Capability]bool)
		}
		for _, c := range caps {
			s.only[c] = true
		}
	}
}

// Without skips the listed capabilities.
func Without(caps ...strategy.Capability) DecorateOption {
	return func(s *selection) {
		if s.without == nil {
			s.without = make(map[strategy.Capability]bool)
		}
		for _, c := range caps {
			s.without[c] = true
		}
	}
}

func (s selection) includes(c strategy.Capability) bool {
	if s.only != nil && !s.only[c] {
		return false
	}
	return !s.without[c]
}

func (s selection) key(id string) string {
	if s.only == nil && s.without == nil {
		return id
	}
	k := id
	for c := strategy.CapConnect; c <= strategy.CapRetry; c++ {
		if s.includes(c) {
			k += "|" + c.String()
		}
	}
	return k
}

// Decorate wraps inv with the chain's strategies, innermost first.
func (ch *Chain) Decorate(inv strategy.Invocation, opts ...DecorateOption) strategy.Invocation {
	return ch.decorate(inv, selectionOf(opts))
}

// Shared is Decorate with the result cached by identity and selection. The
// first Call seen for an identity is the one later Shared calls return, so
// callers must pass the same Call for every use of an identity.
func (ch *Chain) Shared(inv strategy.Invocation, opts ...DecorateOption) strategy.Invocation {
	sel := selectionOf(opts)
	key := sel.key(inv.ID)
	if cached, ok := ch.cache.get(key); ok {
		return cached
	}
	return ch.cache.set(key, ch.decorate(inv, sel))
}

func selectionOf(opts []DecorateOption) selection {
	var sel selection
	for _, opt := range opts {
		if opt != nil {
			opt(&sel)
		}
	}
	return sel
}

func (ch *Chain) decorate(inv strategy.Invocation, sel selection) strategy.Invocation {
	return ch.instrument(ch.fold(strategy.Guard(inv), sel))
}

func (ch *Chain) fold(inv strategy.Invocation, sel selection) strategy.Invocation {
	id := inv.ID
	for _, s := range ch.strategies {
		if !sel.includes(s.Capability()) {
			continue
		}
		next, err := apply(s, inv)
		if err != nil {
			ch.logger.Error("strategy apply failed; skipping",
				zap.String("rpc", id),
				zap.Stringer("capability", s.Capability()),
				zap.Error(err),
			)
			continue
		}
		if next.Call == nil {
			ch.logger.Warn("strategy returned no call; skipping",
				zap.String("rpc", id),
				zap.Stringer("capability", s.Capability()),
			)
			continue
		}
		if next.ID != id {
			ch.logger.Warn("strategy changed invocation identity; restoring",
				zap.String("rpc", id),
				zap.String("got", next.ID),
				zap.Stringer("capability", s.Capability()),
			)
			next.ID = id
		}
		inv = next
	}
	return inv
}

func apply(s strategy.Strategy, inv strategy.Invocation) (out strategy.Invocation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault.Recover(fmt.Sprintf("%s strategy", s.Capability()), r)
		}
	}()
	return s.Apply(inv), nil
}

// instrument records the call timeline around the decorated invocation.
func (ch *Chain) instrument(inner strategy.Invocation) strategy.Invocation {
	inner = strategy.Guard(inner)
	id := inner.ID
	scopeName := ch.scope.Name()
	return strategy.Invocation{
		ID: id,
		Call: func(ctx context.Context, req any) *result.Handle[any] {
			if ctx == nil {
				ctx = context.Background()
			}
			callID := uuid.NewString()
			start := ch.clock()
			capture, _ := observe.TimelineCaptureFromContext(ctx)

			rec := observe.NewRecorder(id, callID, scopeName, start, ch.observer)
			callCtx := observe.WithoutTimelineCapture(ctx)
			callCtx = observe.WithRecorder(callCtx, rec)
			callCtx = observe.WithAttemptInfo(callCtx, observe.AttemptInfo{ID: id, CallID: callID})

			ch.observer.OnStart(callCtx, id)
			h := inner.Call(callCtx, req)
			h.OnComplete(func(r result.Result[any]) {
				end := ch.clock()
				err := r.Err()
				if rec.Attempts() == 0 {
					rec.Attempt(callCtx, observe.AttemptRecord{
						StartTime: start,
						EndTime:   end,
						Outcome:   singleOutcome(err),
						Err:       err,
					})
				}
				tl := rec.Finish(end, err)
				observe.StoreTimelineCapture(capture, &tl)
				if err == nil {
					ch.observer.OnSuccess(callCtx, id, tl)
				} else {
					ch.observer.OnFailure(callCtx, id, tl)
				}
			})
			return h
		},
	}
}

func singleOutcome(err *fault.Error) classify.Outcome {
	if err == nil {
		return classify.Outcome{Kind: classify.OutcomeSuccess, Reason: "success"}
	}
	return classify.Outcome{Kind: classify.OutcomeNonRetryable, Reason: err.Kind.String()}
}
