package circuit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/result"
	"github.com/aponysus/nodecall/strategy"
)

// Strategy is the Circuit capability. It sits inside Retry, so every attempt
// consults the breaker for its identity.
type Strategy struct {
	reg    *Registry
	logger *zap.Logger
	clock  func() time.Time
}

type StrategyOption func(*Strategy)

func WithLogger(l *zap.Logger) StrategyOption {
	return func(s *Strategy) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock of breakers created by the strategy.
func WithClock(now func() time.Time) StrategyOption {
	return func(s *Strategy) { s.clock = now }
}

// NewStrategy opens a breaker per identity after threshold consecutive
// transient failures and probes again after cooldown.
func NewStrategy(threshold int, cooldown time.Duration, opts ...StrategyOption) *Strategy {
	s := &Strategy{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.reg = NewRegistry(func(id string) CircuitBreaker {
		cb := NewConsecutiveFailureBreaker(threshold, cooldown)
		if s.clock != nil {
			cb.SetClock(s.clock)
		}
		logger := s.logger
		cb.OnStateChange(func(from, to State) {
			logger.Info("circuit state changed",
				zap.String("rpc", id),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		})
		return cb
	})
	return s
}

func (s *Strategy) Registry() *Registry             { return s.reg }
func (s *Strategy) Capability() strategy.Capability { return strategy.CapCircuit }
func (s *Strategy) Priority() int                   { return strategy.PriorityCircuit }

func (s *Strategy) Apply(next strategy.Invocation) strategy.Invocation {
	cb := s.reg.Get(next.ID)
	return strategy.Invocation{
		ID: next.ID,
		Call: func(ctx context.Context, req any) *result.Handle[any] {
			d := cb.Allow(ctx)
			if !d.Allowed {
				return result.Failed[any](fault.ConnectionFailure(next.ID+": "+d.Reason, ErrCircuitOpen))
			}

			h := next.Call(ctx, req)
			if h == nil {
				cb.Release(ctx)
				return h
			}
			h.OnComplete(func(r result.Result[any]) {
				err := r.Err()
				switch {
				case err == nil:
					cb.RecordSuccess(ctx)
				case err.Transient():
					cb.RecordFailure(ctx)
				case err.Kind == fault.KindCancelled:
					cb.Release(ctx)
				default:
					// The node answered, even if it refused.
					cb.RecordSuccess(ctx)
				}
			})
			return h
		},
	}
}
