package retry

import (
	"time"

	"github.com/aponysus/nodecall/classify"
	"github.com/aponysus/nodecall/internal"
	"github.com/aponysus/nodecall/policy"
)

// Option configures a Strategy.
type Option func(*Strategy)

// WithMaxAttempts bounds the total number of attempts. Values below one
// mean a single attempt.
func WithMaxAttempts(n int) Option {
	return func(s *Strategy) {
		if n < 1 {
			n = 1
		}
		s.maxAttempts = n
	}
}

// WithInterval sets the wait between attempts. Negative values mean no wait.
func WithInterval(d time.Duration) Option {
	return func(s *Strategy) {
		if d < 0 {
			d = 0
		}
		s.interval = d
	}
}

// WithClassifier replaces the classifier that decides which failures are
// retried. A nil classifier is ignored.
func WithClassifier(c classify.Classifier) Option {
	return func(s *Strategy) {
		if internal.IsTypedNil(c) {
			return
		}
		s.classifier = c
	}
}

// WithScheduler replaces time.AfterFunc as the way the next attempt is
// scheduled.
func WithScheduler(sched Scheduler) Option {
	return func(s *Strategy) {
		if sched != nil {
			s.schedule = sched
		}
	}
}

// WithClock sets the clock used to timestamp attempts.
func WithClock(now func() time.Time) Option {
	return func(s *Strategy) {
		if now != nil {
			s.clock = now
		}
	}
}

// FromPolicy builds a Strategy from a normalized retry policy, resolving the
// classifier by name in reg. An empty name means classify.Transient; a name
// reg does not know is a *policy.NormalizeError.
func FromPolicy(p policy.RetryPolicy, reg *classify.Registry) (*Strategy, error) {
	if reg == nil {
		reg = classify.NewRegistry()
	}
	c, ok := reg.Resolve(p.ClassifierName)
	if !ok {
		return nil, &policy.NormalizeError{Field: "retry.classifier_name", Value: p.ClassifierName}
	}
	return New(
		WithMaxAttempts(p.MaxAttempts),
		WithInterval(p.Interval),
		WithClassifier(c),
	), nil
}
