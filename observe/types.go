package observe

import (
	"context"
	"time"

	"github.com/aponysus/nodecall/classify"
	"github.com/aponysus/nodecall/fault"
)

// AttemptRecord describes a single attempt of a call.
type AttemptRecord struct {
	Attempt   int
	StartTime time.Time
	EndTime   time.Time

	Outcome classify.Outcome
	Err     *fault.Error

	Wait time.Duration // interval waited before this attempt
}

// Timeline is the structured record of a single call and all of its attempts.
type Timeline struct {
	ID     string // invocation identity, e.g. "tx.commit"
	CallID string // unique per call
	Scope  string
	Start  time.Time
	End    time.Time

	Attempts []AttemptRecord
	FinalErr *fault.Error
}

func (t Timeline) Duration() time.Duration {
	if t.End.Before(t.Start) {
		return 0
	}
	return t.End.Sub(t.Start)
}

// Observer receives lifecycle callbacks for a single call.
//
// Callbacks may run on any goroutine and must not block.
type Observer interface {
	OnStart(ctx context.Context, id string)
	OnAttempt(ctx context.Context, id string, rec AttemptRecord)
	OnSuccess(ctx context.Context, id string, tl Timeline)
	OnFailure(ctx context.Context, id string, tl Timeline)
}
