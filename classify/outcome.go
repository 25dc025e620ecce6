package classify

import "github.com/aponysus/nodecall/fault"

// OutcomeKind describes the retry decision for an attempt result.
type OutcomeKind int

const (
	OutcomeUnknown OutcomeKind = iota
	OutcomeSuccess
	OutcomeRetryable
	OutcomeNonRetryable
	OutcomeAbort
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeNonRetryable:
		return "non_retryable"
	case OutcomeAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Outcome describes the classification of an attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// Classifier decides whether a failed attempt is worth repeating.
// A nil err is a success.
type Classifier interface {
	Classify(err *fault.Error) Outcome
}

// Func adapts a plain function to Classifier.
type Func func(err *fault.Error) Outcome

func (f Func) Classify(err *fault.Error) Outcome { return f(err) }
