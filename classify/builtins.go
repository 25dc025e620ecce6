package classify

import "github.com/aponysus/nodecall/fault"

// Built-in classifier registry names.
const (
	ClassifierTransient      = "transient"
	ClassifierNever          = "never"
	ClassifierConnectionOnly = "connection_only"
)

// RegisterBuiltins registers core classifiers into reg.
func RegisterBuiltins(reg *Registry) {
	if reg == nil {
		return
	}
	reg.Register(ClassifierTransient, Transient{})
	reg.Register(ClassifierNever, Never{})
	reg.Register(ClassifierConnectionOnly, ConnectionOnly{})
}

var success = Outcome{Kind: OutcomeSuccess, Reason: "success"}

// Transient retries connection failures and timeouts. Server rejections and
// invalid requests are deterministic and never retried; cancellation aborts.
type Transient struct{}

func (Transient) Classify(err *fault.Error) Outcome {
	if err == nil {
		return success
	}
	switch err.Kind {
	case fault.KindConnectionFailure:
		return Outcome{Kind: OutcomeRetryable, Reason: "connection_failure"}
	case fault.KindTimeout:
		return Outcome{Kind: OutcomeRetryable, Reason: "timeout"}
	case fault.KindCancelled:
		return Outcome{Kind: OutcomeAbort, Reason: "cancelled"}
	case fault.KindServerRejected:
		return Outcome{Kind: OutcomeNonRetryable, Reason: "server_rejected_" + err.Status.String()}
	default:
		return Outcome{Kind: OutcomeNonRetryable, Reason: err.Kind.String()}
	}
}

// Never treats every failure as final.
type Never struct{}

func (Never) Classify(err *fault.Error) Outcome {
	if err == nil {
		return success
	}
	if err.Kind == fault.KindCancelled {
		return Outcome{Kind: OutcomeAbort, Reason: "cancelled"}
	}
	return Outcome{Kind: OutcomeNonRetryable, Reason: "retry_disabled"}
}

// ConnectionOnly retries failures to reach the node but not timeouts, for
// submissions where a timed out attempt may already have been accepted.
type ConnectionOnly struct{}

func (ConnectionOnly) Classify(err *fault.Error) Outcome {
	if err != nil && err.Kind == fault.KindTimeout {
		return Outcome{Kind: OutcomeNonRetryable, Reason: "timeout"}
	}
	return Transient{}.Classify(err)
}
