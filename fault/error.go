package fault

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Error is the structured failure carried by every failed result.
//
// Status is only meaningful when Kind is KindServerRejected.
type Error struct {
	Kind    Kind
	Status  CommitStatus
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	prefix := "nodecall: " + e.Kind.String()
	if e.Kind == KindServerRejected {
		prefix += "(" + e.Status.String() + ")"
	}
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	case e.Message != "":
		return prefix + ": " + e.Message
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	default:
		return prefix
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *Error with the same kind and status. A target with a
// message only matches when the messages are equal too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	if e.Kind == KindServerRejected && t.Status != e.Status {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// Transient reports whether the failure is worth repeating.
func (e *Error) Transient() bool {
	return e != nil && e.Kind.Transient()
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrConnectionFailure = &Error{Kind: KindConnectionFailure}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrCancelled         = &Error{Kind: KindCancelled}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrInternal          = &Error{Kind: KindInternal}
)

// ErrRejected returns a sentinel matching server rejections with status s.
func ErrRejected(s CommitStatus) *Error {
	return &Error{Kind: KindServerRejected, Status: s}
}

func ConnectionFailure(msg string, cause error) *Error {
	return &Error{Kind: KindConnectionFailure, Message: msg, Cause: cause}
}

func Timeout(msg string, cause error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Cause: cause}
}

func Rejected(status CommitStatus, msg string) *Error {
	return &Error{Kind: KindServerRejected, Status: status, Message: msg}
}

func Cancelled(msg string, cause error) *Error {
	return &Error{Kind: KindCancelled, Message: msg, Cause: cause}
}

func InvalidRequest(msg string, cause error) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg, Cause: cause}
}

func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Cause: cause}
}

// Rejection is a structured commit rejection returned by the node for a
// submitted transaction. Transports return it as a plain error.
type Rejection struct {
	Code    int32
	Message string
}

func (r *Rejection) Error() string {
	if r == nil {
		return "<nil>"
	}
	if r.Message == "" {
		return fmt.Sprintf("commit rejected: %s", StatusFromCode(r.Code))
	}
	return fmt.Sprintf("commit rejected: %s: %s", StatusFromCode(r.Code), r.Message)
}

// PanicError carries a recovered panic value and the stack at recovery time.
type PanicError struct {
	Component string
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("nodecall: panic in %s: %v", e.Component, e.Value)
}

// Recover converts a recovered panic value into an Internal error.
// It must be called from the deferred function that called recover.
func Recover(component string, r any) *Error {
	return Internal("panic in "+component, &PanicError{
		Component: component,
		Value:     r,
		Stack:     debug.Stack(),
	})
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe != nil {
		return fe.Kind, true
	}
	return 0, false
}

// StatusOf returns the commit status of a server rejection in err's chain.
func StatusOf(err error) (CommitStatus, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe != nil && fe.Kind == KindServerRejected {
		return fe.Status, true
	}
	return 0, false
}

// IsTransient reports whether err translates to a transient failure.
func IsTransient(err error) bool {
	return Translate(err).Transient()
}
