// Package result provides the value-or-error outcome type used by every
// remote call, the asynchronous handle that eventually produces one, and
// combinators that join several handles into a tuple-shaped outcome.
package result

import (
	"code.hybscloud.com/kont"

	"github.com/aponysus/nodecall/fault"
)

var errEmpty = fault.Internal("empty result", nil)

// Result holds exactly one of a value or a *fault.Error.
//
// The zero Result is treated as an Internal failure.
type Result[T any] struct {
	either kont.Either[*fault.Error, T]
	set    bool
}

// Success returns a Result holding v.
func Success[T any](v T) Result[T] {
	return Result[T]{either: kont.Right[*fault.Error, T](v), set: true}
}

// Failure returns a Result holding err translated into the fault taxonomy.
// A nil err is recorded as an Internal failure so a Result is never empty.
func Failure[T any](err error) Result[T] {
	fe := fault.Translate(err)
	if fe == nil {
		fe = fault.Internal("nil error", nil)
	}
	return Result[T]{either: kont.Left[*fault.Error, T](fe), set: true}
}

// From builds a Result from a conventional (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Failure[T](err)
	}
	return Success(v)
}

func (r Result[T]) IsSuccess() bool {
	return r.set && r.either.IsRight()
}

func (r Result[T]) HasError() bool {
	return !r.IsSuccess()
}

// Value returns the success value, or the zero value of T on failure.
func (r Result[T]) Value() T {
	if !r.set {
		var zero T
		return zero
	}
	v, _ := r.either.GetRight()
	return v
}

// Err returns the failure, or nil on success.
func (r Result[T]) Err() *fault.Error {
	if !r.set {
		return errEmpty
	}
	if e, ok := r.either.GetLeft(); ok {
		if e == nil {
			return errEmpty
		}
		return e
	}
	return nil
}

// Unwrap returns the conventional (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if err := r.Err(); err != nil {
		var zero T
		return zero, err
	}
	return r.Value(), nil
}

// Either exposes the underlying Left/Right value.
func (r Result[T]) Either() kont.Either[*fault.Error, T] {
	if !r.set {
		return kont.Left[*fault.Error, T](errEmpty)
	}
	return r.either
}

func (r Result[T]) String() string {
	if err := r.Err(); err != nil {
		return "Failure(" + err.Error() + ")"
	}
	return "Success"
}
