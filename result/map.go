package result

import (
	"fmt"

	"github.com/aponysus/nodecall/fault"
)

// Map returns a handle resolving to f applied to h's value. Failures pass
// through unchanged; a panic in f becomes an Internal failure.
func Map[T, U any](h *Handle[T], f func(T) U) *Handle[U] {
	p := NewPromise[U]()
	h.OnComplete(func(r Result[T]) {
		if err := r.Err(); err != nil {
			p.Resolve(Failure[U](err))
			return
		}
		p.Resolve(applyMap(r.Value(), f))
	})
	return p.h
}

func applyMap[T, U any](v T, f func(T) U) (out Result[U]) {
	defer func() {
		if r := recover(); r != nil {
			out = Failure[U](fault.Recover("map continuation", r))
		}
	}()
	return Success(f(v))
}

// FlatMap chains a dependent asynchronous step onto h. Failures pass through
// unchanged; a panic in f or a nil handle from f becomes an Internal failure.
func FlatMap[T, U any](h *Handle[T], f func(T) *Handle[U]) *Handle[U] {
	p := NewPromise[U]()
	h.OnComplete(func(r Result[T]) {
		if err := r.Err(); err != nil {
			p.Resolve(Failure[U](err))
			return
		}
		next, err := applyFlatMap(r.Value(), f)
		if err != nil {
			p.Resolve(Failure[U](err))
			return
		}
		next.OnComplete(func(nr Result[U]) { p.Resolve(nr) })
	})
	return p.h
}

func applyFlatMap[T, U any](v T, f func(T) *Handle[U]) (next *Handle[U], err *fault.Error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = nil, fault.Recover("flatMap continuation", r)
		}
	}()
	next = f(v)
	if next == nil {
		return nil, fault.Internal("flatMap continuation returned nil handle", nil)
	}
	return next, nil
}

// MapErr lets a caller replace a failure with another Result. Successes pass
// through unchanged.
func MapErr[T any](h *Handle[T], f func(*fault.Error) Result[T]) *Handle[T] {
	p := NewPromise[T]()
	h.OnComplete(func(r Result[T]) {
		err := r.Err()
		if err == nil {
			p.Resolve(r)
			return
		}
		p.Resolve(applyMapErr(err, f))
	})
	return p.h
}

func applyMapErr[T any](e *fault.Error, f func(*fault.Error) Result[T]) (out Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = Failure[T](fault.Recover("error continuation", r))
		}
	}()
	return f(e)
}

// Erase converts h to an untyped handle.
func Erase[T any](h *Handle[T]) *Handle[any] {
	return Map(h, func(v T) any { return v })
}

// Cast converts an untyped handle back to T. A value of the wrong type
// becomes an Internal failure.
func Cast[T any](h *Handle[any]) *Handle[T] {
	p := NewPromise[T]()
	h.OnComplete(func(r Result[any]) {
		if err := r.Err(); err != nil {
			p.Resolve(Failure[T](err))
			return
		}
		raw := r.Value()
		if raw == nil {
			var zero T
			p.Resolve(Success(zero))
			return
		}
		v, ok := raw.(T)
		if !ok {
			var zero T
			p.Resolve(Failure[T](fault.Internal(fmt.Sprintf("unexpected response type %T, want %T", raw, zero), nil)))
			return
		}
		p.Resolve(Success(v))
	})
	return p.h
}
