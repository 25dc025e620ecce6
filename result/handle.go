package result

import (
	"context"
	"sync"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/aponysus/nodecall/fault"
)

var serials atomix.Uint32

// Handle is a future for a Result. It resolves exactly once.
//
// Get may be called any number of times; every caller observes the same Result.
type Handle[T any] struct {
	serial uint32
	done   chan struct{}

	mu        sync.Mutex
	res       Result[T]
	resolved  bool
	callbacks []func(Result[T])
}

func newHandle[T any]() *Handle[T] {
	return &Handle[T]{
		serial: serials.Add(1),
		done:   make(chan struct{}),
	}
}

// Promise is the write side of a Handle.
type Promise[T any] struct {
	h *Handle[T]
}

// NewPromise returns an unresolved promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{h: newHandle[T]()}
}

func (p *Promise[T]) Handle() *Handle[T] { return p.h }

// Resolve completes the handle with r. Only the first call has any effect;
// it reports whether this call resolved the handle.
func (p *Promise[T]) Resolve(r Result[T]) bool {
	return p.h.resolve(r)
}

func (p *Promise[T]) Succeed(v T) bool { return p.Resolve(Success(v)) }
func (p *Promise[T]) Fail(err error) bool { return p.Resolve(Failure[T](err)) }

func (h *Handle[T]) resolve(r Result[T]) bool {
	h.mu.Lock()
	if h.resolved {
		h.mu.Unlock()
		return false
	}
	h.res = r
	h.resolved = true
	cbs := h.callbacks
	h.callbacks = nil
	close(h.done)
	h.mu.Unlock()

	for _, cb := range cbs {
		runCallback(cb, r)
	}
	return true
}

func runCallback[T any](cb func(Result[T]), r Result[T]) {
	defer func() {
		_ = recover()
	}()
	cb(r)
}

// Go runs fn on a new goroutine and returns a handle for its Result.
// A panic in fn resolves the handle with an Internal failure.
func Go[T any](fn func() Result[T]) *Handle[T] {
	p := NewPromise[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.Resolve(Failure[T](fault.Recover("async call", r)))
			}
		}()
		p.Resolve(fn())
	}()
	return p.h
}

// Completed returns an already resolved handle.
func Completed[T any](r Result[T]) *Handle[T] {
	h := newHandle[T]()
	h.resolve(r)
	return h
}

// Value returns a handle already resolved with v.
func Value[T any](v T) *Handle[T] {
	return Completed(Success(v))
}

// Failed returns a handle already resolved with err.
func Failed[T any](err error) *Handle[T] {
	return Completed(Failure[T](err))
}

// Serial is a process-unique, monotonically increasing handle number.
func (h *Handle[T]) Serial() uint32 { return h.serial }

// Done is closed once the handle is resolved.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

func (h *Handle[T]) Resolved() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Get blocks until the handle resolves.
func (h *Handle[T]) Get() Result[T] {
	<-h.done
	return h.result()
}

// GetTimeout blocks for at most d. If the handle is still pending it returns
// a Timeout failure; the underlying computation keeps running and a later Get
// observes its real outcome.
func (h *Handle[T]) GetTimeout(d time.Duration) Result[T] {
	if d <= 0 {
		if h.Resolved() {
			return h.result()
		}
		return Failure[T](fault.Timeout("result not ready", nil))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.result()
	case <-timer.C:
		return Failure[T](fault.Timeout("no result within "+d.String(), nil))
	}
}

// GetContext blocks until the handle resolves or ctx ends. An expired deadline
// yields Timeout; cancellation yields Cancelled.
func (h *Handle[T]) GetContext(ctx context.Context) Result[T] {
	select {
	case <-h.done:
		return h.result()
	case <-ctx.Done():
		// Prefer a result that raced with the context.
		if h.Resolved() {
			return h.result()
		}
		return Failure[T](fault.FromContext(ctx, "gave up waiting for result"))
	}
}

// OnComplete registers cb to run with the Result once resolved. Callbacks run
// on the resolving goroutine, or immediately when already resolved. Panics in
// cb are recovered and dropped.
func (h *Handle[T]) OnComplete(cb func(Result[T])) {
	if cb == nil {
		return
	}
	h.mu.Lock()
	if !h.resolved {
		h.callbacks = append(h.callbacks, cb)
		h.mu.Unlock()
		return
	}
	r := h.res
	h.mu.Unlock()
	runCallback(cb, r)
}

func (h *Handle[T]) result() Result[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.res
}
