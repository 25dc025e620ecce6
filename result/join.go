package result

import (
	"sync/atomic"

	"github.com/aponysus/nodecall/fault"
)

type Tuple2[A, B any] struct {
	V1 A
	V2 B
}

type Tuple3[A, B, C any] struct {
	V1 A
	V2 B
	V3 C
}

type Tuple4[A, B, C, D any] struct {
	V1 A
	V2 B
	V3 C
	V4 D
}

// settled is the type-independent view of a handle used by the joins.
type settled interface {
	onSettled(func())
	failure() *fault.Error
}

func (h *Handle[T]) onSettled(f func()) {
	h.OnComplete(func(Result[T]) { f() })
}

func (h *Handle[T]) failure() *fault.Error {
	return h.result().Err()
}

// dispatch invokes a supplier, turning a panic or a missing handle into a
// failed slot.
func dispatch[T any](f func() *Handle[T]) (h *Handle[T]) {
	defer func() {
		if r := recover(); r != nil {
			h = Failed[T](fault.Recover("join supplier", r))
		}
	}()
	if f == nil {
		return Failed[T](fault.Internal("nil join supplier", nil))
	}
	h = f()
	if h == nil {
		return Failed[T](fault.Internal("join supplier returned nil handle", nil))
	}
	return h
}

// whenAll resolves the returned handle with build() once every slot has
// resolved. build runs in the completion callback of the last slot to
// resolve, on whichever goroutine resolved it.
func whenAll[R any](build func() Result[R], slots ...settled) *Handle[R] {
	p := NewPromise[R]()
	var pending atomic.Int32
	pending.Store(int32(len(slots)))
	for _, s := range slots {
		s.onSettled(func() {
			if pending.Add(-1) == 0 {
				p.Resolve(build())
			}
		})
	}
	return p.h
}

// firstFailure returns the failure of the lowest-index failed slot.
func firstFailure(slots ...settled) *fault.Error {
	for _, s := range slots {
		if err := s.failure(); err != nil {
			return err
		}
	}
	return nil
}

// Join2 dispatches both suppliers in order, then resolves with both values
// or with the failure of the lowest-index failed slot.
func Join2[A, B any](f1 func() *Handle[A], f2 func() *Handle[B]) *Handle[Tuple2[A, B]] {
	h1 := dispatch(f1)
	h2 := dispatch(f2)
	return whenAll(func() Result[Tuple2[A, B]] {
		if err := firstFailure(h1, h2); err != nil {
			return Failure[Tuple2[A, B]](err)
		}
		return Success(Tuple2[A, B]{
			V1: h1.result().Value(),
			V2: h2.result().Value(),
		})
	}, h1, h2)
}

// Join3 is Join2 for three suppliers.
func Join3[A, B, C any](f1 func() *Handle[A], f2 func() *Handle[B], f3 func() *Handle[C]) *Handle[Tuple3[A, B, C]] {
	h1 := dispatch(f1)
	h2 := dispatch(f2)
	h3 := dispatch(f3)
	return whenAll(func() Result[Tuple3[A, B, C]] {
		if err := firstFailure(h1, h2, h3); err != nil {
			return Failure[Tuple3[A, B, C]](err)
		}
		return Success(Tuple3[A, B, C]{
			V1: h1.result().Value(),
			V2: h2.result().Value(),
			V3: h3.result().Value(),
		})
	}, h1, h2, h3)
}

// Join4 is Join2 for four suppliers.
func Join4[A, B, C, D any](
	f1 func() *Handle[A],
	f2 func() *Handle[B],
	f3 func() *Handle[C],
	f4 func() *Handle[D],
) *Handle[Tuple4[A, B, C, D]] {
	h1 := dispatch(f1)
	h2 := dispatch(f2)
	h3 := dispatch(f3)
	h4 := dispatch(f4)
	return whenAll(func() Result[Tuple4[A, B, C, D]] {
		if err := firstFailure(h1, h2, h3, h4); err != nil {
			return Failure[Tuple4[A, B, C, D]](err)
		}
		return Success(Tuple4[A, B, C, D]{
			V1: h1.result().Value(),
			V2: h2.result().Value(),
			V3: h3.result().Value(),
			V4: h4.result().Value(),
		})
	}, h1, h2, h3, h4)
}

// Seq2 combines results that are already available.
func Seq2[A, B any](r1 Result[A], r2 Result[B]) Result[Tuple2[A, B]] {
	return Join2(completed(r1), completed(r2)).Get()
}

func Seq3[A, B, C any](r1 Result[A], r2 Result[B], r3 Result[C]) Result[Tuple3[A, B, C]] {
	return Join3(completed(r1), completed(r2), completed(r3)).Get()
}

func Seq4[A, B, C, D any](r1 Result[A], r2 Result[B], r3 Result[C], r4 Result[D]) Result[Tuple4[A, B, C, D]] {
	return Join4(completed(r1), completed(r2), completed(r3), completed(r4)).Get()
}

func completed[T any](r Result[T]) func() *Handle[T] {
	return func() *Handle[T] { return Completed(r) }
}
