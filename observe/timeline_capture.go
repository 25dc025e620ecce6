package observe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aponysus/nodecall/fault"
)

// TimelineCapture holds a captured timeline after the call completes.
//
// Timeline() returns nil until the call completes (or if capture is not used).
type TimelineCapture struct {
	tl   atomic.Pointer[Timeline]
	done chan struct{}
	once sync.Once
}

// Timeline returns the captured timeline, or nil if not yet populated.
func (c *TimelineCapture) Timeline() *Timeline {
	if c == nil {
		return nil
	}
	return c.tl.Load()
}

// Wait blocks until the timeline is stored or ctx ends.
func (c *TimelineCapture) Wait(ctx context.Context) (*Timeline, bool) {
	if c == nil {
		return nil, false
	}
	select {
	case <-c.done:
		return c.tl.Load(), true
	case <-ctx.Done():
		return nil, false
	}
}

func (c *TimelineCapture) store(tl *Timeline) {
	if c == nil || tl == nil {
		return
	}
	c.once.Do(func() {
		c.tl.Store(tl)
		if c.done != nil {
			close(c.done)
		}
	})
}

type timelineCaptureKey struct{}

// RecordTimeline returns a derived context that requests timeline capture for
// the next call, plus a holder for retrieving the completed timeline.
func RecordTimeline(ctx context.Context) (context.Context, *TimelineCapture) {
	if ctx == nil {
		ctx = context.Background()
	}
	capture := &TimelineCapture{done: make(chan struct{})}
	return context.WithValue(ctx, timelineCaptureKey{}, capture), capture
}

// TimelineCaptureFromContext returns the capture, if requested.
func TimelineCaptureFromContext(ctx context.Context) (*TimelineCapture, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(timelineCaptureKey{}).(*TimelineCapture)
	return v, ok && v != nil
}

// WithoutTimelineCapture hides any capture from nested calls made with the
// returned context.
func WithoutTimelineCapture(ctx context.Context) context.Context {
	return context.WithValue(ctx, timelineCaptureKey{}, (*TimelineCapture)(nil))
}

// Recorder accumulates the attempts of one call. The chain creates it and
// places it in the call context; strategies that repeat a call report each
// attempt to it.
type Recorder struct {
	mu       sync.Mutex
	tl       Timeline
	observer Observer
	finished bool
}

func NewRecorder(id, callID, scope string, start time.Time, obs Observer) *Recorder {
	if obs == nil {
		obs = NoopObserver{}
	}
	return &Recorder{
		tl:       Timeline{ID: id, CallID: callID, Scope: scope, Start: start},
		observer: obs,
	}
}

type recorderKey struct{}

func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

func RecorderFromContext(ctx context.Context) (*Recorder, bool) {
	r, ok := ctx.Value(recorderKey{}).(*Recorder)
	return r, ok && r != nil
}

// Attempt appends rec and forwards it to the observer. Attempts reported
// after Finish are dropped.
func (r *Recorder) Attempt(ctx context.Context, rec AttemptRecord) {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.tl.Attempts = append(r.tl.Attempts, rec)
	id := r.tl.ID
	r.mu.Unlock()
	r.observer.OnAttempt(ctx, id, rec)
}

// Attempts returns the number of attempts recorded so far.
func (r *Recorder) Attempts() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tl.Attempts)
}

// Finish seals the timeline. Calling it again returns the sealed timeline.
func (r *Recorder) Finish(end time.Time, final *fault.Error) Timeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finished {
		r.finished = true
		r.tl.End = end
		r.tl.FinalErr = final
	}
	tl := r.tl
	tl.Attempts = append([]AttemptRecord(nil), r.tl.Attempts...)
	return tl
}

// StoreTimelineCapture publishes the finished timeline into the capture.
func StoreTimelineCapture(capture *TimelineCapture, tl *Timeline) {
	if capture == nil {
		return
	}
	capture.store(tl)
}
