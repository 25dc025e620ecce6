package observe_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aponysus/nodecall/classify"
	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/observe"
)

type recordingObserver struct {
	observe.BaseObserver
	mu       sync.Mutex
	events   []string
	attempts []observe.AttemptRecord
}

func (r *recordingObserver) OnStart(context.Context, string) {
	r.mu.Lock()
	r.events = append(r.events, "start")
	r.mu.Unlock()
}

func (r *recordingObserver) OnAttempt(_ context.Context, _ string, rec observe.AttemptRecord) {
	r.mu.Lock()
	r.events = append(r.events, "attempt")
	r.attempts = append(r.attempts, rec)
	r.mu.Unlock()
}

func (r *recordingObserver) OnFailure(context.Context, string, observe.Timeline) {
	r.mu.Lock()
	r.events = append(r.events, "failure")
	r.mu.Unlock()
}

func TestNoopAndBaseObservers_HandleEvents(t *testing.T) {
	ctx := context.Background()
	rec := observe.AttemptRecord{Attempt: 1}
	tl := observe.Timeline{ID: "op"}

	for _, obs := range []observe.Observer{observe.NoopObserver{}, observe.BaseObserver{}} {
		obs.OnStart(ctx, "op")
		obs.OnAttempt(ctx, "op", rec)
		obs.OnSuccess(ctx, "op", tl)
		obs.OnFailure(ctx, "op", tl)
	}

	assert.True(t, observe.IsNoop(nil))
	assert.True(t, observe.IsNoop(observe.NoopObserver{}))
	assert.True(t, observe.IsNoop(&observe.NoopObserver{}))
	assert.False(t, observe.IsNoop(observe.BaseObserver{}))
}

func TestMulti(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}

	assert.Equal(t, observe.NoopObserver{}, observe.Multi(nil, observe.NoopObserver{}))
	assert.Same(t, a, observe.Multi(nil, a))

	m := observe.Multi(a, observe.NoopObserver{}, b)
	m.OnStart(context.Background(), "op")
	m.OnFailure(context.Background(), "op", observe.Timeline{})

	assert.Equal(t, []string{"start", "failure"}, a.events)
	assert.Equal(t, []string{"start", "failure"}, b.events)
}

func TestRecorder(t *testing.T) {
	obs := &recordingObserver{}
	start := time.Unix(100, 0)
	r := observe.NewRecorder("tx.commit", "call-1", "global", start, obs)

	ctx := observe.WithRecorder(context.Background(), r)
	got, ok := observe.RecorderFromContext(ctx)
	require.True(t, ok)
	require.Same(t, r, got)

	r.Attempt(ctx, observe.AttemptRecord{Attempt: 0, Err: fault.ErrTimeout})
	r.Attempt(ctx, observe.AttemptRecord{Attempt: 1})
	assert.Equal(t, 2, r.Attempts())

	final := fault.Rejected(fault.StatusNonceTooLow, "")
	tl := r.Finish(start.Add(time.Second), final)
	assert.Equal(t, "tx.commit", tl.ID)
	assert.Equal(t, "call-1", tl.CallID)
	assert.Equal(t, time.Second, tl.Duration())
	assert.Len(t, tl.Attempts, 2)
	assert.Same(t, final, tl.FinalErr)

	// Late attempts and a second Finish do not alter the sealed timeline.
	r.Attempt(ctx, observe.AttemptRecord{Attempt: 2})
	again := r.Finish(start.Add(time.Hour), nil)
	assert.Len(t, again.Attempts, 2)
	assert.Equal(t, tl.End, again.End)
	assert.Len(t, obs.attempts, 2)
}

func TestTimelineCapture(t *testing.T) {
	ctx, capture := observe.RecordTimeline(context.Background())
	got, ok := observe.TimelineCaptureFromContext(ctx)
	require.True(t, ok)
	require.Same(t, capture, got)
	assert.Nil(t, capture.Timeline())

	hidden := observe.WithoutTimelineCapture(ctx)
	_, ok = observe.TimelineCaptureFromContext(hidden)
	assert.False(t, ok)

	observe.StoreTimelineCapture(capture, &observe.Timeline{ID: "a"})
	observe.StoreTimelineCapture(capture, &observe.Timeline{ID: "b"})

	tl, ok := capture.Wait(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", tl.ID)
}

func TestAttemptInfo(t *testing.T) {
	_, ok := observe.AttemptFromContext(context.Background())
	assert.False(t, ok)

	ctx := observe.WithAttemptInfo(context.Background(), observe.AttemptInfo{ID: "op", Attempt: 2})
	info, ok := observe.AttemptFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, info.Attempt)
}

func TestLogObserver(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	obs := observe.NewLogObserver(zap.New(core))
	ctx := context.Background()

	obs.OnStart(ctx, "block.get")
	obs.OnAttempt(ctx, "block.get", observe.AttemptRecord{
		Attempt: 1,
		Err:     fault.ErrConnectionFailure,
		Outcome: classify.Outcome{Kind: classify.OutcomeRetryable},
		Wait:    time.Millisecond,
	})
	obs.OnSuccess(ctx, "block.get", observe.Timeline{CallID: "c1"})
	obs.OnFailure(ctx, "block.get", observe.Timeline{CallID: "c2", FinalErr: fault.ErrTimeout})

	require.Equal(t, 4, logs.Len())
	entries := logs.All()
	assert.Equal(t, "rpc attempt", entries[1].Message)
	assert.Equal(t, "retryable", entries[1].ContextMap()["outcome"])

	failures := logs.FilterMessage("rpc call failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, zapcore.WarnLevel, failures[0].Level)
	assert.Equal(t, "timeout", failures[0].ContextMap()["kind"])
	assert.Equal(t, "c2", failures[0].ContextMap()["call_id"])
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := observe.NewMetricsObserver(reg)
	ctx := context.Background()

	obs.OnAttempt(ctx, "tx.commit", observe.AttemptRecord{Err: fault.ErrConnectionFailure})
	obs.OnAttempt(ctx, "tx.commit", observe.AttemptRecord{})
	obs.OnSuccess(ctx, "tx.commit", observe.Timeline{})
	obs.OnFailure(ctx, "tx.commit", observe.Timeline{FinalErr: fault.Rejected(fault.StatusNonceTooLow, "")})

	attempts, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, attempts)

	assert.Equal(t, 1.0, testutil.ToFloat64(obs.Attempts().WithLabelValues("tx.commit", "connection_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.Attempts().WithLabelValues("tx.commit", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.Calls().WithLabelValues("tx.commit", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.Calls().WithLabelValues("tx.commit", "server_rejected")))
	assert.Equal(t, 1, testutil.CollectAndCount(obs.Duration()))
}
