package strategy_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc/connectivity"

	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/observe"
	"github.com/aponysus/nodecall/policy"
	"github.com/aponysus/nodecall/result"
	"github.com/aponysus/nodecall/strategy"
)

func echo(id string) strategy.Invocation {
	return strategy.Invocation{
		ID: id,
		Call: func(_ context.Context, req any) *result.Handle[any] {
			return result.Value[any](req)
		},
	}
}

func failing(id string, err *fault.Error) strategy.Invocation {
	return strategy.Invocation{
		ID: id,
		Call: func(context.Context, any) *result.Handle[any] {
			return result.Failed[any](err)
		},
	}
}

func TestCapability_StringRoundTrip(t *testing.T) {
	for c := strategy.CapConnect; c <= strategy.CapRetry; c++ {
		got, ok := strategy.ParseCapability(c.String())
		require.True(t, ok, c.String())
		assert.Equal(t, c, got)
	}
	_, ok := strategy.ParseCapability("hedge")
	assert.False(t, ok)
	assert.Equal(t, "unknown", strategy.Capability(99).String())
}

func TestGuard(t *testing.T) {
	panicky := strategy.Invocation{
		ID: "block.get",
		Call: func(context.Context, any) *result.Handle[any] {
			panic("boom")
		},
	}
	res := strategy.Guard(panicky).Call(context.Background(), nil).Get()
	require.True(t, res.HasError())
	assert.Equal(t, fault.KindInternal, res.Err().Kind)

	nilHandle := strategy.Invocation{
		ID:   "block.get",
		Call: func(context.Context, any) *result.Handle[any] { return nil },
	}
	res = strategy.Guard(nilHandle).Call(context.Background(), nil).Get()
	assert.Equal(t, fault.KindInternal, res.Err().Kind)

	res = strategy.Guard(strategy.Invocation{ID: "unbound"}).Call(context.Background(), nil).Get()
	assert.Equal(t, fault.KindInternal, res.Err().Kind)

	res = strategy.Guard(echo("echo")).Call(context.Background(), 7).Get()
	require.True(t, res.IsSuccess())
	assert.Equal(t, 7, res.Value())
}

func TestNew_CustomStrategy(t *testing.T) {
	var seen []string
	s := strategy.New(strategy.CapTrace, 450, func(next strategy.Invocation) strategy.Invocation {
		return strategy.Invocation{
			ID: next.ID,
			Call: func(ctx context.Context, req any) *result.Handle[any] {
				seen = append(seen, next.ID)
				return next.Call(ctx, req)
			},
		}
	})
	assert.Equal(t, strategy.CapTrace, s.Capability())
	assert.Equal(t, 450, s.Priority())

	inv := s.Apply(echo("peers.list"))
	assert.Equal(t, "peers.list", inv.ID)
	inv.Call(context.Background(), nil).Get()
	assert.Equal(t, []string{"peers.list"}, seen)

	passthrough := strategy.New(strategy.CapTrace, 1, nil)
	assert.Equal(t, "x", passthrough.Apply(echo("x")).ID)
}

func TestTimeout_ResolvesBeforeSlowCall(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var innerCtx context.Context
	slow := strategy.Invocation{
		ID: "tx.commit",
		Call: func(ctx context.Context, req any) *result.Handle[any] {
			innerCtx = ctx
			return result.Go(func() result.Result[any] {
				<-release
				return result.Success[any]("late")
			})
		},
	}

	start := time.Now()
	res := strategy.NewTimeout(20*time.Millisecond).Apply(slow).Call(context.Background(), nil).Get()
	require.True(t, res.HasError())
	assert.Equal(t, fault.KindTimeout, res.Err().Kind)
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-innerCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("attempt context was not cancelled")
	}
}

func TestTimeout_FastCallWins(t *testing.T) {
	res := strategy.NewTimeout(time.Second).Apply(echo("status")).Call(context.Background(), "ok").Get()
	require.True(t, res.IsSuccess())
	assert.Equal(t, "ok", res.Value())
}

func TestNewTimeout_DefaultsNonPositive(t *testing.T) {
	assert.Equal(t, strategy.DefaultTimeout, strategy.NewTimeout(0).Duration())
	assert.Equal(t, strategy.DefaultTimeout, strategy.NewTimeout(-time.Second).Duration())
	assert.Equal(t, 2*time.Second, strategy.NewTimeout(2*time.Second).Duration())
}

type fakeConn struct {
	mu        sync.Mutex
	state     connectivity.State
	next      []connectivity.State
	connected int
}

func (f *fakeConn) GetState() connectivity.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) Connect() {
	f.mu.Lock()
	f.connected++
	f.mu.Unlock()
}

func (f *fakeConn) WaitForStateChange(ctx context.Context, _ connectivity.State) bool {
	f.mu.Lock()
	if len(f.next) > 0 {
		f.state = f.next[0]
		f.next = f.next[1:]
		f.mu.Unlock()
		return true
	}
	f.mu.Unlock()
	<-ctx.Done()
	return false
}

func TestConnect_NonBlockingPassesThrough(t *testing.T) {
	c := strategy.NonBlockingConnect()
	assert.False(t, c.Blocking())

	conn := &fakeConn{state: connectivity.TransientFailure}
	ctx := strategy.WithConnectivity(context.Background(), conn)
	res := c.Apply(echo("status")).Call(ctx, 1).Get()
	require.True(t, res.IsSuccess())
	assert.Zero(t, conn.connected)
}

func TestConnect_BlockingWaitsForReady(t *testing.T) {
	conn := &fakeConn{
		state: connectivity.Idle,
		next:  []connectivity.State{connectivity.Connecting, connectivity.Ready},
	}
	ctx := strategy.WithConnectivity(context.Background(), conn)

	res := strategy.BlockingConnect().Apply(echo("status")).Call(ctx, 1).Get()
	require.True(t, res.IsSuccess())
	assert.Equal(t, 1, conn.connected)
}

func TestConnect_BlockingShutdownFails(t *testing.T) {
	conn := &fakeConn{state: connectivity.Shutdown}
	ctx := strategy.WithConnectivity(context.Background(), conn)

	res := strategy.BlockingConnect().Apply(echo("status")).Call(ctx, 1).Get()
	require.True(t, res.HasError())
	assert.Equal(t, fault.KindConnectionFailure, res.Err().Kind)
}

func TestConnect_BlockingHonoursDeadline(t *testing.T) {
	conn := &fakeConn{state: connectivity.Connecting}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ctx = strategy.WithConnectivity(ctx, conn)

	res := strategy.BlockingConnect().Apply(echo("status")).Call(ctx, 1).Get()
	require.True(t, res.HasError())
	assert.Equal(t, fault.KindTimeout, res.Err().Kind)
}

func TestConnect_BlockingWithoutChannelDispatches(t *testing.T) {
	res := strategy.BlockingConnect().Apply(echo("status")).Call(context.Background(), 1).Get()
	assert.True(t, res.IsSuccess())
}

func TestSecurity(t *testing.T) {
	opts, err := strategy.PlainText().DialOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	creds, err := strategy.TransportSecurity("node.example", "", "", "").TransportCredentials()
	require.NoError(t, err)
	assert.Equal(t, "tls", creds.Info().SecurityProtocol)

	dir := t.TempDir()
	badCA := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(badCA, []byte("not a certificate"), 0o600))
	_, err = strategy.TransportSecurity("node.example", badCA, "", "").DialOptions()
	assert.ErrorContains(t, err, "no certificates found")

	_, err = strategy.TransportSecurity("", filepath.Join(dir, "missing.pem"), "", "").DialOptions()
	assert.ErrorContains(t, err, "read ca cert")

	res := strategy.PlainText().Apply(echo("status")).Call(context.Background(), 3).Get()
	assert.Equal(t, 3, res.Value())
}

func TestTrace_RecordsSpanPerAttempt(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tr := strategy.NewTrace(tp.Tracer("test"))

	ctx := observe.WithAttemptInfo(context.Background(), observe.AttemptInfo{ID: "tx.commit", Attempt: 1, CallID: "c1"})
	tr.Apply(echo("tx.commit")).Call(ctx, nil).Get()
	tr.Apply(failing("tx.commit", fault.Rejected(fault.StatusNonceTooLow, ""))).Call(ctx, nil).Get()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "tx.commit", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("rpc.attempt", 1))

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("rpc.error_kind", "server_rejected"))
	require.Len(t, spans[1].Events(), 1)
}

func TestDefaults(t *testing.T) {
	d := strategy.Defaults()
	for _, c := range strategy.Necessary {
		s, ok := d[c]
		require.True(t, ok, c.String())
		assert.Equal(t, c, s.Capability())
	}
	assert.Equal(t, strategy.DefaultTimeout, d[strategy.CapTimeout].(*strategy.Timeout).Duration())
	assert.False(t, d[strategy.CapConnect].(*strategy.Connect).Blocking())
}

func TestFromPolicy(t *testing.T) {
	p := policy.Default()
	p.Connect.Blocking = true
	p.Timeout.Duration = 2 * time.Second
	p.Security = policy.SecurityPolicy{Mode: policy.SecurityTLS, ServerName: "node.example"}

	got := strategy.FromPolicy(p)
	require.Len(t, got, 3)
	assert.True(t, got[0].(*strategy.Connect).Blocking())
	assert.Equal(t, policy.SecurityTLS, got[1].(*strategy.Security).Mode())
	assert.Equal(t, 2*time.Second, got[2].(*strategy.Timeout).Duration())
}
