package transport_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/aponysus/nodecall/chain"
	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/observe"
	"github.com/aponysus/nodecall/retry"
	"github.com/aponysus/nodecall/scope"
	"github.com/aponysus/nodecall/strategy"
	"github.com/aponysus/nodecall/transport"
)

func startNode(t *testing.T) (*scope.Context, grpc.DialOption, *health.Server) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c := scope.NewGlobal(nil, map[string]string{scope.ConfigEndpoint: "passthrough:///bufnet"})
	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return c, dialer, hs
}

func TestDial_RequiresEndpoint(t *testing.T) {
	_, err := transport.Dial(scope.NewGlobal(nil, nil), nil)
	assert.ErrorIs(t, err, transport.ErrNoEndpoint)
}

func TestDialOptions_FromStrategies(t *testing.T) {
	opts, err := transport.DialOptions(scope.NewGlobal(nil, nil))
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	bad := scope.NewGlobal([]strategy.Strategy{
		strategy.TransportSecurity("node", "/does/not/exist.pem", "", ""),
	}, nil)
	_, err = transport.DialOptions(bad)
	assert.ErrorContains(t, err, "security dial options")
}

func TestUnary_SucceedsAndTranslates(t *testing.T) {
	c, dialer, hs := startNode(t)
	hs.SetServingStatus("node", healthpb.HealthCheckResponse_SERVING)

	conn, err := transport.Dial(c, nil, dialer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	check := transport.Unary(healthpb.NewHealthClient(conn).Check)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := check(ctx, &healthpb.HealthCheckRequest{Service: "node"}).Get()
	require.True(t, res.IsSuccess(), "err: %v", res.Err())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, res.Value().GetStatus())

	// Unknown services answer NotFound.
	missing := check(ctx, &healthpb.HealthCheckRequest{Service: "nope"}).Get()
	require.True(t, missing.HasError())
	assert.Equal(t, fault.KindInternal, missing.Err().Kind)
}

func TestCommit_NonZeroCodeIsRejected(t *testing.T) {
	c, dialer, hs := startNode(t)
	hs.SetServingStatus("node", healthpb.HealthCheckResponse_NOT_SERVING)

	conn, err := transport.Dial(c, nil, dialer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	submit := transport.Commit(healthpb.NewHealthClient(conn).Check,
		func(resp *healthpb.HealthCheckResponse) (int32, string) {
			if resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
				return 0, ""
			}
			return 1, "nonce too low"
		})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := submit(ctx, &healthpb.HealthCheckRequest{Service: "node"}).Get()
	require.True(t, res.HasError())
	assert.Equal(t, fault.KindServerRejected, res.Err().Kind)
	assert.Equal(t, fault.StatusNonceTooLow, res.Err().Status)
	assert.Equal(t, "nonce too low", res.Err().Message)

	hs.SetServingStatus("node", healthpb.HealthCheckResponse_SERVING)
	ok := submit(ctx, &healthpb.HealthCheckRequest{Service: "node"}).Get()
	assert.True(t, ok.IsSuccess())
}

type rpcReq struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     uint64            `json:"id"`
}

func jsonrpcServer(t *testing.T, handle func(req rpcReq) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		code, body := handle(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJSONRPC_MethodDecodesResult(t *testing.T) {
	srv := jsonrpcServer(t, func(req rpcReq) (int, string) {
		if req.Method != "wes_getBalance" || len(req.Params) != 1 {
			return http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad params"}}`
		}
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"balance":42}}`
	})

	type balance struct {
		Balance int `json:"balance"`
	}
	get := transport.Method[string, balance](transport.NewJSONRPC(srv.URL), "wes_getBalance")
	res := get(context.Background(), "addr1").Get()
	require.True(t, res.IsSuccess(), "err: %v", res.Err())
	assert.Equal(t, 42, res.Value().Balance)
}

func TestJSONRPC_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		code   int
		body   string
		kind   fault.Kind
		status fault.CommitStatus
	}{
		{"server error", http.StatusBadGateway, ``, fault.KindConnectionFailure, fault.StatusOK},
		{"client error", http.StatusNotFound, ``, fault.KindInvalidRequest, fault.StatusOK},
		{"method not found", http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"no such method"}}`, fault.KindInvalidRequest, fault.StatusOK},
		{"internal", http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"boom"}}`, fault.KindInternal, fault.StatusOK},
		{"named rejection", http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"nonce","data":{"commit_status":"NONCE_TOO_LOW"}}}`, fault.KindServerRejected, fault.StatusNonceTooLow},
		{"coded rejection", http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"funds","data":{"commit_status":6}}}`, fault.KindServerRejected, fault.StatusInsufficientBalance},
		{"garbage", http.StatusOK, `not json`, fault.KindInternal, fault.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := jsonrpcServer(t, func(rpcReq) (int, string) { return tc.code, tc.body })
			err := transport.NewJSONRPC(srv.URL).Call(context.Background(), "wes_sendTransaction", nil, nil)
			require.Error(t, err)
			fe := err.(*fault.Error)
			assert.Equal(t, tc.kind, fe.Kind)
			assert.Equal(t, tc.status, fe.Status)
		})
	}
}

func TestJSONRPC_ConnectionAndDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := transport.NewJSONRPC(url).Call(context.Background(), "wes_blockNumber", nil, nil)
	assert.Equal(t, fault.KindConnectionFailure, fault.KindOf(err))

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(slow.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = transport.NewJSONRPC(slow.URL).Call(ctx, "wes_blockNumber", nil, nil)
	assert.Equal(t, fault.KindTimeout, fault.KindOf(err))
}

func TestJSONRPC_NoParamsSendsEmptyArray(t *testing.T) {
	srv := jsonrpcServer(t, func(req rpcReq) (int, string) {
		if req.Params == nil {
			return http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"params missing"}}`
		}
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0x10"}`
	})
	height := transport.NoParams[string](transport.NewJSONRPC(srv.URL), "wes_blockNumber")
	res := height(context.Background(), struct{}{}).Get()
	require.True(t, res.IsSuccess(), "err: %v", res.Err())
	assert.Equal(t, "0x10", res.Value())
}

func TestUnaryClientInterceptor_RetriesThroughChain(t *testing.T) {
	ch := chain.New(scope.NewGlobal([]strategy.Strategy{
		retry.New(retry.WithMaxAttempts(3), retry.WithInterval(time.Millisecond)),
	}, nil))
	interceptor := transport.UnaryClientInterceptor(ch, nil)

	var attempts atomic.Int32
	invoker := func(context.Context, string, any, any, *grpc.ClientConn, ...grpc.CallOption) error {
		if attempts.Add(1) < 3 {
			return status.Error(codes.Unavailable, "transient failure")
		}
		return nil
	}
	err := interceptor(context.Background(), "/node.Chain/GetBlock", nil, nil, nil, invoker)
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestUnaryClientInterceptor_KeepsStatus(t *testing.T) {
	ch := chain.New(scope.NewGlobal([]strategy.Strategy{
		retry.New(retry.WithMaxAttempts(3), retry.WithInterval(time.Millisecond)),
	}, nil))
	interceptor := transport.UnaryClientInterceptor(ch, nil)

	var attempts atomic.Int32
	invoker := func(context.Context, string, any, any, *grpc.ClientConn, ...grpc.CallOption) error {
		attempts.Add(1)
		return status.Error(codes.InvalidArgument, "bad hash")
	}
	err := interceptor(context.Background(), "/node.Chain/GetBlock", nil, nil, nil, invoker)
	require.Error(t, err)
	assert.Equal(t, fault.KindInvalidRequest, fault.KindOf(err))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestUnaryClientInterceptor_OnChannel(t *testing.T) {
	c, dialer, hs := startNode(t)
	hs.SetServingStatus("node", healthpb.HealthCheckResponse_SERVING)

	ctx, capture := observe.RecordTimeline(context.Background())
	ch := chain.New(c)
	conn, err := transport.Dial(c, nil, dialer, grpc.WithUnaryInterceptor(transport.UnaryClientInterceptor(ch, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "node"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	tl, ok := capture.Wait(context.Background())
	require.True(t, ok)
	assert.Equal(t, "grpc.health.v1.Health/Check", tl.ID)
	assert.Equal(t, 1, ch.Cached())
}
