package transport

import (
	"context"
	"strings"

	"google.golang.org/grpc"

	"github.com/aponysus/nodecall/chain"
	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/result"
	"github.com/aponysus/nodecall/strategy"
)

// DefaultIDFunc maps "/package.Service/Method" to "package.Service/Method".
func DefaultIDFunc(method string) string {
	return strings.TrimPrefix(method, "/")
}

type unaryCall struct {
	method  string
	reply   any
	cc      *grpc.ClientConn
	invoker grpc.UnaryInvoker
	opts    []grpc.CallOption
}

type unaryCallKey struct{}

// UnaryClientInterceptor decorates every unary call on a channel with ch.
// Failures are returned as *fault.Error; the gRPC status of the cause stays
// reachable through status.FromError.
func UnaryClientInterceptor(ch *chain.Chain, idFunc func(method string) string) grpc.UnaryClientInterceptor {
	if idFunc == nil {
		idFunc = DefaultIDFunc
	}
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		inv := ch.Shared(strategy.Invocation{ID: idFunc(method), Call: invokeUnary})

		ctx = context.WithValue(ctx, unaryCallKey{}, &unaryCall{
			method:  method,
			reply:   reply,
			cc:      cc,
			invoker: invoker,
			opts:    opts,
		})
		if cc != nil {
			ctx = strategy.WithConnectivity(ctx, cc)
		}
		if err := inv.Call(ctx, req).GetContext(ctx).Err(); err != nil {
			return err
		}
		return nil
	}
}

func invokeUnary(ctx context.Context, req any) *result.Handle[any] {
	call, ok := ctx.Value(unaryCallKey{}).(*unaryCall)
	if !ok {
		return result.Failed[any](fault.Internal("unary call missing from context", nil))
	}
	return result.Go(func() result.Result[any] {
		err := call.invoker(ctx, call.method, req, call.reply, call.cc, call.opts...)
		return result.From(call.reply, err)
	})
}
