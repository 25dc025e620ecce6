package transport

import (
	"context"

	"google.golang.org/grpc"

	"github.com/aponysus/nodecall/chain"
	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/result"
)

// UnaryFunc is the shape of a generated gRPC client method.
type UnaryFunc[Req, Resp any] func(ctx context.Context, req Req, opts ...grpc.CallOption) (Resp, error)

// Unary runs a stub method on its own goroutine. gRPC status errors are
// translated into the fault taxonomy.
func Unary[Req, Resp any](invoke UnaryFunc[Req, Resp], opts ...grpc.CallOption) chain.RemoteCall[Req, Resp] {
	return func(ctx context.Context, req Req) *result.Handle[Resp] {
		return result.Go(func() result.Result[Resp] {
			resp, err := invoke(ctx, req, opts...)
			return result.From(resp, err)
		})
	}
}

// StatusFunc extracts the node's commit result code and message from a
// submission response.
type StatusFunc[Resp any] func(resp Resp) (code int32, message string)

// Commit is Unary for submissions: a response carrying a non-zero commit
// code fails with ServerRejected.
func Commit[Req, Resp any](invoke UnaryFunc[Req, Resp], status StatusFunc[Resp], opts ...grpc.CallOption) chain.RemoteCall[Req, Resp] {
	return func(ctx context.Context, req Req) *result.Handle[Resp] {
		return result.Go(func() result.Result[Resp] {
			resp, err := invoke(ctx, req, opts...)
			if err != nil {
				return result.Failure[Resp](err)
			}
			if code, msg := status(resp); code != 0 {
				return result.Failure[Resp](&fault.Rejection{Code: code, Message: msg})
			}
			return result.Success(resp)
		})
	}
}
