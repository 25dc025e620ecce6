package chain

import (
	"context"
	"fmt"

	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/result"
	"github.com/aponysus/nodecall/strategy"
)

// RemoteCall is one logical operation exposed by a transport.
type RemoteCall[Req, Resp any] func(ctx context.Context, req Req) *result.Handle[Resp]

// Erase adapts a typed remote call to the untyped Invocation strategies
// decorate. A request of the wrong type fails with InvalidRequest.
func Erase[Req, Resp any](id string, raw RemoteCall[Req, Resp]) strategy.Invocation {
	if raw == nil {
		return strategy.Invocation{ID: id}
	}
	return strategy.Invocation{
		ID: id,
		Call: func(ctx context.Context, req any) *result.Handle[any] {
			var typed Req
			if req != nil {
				v, ok := req.(Req)
				if !ok {
					return result.Failed[any](fault.InvalidRequest(fmt.Sprintf("%s: request type %T, want %T", id, req, typed), nil))
				}
				typed = v
			}
			h := raw(ctx, typed)
			if h == nil {
				return nil
			}
			return result.Erase(h)
		},
	}
}

// Bind returns inv as a typed RemoteCall.
func Bind[Req, Resp any](inv strategy.Invocation) RemoteCall[Req, Resp] {
	return func(ctx context.Context, req Req) *result.Handle[Resp] {
		return result.Cast[Resp](inv.Call(ctx, req))
	}
}

// Wrap decorates raw with c under the identity id.
func Wrap[Req, Resp any](c *Chain, id string, raw RemoteCall[Req, Resp], opts ...DecorateOption) RemoteCall[Req, Resp] {
	return Bind[Req, Resp](c.Decorate(Erase(id, raw), opts...))
}
