package client

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/aponysus/nodecall/chain"
	"github.com/aponysus/nodecall/controlplane"
	"github.com/aponysus/nodecall/observe"
	"github.com/aponysus/nodecall/result"
	"github.com/aponysus/nodecall/scope"
	"github.com/aponysus/nodecall/strategy"
)

// ScopedName names the Contexts created by Client.Scoped.
const ScopedName = "request"

// Client is safe for concurrent use.
type Client struct {
	global   *scope.Context
	chain    *chain.Chain
	conn     *grpc.ClientConn
	logger   *zap.Logger
	observer observe.Observer
	policies controlplane.Provider
}

func (c *Client) Context() *scope.Context { return c.global }
func (c *Client) Chain() *chain.Chain     { return c.chain }

// Conn returns the channel, or nil when no endpoint was configured.
func (c *Client) Conn() *grpc.ClientConn { return c.conn }

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.logger.Info("closing channel", zap.String("target", c.conn.Target()))
	return c.conn.Close()
}

// Scoped returns a context whose calls use strategies in place of the
// global ones for the same capabilities. Scopes nest: an inner call adds
// to the scope already on ctx.
func (c *Client) Scoped(ctx context.Context, strategies ...strategy.Strategy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := scope.ScopedFromContext(ctx); ok {
		return scope.WithScoped(ctx, existing.With(strategies...))
	}
	return scope.WithScoped(ctx, scope.NewScoped(ScopedName, strategies, nil))
}

func (c *Client) chainOptions() []chain.Option {
	return []chain.Option{chain.WithObserver(c.observer), chain.WithLogger(c.logger)}
}

// Operation is a decorated remote call bound to a Client.
type Operation[Req, Resp any] struct {
	client *Client
	id     string
	raw    chain.RemoteCall[Req, Resp]
	opts   []chain.DecorateOption
	bound  chain.RemoteCall[Req, Resp]
}

// Bind decorates raw with the client's chain under the identity id.
func Bind[Req, Resp any](c *Client, id string, raw chain.RemoteCall[Req, Resp], opts ...chain.DecorateOption) *Operation[Req, Resp] {
	return &Operation[Req, Resp]{
		client: c,
		id:     id,
		raw:    raw,
		opts:   opts,
		bound:  chain.Wrap(c.chain, id, raw, opts...),
	}
}

func (op *Operation[Req, Resp]) ID() string { return op.id }

// Async issues the call. A policy from the client's provider and a scoped
// Context on ctx are overlaid on the global Context, in that order.
func (op *Operation[Req, Resp]) Async(ctx context.Context, req Req) *result.Handle[Resp] {
	if ctx == nil {
		ctx = context.Background()
	}
	c := op.client
	if c.conn != nil {
		ctx = strategy.WithConnectivity(ctx, c.conn)
	}
	perOp := c.policyFor(ctx, op.id)
	scoped, ok := scope.ScopedFromContext(ctx)
	if perOp == nil && !ok {
		return op.bound(ctx, req)
	}
	effective := scope.Overlay(scope.Overlay(c.global, perOp), scoped)
	ch := chain.New(effective, c.chainOptions()...)
	return chain.Wrap(ch, op.id, op.raw, op.opts...)(ctx, req)
}

func (c *Client) policyFor(ctx context.Context, id string) *scope.Context {
	if c.policies == nil {
		return nil
	}
	pc, err := c.policies.ContextFor(ctx, id)
	switch {
	case err == nil:
		return pc
	case errors.Is(err, controlplane.ErrPolicyNotFound):
	default:
		c.logger.Warn("policy lookup failed; using global context", zap.String("rpc", id), zap.Error(err))
	}
	return nil
}

// Call issues the call and waits for it, or for ctx to end.
func (op *Operation[Req, Resp]) Call(ctx context.Context, req Req) result.Result[Resp] {
	if ctx == nil {
		ctx = context.Background()
	}
	return op.Async(ctx, req).GetContext(ctx)
}
