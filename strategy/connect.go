package strategy

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"

	"github.com/aponysus/nodecall/fault"
	"github.com/aponysus/nodecall/result"
)

// Connectivity is the part of *grpc.ClientConn the connect strategy needs.
type Connectivity interface {
	GetState() connectivity.State
	WaitForStateChange(ctx context.Context, sourceState connectivity.State) bool
	Connect()
}

type connectivityKey struct{}

// WithConnectivity attaches the channel a call will use to ctx.
func WithConnectivity(ctx context.Context, c Connectivity) context.Context {
	return context.WithValue(ctx, connectivityKey{}, c)
}

func ConnectivityFromContext(ctx context.Context) (Connectivity, bool) {
	c, ok := ctx.Value(connectivityKey{}).(Connectivity)
	return c, ok && c != nil
}

// ChannelConfigurer is implemented by strategies that shape the gRPC channel.
type ChannelConfigurer interface {
	DialOptions() ([]grpc.DialOption, error)
}

// Connect controls whether a call waits for the channel to be ready.
type Connect struct {
	blocking bool
}

// NonBlockingConnect dispatches immediately and lets the transport connect lazily.
func NonBlockingConnect() *Connect { return &Connect{} }

// BlockingConnect holds each call until its channel reports Ready.
func BlockingConnect() *Connect { return &Connect{blocking: true} }

func (c *Connect) Blocking() bool         { return c.blocking }
func (c *Connect) Capability() Capability { return CapConnect }
func (c *Connect) Priority() int          { return PriorityConnect }

func (c *Connect) DialOptions() ([]grpc.DialOption, error) {
	return nil, nil
}

func (c *Connect) Apply(next Invocation) Invocation {
	if !c.blocking {
		return next
	}
	return Invocation{
		ID: next.ID,
		Call: func(ctx context.Context, req any) *result.Handle[any] {
			conn, ok := ConnectivityFromContext(ctx)
			if !ok || conn.GetState() == connectivity.Ready {
				return next.Call(ctx, req)
			}
			ready := result.Go(func() result.Result[struct{}] {
				if err := waitReady(ctx, conn); err != nil {
					return result.Failure[struct{}](err)
				}
				return result.Success(struct{}{})
			})
			return result.FlatMap(ready, func(struct{}) *result.Handle[any] {
				return next.Call(ctx, req)
			})
		},
	}
}

func waitReady(ctx context.Context, conn Connectivity) *fault.Error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return fault.ConnectionFailure("channel is shut down", nil)
		}
		if !conn.WaitForStateChange(ctx, state) {
			if err := fault.FromContext(ctx, "waiting for channel to become ready"); err != nil {
				return err
			}
			return fault.ConnectionFailure("channel never became ready", nil)
		}
	}
}
