// Package nodecall issues calls through a process-wide client.
package nodecall

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/aponysus/nodecall/chain"
	"github.com/aponysus/nodecall/client"
	"github.com/aponysus/nodecall/result"
	"github.com/aponysus/nodecall/scope"
)

var (
	defaultClient *client.Client
	defaultOnce   sync.Once
	initialized   atomic.Bool
)

// Init sets the process-wide client and installs its Context as the
// global scope. It must be called before Default, Do or Async are used.
func Init(c *client.Client) {
	if c == nil {
		return
	}
	if initialized.Load() {
		zap.L().Warn("nodecall: Init called after default client already initialized; ignoring")
		return
	}
	defaultOnce.Do(func() {
		defaultClient = c
		scope.SetGlobal(c.Context())
		initialized.Store(true)
	})
}

// Default returns the process-wide client. Without Init it has only the
// default strategies and no channel.
func Default() *client.Client {
	defaultOnce.Do(func() {
		c, err := client.NewBuilder().Build()
		if err != nil {
			zap.L().Error("nodecall: building default client", zap.Error(err))
			return
		}
		defaultClient = c
		initialized.Store(true)
	})
	return defaultClient
}

// Async issues raw under id through the default client.
func Async[Req, Resp any](ctx context.Context, id string, raw chain.RemoteCall[Req, Resp], req Req) *result.Handle[Resp] {
	return client.Bind(Default(), id, raw).Async(ctx, req)
}

// Do is Async followed by a wait bounded by ctx.
func Do[Req, Resp any](ctx context.Context, id string, raw chain.RemoteCall[Req, Resp], req Req) result.Result[Resp] {
	return client.Bind(Default(), id, raw).Call(ctx, req)
}
