package scope

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type scopedKey struct{}

// WithScoped returns a ctx whose calls resolve strategies from scoped before
// the global Context.
func WithScoped(ctx context.Context, scoped *Context) context.Context {
	return context.WithValue(ctx, scopedKey{}, scoped)
}

func ScopedFromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(scopedKey{}).(*Context)
	return c, ok && c != nil
}

// Provider yields the effective Context for a call.
type Provider interface {
	Context(ctx context.Context) *Context
}

// GlobalProvider overlays the request's scoped Context, if any, on Global.
// A nil Global uses Default().
type GlobalProvider struct {
	Global *Context
}

func (p GlobalProvider) Context(ctx context.Context) *Context {
	global := p.Global
	if global == nil {
		global = Default()
	}
	scoped, _ := ScopedFromContext(ctx)
	return Overlay(global, scoped)
}

var (
	globalCtx  *Context
	globalOnce sync.Once
	globalSet  atomic.Bool
)

// Default returns the process-wide global Context, built with only the
// necessary defaults unless SetGlobal ran first.
func Default() *Context {
	globalOnce.Do(func() {
		if globalCtx == nil {
			globalCtx = NewGlobal(nil, nil)
		}
		globalSet.Store(true)
	})
	return globalCtx
}

// SetGlobal installs c as the process-wide global Context. It must run
// before the first Default call; later calls are ignored with a warning.
func SetGlobal(c *Context) {
	if c == nil {
		return
	}
	if globalSet.Load() {
		zap.L().Warn("scope: SetGlobal called after global context already initialized; ignoring",
			zap.String("scope", c.Name()))
		return
	}
	globalOnce.Do(func() {
		if !c.IsGlobal() {
			c = NewGlobal(c.Strategies(), c.ConfigMap())
		}
		globalCtx = c
		globalSet.Store(true)
	})
}
