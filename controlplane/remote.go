package controlplane

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aponysus/nodecall/policy"
	"github.com/aponysus/nodecall/scope"
)

// Source fetches the raw policy for an operation. It must return
// ErrPolicyNotFound when there is none.
type Source interface {
	GetPolicy(ctx context.Context, id string) (policy.Policy, error)
}

// RemoteProvider fetches policies from a Source and caches the Contexts
// built from them.
type RemoteProvider struct {
	source           Source
	cache            *ContextCache
	cacheTTL         time.Duration
	negativeCacheTTL time.Duration
	logger           *zap.Logger
}

type RemoteProviderOption func(*RemoteProvider)

// WithCacheTTL sets the TTL for fetched policies. Default is 1 minute.
func WithCacheTTL(ttl time.Duration) RemoteProviderOption {
	return func(p *RemoteProvider) {
		p.cacheTTL = ttl
	}
}

// WithNegativeCacheTTL sets the TTL for missing policies. Default is 10 seconds.
func WithNegativeCacheTTL(ttl time.Duration) RemoteProviderOption {
	return func(p *RemoteProvider) {
		p.negativeCacheTTL = ttl
	}
}

func WithLogger(l *zap.Logger) RemoteProviderOption {
	return func(p *RemoteProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewRemoteProvider(source Source, opts ...RemoteProviderOption) *RemoteProvider {
	p := &RemoteProvider{
		source:           source,
		cache:            NewContextCache(),
		cacheTTL:         time.Minute,
		negativeCacheTTL: 10 * time.Second,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ContextFor checks the cache before asking the source. Fetch failures are
// not cached.
func (p *RemoteProvider) ContextFor(ctx context.Context, id string) (*scope.Context, error) {
	c, found, negative := p.cache.Get(id)
	if found {
		if negative {
			return nil, ErrPolicyNotFound
		}
		return c, nil
	}

	pol, err := p.source.GetPolicy(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) {
			p.cache.SetMissing(id, p.negativeCacheTTL)
			return nil, ErrPolicyNotFound
		}
		p.logger.Warn("policy fetch failed", zap.String("rpc", id), zap.Error(err))
		return nil, err
	}

	c, err = Build(id, pol, p.logger)
	if err != nil {
		return nil, err
	}
	p.cache.Set(id, c, p.cacheTTL)
	return c, nil
}

// Invalidate drops the cached Context for id.
func (p *RemoteProvider) Invalidate(id string) { p.cache.Invalidate(id) }
