// Package controlplane supplies per-operation policies as scoped Contexts.
package controlplane

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aponysus/nodecall/policy"
	"github.com/aponysus/nodecall/scope"
)

// Provider returns the scoped Context for an operation identity.
//
// Implementations return ErrPolicyNotFound when they have nothing for id;
// callers then use the global Context alone.
type Provider interface {
	ContextFor(ctx context.Context, id string) (*scope.Context, error)
}

// Build turns a policy into the scoped Context named id.
func Build(id string, p policy.Policy, logger *zap.Logger) (*scope.Context, error) {
	strategies, err := scope.PolicyStrategies(p, false, logger)
	if err != nil {
		return nil, fmt.Errorf("controlplane: %s: %w", id, err)
	}
	return scope.NewScoped(id, strategies, nil), nil
}

// StaticProvider serves Contexts built once from an in-process map.
type StaticProvider struct {
	contexts map[string]*scope.Context
	fallback *scope.Context
}

// NewStaticProvider builds a Context for every policy. A non-nil fallback
// is served for identities not in policies.
func NewStaticProvider(policies map[string]policy.Policy, fallback *policy.Policy, logger *zap.Logger) (*StaticProvider, error) {
	p := &StaticProvider{contexts: make(map[string]*scope.Context, len(policies))}
	for id, pol := range policies {
		c, err := Build(id, pol, logger)
		if err != nil {
			return nil, err
		}
		p.contexts[id] = c
	}
	if fallback != nil {
		c, err := Build("default", *fallback, logger)
		if err != nil {
			return nil, err
		}
		p.fallback = c
	}
	return p, nil
}

func (p *StaticProvider) ContextFor(_ context.Context, id string) (*scope.Context, error) {
	if p == nil {
		return nil, ErrPolicyNotFound
	}
	if c, ok := p.contexts[id]; ok {
		return c, nil
	}
	if p.fallback != nil {
		return p.fallback, nil
	}
	return nil, ErrPolicyNotFound
}
