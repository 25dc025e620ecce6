// Package scope holds the capability registry a client resolves its
// strategies from, with a process-wide global Context and request-scoped
// overrides.
package scope

import (
	"maps"
	"sort"

	"github.com/aponysus/nodecall/internal"
	"github.com/aponysus/nodecall/strategy"
)

const GlobalName = "global"

// Context maps each capability to at most one strategy and carries string
// configuration. It is immutable; every update returns a new Context.
type Context struct {
	name       string
	global     bool
	strategies map[strategy.Capability]strategy.Strategy
	config     map[string]string
}

// NewGlobal builds the global Context. Later strategies replace earlier ones
// of the same capability, and any necessary capability left unset gets its
// default.
func NewGlobal(strategies []strategy.Strategy, config map[string]string) *Context {
	c := newContext(GlobalName, strategies, config)
	c.global = true
	for capability, s := range strategy.Defaults() {
		if _, ok := c.strategies[capability]; !ok {
			c.strategies[capability] = s
		}
	}
	return c
}

// NewScoped builds an override. Capabilities and keys it leaves unset fall
// through to the global Context when overlaid.
func NewScoped(name string, strategies []strategy.Strategy, config map[string]string) *Context {
	return newContext(name, strategies, config)
}

func newContext(name string, strategies []strategy.Strategy, config map[string]string) *Context {
	c := &Context{
		name:       name,
		strategies: make(map[strategy.Capability]strategy.Strategy, len(strategies)),
		config:     make(map[string]string, len(config)),
	}
	for _, s := range strategies {
		if internal.IsTypedNil(s) {
			continue
		}
		c.strategies[s.Capability()] = s
	}
	maps.Copy(c.config, config)
	return c
}

func (c *Context) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

func (c *Context) IsGlobal() bool { return c != nil && c.global }

func (c *Context) Strategy(capability strategy.Capability) (strategy.Strategy, bool) {
	if c == nil {
		return nil, false
	}
	s, ok := c.strategies[capability]
	return s, ok
}

// Strategies returns the registered strategies from innermost to outermost.
func (c *Context) Strategies() []strategy.Strategy {
	if c == nil {
		return nil
	}
	out := make([]strategy.Strategy, 0, len(c.strategies))
	for _, s := range c.strategies {
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return out[i].Capability() < out[j].Capability()
	})
	return out
}

// Capabilities returns the filled capabilities in ascending order.
func (c *Context) Capabilities() []strategy.Capability {
	if c == nil {
		return nil
	}
	out := make([]strategy.Capability, 0, len(c.strategies))
	for capability := range c.strategies {
		out = append(out, capability)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Context) Config(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.config[key]
	return v, ok
}

// ConfigMap returns a copy of the configuration.
func (c *Context) ConfigMap() map[string]string {
	if c == nil {
		return map[string]string{}
	}
	return maps.Clone(c.config)
}

func (c *Context) clone() *Context {
	if c == nil {
		return &Context{
			strategies: map[strategy.Capability]strategy.Strategy{},
			config:     map[string]string{},
		}
	}
	return &Context{
		name:       c.name,
		global:     c.global,
		strategies: maps.Clone(c.strategies),
		config:     maps.Clone(c.config),
	}
}

// With returns a copy with strategies registered over existing ones.
func (c *Context) With(strategies ...strategy.Strategy) *Context {
	out := c.clone()
	for _, s := range strategies {
		if internal.IsTypedNil(s) {
			continue
		}
		out.strategies[s.Capability()] = s
	}
	return out
}

func (c *Context) WithConfig(key, value string) *Context {
	out := c.clone()
	out.config[key] = value
	return out
}

// Without returns a copy with capability unset. Removing a necessary
// capability from a global Context restores its default instead.
func (c *Context) Without(capability strategy.Capability) *Context {
	out := c.clone()
	delete(out.strategies, capability)
	if out.global {
		if s, ok := strategy.Defaults()[capability]; ok {
			out.strategies[capability] = s
		}
	}
	return out
}

// Overlay resolves every capability and configuration key from scoped
// first and global second.
func Overlay(global, scoped *Context) *Context {
	if scoped == nil {
		return global
	}
	if global == nil {
		return scoped
	}
	out := global.clone()
	out.name = scoped.name
	out.global = false
	maps.Copy(out.strategies, scoped.strategies)
	maps.Copy(out.config, scoped.config)
	return out
}
