package circuit

import (
	"sort"
	"sync"
)

// Registry holds one breaker per invocation identity.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]CircuitBreaker
	factory  func(id string) CircuitBreaker
}

// NewRegistry creates breakers on first use with factory.
func NewRegistry(factory func(id string) CircuitBreaker) *Registry {
	if factory == nil {
		factory = func(string) CircuitBreaker {
			return NewConsecutiveFailureBreaker(DefaultThreshold, DefaultCooldown)
		}
	}
	return &Registry{
		breakers: make(map[string]CircuitBreaker),
		factory:  factory,
	}
}

// Get returns the breaker for id, creating it if needed.
func (r *Registry) Get(id string) CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[id]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[id]; ok {
		return cb
	}
	cb = r.factory(id)
	r.breakers[id] = cb
	return cb
}

// States reports the current state of every breaker created so far.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]State, len(r.breakers))
	for id, cb := range r.breakers {
		out[id] = cb.State()
	}
	return out
}

// IDs returns the identities with a breaker, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.breakers))
	for id := range r.breakers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
