package classify

import (
	"sort"
	"strings"
	"sync"

	"github.com/aponysus/nodecall/internal"
)

// Registry maps names to classifiers so declarative retry settings can refer
// to them. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Classifier
}

// NewRegistry returns a registry preloaded with the built-in classifiers.
func NewRegistry() *Registry {
	r := &Registry{m: make(map[string]Classifier)}
	RegisterBuiltins(r)
	return r
}

// Register associates name with c. Empty names and nil classifiers are ignored.
func (r *Registry) Register(name string, c Classifier) {
	if r == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" || internal.IsTypedNil(c) {
		return
	}

	r.mu.Lock()
	if r.m == nil {
		r.m = make(map[string]Classifier)
	}
	r.m[name] = c
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Classifier, bool) {
	if r == nil {
		return nil, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}

	r.mu.RLock()
	c, ok := r.m[name]
	r.mu.RUnlock()
	return c, ok && c != nil
}

// Resolve returns the classifier registered under name, or Transient when
// name is empty or unknown. The second result reports whether name was found.
func (r *Registry) Resolve(name string) (Classifier, bool) {
	if c, ok := r.Get(name); ok {
		return c, true
	}
	return Transient{}, strings.TrimSpace(name) == ""
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.m))
	for n := range r.m {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
