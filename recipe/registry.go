package recipe

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// PassSpec is what a Factory receives for one pass (or for the graph when Pass is empty).
type PassSpec struct {
	Pass   string
	Kind   string
	Params *Params
}

// Factory creates the hook value of a pass kind. The returned value may implement any
// of the graph hook interfaces.
type Factory func(ctx context.Context, spec PassSpec) (any, error)

// Registry maps pass kinds to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{factories: make(map[string]Factory), logger: logger}
}

// Register adds f under kind. A kind that is already registered keeps its first factory;
// the duplicate is logged and Register reports false.
func (r *Registry) Register(kind string, f Factory) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		r.logger.Warn("pass kind already registered, keeping the first", "kind", kind)
		return false
	}
	r.factories[kind] = f
	return true
}

func (r *Registry) Lookup(kind string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
