package workflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/opsagent/internal/nlp"
)

// Registry binds workflow identifiers to factories. Only identifiers from
// the defined workflow set can be registered; anything else resolves to
// "not implemented".
type Registry struct {
	mu        sync.RWMutex
	factories map[nlp.WorkflowID]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[nlp.WorkflowID]Factory)}
}

// DefaultRegistry registers every handler opsagent ships. build is mapped
// from the BUILD intent but has no handler.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for id, f := range map[nlp.WorkflowID]Factory{
		nlp.WorkflowDeploy:        NewDeploy,
		nlp.WorkflowRollback:      NewRollback,
		nlp.WorkflowDebug:         NewDebug,
		nlp.WorkflowScale:         NewScale,
		nlp.WorkflowLogs:          NewLogs,
		nlp.WorkflowCostAnalysis:  NewCostAnalysis,
		nlp.WorkflowPipelineDebug: NewPipelineDebug,
		nlp.WorkflowClusterHealth: NewClusterHealth,
	} {
		if err := r.Register(id, f); err != nil {
			panic(err)
		}
	}
	return r
}

// Register binds id to f, replacing any earlier binding.
func (r *Registry) Register(id nlp.WorkflowID, f Factory) error {
	if !id.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownWorkflow, id)
	}
	if f == nil {
		return fmt.Errorf("nil factory for %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
	return nil
}

// Unregister removes id. Removing an absent id is a no-op.
func (r *Registry) Unregister(id nlp.WorkflowID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, id)
}

// Lookup returns the factory bound to id.
func (r *Registry) Lookup(id nlp.WorkflowID) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[id]
	return f, ok
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []nlp.WorkflowID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]nlp.WorkflowID, 0, len(r.factories))
	for id := range r.factories {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
