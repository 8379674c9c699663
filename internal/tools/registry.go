package tools

import (
	"fmt"
	"sort"
)

// Registry is the closed mapping from function name to descriptor. It is
// built once at startup and never mutated, so lookups need no locking.
type Registry struct {
	tools map[string]*Descriptor
}

// NewRegistry builds a registry from descriptors. Duplicate or unnamed
// descriptors are rejected; the catalog is static and must be coherent
// before the server starts taking calls.
func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	tools := make(map[string]*Descriptor, len(descriptors))
	for _, d := range descriptors {
		if d == nil || d.Name == "" {
			return nil, fmt.Errorf("registry: descriptor without a name")
		}
		if _, exists := tools[d.Name]; exists {
			return nil, fmt.Errorf("registry: duplicate tool %q", d.Name)
		}
		if d.Invoke == nil {
			return nil, fmt.Errorf("registry: tool %q has no invoke function", d.Name)
		}
		tools[d.Name] = d
	}
	return &Registry{tools: tools}, nil
}

// Resolve returns the descriptor for a function name.
func (r *Registry) Resolve(name string) (*Descriptor, bool) {
	d, ok := r.tools[name]
	return d, ok
}

// Names returns the registered tool names, sorted, for diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}
