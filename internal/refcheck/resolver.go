package refcheck

import "github.com/alfredjeanlab/refguard/internal/model"

// Registry maps model names to queryable models.
type Registry interface {
	Lookup(name string) (model.Finder, bool)
}

// RegistryFunc adapts a function to the Registry interface.
type RegistryFunc func(name string) (model.Finder, bool)

func (f RegistryFunc) Lookup(name string) (model.Finder, bool) { return f(name) }

// Resolver turns a declared reference target into a queryable model.
type Resolver struct {
	registry Registry
}

// NewResolver returns a resolver backed by registry. A nil registry resolves
// direct handles only.
func NewResolver(registry Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve returns the model ref points to. Direct handles are used as-is;
// names go through the registry. The returned error wraps
// model.ErrModelNotFound.
func (r *Resolver) Resolve(ref model.Ref) (model.Finder, error) {
	if ref.Model != nil {
		if ref.NilHandle() {
			return nil, model.ErrModelNotFound
		}
		return ref.Model, nil
	}
	if ref.Name != "" && r.registry != nil {
		if m, ok := r.registry.Lookup(ref.Name); ok && m != nil {
			return m, nil
		}
	}
	return nil, model.ErrModelNotFound
}
