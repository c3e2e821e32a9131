// Package odm is a small document-model layer over a store.Store. Models are
// defined against a schema, carry pre-write hook chains, and are registered
// by name so that reference targets can be looked up explicitly.
package odm

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/store"
)

// Registry holds every defined model. It is the explicit name-to-model map
// reference checks resolve against.
type Registry struct {
	store  store.Store
	logger *slog.Logger

	mu      sync.RWMutex
	models  map[string]*Model
	order   []string
	plugins []model.Plugin
}

// NewRegistry returns an empty registry whose models persist to s.
func NewRegistry(s store.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  s,
		logger: logger,
		models: make(map[string]*Model),
	}
}

// Use registers a plugin applied to every model defined afterward. Models
// that already exist are not affected.
func (r *Registry) Use(p model.Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append(r.plugins, p)
}

// Define validates schema, applies global plugins (in Use order) and then
// plugins, and registers the model under name.
func (r *Registry) Define(name string, schema *model.Schema, plugins ...model.Plugin) (*Model, error) {
	if name == "" {
		return nil, fmt.Errorf("define model: name is required")
	}
	if err := model.ValidateSchema(schema); err != nil {
		return nil, fmt.Errorf("define model %s: %w", name, err)
	}

	r.mu.Lock()
	if _, exists := r.models[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("define model %s: already defined", name)
	}
	global := make([]model.Plugin, len(r.plugins))
	copy(global, r.plugins)
	r.mu.Unlock()

	m := newModel(name, schema, r.store, r.logger)
	for _, p := range append(global, plugins...) {
		if err := p(m); err != nil {
			return nil, fmt.Errorf("define model %s: %w", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[name]; exists {
		return nil, fmt.Errorf("define model %s: already defined", name)
	}
	r.models[name] = m
	r.order = append(r.order, name)
	r.logger.Debug("model defined", "model", name, "fields", len(schema.Fields), "hooks", m.hookCount())
	return m, nil
}

// Model returns the model registered under name.
func (r *Registry) Model(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Lookup implements the reference registry used by refcheck.
func (r *Registry) Lookup(name string) (model.Finder, bool) {
	m, ok := r.Model(name)
	if !ok {
		return nil, false
	}
	return m, true
}

// Models returns every registered model in definition order.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Model, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}

// Store returns the store models persist to.
func (r *Registry) Store() store.Store {
	return r.store
}
