package odm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"github.com/alfredjeanlab/refguard/internal/idgen"
	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/store"
)

// Model is a named collection of documents with a schema and a pre-write
// hook chain.
type Model struct {
	name   string
	schema *model.Schema
	store  store.Store
	logger *slog.Logger

	mu    sync.RWMutex
	hooks []model.PreHook
}

var (
	_ model.Finder   = (*Model)(nil)
	_ model.Hookable = (*Model)(nil)
)

func newModel(name string, schema *model.Schema, s store.Store, logger *slog.Logger) *Model {
	return &Model{name: name, schema: schema, store: s, logger: logger}
}

func (m *Model) ModelName() string { return m.name }

func (m *Model) Schema() *model.Schema { return m.schema }

// Pre appends a hook run before every save and update.
func (m *Model) Pre(fn model.PreHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Model) hookCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hooks)
}

// runHooks runs the chain in registration order and stops at the first error.
func (m *Model) runHooks(ctx context.Context, op model.Operation) error {
	m.mu.RLock()
	hooks := make([]model.PreHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// Create builds a new document from fields and saves it. An "_id" entry in
// fields is used as the identifier; otherwise one is generated.
func (m *Model) Create(ctx context.Context, fields map[string]any) (*model.Document, error) {
	var id string
	if raw, ok := fields[model.IDKey]; ok {
		s, ok := raw.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("create %s: %w: %s must be a non-empty string", m.name, model.ErrMalformedID, model.IDKey)
		}
		id = s
	}
	doc := model.NewDocument(id, fields)
	if err := m.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Save inserts doc if it is new and replaces the stored copy otherwise.
// Hooks see the document as given; materialized references are reduced to
// their identifiers only in the stored copy.
func (m *Model) Save(ctx context.Context, doc *model.Document) error {
	if doc == nil {
		return errors.New("save: nil document")
	}
	if doc.IsNew() && doc.ID == "" {
		id, err := idgen.ForModel(m.name)
		if err != nil {
			return err
		}
		doc.ID = id
	}

	if err := m.runHooks(ctx, model.SaveOp{Doc: doc}); err != nil {
		return err
	}

	stored := doc.Clone()
	m.flattenReferences(stored)

	var err error
	if doc.IsNew() {
		err = m.store.Insert(ctx, m.name, stored)
	} else {
		err = m.store.Replace(ctx, m.name, stored)
	}
	if err != nil {
		return fmt.Errorf("save %s %s: %w", m.name, doc.ID, err)
	}
	doc.CreatedAt, doc.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	doc.MarkPersisted()
	return nil
}

// UpdateOne runs hooks against the operator maps and then applies them to the
// document with the given id.
func (m *Model) UpdateOne(ctx context.Context, id string, upd model.Update) (*model.Document, error) {
	if len(upd) == 0 {
		return nil, fmt.Errorf("update %s %s: update is empty", m.name, id)
	}
	if err := m.runHooks(ctx, model.UpdateOp{ID: id, Update: upd}); err != nil {
		return nil, err
	}

	doc, err := m.store.Update(ctx, m.name, id, m.flattenUpdate(upd))
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", m.name, id, err)
	}
	return doc, nil
}

// FindByID returns nil, nil when no document has the identifier.
func (m *Model) FindByID(ctx context.Context, id string) (*model.Document, error) {
	return m.store.FindByID(ctx, m.name, id)
}

// Delete removes a document. Documents referring to it are left as they are.
func (m *Model) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, m.name, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", m.name, id, err)
	}
	return nil
}

func (m *Model) List(ctx context.Context) ([]*model.Document, error) {
	return m.store.List(ctx, m.name)
}

// referencePaths returns the paths of every reference field, strict or not.
func (m *Model) referencePaths() []string {
	var out []string
	for _, f := range m.schema.Fields {
		if f.IsReference() || f.IsArrayOfReferences() {
			out = append(out, f.Path)
		}
	}
	return out
}

// flattenReferences replaces materialized documents in reference fields with
// their identifiers. Paths may be dotted.
func (m *Model) flattenReferences(doc *model.Document) {
	for _, path := range m.referencePaths() {
		if v, ok := doc.Get(path); ok {
			doc.Set(path, flattenValue(v))
		}
	}
}

// flattenUpdate does the same for operator values. A value written at a
// parent of a reference path, such as $set {"meta": {...}} for "meta.owner",
// is flattened inside.
func (m *Model) flattenUpdate(upd model.Update) model.Update {
	refs := m.referencePaths()
	out := make(model.Update, len(upd))
	for op, values := range upd {
		c := make(map[string]any, len(values))
		for path, v := range values {
			for _, ref := range refs {
				if ref == path {
					v = flattenValue(v)
				} else if rest, ok := strings.CutPrefix(ref, path+"."); ok {
					v = flattenNested(v, rest)
				}
			}
			c[path] = v
		}
		out[op] = c
	}
	return out
}

// flattenNested returns v with the value at the dotted path rel flattened.
// Maps along the way are copied, never modified.
func flattenNested(v any, rel string) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	head, rest, deeper := strings.Cut(rel, ".")
	inner, present := obj[head]
	if !present {
		return v
	}
	out := maps.Clone(obj)
	if deeper {
		out[head] = flattenNested(inner, rest)
	} else {
		out[head] = flattenValue(inner)
	}
	return out
}

func flattenValue(v any) any {
	switch t := v.(type) {
	case *model.Document:
		if t == nil {
			return nil
		}
		return t.ID
	case model.Document:
		return t.ID
	case []*model.Document:
		out := make([]any, len(t))
		for i, d := range t {
			out[i] = flattenValue(d)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = flattenValue(e)
		}
		return out
	case map[string]any:
		if each, ok := t[model.EachKey]; ok {
			return map[string]any{model.EachKey: flattenValue(each)}
		}
		if id, ok := t[model.IDKey].(string); ok {
			return id
		}
	}
	return v
}
