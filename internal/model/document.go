package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

// IDKey is the key under which a document's identifier is serialized.
const IDKey = "_id"

// Document is a schemaless record stored in a collection. It tracks which
// paths were set since it was loaded so that writes can tell what changed.
type Document struct {
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time

	isNew    bool
	modified map[string]struct{}
}

// NewDocument returns an unsaved document. Every top-level key in fields is
// considered modified.
func NewDocument(id string, fields map[string]any) *Document {
	d := &Document{
		ID:       id,
		Fields:   make(map[string]any, len(fields)),
		isNew:    true,
		modified: make(map[string]struct{}, len(fields)),
	}
	for k, v := range fields {
		if k == IDKey {
			continue
		}
		d.Fields[k] = v
		d.modified[k] = struct{}{}
	}
	return d
}

// IsNew reports whether the document has never been persisted.
func (d *Document) IsNew() bool {
	return d.isNew
}

// MarkPersisted clears the new flag and all modification tracking.
func (d *Document) MarkPersisted() {
	d.isNew = false
	d.modified = nil
}

// Get returns the value at a dotted path.
func (d *Document) Get(path string) (any, bool) {
	if path == IDKey {
		return d.ID, d.ID != ""
	}
	var cur any = d.Fields
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set writes v at a dotted path, creating intermediate objects, and marks the
// path as modified.
func (d *Document) Set(path string, v any) {
	if d.Fields == nil {
		d.Fields = make(map[string]any)
	}
	setPath(d.Fields, path, v)
	if d.modified == nil {
		d.modified = make(map[string]struct{})
	}
	d.modified[path] = struct{}{}
}

// Unset removes the value at a dotted path and marks the path as modified.
func (d *Document) Unset(path string) {
	parts := strings.Split(path, ".")
	m := d.Fields
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(m[part])
		if !ok {
			return
		}
		m = next
	}
	delete(m, parts[len(parts)-1])
	if d.modified == nil {
		d.modified = make(map[string]struct{})
	}
	d.modified[path] = struct{}{}
}

// IsModified reports whether path, one of its ancestors, or one of its
// descendants was set since the document was loaded.
func (d *Document) IsModified(path string) bool {
	for p := range d.modified {
		if p == path || strings.HasPrefix(path, p+".") || strings.HasPrefix(p, path+".") {
			return true
		}
	}
	return false
}

// ModifiedPaths returns the paths set since the document was loaded.
func (d *Document) ModifiedPaths() []string {
	out := make([]string, 0, len(d.modified))
	for p := range d.modified {
		out = append(out, p)
	}
	return out
}

// Clone returns a deep copy of the document, including tracking state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := &Document{
		ID:        d.ID,
		Fields:    deepCopyMap(d.Fields),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		isNew:     d.isNew,
	}
	if d.modified != nil {
		c.modified = maps.Clone(d.modified)
	}
	return c
}

// MarshalJSON renders the document as a flat object with the identifier
// under "_id".
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Fields)+1)
	for k, v := range d.Fields {
		out[k] = v
	}
	out[IDKey] = d.ID
	return json.Marshal(out)
}

// UnmarshalJSON parses a flat object. The result is a loaded document with no
// modification state.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Fields = make(map[string]any, len(raw))
	for k, v := range raw {
		if k == IDKey {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%s must be a string", IDKey)
			}
			d.ID = s
			continue
		}
		d.Fields[k] = v
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case *Document:
		if m == nil {
			return nil, false
		}
		return m.Fields, true
	}
	return nil, false
}

func setPath(m map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case *Document:
		return t.Clone()
	}
	return v
}
