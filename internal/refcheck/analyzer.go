// Package refcheck rejects writes whose strict reference fields point at
// documents that do not exist.
//
// A Validator is built once per schema: the schema is scanned for strict
// reference fields (single references and arrays of references whose element
// type is strict). On every save or update the validator works out which of
// those fields the operation touches, resolves each field's target model,
// looks up every candidate identifier concurrently, and fails the write on
// the first missing reference in field declaration order.
//
// Only existence is checked. Deletes are not intercepted, results are not
// cached, and the check is not atomic with the write that follows it.
package refcheck

import "github.com/alfredjeanlab/refguard/internal/model"

// ForeignKey is a strict reference field of a schema.
type ForeignKey struct {
	Path  string
	Array bool
	Ref   model.Ref
}

// ForeignKeyFields returns the strict reference fields of s in declaration
// order. A field qualifies when it is a strict single reference, or an array
// whose element descriptor is a strict reference.
func ForeignKeyFields(s *model.Schema) []ForeignKey {
	if s == nil {
		return nil
	}
	var keys []ForeignKey
	for _, f := range s.Fields {
		switch {
		case f.IsReference() && f.Strict:
			keys = append(keys, ForeignKey{Path: f.Path, Ref: f.Ref})
		case f.IsArrayOfReferences() && f.Elem.Strict:
			keys = append(keys, ForeignKey{Path: f.Path, Array: true, Ref: f.Elem.Ref})
		}
	}
	return keys
}

// Paths returns the field paths of keys.
func Paths(keys []ForeignKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Path
	}
	return out
}
