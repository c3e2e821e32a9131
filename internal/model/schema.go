package model

import (
	"context"
	"reflect"
)

// Kind is the storage kind of a declared field.
type Kind string

const (
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindBoolean  Kind = "boolean"
	KindDate     Kind = "date"
	KindObjectID Kind = "objectid"
	KindArray    Kind = "array"
	KindMixed    Kind = "mixed"
)

var validKinds = map[Kind]bool{
	KindString:   true,
	KindNumber:   true,
	KindBoolean:  true,
	KindDate:     true,
	KindObjectID: true,
	KindArray:    true,
	KindMixed:    true,
}

// IsValid reports whether k is a known field kind.
func (k Kind) IsValid() bool {
	return validKinds[k]
}

// Finder is the only capability needed from a referenced model: look up a
// document by identifier. FindByID returns nil, nil when no document exists.
type Finder interface {
	ModelName() string
	FindByID(ctx context.Context, id string) (*Document, error)
}

// Ref is the declared target of a reference field, either a model name that
// is resolved through a registry or a direct model handle.
type Ref struct {
	Name  string
	Model Finder
}

// IsZero reports whether neither a name nor a handle is set.
func (r Ref) IsZero() bool {
	return r.Name == "" && r.Model == nil
}

// NilHandle reports whether the direct handle is an interface holding a nil
// pointer. Such a handle cannot answer lookups.
func (r Ref) NilHandle() bool {
	if r.Model == nil {
		return false
	}
	v := reflect.ValueOf(r.Model)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Interface, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// DisplayName returns the name used for the target in messages.
func (r Ref) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Model != nil && !r.NilHandle() {
		return r.Model.ModelName()
	}
	return ""
}

// FieldDesc describes one declared field of a schema.
type FieldDesc struct {
	Path   string
	Kind   Kind
	Ref    Ref
	Strict bool

	// Elem describes the element type of an array field.
	Elem *FieldDesc
}

// IsReference reports whether the field holds a single document reference.
func (f FieldDesc) IsReference() bool {
	return f.Kind == KindObjectID
}

// IsArrayOfReferences reports whether the field is an array whose elements
// are document references.
func (f FieldDesc) IsArrayOfReferences() bool {
	return f.Kind == KindArray && f.Elem != nil && f.Elem.Kind == KindObjectID
}

// Schema is an ordered list of field descriptors. Declaration order is kept
// so that anything derived from it is deterministic.
type Schema struct {
	Fields []FieldDesc
}

// NewSchema returns a schema with the given fields in declaration order.
func NewSchema(fields ...FieldDesc) *Schema {
	return &Schema{Fields: fields}
}

// Field returns the descriptor for path, if declared.
func (s *Schema) Field(path string) (FieldDesc, bool) {
	for _, f := range s.Fields {
		if f.Path == path {
			return f, true
		}
	}
	return FieldDesc{}, false
}

// Reference builds a single-reference field descriptor.
func Reference(path string, ref Ref, strict bool) FieldDesc {
	return FieldDesc{Path: path, Kind: KindObjectID, Ref: ref, Strict: strict}
}

// ReferenceArray builds an array-of-references field descriptor. The strict
// flag and target live on the element descriptor.
func ReferenceArray(path string, ref Ref, strict bool) FieldDesc {
	return FieldDesc{
		Path: path,
		Kind: KindArray,
		Elem: &FieldDesc{Kind: KindObjectID, Ref: ref, Strict: strict},
	}
}

// Scalar builds a plain field descriptor of the given kind.
func Scalar(path string, kind Kind) FieldDesc {
	return FieldDesc{Path: path, Kind: kind}
}

// RefName is shorthand for a name-based reference target.
func RefName(name string) Ref {
	return Ref{Name: name}
}

// RefModel is shorthand for a direct-handle reference target.
func RefModel(m Finder) Ref {
	return Ref{Model: m}
}
