package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateSchema checks a schema for declaration mistakes.
// It returns a *ValidationError if any rules fail, or nil if the schema is valid.
func ValidateSchema(s *Schema) error {
	if s == nil {
		return &ValidationError{Errors: []FieldError{{Field: "schema", Message: "is required"}}}
	}

	var ve ValidationError
	seen := make(map[string]bool, len(s.Fields))

	for i, f := range s.Fields {
		name := f.Path
		if strings.TrimSpace(name) == "" {
			name = fmt.Sprintf("fields[%d]", i)
			ve.Errors = append(ve.Errors, FieldError{Field: name, Message: "path is required"})
		} else if seen[name] {
			ve.Errors = append(ve.Errors, FieldError{Field: name, Message: "is declared more than once"})
		}
		seen[name] = true

		if name == IDKey {
			ve.Errors = append(ve.Errors, FieldError{Field: name, Message: "is reserved"})
		}

		ve.Errors = append(ve.Errors, validateFieldDesc(name, f)...)

		if f.Kind == KindArray {
			if f.Elem == nil {
				ve.Errors = append(ve.Errors, FieldError{Field: name, Message: "array requires an element type"})
				continue
			}
			if f.Elem.Kind == KindArray {
				ve.Errors = append(ve.Errors, FieldError{Field: name, Message: "nested arrays are not supported"})
				continue
			}
			ve.Errors = append(ve.Errors, validateFieldDesc(name+".$", *f.Elem)...)
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func validateFieldDesc(name string, f FieldDesc) []FieldError {
	var errs []FieldError

	if !f.Kind.IsValid() {
		errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("invalid type %q", f.Kind)})
		return errs
	}

	// Strict only makes sense on a single reference (or an array element).
	if f.Strict && f.Kind != KindObjectID {
		errs = append(errs, FieldError{
			Field:   name,
			Message: fmt.Sprintf("strict requires type %q, got %q", KindObjectID, f.Kind),
		})
	}

	if f.Kind == KindObjectID && f.Strict && f.Ref.IsZero() {
		errs = append(errs, FieldError{Field: name, Message: "strict reference requires a ref"})
	}

	if f.Ref.NilHandle() {
		errs = append(errs, FieldError{Field: name, Message: "ref handle is nil"})
	}

	if f.Kind != KindObjectID && !f.Ref.IsZero() {
		errs = append(errs, FieldError{Field: name, Message: "ref is only allowed on references"})
	}

	return errs
}
