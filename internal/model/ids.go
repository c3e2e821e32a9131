package model

import (
	"fmt"
	"strings"
)

// IDOf extracts a document identifier from a field value. Plain strings are
// identifiers; materialized documents (or objects carrying "_id") contribute
// their own identifier.
func IDOf(v any) (string, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return "", fmt.Errorf("%w: empty identifier", ErrMalformedID)
		}
		return t, nil
	case *Document:
		if t == nil || t.ID == "" {
			return "", fmt.Errorf("%w: document without identifier", ErrMalformedID)
		}
		return t.ID, nil
	case Document:
		return IDOf(&t)
	case map[string]any:
		id, ok := t[IDKey]
		if !ok {
			return "", fmt.Errorf("%w: object without %s", ErrMalformedID, IDKey)
		}
		return IDOf(id)
	}
	return "", fmt.Errorf("%w: unsupported value of type %T", ErrMalformedID, v)
}

// ValueList flattens a field value into its elements. A nil value yields an
// empty list; an array yields its elements; anything else is a singleton.
func ValueList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []*Document:
		out := make([]any, len(t))
		for i, d := range t {
			out[i] = d
		}
		return out
	}
	return []any{v}
}
