package refcheck

import "github.com/alfredjeanlab/refguard/internal/model"

// recognizedOperators are the update operators inspected for touched fields,
// in the order their values are collected. Fields changed through any other
// operator ($unset, $addToSet) are not detected.
var recognizedOperators = []model.Operator{model.OpSet, model.OpPush, model.OpInc}

// touchedField is a foreign key modified by an operation together with the
// raw values it would be written with.
type touchedField struct {
	key    ForeignKey
	values []any
}

// IsModified reports whether op modifies the field at path.
//
// For a save, the field must have been set on the document and hold a
// non-null value. For an update, the path must be a key of one of the
// recognized operator maps.
func IsModified(op model.Operation, path string) bool {
	switch o := op.(type) {
	case model.SaveOp:
		if o.Doc == nil || !o.Doc.IsModified(path) {
			return false
		}
		v, ok := o.Doc.Get(path)
		return ok && v != nil
	case model.UpdateOp:
		for _, name := range recognizedOperators {
			if _, ok := o.Update.Value(name, path); ok {
				return true
			}
		}
	}
	return false
}

// CandidateValues returns the raw values op would write to the field, one per
// referenced document. Values are not yet converted to identifiers.
//
// Update values come only from the operator that carries them; they are not
// merged with the stored document.
func CandidateValues(op model.Operation, key ForeignKey) []any {
	switch o := op.(type) {
	case model.SaveOp:
		v, _ := o.Doc.Get(key.Path)
		if key.Array {
			return model.ValueList(v)
		}
		return []any{v}
	case model.UpdateOp:
		var out []any
		for _, name := range recognizedOperators {
			v, ok := o.Update.Value(name, key.Path)
			if !ok {
				continue
			}
			if name == model.OpPush {
				for _, e := range model.EachValues(v) {
					out = append(out, model.ValueList(e)...)
				}
				continue
			}
			out = append(out, model.ValueList(v)...)
		}
		return out
	}
	return nil
}

// touched returns the foreign keys op modifies, in declaration order.
func touched(op model.Operation, keys []ForeignKey) []touchedField {
	var out []touchedField
	for _, k := range keys {
		if !IsModified(op, k.Path) {
			continue
		}
		out = append(out, touchedField{key: k, values: CandidateValues(op, k)})
	}
	return out
}
