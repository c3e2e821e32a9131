package model

import (
	"fmt"
	"reflect"
	"sort"
)

// Operator names a partial-update operator.
type Operator string

const (
	OpSet      Operator = "$set"
	OpPush     Operator = "$push"
	OpInc      Operator = "$inc"
	OpUnset    Operator = "$unset"
	OpAddToSet Operator = "$addToSet"
)

// EachKey wraps a list of values appended by $push or $addToSet.
const EachKey = "$each"

var knownOperators = map[Operator]bool{
	OpSet:      true,
	OpPush:     true,
	OpInc:      true,
	OpUnset:    true,
	OpAddToSet: true,
}

// Update is a sparse set of operator maps, each mapping field paths to values.
type Update map[Operator]map[string]any

// ParseUpdate converts a decoded JSON object such as
// {"$set": {"a": 1}, "$push": {"b": "x"}} into an Update.
func ParseUpdate(raw map[string]any) (Update, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("update is empty")
	}
	u := make(Update, len(raw))
	for k, v := range raw {
		op := Operator(k)
		if !knownOperators[op] {
			return nil, fmt.Errorf("unsupported update operator %q", k)
		}
		fields, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("operator %s must map field paths to values", k)
		}
		u[op] = fields
	}
	return u, nil
}

// Paths returns the field paths touched by op, sorted.
func (u Update) Paths(op Operator) []string {
	m := u[op]
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Value returns the value op carries for path.
func (u Update) Value(op Operator, path string) (any, bool) {
	m, ok := u[op]
	if !ok {
		return nil, false
	}
	v, ok := m[path]
	return v, ok
}

// Set adds a $set entry and returns u for chaining.
func (u Update) Set(path string, v any) Update { return u.with(OpSet, path, v) }

// Push adds a $push entry and returns u for chaining.
func (u Update) Push(path string, v any) Update { return u.with(OpPush, path, v) }

// Inc adds an $inc entry and returns u for chaining.
func (u Update) Inc(path string, v any) Update { return u.with(OpInc, path, v) }

func (u Update) with(op Operator, path string, v any) Update {
	if u[op] == nil {
		u[op] = make(map[string]any)
	}
	u[op][path] = v
	return u
}

// ApplyUpdate applies every operator in u to doc in a fixed order.
func ApplyUpdate(doc *Document, u Update) error {
	for _, p := range u.Paths(OpSet) {
		doc.Set(p, u[OpSet][p])
	}
	for _, p := range u.Paths(OpUnset) {
		doc.Unset(p)
	}
	for _, p := range u.Paths(OpInc) {
		if err := applyInc(doc, p, u[OpInc][p]); err != nil {
			return err
		}
	}
	for _, p := range u.Paths(OpPush) {
		if err := applyPush(doc, p, u[OpPush][p], false); err != nil {
			return err
		}
	}
	for _, p := range u.Paths(OpAddToSet) {
		if err := applyPush(doc, p, u[OpAddToSet][p], true); err != nil {
			return err
		}
	}
	return nil
}

func applyInc(doc *Document, path string, delta any) error {
	d, ok := toFloat(delta)
	if !ok {
		return fmt.Errorf("%s %s: increment must be numeric", OpInc, path)
	}
	cur, present := doc.Get(path)
	if !present || cur == nil {
		doc.Set(path, d)
		return nil
	}
	n, ok := toFloat(cur)
	if !ok {
		return fmt.Errorf("%s %s: field is not numeric", OpInc, path)
	}
	doc.Set(path, n+d)
	return nil
}

func applyPush(doc *Document, path string, v any, unique bool) error {
	var arr []any
	if cur, present := doc.Get(path); present && cur != nil {
		existing, ok := cur.([]any)
		if !ok {
			return fmt.Errorf("%s: field is not an array", path)
		}
		arr = append(arr, existing...)
	}
	for _, e := range EachValues(v) {
		if unique && containsValue(arr, e) {
			continue
		}
		arr = append(arr, e)
	}
	doc.Set(path, arr)
	return nil
}

// EachValues returns the elements a $push or $addToSet value appends: the
// list inside a {"$each": [...]} modifier, each element of a plain list, or
// the value itself.
func EachValues(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	if m, ok := v.(map[string]any); ok {
		if each, ok := m[EachKey]; ok {
			if list, ok := each.([]any); ok {
				return list
			}
			return []any{each}
		}
	}
	return []any{v}
}

func containsValue(arr []any, v any) bool {
	for _, e := range arr {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// OpKind distinguishes the two write paths.
type OpKind int

const (
	// OpKindSave is a whole-document save (insert or replace).
	OpKindSave OpKind = iota + 1
	// OpKindUpdate is a partial update expressed as operator maps.
	OpKindUpdate
)

func (k OpKind) String() string {
	switch k {
	case OpKindSave:
		return "save"
	case OpKindUpdate:
		return "update"
	}
	return "unknown"
}

// Operation is a pending write: either a SaveOp or an UpdateOp.
type Operation interface {
	Kind() OpKind
	isOperation()
}

// SaveOp carries a whole candidate document.
type SaveOp struct {
	Doc *Document
}

// UpdateOp carries the operator maps of a partial update.
type UpdateOp struct {
	ID     string
	Update Update
}

func (SaveOp) Kind() OpKind   { return OpKindSave }
func (UpdateOp) Kind() OpKind { return OpKindUpdate }

func (SaveOp) isOperation()   {}
func (UpdateOp) isOperation() {}
