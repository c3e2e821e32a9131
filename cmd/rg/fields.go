package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/alfredjeanlab/refguard/internal/model"
)

// splitField splits "key=value" into (key, value, true).
// Returns ("", "", false) if there is no '=' or key is empty.
func splitField(s string) (string, string, bool) {
	i := strings.IndexByte(s, '=')
	if i <= 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// rawOrString returns a json.RawMessage if v looks like a JSON literal
// (object, array, quoted string, boolean, null, or number). Otherwise it
// returns v as a plain Go string so json.Marshal will quote it.
func rawOrString(v string) any {
	if len(v) == 0 {
		return v
	}
	switch v[0] {
	case '{', '[', '"':
		if json.Valid([]byte(v)) {
			return json.RawMessage(v)
		}
	default:
		// true, false, null, or a number
		if v == "true" || v == "false" || v == "null" {
			return json.RawMessage(v)
		}
		if v[0] == '-' || unicode.IsDigit(rune(v[0])) {
			if json.Valid([]byte(v)) {
				return json.RawMessage(v)
			}
		}
	}
	return v // will be JSON-quoted as a string
}

// fieldValue decodes a -f value into the plain Go value the document layer
// works with.
func fieldValue(v string) (any, error) {
	raw, ok := rawOrString(v).(json.RawMessage)
	if !ok {
		return v, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseFields turns repeated key=value flags into a document body. Dotted
// keys are kept as-is; the document layer expands them.
func parseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := splitField(p)
		if !ok {
			return nil, fmt.Errorf("invalid field %q (expected key=value)", p)
		}
		val, err := fieldValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		fields[k] = val
	}
	return fields, nil
}

// buildUpdate assembles an update from --set, --push and --inc flags.
func buildUpdate(set, push, inc []string) (model.Update, error) {
	upd := model.Update{}
	for _, group := range []struct {
		pairs []string
		add   func(model.Update, string, any) model.Update
	}{
		{set, model.Update.Set},
		{push, model.Update.Push},
		{inc, model.Update.Inc},
	} {
		fields, err := parseFields(group.pairs)
		if err != nil {
			return nil, err
		}
		for k, v := range fields {
			upd = group.add(upd, k, v)
		}
	}
	if len(upd) == 0 {
		return nil, fmt.Errorf("nothing to update (use --set, --push or --inc)")
	}
	return upd, nil
}
