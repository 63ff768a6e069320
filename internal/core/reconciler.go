// internal/core/reconciler.go
package core

import (
	"strings"
)

// Reconcile aligns a model reply with the known fields. Keys match field
// names case-insensitively; keys that match nothing are dropped. Members
// are applied in reply order, so a later duplicate wins.
func Reconcile(reply Object, schemas []FieldSchema) ValueMap {
	values := ValueMap{}

	for _, m := range reply {
		if m.Value == nil {
			continue
		}
		schema, ok := matchField(schemas, m.Key)
		if !ok {
			continue
		}
		values[schema.Name] = coerceReplyValue(schema.Type, m.Value)
	}

	return values
}

// matchField prefers an exact name match over a case-folded one.
func matchField(schemas []FieldSchema, key string) (FieldSchema, bool) {
	for _, s := range schemas {
		if s.Name == key {
			return s, true
		}
	}
	for _, s := range schemas {
		if strings.EqualFold(s.Name, key) {
			return s, true
		}
	}
	return FieldSchema{}, false
}

func coerceReplyValue(t PropertyType, v any) any {
	switch t {
	case PropertyNumber:
		// Values with no numeric reading stay as sent so the preview can show them.
		if f, ok := toNumber(v); ok {
			return f
		}
		return v
	case PropertyMultiSelect:
		switch v.(type) {
		case string, []string, []any:
			return toStringList(v)
		}
		return v
	}
	return v
}

// OptionMismatch reports a value that is not among a field's allowed
// options. Suggestion is set when an option differs only by case.
type OptionMismatch struct {
	Field      string `json:"field"`
	Value      string `json:"value"`
	Suggestion string `json:"suggestion,omitempty"`
}

// UnknownOptions lists select, status and multi-select values absent from
// the allowed options. Writing such a value makes Notion create a new
// option. Values are never rewritten here.
func UnknownOptions(values ValueMap, schemas []FieldSchema) []OptionMismatch {
	var out []OptionMismatch

	for _, s := range schemas {
		if !s.Type.HasOptions() || len(s.Options) == 0 {
			continue
		}
		val, ok := values[s.Name]
		if !ok || isEmptyValue(val) {
			continue
		}

		for _, item := range toStringList(val) {
			if containsString(s.Options, item) {
				continue
			}
			mismatch := OptionMismatch{Field: s.Name, Value: item}
			for _, opt := range s.Options {
				if strings.EqualFold(opt, item) {
					mismatch.Suggestion = opt
					break
				}
			}
			out = append(out, mismatch)
		}
	}

	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
