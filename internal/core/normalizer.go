// internal/core/normalizer.go
package core

import (
	"encoding/json"
)

// RawProperty is one entry of a Notion database "properties" object.
// Config holds the whole property object as received.
type RawProperty struct {
	Name   string
	Type   string
	Config json.RawMessage
}

// RawSchema is a Notion "properties" object in source order.
type RawSchema []RawProperty

// ParseRawSchema decodes a Notion "properties" object keeping key order.
func ParseRawSchema(data []byte) (RawSchema, error) {
	var schema RawSchema
	err := decodeOrdered(data, func(key string, raw json.RawMessage) error {
		var head struct {
			Type string `json:"type"`
		}
		// Entries that are not objects still count; they just have no type.
		_ = json.Unmarshal(raw, &head)

		prop := RawProperty{Name: key, Type: head.Type, Config: append(json.RawMessage(nil), raw...)}
		for i := range schema {
			if schema[i].Name == key {
				schema[i] = prop
				return nil
			}
		}
		schema = append(schema, prop)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if schema == nil {
		schema = RawSchema{}
	}
	return schema, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RawSchema) UnmarshalJSON(data []byte) error {
	parsed, err := ParseRawSchema(data)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// optionNames reads <type>.options[].name from the property config.
func (p RawProperty) optionNames() []string {
	var cfg map[string]json.RawMessage
	if err := json.Unmarshal(p.Config, &cfg); err != nil {
		return nil
	}
	var typed struct {
		Options []struct {
			Name string `json:"name"`
		} `json:"options"`
	}
	if err := json.Unmarshal(cfg[p.Type], &typed); err != nil {
		return nil
	}
	if typed.Options == nil {
		return nil
	}
	names := make([]string, 0, len(typed.Options))
	for _, o := range typed.Options {
		names = append(names, o.Name)
	}
	return names
}

// NormalizeResult is the output of Normalize. Schemas and Unsupported
// partition the raw entries.
type NormalizeResult struct {
	Schemas     []FieldSchema `json:"schemas"`
	Unsupported []string      `json:"unsupported"`
}

// Normalize converts a raw Notion schema into writable field schemas.
// Properties of any other type are listed by name in Unsupported and
// never rejected.
func Normalize(raw RawSchema) NormalizeResult {
	result := NormalizeResult{
		Schemas:     make([]FieldSchema, 0, len(raw)),
		Unsupported: []string{},
	}

	for _, prop := range raw {
		t := PropertyType(prop.Type)
		if !t.IsSupported() {
			result.Unsupported = append(result.Unsupported, prop.Name)
			continue
		}

		schema := FieldSchema{Name: prop.Name, Type: t}
		if t.HasOptions() {
			schema.Options = prop.optionNames()
		}
		result.Schemas = append(result.Schemas, schema)
	}

	return result
}

// WritableSchemas drops any field whose type cannot be set through the
// page-create API.
func WritableSchemas(schemas []FieldSchema) []FieldSchema {
	out := make([]FieldSchema, 0, len(schemas))
	for _, s := range schemas {
		if s.Type.IsSupported() {
			out = append(out, s)
		}
	}
	return out
}
