// internal/core/serializer.go
package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Notion write-payload fragments.

type textContent struct {
	Content string `json:"content"`
}

type richTextItem struct {
	Text textContent `json:"text"`
}

type namedOption struct {
	Name string `json:"name"`
}

type dateValue struct {
	Start string `json:"start"`
}

type TitleValue struct {
	Title []richTextItem `json:"title"`
}

type RichTextValue struct {
	RichText []richTextItem `json:"rich_text"`
}

// NumberValue serializes a nil Number as JSON null.
type NumberValue struct {
	Number *float64 `json:"number"`
}

type SelectValue struct {
	Select namedOption `json:"select"`
}

type StatusValue struct {
	Status namedOption `json:"status"`
}

type MultiSelectValue struct {
	MultiSelect []namedOption `json:"multi_select"`
}

type DateValue struct {
	Date dateValue `json:"date"`
}

type CheckboxValue struct {
	Checkbox bool `json:"checkbox"`
}

type URLValue struct {
	URL string `json:"url"`
}

type EmailValue struct {
	Email string `json:"email"`
}

type PhoneNumberValue struct {
	PhoneNumber string `json:"phone_number"`
}

// Properties is the "properties" object of a page-create request.
type Properties map[string]any

// Parent identifies the database a page is created in.
type Parent struct {
	DatabaseID string `json:"database_id"`
}

// CreatePageRequest is the body of POST /pages.
type CreatePageRequest struct {
	Parent     Parent     `json:"parent"`
	Properties Properties `json:"properties"`
}

// BuildCreatePageRequest wraps serialized properties for a database.
func BuildCreatePageRequest(databaseID string, props Properties) CreatePageRequest {
	return CreatePageRequest{Parent: Parent{DatabaseID: databaseID}, Properties: props}
}

// Serialize builds the Notion write payload for every schema field with a
// present, non-empty value. Omitted fields are left unset by Notion.
func Serialize(values ValueMap, schemas []FieldSchema) Properties {
	props := Properties{}

	for _, schema := range schemas {
		val, ok := values[schema.Name]
		if !ok || isEmptyValue(val) {
			continue
		}

		switch schema.Type {
		case PropertyTitle:
			props[schema.Name] = TitleValue{Title: []richTextItem{{Text: textContent{Content: stringify(val)}}}}
		case PropertyRichText:
			props[schema.Name] = RichTextValue{RichText: []richTextItem{{Text: textContent{Content: stringify(val)}}}}
		case PropertyNumber:
			var num NumberValue
			if f, ok := toNumber(val); ok {
				num.Number = &f
			}
			props[schema.Name] = num
		case PropertySelect:
			props[schema.Name] = SelectValue{Select: namedOption{Name: stringify(val)}}
		case PropertyStatus:
			props[schema.Name] = StatusValue{Status: namedOption{Name: stringify(val)}}
		case PropertyMultiSelect:
			items := toStringList(val)
			opts := make([]namedOption, 0, len(items))
			for _, item := range items {
				opts = append(opts, namedOption{Name: item})
			}
			props[schema.Name] = MultiSelectValue{MultiSelect: opts}
		case PropertyDate:
			props[schema.Name] = DateValue{Date: dateValue{Start: stringify(val)}}
		case PropertyCheckbox:
			props[schema.Name] = CheckboxValue{Checkbox: toCheckbox(val)}
		case PropertyURL:
			props[schema.Name] = URLValue{URL: stringify(val)}
		case PropertyEmail:
			props[schema.Name] = EmailValue{Email: stringify(val)}
		case PropertyPhoneNumber:
			props[schema.Name] = PhoneNumberValue{PhoneNumber: stringify(val)}
		}
	}

	return props
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	}
	return false
}

// stringify renders a value the way the form and the model hand it over:
// integers without a decimal point, lists comma-joined.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// toNumber is a numeric cast. ok is false when the value has no numeric
// reading.
func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, !math.IsNaN(val) && !math.IsInf(val, 0)
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case []string:
		switch len(val) {
		case 0:
			return 0, true
		case 1:
			return toNumber(val[0])
		}
	case []any:
		switch len(val) {
		case 0:
			return 0, true
		case 1:
			return toNumber(val[0])
		}
	}
	return 0, false
}

func toStringList(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, stringify(item))
		}
		return out
	}
	return []string{stringify(v)}
}

// toCheckbox passes booleans through; only the string "true" is true.
func toCheckbox(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true"
	}
	return false
}
