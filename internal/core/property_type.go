// internal/core/property_type.go
package core

// PropertyType is a Notion database property kind this service can write.
type PropertyType string

const (
	PropertyTitle       PropertyType = "title"
	PropertyRichText    PropertyType = "rich_text"
	PropertyNumber      PropertyType = "number"
	PropertySelect      PropertyType = "select"
	PropertyMultiSelect PropertyType = "multi_select"
	PropertyDate        PropertyType = "date"
	PropertyCheckbox    PropertyType = "checkbox"
	PropertyURL         PropertyType = "url"
	PropertyEmail       PropertyType = "email"
	PropertyPhoneNumber PropertyType = "phone_number"
	PropertyStatus      PropertyType = "status"
)

// SupportedPropertyTypes lists the writable types in prompt order.
var SupportedPropertyTypes = []PropertyType{
	PropertyTitle,
	PropertyRichText,
	PropertyNumber,
	PropertySelect,
	PropertyMultiSelect,
	PropertyDate,
	PropertyCheckbox,
	PropertyURL,
	PropertyEmail,
	PropertyPhoneNumber,
	PropertyStatus,
}

// IsSupported reports whether t belongs to the writable set.
func (t PropertyType) IsSupported() bool {
	for _, s := range SupportedPropertyTypes {
		if s == t {
			return true
		}
	}
	return false
}

// HasOptions reports whether t carries an allowed-values list.
func (t PropertyType) HasOptions() bool {
	return t == PropertySelect || t == PropertyMultiSelect || t == PropertyStatus
}

// FieldSchema is one normalized, writable database column.
type FieldSchema struct {
	Name    string       `json:"name"`
	Type    PropertyType `json:"type"`
	Options []string     `json:"options,omitempty"`
}

// ValueMap holds field values keyed by field name. Values are string,
// float64, bool or []string depending on the field type.
type ValueMap map[string]any

// TitleField returns the title column, if the schema list has one.
func TitleField(schemas []FieldSchema) (FieldSchema, bool) {
	for _, s := range schemas {
		if s.Type == PropertyTitle {
			return s, true
		}
	}
	return FieldSchema{}, false
}
