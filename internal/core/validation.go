// internal/core/validation.go
package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Regular expression for valid identifiers such as theme names (alphanumeric + underscore + hyphen)
var nameValidationRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Notion ids appear either as 32 hex characters (URLs) or as dashed UUIDs (API).
var (
	compactIDRegex = regexp.MustCompile(`[a-fA-F0-9]{32}`)
	dashedIDRegex  = regexp.MustCompile(`[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}`)
)

var (
	ErrInvalidNotionID = errors.New("no Notion page id found in input")
	ErrRequiredField   = errors.New("required field is empty")
)

// IsValidIdentifier checks if a string is a valid identifier (e.g., a theme name)
// Applies basic format and length checks.
func IsValidIdentifier(name string) bool {
	return nameValidationRegex.MatchString(name) && len(name) > 0 && len(name) <= 64
}

// ExtractNotionID finds a Notion id in a page URL or raw id and returns it
// in canonical dashed form.
func ExtractNotionID(input string) (string, error) {
	input = strings.TrimSpace(input)

	candidate := dashedIDRegex.FindString(input)
	if candidate == "" {
		candidate = compactIDRegex.FindString(input)
	}
	if candidate == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidNotionID, input)
	}

	id, err := uuid.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidNotionID, err)
	}
	return id.String(), nil
}

// CanonicalID normalizes an id already known to be a Notion id. Inputs that
// do not parse are returned unchanged.
func CanonicalID(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return parsed.String()
}

// RequiredFieldError reports an empty required field.
type RequiredFieldError struct {
	Field string
}

func (e *RequiredFieldError) Error() string {
	return fmt.Sprintf("%q is required.", e.Field)
}

func (e *RequiredFieldError) Is(target error) bool {
	return target == ErrRequiredField
}

// ValidateRequiredTitle fails when the schema has a title field and values
// leave it empty.
func ValidateRequiredTitle(values ValueMap, schemas []FieldSchema) error {
	title, ok := TitleField(schemas)
	if !ok {
		return nil
	}
	val, present := values[title.Name]
	if !present || isEmptyValue(val) {
		return &RequiredFieldError{Field: title.Name}
	}
	if s, isString := val.(string); isString && strings.TrimSpace(s) == "" {
		return &RequiredFieldError{Field: title.Name}
	}
	return nil
}
