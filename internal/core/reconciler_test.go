// internal/core/reconciler_test.go
package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseObject(t *testing.T, s string) Object {
	t.Helper()
	obj, err := ParseObject([]byte(s))
	require.NoError(t, err)
	return obj
}

func TestReconcileCaseInsensitiveKeys(t *testing.T) {
	schemas := []FieldSchema{{Name: "Name", Type: PropertyTitle}}

	assert.Equal(t, ValueMap{"Name": "x"}, Reconcile(mustParseObject(t, `{"NAME": "x"}`), schemas))
	assert.Equal(t, ValueMap{}, Reconcile(mustParseObject(t, `{"ghost": "x"}`), schemas))
}

func TestReconcileCoercion(t *testing.T) {
	schemas := []FieldSchema{
		{Name: "Tags", Type: PropertyMultiSelect},
		{Name: "Labels", Type: PropertyMultiSelect},
		{Name: "Count", Type: PropertyNumber},
		{Name: "Budget", Type: PropertyNumber},
		{Name: "Done", Type: PropertyCheckbox},
		{Name: "Notes", Type: PropertyRichText},
	}
	reply := mustParseObject(t, `{
		"tags": "urgent",
		"labels": ["a", "b"],
		"count": "12",
		"budget": "a lot",
		"done": true,
		"notes": null
	}`)

	assert.Equal(t, ValueMap{
		"Tags":   []string{"urgent"},
		"Labels": []string{"a", "b"},
		"Count":  12.0,
		"Budget": "a lot",
		"Done":   true,
	}, Reconcile(reply, schemas))
}

func TestReconcilePrefersExactMatchAndLastDuplicate(t *testing.T) {
	schemas := []FieldSchema{
		{Name: "name", Type: PropertyRichText},
		{Name: "Name", Type: PropertyTitle},
	}

	values := Reconcile(mustParseObject(t, `{"Name": "title", "name": "text"}`), schemas)
	assert.Equal(t, ValueMap{"Name": "title", "name": "text"}, values)

	values = Reconcile(mustParseObject(t, `{"NAME": "first", "nAmE": "second"}`), schemas[1:])
	assert.Equal(t, ValueMap{"Name": "second"}, values)
}

func TestReconcileNeverAddsUnknownKeys(t *testing.T) {
	schemas := []FieldSchema{{Name: "Name", Type: PropertyTitle}, {Name: "Due", Type: PropertyDate}}
	values := Reconcile(mustParseObject(t, `{"name": "a", "due": "2025-01-01", "priority": "high", "": "x"}`), schemas)

	for key := range values {
		_, ok := map[string]bool{"Name": true, "Due": true}[key]
		assert.True(t, ok, "unexpected key %q", key)
	}
	assert.Len(t, values, 2)
}

func TestParseObjectRejectsNonObjects(t *testing.T) {
	for _, input := range []string{"```json\n{}\n```", `[1,2]`, `not json`, `null`} {
		_, err := ParseObject([]byte(input))
		assert.ErrorIs(t, err, ErrNotJSONObject, "input %q", input)
	}
}

func TestObjectMarshalKeepsOrder(t *testing.T) {
	obj := mustParseObject(t, `{"b": 1, "a": [true], "c": {"x": null}}`)
	got, err := obj.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":[true],"c":{"x":null}}`, string(got))

	v, ok := obj.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []any{true}, v)
}

func TestUnknownOptions(t *testing.T) {
	schemas := []FieldSchema{
		{Name: "Status", Type: PropertySelect, Options: []string{"Open", "Done"}},
		{Name: "Tags", Type: PropertyMultiSelect, Options: []string{"home", "work"}},
		{Name: "Free", Type: PropertySelect},
	}
	values := ValueMap{
		"Status": "Done",
		"Tags":   []string{"home", "WORK", "gym"},
		"Free":   "anything",
	}

	assert.Equal(t, []OptionMismatch{
		{Field: "Tags", Value: "WORK", Suggestion: "work"},
		{Field: "Tags", Value: "gym"},
	}, UnknownOptions(values, schemas))
}
