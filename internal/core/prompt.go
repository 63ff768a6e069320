// internal/core/prompt.go
package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	promptDateLayout = "Monday, January 2, 2006"
	optionSeparator  = " — allowed values: "
)

// quoteRaw wraps a name in double quotes without escaping it; the model
// sees names exactly as Notion shows them.
func quoteRaw(s string) string {
	return `"` + s + `"`
}

var typeRules = []string{
	`- title/rich_text: Return a descriptive string. For the title, include the FULL ACTION (e.g., "Follow up with John", not just "John").`,
	`- number: Return a numeric value only (no units or text).`,
	`- select/status: Return EXACTLY one of the allowed values listed above. Pick the closest match.`,
	`- multi_select: Return a JSON array of strings, each matching an allowed value. Example: ["Tag1", "Tag2"]`,
	`- date: Return ISO 8601 format (YYYY-MM-DD). Convert relative dates like "tomorrow" or "next Monday" relative to today.`,
	`- checkbox: Return true or false (boolean, not string).`,
	`- url: Return a valid URL string.`,
	`- email: Return a valid email address.`,
	`- phone_number: Return a phone number string.`,
}

var outputRules = []string{
	"1. Only include columns where you can extract a meaningful value from the input.",
	"2. Omit columns that have no relevant data in the input.",
	"3. Return ONLY a valid JSON object with column names as keys.",
	"4. Do NOT wrap the response in markdown code blocks.",
}

// BuildPrompt renders the system prompt for the extraction model. The
// output depends only on schemas and now (instant and location).
func BuildPrompt(schemas []FieldSchema, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a Notion data parser. Today is %s (%s).\n\n", now.Format(promptDateLayout), FormatUTCOffset(now))

	b.WriteString("TASK: Parse the user's natural language input into structured data for these database columns:\n")
	for _, s := range schemas {
		if !s.Type.IsSupported() {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s)", quoteRaw(s.Name), s.Type)
		if len(s.Options) > 0 {
			quoted := make([]string, 0, len(s.Options))
			for _, o := range s.Options {
				quoted = append(quoted, quoteRaw(o))
			}
			b.WriteString(optionSeparator + strings.Join(quoted, ", "))
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nTYPE RULES:\n")
	for _, rule := range typeRules {
		b.WriteString(rule)
		b.WriteByte('\n')
	}

	b.WriteString("\nRULES:\n")
	b.WriteString(strings.Join(outputRules, "\n"))

	return b.String()
}

// FormatUTCOffset renders the zone offset of t as UTC±HH:MM.
func FormatUTCOffset(t time.Time) string {
	_, offset := t.Zone()
	minutes := offset / 60

	sign := '+'
	if minutes < 0 {
		sign = '-'
		minutes = -minutes
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, minutes/60, minutes%60)
}
