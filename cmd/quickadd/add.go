// cmd/quickadd/add.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
	"github.com/Ian-Chin/iunami-ai-extension/internal/llm"
)

var (
	addAssignments []string
	addYes         bool
)

// ErrAborted is returned when the user declines the preview.
var ErrAborted = errors.New("aborted")

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add [database-id-or-url] [text...]",
	Short: "Create a page from text or from --set values",
	Long: "Create a page in a database. Free text is parsed by the language model; " +
		"--set Name=value pairs are written as given. The preview is confirmed unless --yes is passed.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		databaseID, result, err := s.loadSchema(ctx, args[0])
		if err != nil {
			return err
		}

		var values core.ValueMap
		text := strings.TrimSpace(strings.Join(args[1:], " "))
		switch {
		case len(addAssignments) > 0:
			values, err = parseAssignments(addAssignments, result.Schemas)
		case text != "":
			values, err = s.extract(ctx, result.Schemas, text)
		default:
			err = errors.New("nothing to add: pass text or --set Name=value")
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printPreview(out, values, result.Schemas)

		if err := core.ValidateRequiredTitle(values, result.Schemas); err != nil {
			return err
		}
		if !addYes {
			ok, err := confirm(cmd.InOrStdin(), out, "Save to Notion? [y/N] ")
			if err != nil {
				return err
			}
			if !ok {
				return ErrAborted
			}
		}

		props := core.Serialize(values, core.WritableSchemas(result.Schemas))
		page, err := s.notion.CreatePage(ctx, s.token, core.BuildCreatePageRequest(databaseID, props))
		if err != nil {
			return fmt.Errorf("failed to sync: %w", err)
		}

		green := color.New(color.FgGreen, color.Bold).SprintFunc()
		fmt.Fprintf(out, "%s Saved to Notion: %s\n", green("✓"), page.URL)
		return nil
	},
}

func (s *session) extract(ctx context.Context, schemas []core.FieldSchema, text string) (core.ValueMap, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ParseTimeout)
	defer cancel()

	client := llm.NewClient(llm.Config{APIKey: s.cfg.AIAPIKey, BaseURL: s.cfg.AIAPIURL, Model: s.cfg.AIModel})
	values, err := llm.NewExtractor(client).Extract(ctx, schemas, text, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	return values, nil
}

// parseAssignments turns Name=value pairs into values. Field names match
// case-insensitively; multi-select values are comma separated.
func parseAssignments(pairs []string, schemas []core.FieldSchema) (core.ValueMap, error) {
	values := core.ValueMap{}
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: expected Name=value", pair)
		}
		field, found := findField(schemas, strings.TrimSpace(name))
		if !found {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		value, err := coerceAssignment(field, strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		values[field.Name] = value
	}
	return values, nil
}

func findField(schemas []core.FieldSchema, name string) (core.FieldSchema, bool) {
	for _, s := range schemas {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return core.FieldSchema{}, false
}

func coerceAssignment(field core.FieldSchema, raw string) (any, error) {
	switch field.Type {
	case core.PropertyMultiSelect:
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	case core.PropertyCheckbox:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %q is not true or false", field.Name, raw)
		}
		return b, nil
	case core.PropertyNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: %q is not a number", field.Name, raw)
		}
		return f, nil
	}
	return raw, nil
}

func printPreview(w io.Writer, values core.ValueMap, schemas []core.FieldSchema) {
	bold := color.New(color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	names := make([]string, 0, len(values))
	order := make(map[string]int, len(schemas))
	for i, s := range schemas {
		order[s.Name] = i
	}
	for name := range values {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return order[names[i]] < order[names[j]] })

	for _, name := range names {
		fmt.Fprintf(w, "  %s: %v\n", bold(name), values[name])
	}
	for _, m := range core.UnknownOptions(values, schemas) {
		msg := fmt.Sprintf("  ! %q is not an option of %s", m.Value, m.Field)
		if m.Suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", m.Suggestion)
		}
		fmt.Fprintln(w, yellow(msg))
	}
}

func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprint(out, question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func init() {
	addCmd.Flags().StringArrayVar(&addAssignments, "set", nil, "Field value as Name=value (repeatable)")
	addCmd.Flags().BoolVarP(&addYes, "yes", "y", false, "Save without confirming the preview")
}
