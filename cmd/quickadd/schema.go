// cmd/quickadd/schema.go
package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
)

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:   "schema [database-id-or-url]",
	Short: "Show the writable fields of a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		_, result, err := s.loadSchema(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSchema(cmd.OutOrStdout(), result)
		return nil
	},
}

// promptCmd represents the prompt command
var promptCmd = &cobra.Command{
	Use:   "prompt [database-id-or-url]",
	Short: "Print the extraction prompt the model would receive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		_, result, err := s.loadSchema(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), core.BuildPrompt(result.Schemas, time.Now()))
		return nil
	},
}

// loadSchema resolves a database id or link and normalizes its schema.
func (s *session) loadSchema(ctx context.Context, ref string) (string, core.NormalizeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	databaseID, err := core.ExtractNotionID(ref)
	if err != nil {
		return "", core.NormalizeResult{}, err
	}
	db, err := s.notion.GetDatabase(ctx, s.token, databaseID)
	if err != nil {
		return "", core.NormalizeResult{}, fmt.Errorf("failed to load database %s: %w", databaseID, err)
	}
	return databaseID, core.Normalize(db.Properties), nil
}

func printSchema(w io.Writer, result core.NormalizeResult) {
	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	for _, field := range result.Schemas {
		line := fmt.Sprintf("  %-24s %s", bold(field.Name), field.Type)
		if len(field.Options) > 0 {
			line += faint(" [" + strings.Join(field.Options, ", ") + "]")
		}
		fmt.Fprintln(w, line)
	}
	if len(result.Unsupported) > 0 {
		fmt.Fprintf(w, "\nNot writable: %s\n", faint(strings.Join(result.Unsupported, ", ")))
	}
}
