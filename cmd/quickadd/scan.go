// cmd/quickadd/scan.go
package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
	"github.com/Ian-Chin/iunami-ai-extension/internal/notion"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [page-id-or-url]",
	Short: "List the databases embedded in a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		pageID, err := core.ExtractNotionID(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		refs, err := notion.NewScanner(s.notion, s.cfg.ScanMaxDepth, s.cfg.ScanConcurrency).Scan(ctx, s.token, pageID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(refs) == 0 {
			fmt.Fprintln(out, "No databases found on this page.")
			return nil
		}
		cyan := color.New(color.FgCyan).SprintFunc()
		for _, ref := range refs {
			title := ref.Title
			if title == "" {
				title = "Untitled"
			}
			fmt.Fprintf(out, "%s  %s\n", cyan(ref.ID), title)
		}
		return nil
	},
}
