// cmd/quickadd/main.go
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ian-Chin/iunami-ai-extension/config"
	"github.com/Ian-Chin/iunami-ai-extension/internal/logger"
	"github.com/Ian-Chin/iunami-ai-extension/internal/notion"
)

var (
	customLog = logger.NewLogger()

	tokenFlag string
)

// ErrMissingToken is returned when neither --token nor NOTION_TOKEN is set.
var ErrMissingToken = errors.New("no Notion token: pass --token or set NOTION_TOKEN")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quickadd",
	Short: "Add entries to Notion databases from the terminal",
	Long: "quickadd reads a Notion database schema and creates pages in it, either from " +
		"explicit field values or from a sentence parsed by the language model.",
	SilenceUsage: true,
}

// session bundles what every subcommand needs.
type session struct {
	cfg    *config.Config
	token  string
	notion *notion.Client
}

func newSession() (*session, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	token := tokenFlag
	if token == "" {
		token = os.Getenv("NOTION_TOKEN")
	}
	if token == "" {
		return nil, ErrMissingToken
	}
	client := notion.NewClient(notion.Options{
		BaseURL:   cfg.NotionAPIURL,
		Version:   cfg.NotionVersion,
		RateLimit: cfg.NotionRateLimit,
	})
	return &session{cfg: cfg, token: token, notion: client}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Notion integration token (defaults to $NOTION_TOKEN)")

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(promptCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(scanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		customLog.Debugf("quickadd failed: %v", err)
		os.Exit(1)
	}
}
