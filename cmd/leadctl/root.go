package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/JonMunkholm/leadflow/internal/config"
	"github.com/JonMunkholm/leadflow/internal/logging"
	"github.com/JonMunkholm/leadflow/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	db       string
	tenant   string
	format   string
	logLevel string
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "leadctl",
		Short:         "Import leads from CSV and Excel files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.format, validFormats)
			}
			// Logs go to stderr so JSON output stays parseable.
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
			return nil
		},
	}

	// A missing .env is fine; explicit environment variables win.
	_ = godotenv.Load()

	cmd.PersistentFlags().StringVar(&opts.db, "db", envOr("DATABASE_URL", "sqlite://leadflow.db"),
		"lead store: postgres:// URL or sqlite://path")
	cmd.PersistentFlags().StringVar(&opts.tenant, "tenant", envOr("LEADFLOW_TENANT", "default"), "tenant id")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug|info|warn|error)")

	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newDetectCommand(opts))
	cmd.AddCommand(newCampaignCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newTemplateCommand(opts))

	return cmd
}

// openStore connects to the store named by --db.
func (o *rootOptions) openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, config.StoreConfig{URL: o.db})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
