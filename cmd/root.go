// Package cmd defines the articlescraper command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/articlescraper/internal/logging"
)

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "articlescraper",
		Short: "Bulk-fetch articles listed in a CSV or Excel file.",
		Long: `articlescraper reads a table of URLs, fetches every page concurrently,
extracts each article's title and body text, and writes the table back out
with STATUS, ARTICLE_TITLE and TEXT columns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newScrapeCmd(&cfgFile))
	return cmd
}

// Execute runs the CLI and exits non-zero on failure. SIGINT and SIGTERM
// cancel the run; rows already scraped are still written.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		// zap.L() is a no-op until the scrape command has built its logger.
		zap.L().Error("command failed", zap.Error(err))
		_ = logging.Sync(zap.L())
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
