package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/JakeFAU/articlescraper/internal/clock/system"
	"github.com/JakeFAU/articlescraper/internal/config"
	"github.com/JakeFAU/articlescraper/internal/dispatcher"
	"github.com/JakeFAU/articlescraper/internal/extractor"
	collyfetcher "github.com/JakeFAU/articlescraper/internal/fetcher/colly"
	"github.com/JakeFAU/articlescraper/internal/id/uuid"
	"github.com/JakeFAU/articlescraper/internal/logging"
	"github.com/JakeFAU/articlescraper/internal/metrics"
	"github.com/JakeFAU/articlescraper/internal/policy/ratelimit"
	"github.com/JakeFAU/articlescraper/internal/progress"
	"github.com/JakeFAU/articlescraper/internal/progress/sinks"
	"github.com/JakeFAU/articlescraper/internal/report"
	"github.com/JakeFAU/articlescraper/internal/tabular"
)

type scrapeFlags struct {
	cfgFile   *string
	noShuffle bool
}

func newScrapeCmd(cfgFile *string) *cobra.Command {
	flags := &scrapeFlags{cfgFile: cfgFile}
	cmd := &cobra.Command{
		Use:   "scrape <input.csv|input.xlsx>",
		Short: "Scrape every URL in the input table",
		Long: `Loads the input table (it must have a URL column), drops blank and
duplicate URLs, shuffles the rows, and splits them across worker goroutines.
Each row ends up SUCCESS with its title and text, or ERROR. The result is
written to <input>_output.xlsx unless --output is given.`,
		Example: `  articlescraper scrape links.csv
  articlescraper scrape links.xlsx -t 16 --seed 42 -o results.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, args[0], flags)
		},
	}
	fs := cmd.Flags()
	fs.IntP("threads", "t", 4, "number of worker goroutines")
	fs.StringP("output", "o", "", "output .xlsx path (default <input>_output.xlsx)")
	fs.Uint64("seed", 0, "shuffle seed; 0 picks a random order")
	fs.BoolVar(&flags.noShuffle, "no-shuffle", false, "keep input row order")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")
	return cmd
}

func flagBindings(fs *pflag.FlagSet) map[string]*pflag.Flag {
	return map[string]*pflag.Flag{
		"scrape.workers": fs.Lookup("threads"),
		"scrape.seed":    fs.Lookup("seed"),
		"output.path":    fs.Lookup("output"),
		"metrics.addr":   fs.Lookup("metrics-addr"),
	}
}

func runScrape(cmd *cobra.Command, input string, flags *scrapeFlags) error {
	started := time.Now()
	ctx := cmd.Context()

	cfg, err := config.Load(*flags.cfgFile, flagBindings(cmd.Flags()))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.noShuffle {
		cfg.Scrape.Shuffle = false
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() {
		if syncErr := logging.Sync(logger); syncErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	table, err := tabular.Load(input)
	if err != nil {
		logger.Error("load input failed", zap.String("input", input), zap.Error(err))
		return err
	}
	table, prepared := tabular.Prepare(table, tabular.PrepareOptions{
		Dedupe:  cfg.Scrape.Dedupe,
		Shuffle: cfg.Scrape.Shuffle,
		Seed:    cfg.Scrape.Seed,
	})
	if err := table.Validate(); err != nil {
		logger.Error("input rejected", zap.String("input", input), zap.Error(err))
		return err
	}
	logger.Info("input loaded",
		zap.String("input", input),
		zap.Int("rows", table.Len()),
		zap.Int("blank_dropped", prepared.Blank),
		zap.Int("duplicates_dropped", prepared.Duplicates),
	)

	registerer := prometheus.Registerer(prometheus.NewRegistry())
	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Start(cfg.Metrics.Addr, logger.Named("metrics"))
		if err != nil {
			return err
		}
		defer func() {
			if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("metrics server shutdown failed", zap.Error(err))
			}
		}()
		registerer = prometheus.DefaultRegisterer
	}

	hub, err := newProgressHub(registerer, logger)
	if err != nil {
		return err
	}
	defer func() { _ = hub.Close(context.WithoutCancel(ctx)) }()

	ex, err := newExtractor(cfg, logger)
	if err != nil {
		return err
	}
	d := dispatcher.New(ex, hub, uuid.New(), system.New(), logger)

	summary, scrapeErr := d.Scrape(ctx, table, cfg.Scrape.Workers)
	if scrapeErr != nil && !errors.Is(scrapeErr, context.Canceled) {
		return fmt.Errorf("scrape: %w", scrapeErr)
	}
	if err := hub.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	if dropped := hub.Dropped(); dropped > 0 {
		logger.Warn("progress events dropped", zap.Int64("dropped", dropped))
	}

	output := cfg.Output.Path
	if output == "" {
		output = tabular.OutputPath(input)
	}
	if err := tabular.Write(output, table); err != nil {
		logger.Error("write output failed", zap.String("output", output), zap.Error(err))
		return err
	}
	logger.Info("output written", zap.String("output", output))

	report.Render(cmd.OutOrStdout(), report.Run{
		Input:         input,
		Output:        output,
		Prepared:      prepared,
		Summary:       summary,
		DroppedEvents: hub.Dropped(),
		Elapsed:       time.Since(started),
	})
	if scrapeErr != nil {
		return fmt.Errorf("scrape: %w", scrapeErr)
	}
	return nil
}

func newProgressHub(reg prometheus.Registerer, logger *zap.Logger) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	progressLogger := logger.Named("progress")
	return progress.NewHub(progress.Config{Logger: progressLogger},
		sinks.NewLogSink(progressLogger),
		promSink,
	), nil
}

func newExtractor(cfg config.Config, logger *zap.Logger) (*extractor.Extractor, error) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.Timeout(),
		MaxBodySize:   cfg.HTTP.MaxBodyBytes,
	})
	limiter := ratelimit.New(ratelimit.Config{PerDomainRPS: cfg.HTTP.RateLimitPerDomain})
	ex, err := extractor.New(fetcher, limiter, extractor.Config{
		Retry: extractor.RetryConfig{
			MaxRetries:      uint64(cfg.HTTP.MaxRetries),
			InitialInterval: cfg.BackoffInitial(),
			MaxInterval:     cfg.BackoffMax(),
		},
		MinTextLength: cfg.Extract.MinTextLength,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	return ex, nil
}
