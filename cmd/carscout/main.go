package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/pkg/carscout"
)

var (
	cfgFile string
	verbose bool
)

// scrapeFlags holds the scrape command's flag values.
type scrapeFlags struct {
	sampleSize  int
	outputPath  string
	outputType  string
	schema      string
	minDelay    time.Duration
	maxDelay    time.Duration
	onPageError string
	fetcherType string
	parserType  string
	timeout     time.Duration
	maxRetries  int
	mongoURI    string
	postgresDSN string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "carscout",
		Short: "CarScout, a used-car listings scraper for en.autoplius.lt",
		Long: `CarScout walks the used-car listing pages of en.autoplius.lt, extracts
marque, type, fuel, gearbox, manufacturing year, engine size, power, mileage
and price from every listing, and exports the dataset as a delimited file.

Features:
  • Paced sequential fetching with a randomized pause after each page
  • CSS (goquery) or XPath (htmlquery) extraction
  • Combined or brand/model split column layout
  • CSV, JSON and JSONL export with optional MongoDB and PostgreSQL sinks
  • Retries with backoff and an abort or skip policy for failed pages
  • Prometheus metrics endpoint`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	var flags scrapeFlags
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape listings and export them",
		Long:  "Fetch enough listing pages to cover the sample size, extract every listing and export the dataset.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, &flags)
		},
	}

	cmd.Flags().IntVarP(&flags.sampleSize, "sample-size", "n", 100, "number of listings to collect, rounded up to whole pages")
	cmd.Flags().StringVarP(&flags.outputPath, "output", "o", "", "output file path")
	cmd.Flags().StringVarP(&flags.outputType, "format", "f", "", "output format: csv, json, jsonl")
	cmd.Flags().StringVar(&flags.schema, "schema", "", "column layout: combined or split")
	cmd.Flags().DurationVar(&flags.minDelay, "min-delay", 0, "minimum pause after each page")
	cmd.Flags().DurationVar(&flags.maxDelay, "max-delay", 0, "maximum pause after each page")
	cmd.Flags().StringVar(&flags.onPageError, "on-page-error", "", "failed page policy: abort or skip")
	cmd.Flags().StringVar(&flags.fetcherType, "fetcher", "", "fetcher: http or browser")
	cmd.Flags().StringVar(&flags.parserType, "parser", "", "parser engine: css or xpath")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "per-request timeout")
	cmd.Flags().IntVar(&flags.maxRetries, "max-retries", 0, "retries per failed page fetch")
	cmd.Flags().StringVar(&flags.mongoURI, "mongo-uri", "", "also store listings in MongoDB at this URI")
	cmd.Flags().StringVar(&flags.postgresDSN, "postgres-dsn", "", "also store listings in PostgreSQL at this DSN")

	return cmd
}

// runScrape executes the scrape command.
func runScrape(cmd *cobra.Command, flags *scrapeFlags) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	applyCLIOverrides(cmd, cfg, flags)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog, err := setupLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	scraper, err := carscout.New(carscout.WithConfig(cfg), carscout.WithLogger(logger))
	if err != nil {
		return err
	}
	defer scraper.Close()

	if cfg.Metrics.Enabled {
		srv, err := scraper.Metrics().StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
		if err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		} else {
			defer srv.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting scrape",
		"sample_size", cfg.Engine.SampleSize,
		"output", cfg.Storage.OutputPath,
		"format", cfg.Storage.Type,
		"schema", cfg.Storage.Schema,
	)

	start := time.Now()
	res, err := scraper.Scrape(ctx, cfg.Engine.SampleSize)
	if err != nil {
		if res != nil && errors.Is(err, context.Canceled) {
			logger.Info("scrape interrupted", "listings", len(res.Listings))
		}
		return fmt.Errorf("scrape: %w", err)
	}

	printSummary(cmd.OutOrStdout(), res, time.Since(start))
	return nil
}

func printSummary(w io.Writer, res *carscout.Result, elapsed time.Duration) {
	fmt.Fprintf(w, "\n✅ Scrape complete in %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "   Pages:     %d requested, %d retried, %d skipped\n",
		res.Stats["pages_requested"], res.Stats["pages_retried"], res.Stats["pages_skipped"])
	fmt.Fprintf(w, "   Listings:  %d extracted, %d exported\n", res.Stats["listings_extracted"], res.Stats["listings_exported"])
	fmt.Fprintf(w, "   Data:      %d bytes downloaded\n", res.Stats["bytes_downloaded"])
	fmt.Fprintf(w, "   Output:    %s\n", res.OutputPath)
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "CarScout %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "Engine:\n")
	fmt.Fprintf(w, "  Sample Size:       %d\n", cfg.Engine.SampleSize)
	fmt.Fprintf(w, "  Page Size:         %d\n", cfg.Engine.PageSize)
	fmt.Fprintf(w, "  URL Template:      %s\n", cfg.Engine.URLTemplate)
	fmt.Fprintf(w, "  Delay:             %s - %s\n", cfg.Engine.MinDelay, cfg.Engine.MaxDelay)
	fmt.Fprintf(w, "  Request Timeout:   %s\n", cfg.Engine.RequestTimeout)
	fmt.Fprintf(w, "  Max Retries:       %d\n", cfg.Engine.MaxRetries)
	fmt.Fprintf(w, "  On Page Error:     %s\n", cfg.Engine.OnPageError)
	fmt.Fprintf(w, "\nFetcher:\n")
	fmt.Fprintf(w, "  Type:              %s\n", cfg.Fetcher.Type)
	fmt.Fprintf(w, "  User Agent:        %s\n", cfg.Fetcher.UserAgent)
	fmt.Fprintf(w, "  Accept-Language:   %s\n", cfg.Fetcher.AcceptLanguage)
	fmt.Fprintf(w, "  Max Body Size:     %d bytes\n", cfg.Fetcher.MaxBodySize)
	fmt.Fprintf(w, "\nProxy:\n")
	fmt.Fprintf(w, "  Enabled:           %v\n", cfg.Proxy.Enabled)
	fmt.Fprintf(w, "  Rotation:          %s\n", cfg.Proxy.Rotation)
	fmt.Fprintf(w, "  Count:             %d\n", len(cfg.Proxy.URLs))
	fmt.Fprintf(w, "\nParser:\n")
	fmt.Fprintf(w, "  Engine:            %s\n", cfg.Parser.Engine)
	fmt.Fprintf(w, "  Listing Class:     %s\n", cfg.Parser.ListingClass)
	fmt.Fprintf(w, "\nStorage:\n")
	fmt.Fprintf(w, "  Type:              %s\n", cfg.Storage.Type)
	fmt.Fprintf(w, "  Output Path:       %s\n", cfg.Storage.OutputPath)
	fmt.Fprintf(w, "  Schema:            %s\n", cfg.Storage.Schema)
	fmt.Fprintf(w, "  Delimiter:         %q\n", cfg.Storage.Delimiter)
	fmt.Fprintf(w, "  MongoDB:           %v\n", cfg.Storage.Mongo.Enabled)
	fmt.Fprintf(w, "  PostgreSQL:        %v\n", cfg.Storage.Postgres.Enabled)
	fmt.Fprintf(w, "\nMetrics:\n")
	fmt.Fprintf(w, "  Enabled:           %v\n", cfg.Metrics.Enabled)
	fmt.Fprintf(w, "  Port:              %d\n", cfg.Metrics.Port)
}

// setupLogger creates a structured logger from the logging section. The
// returned func closes a log file when one was opened.
func setupLogger(cfg *config.LoggingConfig) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	closer := func() {}
	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

// applyCLIOverrides applies the flags set on the command line to the config.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config, flags *scrapeFlags) {
	set := cmd.Flags().Changed

	if set("sample-size") {
		cfg.Engine.SampleSize = flags.sampleSize
	}
	if set("output") {
		cfg.Storage.OutputPath = flags.outputPath
	}
	if set("format") {
		cfg.Storage.Type = strings.ToLower(flags.outputType)
	}
	if set("schema") {
		cfg.Storage.Schema = strings.ToLower(flags.schema)
	}
	if set("min-delay") {
		cfg.Engine.MinDelay = flags.minDelay
	}
	if set("max-delay") {
		cfg.Engine.MaxDelay = flags.maxDelay
	}
	if set("on-page-error") {
		cfg.Engine.OnPageError = strings.ToLower(flags.onPageError)
	}
	if set("fetcher") {
		cfg.Fetcher.Type = flags.fetcherType
	}
	if set("parser") {
		cfg.Parser.Engine = flags.parserType
	}
	if set("timeout") {
		cfg.Engine.RequestTimeout = flags.timeout
	}
	if set("max-retries") {
		cfg.Engine.MaxRetries = flags.maxRetries
	}
	if set("mongo-uri") {
		cfg.Storage.Mongo.Enabled = true
		cfg.Storage.Mongo.URI = flags.mongoURI
	}
	if set("postgres-dsn") {
		cfg.Storage.Postgres.Enabled = true
		cfg.Storage.Postgres.DSN = flags.postgresDSN
	}
}
