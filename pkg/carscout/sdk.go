// Package carscout provides a public SDK for embedding the listings scraper
// as a library.
//
// Example usage:
//
//	s, err := carscout.New(
//	    carscout.WithOutput("csv", "autoplius.csv"),
//	    carscout.WithSchema("split"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	res, err := s.Scrape(ctx, 100)
package carscout

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/engine"
	"github.com/IshaanNene/carscout/internal/fetcher"
	"github.com/IshaanNene/carscout/internal/observability"
	"github.com/IshaanNene/carscout/internal/parser"
	"github.com/IshaanNene/carscout/internal/pipeline"
	"github.com/IshaanNene/carscout/internal/storage"
	"github.com/IshaanNene/carscout/internal/types"
)

// Listing is one scraped listing.
type Listing = types.Listing

// Config is the scraper configuration.
type Config = config.Config

// Result is the outcome of a scrape.
type Result struct {
	// Listings is the in-memory dataset in page then anchor order.
	Listings []Listing

	// OutputPath is the exported file, empty when nothing was exported.
	OutputPath string

	// Stats is a snapshot of the run metrics.
	Stats map[string]int64
}

// Scraper is the high-level API for using the scraper as a library.
type Scraper struct {
	cfg     *config.Config
	logger  *slog.Logger
	fetcher fetcher.Fetcher
	parser  parser.Parser
	metrics *observability.Metrics
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithConfig replaces the default configuration. Later options still apply.
func WithConfig(cfg *config.Config) Option {
	return func(s *Scraper) { s.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) { s.logger = logger }
}

// WithDelay sets the bounds of the randomized pause after each page.
func WithDelay(minDelay, maxDelay time.Duration) Option {
	return func(s *Scraper) {
		s.cfg.Engine.MinDelay = minDelay
		s.cfg.Engine.MaxDelay = maxDelay
	}
}

// WithOutput sets the output format and path.
func WithOutput(format, path string) Option {
	return func(s *Scraper) {
		s.cfg.Storage.Type = format
		s.cfg.Storage.OutputPath = path
	}
}

// WithSchema selects the combined or split column layout.
func WithSchema(schema string) Option {
	return func(s *Scraper) { s.cfg.Storage.Schema = schema }
}

// WithURLTemplate sets the listing page URL template. It must contain {page}.
func WithURLTemplate(template string) Option {
	return func(s *Scraper) { s.cfg.Engine.URLTemplate = template }
}

// WithPageErrorPolicy sets what happens when a page fails: "abort" or "skip".
func WithPageErrorPolicy(policy string) Option {
	return func(s *Scraper) { s.cfg.Engine.OnPageError = policy }
}

// New creates a Scraper with the given options.
func New(opts ...Option) (*Scraper, error) {
	s := &Scraper{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}

	if err := config.Validate(s.cfg); err != nil {
		return nil, err
	}

	if s.logger == nil {
		level := slog.LevelInfo
		if s.cfg.Logging.Level == "debug" {
			level = slog.LevelDebug
		}
		s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	f, err := fetcher.New(s.cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	s.fetcher = f

	p, err := parser.New(&s.cfg.Parser, s.logger)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create parser: %w", err)
	}
	s.parser = p
	s.metrics = observability.NewMetrics(s.logger)

	return s, nil
}

// Config returns the effective configuration.
func (s *Scraper) Config() *config.Config { return s.cfg }

// Metrics returns the metrics shared by every scrape of this Scraper.
func (s *Scraper) Metrics() *observability.Metrics { return s.metrics }

// Scrape collects about sampleSize listings and exports them. On error the
// listings collected before the failure are still returned.
func (s *Scraper) Scrape(ctx context.Context, sampleSize int) (*Result, error) {
	store, err := storage.New(&s.cfg.Storage, s.logger)
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}

	eng := engine.New(s.cfg, s.logger, s.metrics)
	eng.SetFetcher(s.fetcher)
	eng.SetParser(s.parser)
	eng.SetPipeline(pipeline.FromConfig(s.cfg, s.logger))
	eng.SetStorage(store)

	listings, err := eng.Run(ctx, sampleSize)
	res := &Result{
		Listings: listings,
		Stats:    s.metrics.Snapshot(),
	}
	if err != nil {
		return res, err
	}
	res.OutputPath = s.cfg.Storage.OutputPath
	return res, nil
}

// Close releases the fetcher.
func (s *Scraper) Close() error {
	return s.fetcher.Close()
}
