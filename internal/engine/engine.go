// Package engine walks the listing pages of a scrape run one at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/observability"
	"github.com/IshaanNene/carscout/internal/types"
)

// State represents the engine's current lifecycle state.
type State int32

const (
	StateIdle     State = 0
	StateRunning  State = 1
	StateStopping State = 2
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Fetcher is the interface for all fetcher implementations.
type Fetcher interface {
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)
	Close() error
}

// Parser is the interface for all parser implementations.
type Parser interface {
	Parse(resp *types.Response) ([]types.Listing, error)
}

// Pipeline is the interface for the listing processing pipeline.
type Pipeline interface {
	ProcessAll(listings []types.Listing) error
}

// Storage is the interface for all storage backends.
type Storage interface {
	Store(listings []types.Listing) error
	Close() error
}

// Engine runs a scrape: fetch, parse and transform each page in order,
// then export the whole dataset once.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	fetcher  Fetcher
	parser   Parser
	pipeline Pipeline
	storage  Storage

	// sleep and jitter are replaced in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64

	state  atomic.Int32
	mu     sync.Mutex
	cancel context.CancelCauseFunc
}

// New creates a new Engine with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if metrics == nil {
		metrics = observability.NewMetrics(logger)
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger.With("component", "engine"),
		metrics: metrics,
		sleep:   sleepContext,
		jitter:  rand.Int64N,
	}
}

// SetFetcher sets the fetcher implementation.
func (e *Engine) SetFetcher(f Fetcher) { e.fetcher = f }

// SetParser sets the parser implementation.
func (e *Engine) SetParser(p Parser) { e.parser = p }

// SetPipeline sets the pipeline implementation.
func (e *Engine) SetPipeline(p Pipeline) { e.pipeline = p }

// SetStorage sets the storage implementation. Without one the dataset is
// only returned.
func (e *Engine) SetStorage(s Storage) { e.storage = s }

// Metrics returns the run metrics.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

// GetState returns the current engine state.
func (e *Engine) GetState() State {
	return State(e.state.Load())
}

// Stop cancels a running scrape. Run returns types.ErrStopped.
func (e *Engine) Stop() {
	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return
	}
	e.logger.Info("engine stopping...")
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel(types.ErrStopped)
	}
}

// Run scrapes enough pages to cover sampleSize listings and exports the
// result. On failure it returns the listings collected so far together
// with the error and exports nothing. Storage is closed before Run returns.
func (e *Engine) Run(ctx context.Context, sampleSize int) ([]types.Listing, error) {
	if e.fetcher == nil {
		return nil, types.ErrNoFetcher
	}
	if e.parser == nil {
		return nil, errors.New("engine has no parser")
	}
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("engine is in state %s, cannot run", e.GetState())
	}
	defer e.state.Store(int32(StateIdle))

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	if e.storage != nil {
		defer func() {
			if err := e.storage.Close(); err != nil {
				e.logger.Error("storage close error", "error", err)
			}
		}()
	}

	pages := PageCount(sampleSize, e.cfg.Engine.PageSize)
	start := time.Now()
	e.logger.Info("engine starting",
		"sample_size", sampleSize,
		"pages", pages,
		"min_delay", e.cfg.Engine.MinDelay,
		"max_delay", e.cfg.Engine.MaxDelay,
		"on_page_error", e.cfg.Engine.OnPageError,
	)

	var dataset []types.Listing
	for page := 1; page <= pages; page++ {
		if ctx.Err() != nil {
			return dataset, context.Cause(ctx)
		}

		batch, err := e.scrapePage(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return dataset, context.Cause(ctx)
			}
			var pipeErr *types.PipelineError
			if errors.As(err, &pipeErr) {
				return dataset, err
			}

			e.metrics.PagesFailed.Add(1)
			if e.cfg.Engine.OnPageError != config.OnPageErrorSkip {
				return dataset, fmt.Errorf("page %d: %w", page, err)
			}
			e.metrics.PagesSkipped.Add(1)
			e.logger.Warn("page skipped", "page", page, "error", err)
		} else {
			dataset = append(dataset, batch...)
		}

		if err := e.sleep(ctx, e.pageDelay()); err != nil {
			return dataset, context.Cause(ctx)
		}
	}

	if err := e.export(dataset); err != nil {
		return dataset, err
	}

	e.logger.Info("engine finished",
		"listings", len(dataset),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
		"stats", e.metrics.Snapshot(),
	)
	return dataset, nil
}

// scrapePage fetches, parses and transforms one page.
func (e *Engine) scrapePage(ctx context.Context, page int) ([]types.Listing, error) {
	resp, err := e.fetchPage(ctx, page)
	if err != nil {
		return nil, err
	}

	batch, err := e.parser.Parse(resp)
	if err != nil {
		return nil, err
	}

	if e.pipeline != nil {
		if err := e.pipeline.ProcessAll(batch); err != nil {
			return nil, err
		}
	}
	for i := range batch {
		e.metrics.RecordListing(&batch[i])
	}

	e.logger.Info("page scraped",
		"page", page,
		"listings", len(batch),
		"duration", resp.FetchDuration.Round(time.Millisecond).String(),
	)
	return batch, nil
}

// maxBackoff caps the wait between retries of one page.
const maxBackoff = 2 * time.Minute

// backoff returns base doubled for every retry after the first, capped at
// maxBackoff.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	wait := base
	for i := 1; i < attempt; i++ {
		if wait >= maxBackoff/2 {
			return maxBackoff
		}
		wait *= 2
	}
	return min(wait, maxBackoff)
}

// fetchPage fetches a page, retrying retryable failures with exponential
// backoff. A Retry-After longer than the backoff wins.
func (e *Engine) fetchPage(ctx context.Context, page int) (*types.Response, error) {
	pageURL := e.cfg.Engine.PageURL(page)
	e.metrics.PagesRequested.Add(1)

	var lastErr error
	for attempt := 0; attempt <= e.cfg.Engine.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff(e.cfg.Engine.RetryDelay, attempt)
			var fe *types.FetchError
			if errors.As(lastErr, &fe) && fe.RetryAfter > wait {
				wait = fe.RetryAfter
			}
			e.metrics.PagesRetried.Add(1)
			e.logger.Warn("retrying page", "page", page, "attempt", attempt, "wait", wait, "error", lastErr)
			if err := e.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		req, err := types.NewPageRequest(pageURL, page)
		if err != nil {
			return nil, err
		}
		req.Attempt = attempt
		req.Timeout = e.cfg.Engine.RequestTimeout

		resp, err := e.fetcher.Fetch(ctx, req)
		if err == nil {
			e.metrics.RecordResponse(resp.StatusCode, len(resp.Body))
			return resp, nil
		}

		var fe *types.FetchError
		if errors.As(err, &fe) && fe.StatusCode > 0 {
			e.metrics.RecordResponse(fe.StatusCode, 0)
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", types.ErrMaxRetries, lastErr)
}

func isRetryable(err error) bool {
	var fe *types.FetchError
	return errors.As(err, &fe) && fe.IsRetryable()
}

// pageDelay draws the pause after a page uniformly from [MinDelay, MaxDelay].
func (e *Engine) pageDelay() time.Duration {
	lo, hi := e.cfg.Engine.MinDelay, e.cfg.Engine.MaxDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(e.jitter(int64(hi-lo)+1))
}

// export hands the complete dataset to storage in a single Store call.
// Storage is closed when Run returns, exported or not.
func (e *Engine) export(dataset []types.Listing) error {
	if e.storage == nil {
		return nil
	}
	if err := e.storage.Store(dataset); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	e.metrics.ListingsExported.Add(int64(len(dataset)))
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
