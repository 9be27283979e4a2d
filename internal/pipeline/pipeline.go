// Package pipeline runs per-listing transforms between parsing and export.
package pipeline

import (
	"log/slog"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

// Middleware transforms a listing in place.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a listing. A returned error aborts the pipeline.
	Process(l *types.Listing) error
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// FromConfig builds the pipeline a run uses: trimming always, and the
// brand/model split when the split schema is exported.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	if cfg.Storage.Schema == config.SchemaSplit {
		p.Use(&MarqueSplitMiddleware{Strict: cfg.Pipeline.NullMarque == config.NullMarqueFail})
	}
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the listing through all middleware in order.
func (p *Pipeline) Process(l *types.Listing) error {
	for _, mw := range p.middlewares {
		if err := mw.Process(l); err != nil {
			return &types.PipelineError{
				Stage:    mw.Name(),
				Page:     l.Page,
				Position: l.Position,
				Err:      err,
			}
		}
	}
	return nil
}

// ProcessAll runs every listing of a batch and stops at the first failure.
func (p *Pipeline) ProcessAll(listings []types.Listing) error {
	for i := range listings {
		if err := p.Process(&listings[i]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}
