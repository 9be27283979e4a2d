// Package parser locates listing anchors on a fetched page and extracts
// one record per anchor.
package parser

import (
	"fmt"
	"log/slog"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

// Parser extracts listings from a fetched page.
type Parser interface {
	// Parse returns one listing per anchor, in document order.
	// Page-level failures are returned as *types.ParseError.
	Parse(resp *types.Response) ([]types.Listing, error)
}

// New creates the parser selected by cfg.Engine.
func New(cfg *config.ParserConfig, logger *slog.Logger) (Parser, error) {
	switch cfg.Engine {
	case "css", "":
		return NewCSSParser(cfg, logger), nil
	case "xpath":
		return NewXPathParser(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown parser engine %q", cfg.Engine)
	}
}
