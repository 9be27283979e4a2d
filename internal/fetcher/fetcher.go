// Package fetcher retrieves listings pages over HTTP or through a headless browser.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

// Fetcher is the interface for all page fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New creates the fetcher selected by cfg.Fetcher.Type.
func New(cfg *config.Config, logger *slog.Logger) (Fetcher, error) {
	switch cfg.Fetcher.Type {
	case "http", "":
		return NewHTTPFetcher(cfg, logger)
	case "browser":
		var opts []BrowserOption
		if cfg.Fetcher.Stealth {
			opts = append(opts, WithStealth(DefaultStealthConfig(cfg.Fetcher.UserAgent)))
		}
		if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
			opts = append(opts, WithBrowserProxy(NewProxyManager(&cfg.Proxy, logger)))
		}
		return NewBrowserFetcher(cfg, logger, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown fetcher type %q", types.ErrNoFetcher, cfg.Fetcher.Type)
	}
}

// pageHeaders returns the fixed browser-like header set sent with every page request.
func pageHeaders(cfg *config.FetcherConfig) map[string]string {
	return map[string]string{
		"User-Agent":      cfg.UserAgent,
		"Accept-Language": cfg.AcceptLanguage,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	}
}
