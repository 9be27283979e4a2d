package fetcher

import (
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"

	"github.com/IshaanNene/carscout/internal/config"
)

// ProxyManager rotates outgoing requests over a fixed proxy list.
// The run is sequential; the mutex only guards use from http.Transport.
type ProxyManager struct {
	proxies  []*url.URL
	rotation string
	next     int
	mu       sync.Mutex
	logger   *slog.Logger
}

// NewProxyManager creates a new ProxyManager from configuration.
// Unparsable proxy URLs are logged and skipped.
func NewProxyManager(cfg *config.ProxyConfig, logger *slog.Logger) *ProxyManager {
	pm := &ProxyManager{
		proxies:  make([]*url.URL, 0, len(cfg.URLs)),
		rotation: cfg.Rotation,
		logger:   logger.With("component", "proxy_manager"),
	}

	for _, rawURL := range cfg.URLs {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			pm.logger.Warn("invalid proxy URL", "url", rawURL, "error", err)
			continue
		}
		pm.proxies = append(pm.proxies, u)
	}

	pm.logger.Info("proxy manager initialized", "count", len(pm.proxies), "rotation", cfg.Rotation)
	return pm
}

// ProxyFunc returns an http.Transport-compatible proxy function.
func (pm *ProxyManager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		return pm.Next(), nil // nil = direct connection
	}
}

// Next returns the next proxy URL based on the rotation strategy,
// or nil when no proxy is configured.
func (pm *ProxyManager) Next() *url.URL {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) == 0 {
		return nil
	}

	switch pm.rotation {
	case "random":
		return pm.proxies[rand.Intn(len(pm.proxies))]
	default: // round_robin
		u := pm.proxies[pm.next%len(pm.proxies)]
		pm.next++
		return u
	}
}

// Count returns the number of usable proxies.
func (pm *ProxyManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.proxies)
}
