package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

// BrowserFetcher implements Fetcher using a headless browser via Rod.
// Pages are opened one at a time and closed after each fetch.
type BrowserFetcher struct {
	browser    *rod.Browser
	cfg        *config.Config
	stealthCfg *StealthConfig
	proxyMgr   *ProxyManager
	logger     *slog.Logger
}

// BrowserOption configures the BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithStealth enables stealth mode with the given configuration.
func WithStealth(cfg *StealthConfig) BrowserOption {
	return func(bf *BrowserFetcher) { bf.stealthCfg = cfg }
}

// WithBrowserProxy sets the proxy manager for browser requests.
func WithBrowserProxy(pm *ProxyManager) BrowserOption {
	return func(bf *BrowserFetcher) { bf.proxyMgr = pm }
}

// NewBrowserFetcher launches a headless Chromium and connects to it.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger, opts ...BrowserOption) (*BrowserFetcher, error) {
	bf := &BrowserFetcher{
		cfg:    cfg,
		logger: logger.With("component", "browser_fetcher"),
	}

	for _, opt := range opts {
		opt(bf)
	}

	launchURL, err := bf.launchBrowser()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	bf.browser = browser

	bf.logger.Info("browser fetcher ready", "stealth", bf.stealthCfg != nil)
	return bf, nil
}

// launchBrowser starts a Chromium instance with appropriate flags.
func (bf *BrowserFetcher) launchBrowser() (string, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	// The browser binds one proxy for its lifetime.
	if bf.proxyMgr != nil {
		if proxyURL := bf.proxyMgr.Next(); proxyURL != nil {
			l = l.Proxy(proxyURL.String())
		}
	}

	if bf.stealthCfg != nil && bf.stealthCfg.WindowSize != "" {
		l = l.Set("window-size", bf.stealthCfg.WindowSize)
	}

	return l.Launch()
}

// Fetch navigates to the listings page and returns the rendered HTML.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	start := time.Now()

	page, err := bf.newPage()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx)

	headers := pageHeaders(&bf.cfg.Fetcher)
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      headers["User-Agent"],
		AcceptLanguage: headers["Accept-Language"],
	}); err != nil {
		bf.logger.Warn("failed to set user agent", "error", err)
	}

	extra := make([]string, 0, len(req.Headers)*2)
	for k, vals := range req.Headers {
		for _, v := range vals {
			extra = append(extra, k, v)
		}
	}
	if len(extra) > 0 {
		if _, err := page.SetExtraHeaders(extra); err != nil {
			bf.logger.Warn("failed to set extra headers", "error", err)
		}
	}

	timeout := bf.cfg.Engine.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	if err := page.Timeout(timeout).Navigate(req.URLString()); err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}

	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", req.URLString(), "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}

	finalURL := req.URLString()
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	// Rod doesn't expose the document status code; a rendered page counts as 200.
	resp := types.NewBrowserResponse(req, 200, []byte(html), finalURL, duration)

	bf.logger.Debug("browser fetch complete",
		"url", req.URLString(),
		"page", req.Page,
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)

	return resp, nil
}

// newPage opens a blank page, patched for stealth when configured.
func (bf *BrowserFetcher) newPage() (*rod.Page, error) {
	if bf.stealthCfg == nil {
		return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}

	page, err := stealth.Page(bf.browser)
	if err != nil {
		return nil, fmt.Errorf("stealth page: %w", err)
	}
	if _, err := page.EvalOnNewDocument(bf.stealthCfg.StealthJS()); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("inject stealth script: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             bf.stealthCfg.ViewportWidth,
		Height:            bf.stealthCfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		bf.logger.Warn("failed to set viewport", "error", err)
	}
	return page, nil
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}
