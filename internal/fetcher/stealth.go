package fetcher

import (
	"fmt"
	"math/rand"
)

// StealthConfig configures fingerprint spoofing for the browser fetcher.
type StealthConfig struct {
	// UserAgent reported by the page; empty keeps the browser default.
	UserAgent string

	// Viewport dimensions
	ViewportWidth  int
	ViewportHeight int

	// WindowSize for browser launch, "w,h"
	WindowSize string

	// Language override (e.g., "en-US")
	Language string

	// Platform override (e.g., "Win32", "MacIntel", "Linux x86_64")
	Platform string

	// Hardware concurrency (number of CPU cores to report)
	HardwareConcurrency int
}

// DefaultStealthConfig returns a stealth configuration that mimics a typical
// desktop browser running the given User-Agent.
func DefaultStealthConfig(userAgent string) *StealthConfig {
	viewports := []struct{ w, h int }{
		{1920, 1080}, {1366, 768}, {1536, 864}, {1440, 900},
	}
	vp := viewports[rand.Intn(len(viewports))]

	return &StealthConfig{
		UserAgent:           userAgent,
		ViewportWidth:       vp.w,
		ViewportHeight:      vp.h,
		WindowSize:          fmt.Sprintf("%d,%d", vp.w, vp.h),
		Language:            "en-US",
		Platform:            "Linux x86_64", // matches the default X11 User-Agent
		HardwareConcurrency: 4 + rand.Intn(5),
	}
}

// StealthJS returns JavaScript injected into every page before any other
// script runs. It complements go-rod/stealth with the configured locale.
func (sc *StealthConfig) StealthJS() string {
	return fmt.Sprintf(`
Object.defineProperty(navigator, 'platform', { get: () => '%s' });
Object.defineProperty(navigator, 'language', { get: () => '%s' });
Object.defineProperty(navigator, 'languages', { get: () => ['%s', 'en'] });
Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
Object.defineProperty(navigator, 'webdriver', { get: () => false });
`, sc.Platform, sc.Language, sc.Language, sc.HardwareConcurrency)
}
