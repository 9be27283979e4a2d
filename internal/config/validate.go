package config

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.PageSize < 1 {
		return fmt.Errorf("engine.page_size must be >= 1, got %d", cfg.Engine.PageSize)
	}
	if !strings.Contains(cfg.Engine.URLTemplate, PagePlaceholder) {
		return fmt.Errorf("engine.url_template must contain %s, got %q", PagePlaceholder, cfg.Engine.URLTemplate)
	}
	if err := ValidateURL(cfg.Engine.PageURL(1)); err != nil {
		return fmt.Errorf("engine.url_template: %w", err)
	}
	if cfg.Engine.MinDelay < 0 {
		return fmt.Errorf("engine.min_delay must be >= 0")
	}
	if cfg.Engine.MaxDelay < cfg.Engine.MinDelay {
		return fmt.Errorf("engine.max_delay (%s) must be >= engine.min_delay (%s)", cfg.Engine.MaxDelay, cfg.Engine.MinDelay)
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	if cfg.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be >= 0, got %d", cfg.Engine.MaxRetries)
	}
	if cfg.Engine.RetryDelay < 0 {
		return fmt.Errorf("engine.retry_delay must be >= 0")
	}
	if cfg.Engine.OnPageError != OnPageErrorAbort && cfg.Engine.OnPageError != OnPageErrorSkip {
		return fmt.Errorf("engine.on_page_error must be 'abort' or 'skip', got %q", cfg.Engine.OnPageError)
	}

	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Parser.Engine != "css" && cfg.Parser.Engine != "xpath" {
		return fmt.Errorf("parser.engine must be 'css' or 'xpath', got %q", cfg.Parser.Engine)
	}
	if cfg.Parser.ListingClass == "" || cfg.Parser.TitleClass == "" || cfg.Parser.PricingClass == "" {
		return fmt.Errorf("parser.listing_class, parser.title_class and parser.pricing_class must be set")
	}

	if cfg.Pipeline.NullMarque != NullMarqueSkip && cfg.Pipeline.NullMarque != NullMarqueFail {
		return fmt.Errorf("pipeline.null_marque must be 'skip' or 'fail', got %q", cfg.Pipeline.NullMarque)
	}

	validStorageTypes := map[string]bool{
		"csv": true, "json": true, "jsonl": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: csv, json, jsonl)", cfg.Storage.Type)
	}
	if cfg.Storage.OutputPath == "" {
		return fmt.Errorf("storage.output_path must be set")
	}
	if cfg.Storage.Schema != SchemaCombined && cfg.Storage.Schema != SchemaSplit {
		return fmt.Errorf("storage.schema must be 'combined' or 'split', got %q", cfg.Storage.Schema)
	}
	if cfg.Storage.Type == "csv" {
		if _, err := DelimiterRune(cfg.Storage.Delimiter); err != nil {
			return err
		}
	}
	if cfg.Storage.Mongo.Enabled && (cfg.Storage.Mongo.URI == "" || cfg.Storage.Mongo.Database == "" || cfg.Storage.Mongo.Collection == "") {
		return fmt.Errorf("storage.mongo requires uri, database and collection when enabled")
	}
	if cfg.Storage.Postgres.Enabled && (cfg.Storage.Postgres.DSN == "" || cfg.Storage.Postgres.Table == "") {
		return fmt.Errorf("storage.postgres requires dsn and table when enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is valid for fetching.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// DelimiterRune returns the single rune a CSV delimiter string holds.
func DelimiterRune(s string) (rune, error) {
	if s == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("storage.delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("storage.delimiter %q is not usable", s)
	}
	return r, nil
}
