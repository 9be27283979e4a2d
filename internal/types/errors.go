package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrNoListings = errors.New("no listing anchors on page")
	ErrNullMarque = errors.New("marque is null")
	ErrStopped    = errors.New("run has been stopped")
	ErrEmptyBody  = errors.New("empty response body")
	ErrInvalidURL = errors.New("invalid URL")
	ErrNoFetcher  = errors.New("no fetcher configured")
	ErrMaxRetries = errors.New("max retries exceeded")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps page-level errors that occur during parsing.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("parse error for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors raised while transforming a single listing.
type PipelineError struct {
	Stage    string
	Page     int
	Position int
	Err      error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q (page %d, listing %d): %v", e.Stage, e.Page, e.Position, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
