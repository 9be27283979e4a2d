package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Request represents a single listings-page fetch.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are extra HTTP headers sent on top of the fetcher's fixed set.
	Headers http.Header

	// Page is the 1-based listings page index this request targets.
	Page int

	// Attempt counts retries of this request, starting at 0.
	Attempt int

	// Timeout overrides the global request timeout for this request.
	Timeout time.Duration

	// CreatedAt is when this request was created.
	CreatedAt time.Time
}

// NewRequest creates a GET Request for rawURL.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w %q: missing scheme or host", ErrInvalidURL, rawURL)
	}

	return &Request{
		URL:       u,
		Method:    http.MethodGet,
		Headers:   make(http.Header),
		CreatedAt: time.Now(),
	}, nil
}

// NewPageRequest creates a Request for the given listings page.
func NewPageRequest(rawURL string, page int) (*Request, error) {
	req, err := NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	req.Page = page
	return req, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}
