package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Engine.RequestTimeout = 2 * time.Second
	f, err := NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatalf("create fetcher: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func mustRequest(t *testing.T, rawURL string) *types.Request {
	t.Helper()
	req, err := types.NewPageRequest(rawURL, 1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return req
}

func TestHTTPFetcherSendsFixedHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	resp, err := f.Fetch(context.Background(), mustRequest(t, srv.URL+"/ads/used-cars?page_nr=1"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 2xx, got %d", resp.StatusCode)
	}
	if gotUA != config.DefaultConfig().Fetcher.UserAgent {
		t.Errorf("unexpected User-Agent %q", gotUA)
	}
	if gotLang != "en-US, en;q=0.5" {
		t.Errorf("unexpected Accept-Language %q", gotLang)
	}
}

func TestHTTPFetcherStatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tt.status == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "7")
			}
			w.WriteHeader(tt.status)
		}))

		f := newTestFetcher(t)
		_, err := f.Fetch(context.Background(), mustRequest(t, srv.URL))
		srv.Close()

		var fetchErr *types.FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("status %d: expected FetchError, got %v", tt.status, err)
		}
		if fetchErr.StatusCode != tt.status {
			t.Errorf("expected status %d, got %d", tt.status, fetchErr.StatusCode)
		}
		if fetchErr.Retryable != tt.retryable {
			t.Errorf("status %d: expected retryable=%v", tt.status, tt.retryable)
		}
		if tt.status == http.StatusTooManyRequests && fetchErr.RetryAfter != 7*time.Second {
			t.Errorf("expected Retry-After 7s, got %s", fetchErr.RetryAfter)
		}
	}
}

func TestHTTPFetcherBrotli(t *testing.T) {
	const page = `<a class="announcement-item"></a>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		bw.Write([]byte(page))
		bw.Close()
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	resp, err := f.Fetch(context.Background(), mustRequest(t, srv.URL))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(resp.Body) != page {
		t.Errorf("expected decoded body, got %q", string(resp.Body))
	}
}

func TestHTTPFetcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	req := mustRequest(t, srv.URL)
	req.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := f.Fetch(context.Background(), req)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Errorf("request was not bounded by its timeout")
	}
	var fetchErr *types.FetchError
	if !errors.As(err, &fetchErr) || !fetchErr.Retryable {
		t.Errorf("expected retryable FetchError, got %v", err)
	}
}

func TestProxyManagerRoundRobin(t *testing.T) {
	pm := NewProxyManager(&config.ProxyConfig{
		Rotation: "round_robin",
		URLs:     []string{"http://p1:8080", "http://p2:8080", "://bad"},
	}, testLogger)

	if pm.Count() != 2 {
		t.Fatalf("expected 2 usable proxies, got %d", pm.Count())
	}
	got := []string{pm.Next().Host, pm.Next().Host, pm.Next().Host}
	want := []string{"p1:8080", "p2:8080", "p1:8080"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rotation %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestNewUnknownFetcher(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fetcher.Type = "carrier-pigeon"
	if _, err := New(cfg, testLogger); !errors.Is(err, types.ErrNoFetcher) {
		t.Errorf("expected ErrNoFetcher, got %v", err)
	}
}
