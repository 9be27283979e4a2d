// Package observability records run metrics and exposes them in the
// Prometheus text format.
package observability

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/IshaanNene/carscout/internal/types"
)

// extractedFields are the listing fields the parser fills, in export order.
var extractedFields = []string{"marque", "car_type", "fuel", "gearbox", "year", "engine", "power", "mileage", "price"}

// Metrics tracks the counters of a scrape run.
type Metrics struct {
	// Page metrics
	PagesRequested atomic.Int64
	PagesFailed    atomic.Int64
	PagesSkipped   atomic.Int64
	PagesRetried   atomic.Int64

	// Response metrics
	ResponsesTotal atomic.Int64
	Responses2xx   atomic.Int64
	Responses3xx   atomic.Int64
	Responses4xx   atomic.Int64
	Responses5xx   atomic.Int64

	// Listing metrics
	ListingsExtracted atomic.Int64
	ListingsExported  atomic.Int64

	BytesDownloaded atomic.Int64

	mu         sync.Mutex
	nullFields map[string]int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		nullFields: make(map[string]int64),
		logger:     logger.With("component", "metrics"),
	}
}

// RecordResponse counts a received response by status class.
func (m *Metrics) RecordResponse(statusCode, size int) {
	m.ResponsesTotal.Add(1)
	m.BytesDownloaded.Add(int64(size))
	switch {
	case statusCode >= 500:
		m.Responses5xx.Add(1)
	case statusCode >= 400:
		m.Responses4xx.Add(1)
	case statusCode >= 300:
		m.Responses3xx.Add(1)
	case statusCode >= 200:
		m.Responses2xx.Add(1)
	}
}

// RecordListing counts an extracted listing and its null fields.
func (m *Metrics) RecordListing(l *types.Listing) {
	m.ListingsExtracted.Add(1)
	fields := l.Fields()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range extractedFields {
		if fields[name].IsNull() {
			m.nullFields[name]++
		}
	}
}

// NullFields returns a copy of the null counts per field name.
func (m *Metrics) NullFields() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.nullFields))
	for k, v := range m.nullFields {
		out[k] = v
	}
	return out
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"carscout_pages_requested_total", "Total listing pages requested", m.PagesRequested.Load()},
		{"carscout_pages_failed_total", "Total pages that failed after retries", m.PagesFailed.Load()},
		{"carscout_pages_skipped_total", "Total failed pages skipped", m.PagesSkipped.Load()},
		{"carscout_pages_retried_total", "Total page fetch retries", m.PagesRetried.Load()},
		{"carscout_responses_total", "Total responses received", m.ResponsesTotal.Load()},
		{"carscout_responses_2xx_total", "Total 2xx responses", m.Responses2xx.Load()},
		{"carscout_responses_3xx_total", "Total 3xx responses", m.Responses3xx.Load()},
		{"carscout_responses_4xx_total", "Total 4xx responses", m.Responses4xx.Load()},
		{"carscout_responses_5xx_total", "Total 5xx responses", m.Responses5xx.Load()},
		{"carscout_listings_extracted_total", "Total listings extracted", m.ListingsExtracted.Load()},
		{"carscout_listings_exported_total", "Total listings exported", m.ListingsExported.Load()},
		{"carscout_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}

	nulls := m.NullFields()
	names := make([]string, 0, len(nulls))
	for name := range nulls {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprint(w, "# HELP carscout_null_fields_total Total null fields by field name\n")
	fmt.Fprint(w, "# TYPE carscout_null_fields_total counter\n")
	for _, name := range names {
		fmt.Fprintf(w, "carscout_null_fields_total{field=%q} %d\n", name, nulls[name])
	}
}

// StartServer serves the metrics handler at path and a /health probe.
// The listener is bound before returning so address errors surface here.
func (m *Metrics) StartServer(port int, path string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	m.logger.Info("metrics server starting", "addr", ln.Addr().String(), "path", path)

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return srv, nil
}

// Snapshot returns all metrics as a map. Null counts are keyed null_<field>.
func (m *Metrics) Snapshot() map[string]int64 {
	snap := map[string]int64{
		"pages_requested":    m.PagesRequested.Load(),
		"pages_failed":       m.PagesFailed.Load(),
		"pages_skipped":      m.PagesSkipped.Load(),
		"pages_retried":      m.PagesRetried.Load(),
		"responses_total":    m.ResponsesTotal.Load(),
		"responses_2xx":      m.Responses2xx.Load(),
		"responses_3xx":      m.Responses3xx.Load(),
		"responses_4xx":      m.Responses4xx.Load(),
		"responses_5xx":      m.Responses5xx.Load(),
		"listings_extracted": m.ListingsExtracted.Load(),
		"listings_exported":  m.ListingsExported.Load(),
		"bytes_downloaded":   m.BytesDownloaded.Load(),
	}
	for name, n := range m.NullFields() {
		snap["null_"+name] = n
	}
	return snap
}
