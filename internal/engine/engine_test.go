package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/fetcher"
	"github.com/IshaanNene/carscout/internal/parser"
	"github.com/IshaanNene/carscout/internal/pipeline"
	"github.com/IshaanNene/carscout/internal/storage"
	"github.com/IshaanNene/carscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func listingHTML(title, power string) string {
	var b strings.Builder
	b.WriteString(`<a class="announcement-item" href="/ad">`)
	if title != "" {
		fmt.Fprintf(&b, `<div class="announcement-title">%s</div>`, title)
	}
	b.WriteString(`<span title="Date of manufacture">2012-03</span>`)
	b.WriteString(`<span title="Fuel type">Diesel</span><span title="Gearbox">Manual</span>`)
	if power != "" {
		fmt.Fprintf(&b, `<span title="Power">%s</span>`, power)
	}
	b.WriteString(`<span title="Mileage">120 000 km</span>`)
	b.WriteString(`<div class="announcement-pricing-info">7 500 €</div></a>`)
	return b.String()
}

// pageHTML renders three listings; the second one has no power field.
func pageHTML(page int) string {
	return "<html><body>" +
		listingHTML(fmt.Sprintf("BMW 5%02d, 3.0 l., Sedan", page), "180 kW") +
		listingHTML("Volkswagen Golf, 1.9 l., Hatchback", "") +
		listingHTML("Audi A4, 2.0 l., Wagon", "105 kW") +
		"</body></html>"
}

type harness struct {
	t      *testing.T
	cfg    *config.Config
	engine *Engine
	out    string

	mu     sync.Mutex
	hits   map[int]int
	sleeps []time.Duration
}

// newHarness serves pageHTML for every page unless status returns a
// non-zero code for the page's n-th hit.
func newHarness(t *testing.T, status func(page, hit int) int) *harness {
	t.Helper()
	h := &harness{t: t, hits: make(map[int]int)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page_nr"))
		h.mu.Lock()
		h.hits[page]++
		hit := h.hits[page]
		h.mu.Unlock()

		if status != nil {
			if code := status(page, hit); code != 0 {
				w.WriteHeader(code)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, pageHTML(page))
	}))
	t.Cleanup(srv.Close)

	h.out = filepath.Join(t.TempDir(), "autoplius.csv")
	cfg := config.DefaultConfig()
	cfg.Engine.URLTemplate = srv.URL + "/ads/used-cars?page_nr={page}"
	cfg.Engine.PageSize = 3
	cfg.Engine.RequestTimeout = 2 * time.Second
	cfg.Engine.RetryDelay = time.Second
	cfg.Storage.OutputPath = h.out
	h.cfg = cfg
	return h
}

func (h *harness) build() *Engine {
	h.t.Helper()
	f, err := fetcher.NewHTTPFetcher(h.cfg, testLogger)
	if err != nil {
		h.t.Fatalf("fetcher: %v", err)
	}
	h.t.Cleanup(func() { f.Close() })

	st, err := storage.New(&h.cfg.Storage, testLogger)
	if err != nil {
		h.t.Fatalf("storage: %v", err)
	}

	e := New(h.cfg, testLogger, nil)
	e.SetFetcher(f)
	e.SetParser(parser.NewCSSParser(&h.cfg.Parser, testLogger))
	e.SetPipeline(pipeline.FromConfig(h.cfg, testLogger))
	e.SetStorage(st)
	e.sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.sleeps = append(h.sleeps, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	h.engine = e
	return e
}

func (h *harness) csvLines() []string {
	h.t.Helper()
	data, err := os.ReadFile(h.out)
	if err != nil {
		h.t.Fatalf("read output: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func (h *harness) exported() bool {
	_, err := os.Stat(h.out)
	return err == nil
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		sample, size, want int
	}{
		{0, 20, 0},
		{-5, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{100, 20, 5},
		{10, 0, 0},
		{math.MaxInt, 1, math.MaxInt},
		{math.MaxInt, 20, math.MaxInt/20 + 1},
	}
	for _, tt := range tests {
		if got := PageCount(tt.sample, tt.size); got != tt.want {
			t.Errorf("PageCount(%d, %d) = %d, want %d", tt.sample, tt.size, got, tt.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{time.Second, 1, time.Second},
		{time.Second, 2, 2 * time.Second},
		{time.Second, 4, 8 * time.Second},
		{time.Second, 8, maxBackoff},
		{time.Second, 100, maxBackoff},
		{5 * time.Minute, 1, maxBackoff},
		{0, 3, 0},
	}
	for _, tt := range tests {
		if got := backoff(tt.base, tt.attempt); got != tt.want {
			t.Errorf("backoff(%v, %d) = %v, want %v", tt.base, tt.attempt, got, tt.want)
		}
	}
}

func TestRunHugeSampleSize(t *testing.T) {
	for _, sample := range []int{1 << 40, math.MaxInt} {
		h := newHarness(t, func(page, hit int) int {
			if page == 2 {
				return http.StatusNotFound
			}
			return 0
		})
		e := h.build()

		listings, err := e.Run(context.Background(), sample)
		if err == nil {
			t.Fatalf("Run(%d): expected page 2 error", sample)
		}
		if len(listings) != 3 {
			t.Errorf("Run(%d): expected page 1 listings, got %d", sample, len(listings))
		}
	}
}

func TestRunSinglePage(t *testing.T) {
	h := newHarness(t, nil)
	h.cfg.Engine.MinDelay = 2 * time.Second
	h.cfg.Engine.MaxDelay = 10 * time.Second
	e := h.build()
	e.jitter = func(n int64) int64 { return n - 1 }

	listings, err := e.Run(context.Background(), 3)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(listings) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(listings))
	}
	if !listings[1].Power.IsNull() {
		t.Errorf("second listing power should be null, got %q", listings[1].Power.Value)
	}

	lines := h.csvLines()
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %d lines:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	if lines[0] != "Marque,CarType,FuelType,Gearbox,ManufacturingDate,Engine_l,Power_kW,Mileage_km,Price_euro" {
		t.Errorf("header = %s", lines[0])
	}
	if lines[2] != "Volkswagen Golf,Hatchback,Diesel,Manual,2012,1.9,,120000,7500" {
		t.Errorf("row with null power = %s", lines[2])
	}

	if len(h.sleeps) != 1 || h.sleeps[0] != 10*time.Second {
		t.Errorf("expected one 10s pause, got %v", h.sleeps)
	}

	snap := e.Metrics().Snapshot()
	if snap["null_power"] != 1 || snap["listings_exported"] != 3 || snap["pages_requested"] != 1 {
		t.Errorf("unexpected stats: %v", snap)
	}
}

func TestRunPageOrder(t *testing.T) {
	h := newHarness(t, nil)
	e := h.build()

	listings, err := e.Run(context.Background(), 7)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(listings) != 9 {
		t.Fatalf("expected 9 listings from 3 pages, got %d", len(listings))
	}
	for i, l := range listings {
		if l.Page != i/3+1 || l.Position != i%3 {
			t.Errorf("listing %d has page %d position %d", i, l.Page, l.Position)
		}
	}
	if listings[6].Marque.Value != "BMW 503" {
		t.Errorf("page 3 first marque = %q", listings[6].Marque.Value)
	}
	if len(h.sleeps) != 3 {
		t.Errorf("expected a pause per page, got %d", len(h.sleeps))
	}
	if len(h.csvLines()) != 10 {
		t.Errorf("expected 10 CSV lines")
	}
}

func TestRunDelayBounds(t *testing.T) {
	h := newHarness(t, nil)
	h.cfg.Engine.MinDelay = 2 * time.Second
	h.cfg.Engine.MaxDelay = 10 * time.Second
	e := h.build()

	for i := 0; i < 200; i++ {
		d := e.pageDelay()
		if d < 2*time.Second || d > 10*time.Second {
			t.Fatalf("delay %v outside [2s, 10s]", d)
		}
	}

	h.cfg.Engine.MaxDelay = time.Second
	if d := e.pageDelay(); d != 2*time.Second {
		t.Errorf("inverted range should use min delay, got %v", d)
	}
}

func TestRunZeroSample(t *testing.T) {
	h := newHarness(t, nil)
	e := h.build()

	listings, err := e.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(listings) != 0 || len(h.hits) != 0 {
		t.Errorf("expected no fetches, got %d listings and %v hits", len(listings), h.hits)
	}
	if lines := h.csvLines(); len(lines) != 1 {
		t.Errorf("expected header only, got %v", lines)
	}
}

func TestRunAbortOnPageError(t *testing.T) {
	h := newHarness(t, func(page, hit int) int {
		if page == 2 {
			return http.StatusNotFound
		}
		return 0
	})
	e := h.build()

	listings, err := e.Run(context.Background(), 9)
	if err == nil {
		t.Fatal("expected error")
	}
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 FetchError, got %v", err)
	}
	if len(listings) != 3 {
		t.Errorf("expected page 1 listings only, got %d", len(listings))
	}
	if h.hits[3] != 0 {
		t.Error("page 3 should not be fetched after abort")
	}
	if h.hits[2] != 1 {
		t.Errorf("404 should not be retried, got %d hits", h.hits[2])
	}
	if h.exported() {
		t.Error("aborted run should not export")
	}
}

func TestRunSkipPageError(t *testing.T) {
	h := newHarness(t, func(page, hit int) int {
		if page == 2 {
			return http.StatusForbidden
		}
		return 0
	})
	h.cfg.Engine.OnPageError = config.OnPageErrorSkip
	e := h.build()

	listings, err := e.Run(context.Background(), 9)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(listings) != 6 {
		t.Fatalf("expected 6 listings, got %d", len(listings))
	}
	if listings[3].Page != 3 {
		t.Errorf("listing after the skipped page should come from page 3, got %d", listings[3].Page)
	}
	if snap := e.Metrics().Snapshot(); snap["pages_skipped"] != 1 || snap["pages_failed"] != 1 {
		t.Errorf("unexpected stats: %v", snap)
	}
	if len(h.csvLines()) != 7 {
		t.Error("expected header and 6 rows")
	}
}

func TestRunRetriesTransientFailure(t *testing.T) {
	h := newHarness(t, func(page, hit int) int {
		if hit == 1 {
			return http.StatusServiceUnavailable
		}
		return 0
	})
	h.cfg.Engine.MinDelay = 0
	h.cfg.Engine.MaxDelay = 0
	e := h.build()

	listings, err := e.Run(context.Background(), 3)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(listings) != 3 || h.hits[1] != 2 {
		t.Errorf("expected success on second attempt, got %d listings and %d hits", len(listings), h.hits[1])
	}
	if len(h.sleeps) != 2 || h.sleeps[0] != time.Second {
		t.Errorf("expected 1s backoff then page pause, got %v", h.sleeps)
	}
	if snap := e.Metrics().Snapshot(); snap["pages_retried"] != 1 || snap["responses_5xx"] != 1 {
		t.Errorf("unexpected stats: %v", snap)
	}
}

func TestRunRetriesExhausted(t *testing.T) {
	h := newHarness(t, func(page, hit int) int { return http.StatusBadGateway })
	h.cfg.Engine.MaxRetries = 2
	e := h.build()

	_, err := e.Run(context.Background(), 3)
	if !errors.Is(err, types.ErrMaxRetries) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if h.hits[1] != 3 {
		t.Errorf("expected 3 attempts, got %d", h.hits[1])
	}
	// backoff doubles from the retry delay
	if len(h.sleeps) != 2 || h.sleeps[0] != time.Second || h.sleeps[1] != 2*time.Second {
		t.Errorf("unexpected backoff: %v", h.sleeps)
	}
}

func TestRunPipelineErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>"+listingHTML("Audi A4, 2.0, Wagon", "")+listingHTML("", "")+"</body></html>")
	}))
	defer srv.Close()

	h := newHarness(t, nil)
	h.cfg.Engine.URLTemplate = srv.URL + "/?page_nr={page}"
	h.cfg.Engine.OnPageError = config.OnPageErrorSkip
	h.cfg.Storage.Schema = config.SchemaSplit
	h.cfg.Pipeline.NullMarque = config.NullMarqueFail
	e := h.build()

	_, err := e.Run(context.Background(), 6)
	var pe *types.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PipelineError even with skip policy, got %v", err)
	}
	if pe.Page != 1 || pe.Position != 1 {
		t.Errorf("error location = page %d position %d", pe.Page, pe.Position)
	}
	if h.exported() {
		t.Error("aborted run should not export")
	}
}

func TestRunSplitSchema(t *testing.T) {
	h := newHarness(t, nil)
	h.cfg.Storage.Schema = config.SchemaSplit
	e := h.build()

	if _, err := e.Run(context.Background(), 3); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := h.csvLines()
	if !strings.HasPrefix(lines[0], "Brand,Model,CarType") {
		t.Errorf("header = %s", lines[0])
	}
	if !strings.HasPrefix(lines[2], "Volkswagen,Golf,Hatchback") {
		t.Errorf("row = %s", lines[2])
	}
}

func TestRunContextCancel(t *testing.T) {
	h := newHarness(t, nil)
	e := h.build()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	listings, err := e.Run(ctx, 9)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(listings) != 3 {
		t.Errorf("expected listings of the first page, got %d", len(listings))
	}
	if h.exported() {
		t.Error("cancelled run should not export")
	}
	if e.GetState() != StateIdle {
		t.Errorf("state after run = %s", e.GetState())
	}
}

func TestStop(t *testing.T) {
	h := newHarness(t, nil)
	e := h.build()
	e.sleep = func(ctx context.Context, d time.Duration) error {
		e.Stop()
		return ctx.Err()
	}

	_, err := e.Run(context.Background(), 9)
	if !errors.Is(err, types.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestRunRequiresFetcher(t *testing.T) {
	e := New(config.DefaultConfig(), testLogger, nil)
	if _, err := e.Run(context.Background(), 1); !errors.Is(err, types.ErrNoFetcher) {
		t.Fatalf("expected ErrNoFetcher, got %v", err)
	}
}
