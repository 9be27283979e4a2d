package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestPipelineTrim(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})

	l := types.Listing{
		Marque: types.Text("  BMW 535 "),
		Fuel:   types.Text("   "),
	}
	if err := p.Process(&l); err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if l.Marque.Value != "BMW 535" {
		t.Errorf("expected trimmed marque, got %q", l.Marque.Value)
	}
	if !l.Fuel.IsNull() {
		t.Errorf("blank fuel should become null, got %+v", l.Fuel)
	}
	if !l.Price.IsNull() {
		t.Error("null price should stay null")
	}
}

func TestSplitMarque(t *testing.T) {
	tests := []struct {
		in    types.Field
		brand types.Field
		mdl   types.Field
	}{
		{types.Text("BMW 535"), types.Text("BMW"), types.Text("535")},
		{types.Text("Mercedes-Benz E 220"), types.Text("Mercedes-Benz"), types.Text("E 220")},
		{types.Text("Land  Rover   Range Rover"), types.Text("Land"), types.Text("Rover Range Rover")},
		{types.Text("Tesla"), types.Text("Tesla"), types.Null},
		{types.Text("  "), types.Null, types.Null},
		{types.Null, types.Null, types.Null},
	}
	for _, tt := range tests {
		brand, model := SplitMarque(tt.in)
		if brand != tt.brand || model != tt.mdl {
			t.Errorf("SplitMarque(%+v) = %+v, %+v; want %+v, %+v", tt.in, brand, model, tt.brand, tt.mdl)
		}
	}
}

func TestMarqueSplitNullSkip(t *testing.T) {
	m := &MarqueSplitMiddleware{}
	l := types.Listing{Brand: types.Text("stale")}
	if err := m.Process(&l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.Brand.IsNull() || !l.Model.IsNull() {
		t.Errorf("expected null brand and model, got %+v %+v", l.Brand, l.Model)
	}
}

func TestMarqueSplitNullFail(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Schema = config.SchemaSplit
	cfg.Pipeline.NullMarque = config.NullMarqueFail
	p := FromConfig(cfg, testLogger)

	batch := []types.Listing{
		{Marque: types.Text("Audi A4"), Page: 2, Position: 0},
		{Page: 2, Position: 1},
	}
	err := p.ProcessAll(batch)
	if !errors.Is(err, types.ErrNullMarque) {
		t.Fatalf("expected ErrNullMarque, got %v", err)
	}

	var pe *types.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PipelineError, got %T", err)
	}
	if pe.Stage != "marque_split" || pe.Page != 2 || pe.Position != 1 {
		t.Errorf("unexpected error location: %+v", pe)
	}
	if !strings.Contains(err.Error(), "page 2") {
		t.Errorf("message should name the page: %v", err)
	}
	if batch[0].Brand.Value != "Audi" {
		t.Errorf("first listing should have been split, got %+v", batch[0].Brand)
	}
}

func TestFromConfigCombined(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pipeline.NullMarque = config.NullMarqueFail
	p := FromConfig(cfg, testLogger)
	if p.Len() != 1 {
		t.Fatalf("combined schema should only trim, got %d middleware", p.Len())
	}
	if err := p.Process(&types.Listing{}); err != nil {
		t.Errorf("null marque must not fail without the split: %v", err)
	}
}
