package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/pkg/carscout"
)

func TestApplyCLIOverrides(t *testing.T) {
	cmd := scrapeCmd()
	err := cmd.Flags().Parse([]string{
		"-n", "45",
		"-o", "out/cars.json",
		"-f", "JSON",
		"--schema", "split",
		"--min-delay", "1s",
		"--max-delay", "3s",
		"--on-page-error", "skip",
		"--mongo-uri", "mongodb://db:27017",
	})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := config.DefaultConfig()
	var flags scrapeFlags
	flags.sampleSize, _ = cmd.Flags().GetInt("sample-size")
	flags.outputPath, _ = cmd.Flags().GetString("output")
	flags.outputType, _ = cmd.Flags().GetString("format")
	flags.schema, _ = cmd.Flags().GetString("schema")
	flags.minDelay, _ = cmd.Flags().GetDuration("min-delay")
	flags.maxDelay, _ = cmd.Flags().GetDuration("max-delay")
	flags.onPageError, _ = cmd.Flags().GetString("on-page-error")
	flags.mongoURI, _ = cmd.Flags().GetString("mongo-uri")
	applyCLIOverrides(cmd, cfg, &flags)

	if cfg.Engine.SampleSize != 45 || cfg.Storage.OutputPath != "out/cars.json" || cfg.Storage.Type != "json" {
		t.Errorf("unexpected engine/storage overrides: %+v %+v", cfg.Engine, cfg.Storage)
	}
	if cfg.Storage.Schema != config.SchemaSplit || cfg.Engine.OnPageError != config.OnPageErrorSkip {
		t.Errorf("schema=%s policy=%s", cfg.Storage.Schema, cfg.Engine.OnPageError)
	}
	if cfg.Engine.MinDelay != time.Second || cfg.Engine.MaxDelay != 3*time.Second {
		t.Errorf("delay = %s - %s", cfg.Engine.MinDelay, cfg.Engine.MaxDelay)
	}
	if !cfg.Storage.Mongo.Enabled || cfg.Storage.Mongo.URI != "mongodb://db:27017" {
		t.Errorf("mongo = %+v", cfg.Storage.Mongo)
	}

	// unset flags keep configured values
	if cfg.Engine.MaxRetries != 2 || cfg.Fetcher.Type != "http" || cfg.Storage.Postgres.Enabled {
		t.Errorf("unset flags changed config: retries=%d fetcher=%s", cfg.Engine.MaxRetries, cfg.Fetcher.Type)
	}
}

func TestSetupLoggerJSON(t *testing.T) {
	logger, closeLog, err := setupLogger(&config.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("setupLogger: %v", err)
	}
	defer closeLog()
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at warn level")
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &carscout.Result{
		OutputPath: "autoplius.csv",
		Stats:      map[string]int64{"pages_requested": 5, "listings_extracted": 100, "listings_exported": 100},
	}, 1500*time.Millisecond)

	out := buf.String()
	if !strings.Contains(out, "Output:    autoplius.csv") || !strings.Contains(out, "5 requested") {
		t.Errorf("unexpected summary:\n%s", out)
	}
}
