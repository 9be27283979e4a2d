package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/IshaanNene/carscout/internal/types"
)

// createOutput creates path and any missing parent directories.
func createOutput(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

// --- CSV Storage ---

// CSVStorage writes the dataset as a delimited file with a header row.
// The file is created by Store, so a run that never exports leaves no file.
type CSVStorage struct {
	path      string
	delimiter rune
	columns   []Column
	count     int
	logger    *slog.Logger
}

// NewCSVStorage creates a new CSV file storage.
func NewCSVStorage(outputPath string, delimiter rune, cols []Column, logger *slog.Logger) *CSVStorage {
	return &CSVStorage{
		path:      outputPath,
		delimiter: delimiter,
		columns:   cols,
		logger:    logger.With("component", "csv_storage"),
	}
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(listings []types.Listing) error {
	if err := s.write(listings); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	s.count += len(listings)
	s.logger.Info("CSV written", "path", s.path, "listings", len(listings))
	return nil
}

func (s *CSVStorage) write(listings []types.Listing) error {
	f, err := createOutput(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = s.delimiter

	if err := w.Write(Header(s.columns)); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for i := range listings {
		if err := w.Write(Row(s.columns, &listings[i])); err != nil {
			return fmt.Errorf("write CSV row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	return f.Close()
}

func (s *CSVStorage) Close() error {
	s.logger.Debug("csv storage closed", "path", s.path, "listings", s.count)
	return nil
}

// --- JSON Storage ---

// JSONStorage writes the dataset as one indented JSON array.
type JSONStorage struct {
	path    string
	columns []Column
	count   int
	logger  *slog.Logger
}

// NewJSONStorage creates a new JSON file storage.
func NewJSONStorage(outputPath string, cols []Column, logger *slog.Logger) *JSONStorage {
	return &JSONStorage{
		path:    outputPath,
		columns: cols,
		logger:  logger.With("component", "json_storage"),
	}
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(listings []types.Listing) error {
	output := make([]record, len(listings))
	for i := range listings {
		output[i] = newRecord(s.columns, &listings[i])
	}

	f, err := createOutput(s.path)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSON: %w", err)}
	}
	if err := f.Close(); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	s.count += len(listings)
	s.logger.Info("JSON written", "path", s.path, "listings", len(listings))
	return nil
}

func (s *JSONStorage) Close() error {
	s.logger.Debug("json storage closed", "path", s.path, "listings", s.count)
	return nil
}

// --- JSONL Storage ---

// JSONLStorage writes the dataset as newline-delimited JSON, one object per line.
type JSONLStorage struct {
	path    string
	columns []Column
	count   int
	logger  *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage.
func NewJSONLStorage(outputPath string, cols []Column, logger *slog.Logger) *JSONLStorage {
	return &JSONLStorage{
		path:    outputPath,
		columns: cols,
		logger:  logger.With("component", "jsonl_storage"),
	}
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(listings []types.Listing) error {
	f, err := createOutput(s.path)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := range listings {
		if err := enc.Encode(newRecord(s.columns, &listings[i])); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSONL: %w", err)}
		}
	}
	if err := f.Close(); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	s.count += len(listings)
	s.logger.Info("JSONL written", "path", s.path, "listings", len(listings))
	return nil
}

func (s *JSONLStorage) Close() error {
	s.logger.Debug("jsonl storage closed", "path", s.path, "listings", s.count)
	return nil
}
