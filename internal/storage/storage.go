// Package storage exports the scraped dataset.
package storage

import (
	"fmt"
	"log/slog"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists the complete dataset.
	Store(listings []types.Listing) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New creates the file export selected by cfg.Type and fans out to the
// enabled database sinks.
func New(cfg *config.StorageConfig, logger *slog.Logger) (Storage, error) {
	cols, err := Columns(cfg.Schema)
	if err != nil {
		return nil, err
	}

	primary, err := NewFileStorage(cfg, cols, logger)
	if err != nil {
		return nil, err
	}
	backends := []Storage{primary}

	if cfg.Mongo.Enabled {
		m, err := NewMongoStorage(&cfg.Mongo, cols, logger)
		if err != nil {
			closeAll(backends)
			return nil, &types.StorageError{Backend: "mongodb", Err: err}
		}
		backends = append(backends, m)
	}
	if cfg.Postgres.Enabled {
		p, err := NewPostgresStorage(&cfg.Postgres, cols, logger)
		if err != nil {
			closeAll(backends)
			return nil, &types.StorageError{Backend: "postgres", Err: err}
		}
		backends = append(backends, p)
	}

	if len(backends) == 1 {
		return primary, nil
	}
	return NewMultiStorage(backends, logger), nil
}

func closeAll(backends []Storage) {
	for _, b := range backends {
		_ = b.Close()
	}
}

// NewFileStorage creates the appropriate file-based storage by type.
func NewFileStorage(cfg *config.StorageConfig, cols []Column, logger *slog.Logger) (Storage, error) {
	switch cfg.Type {
	case "csv", "":
		delim, err := config.DelimiterRune(cfg.Delimiter)
		if err != nil {
			return nil, err
		}
		return NewCSVStorage(cfg.OutputPath, delim, cols, logger), nil
	case "json":
		return NewJSONStorage(cfg.OutputPath, cols, logger), nil
	case "jsonl":
		return NewJSONLStorage(cfg.OutputPath, cols, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
