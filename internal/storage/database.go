package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

// MongoStorage writes listings to a MongoDB collection.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	columns    []Column
	count      int
	logger     *slog.Logger
}

// NewMongoStorage connects to MongoDB and verifies the connection.
func NewMongoStorage(cfg *config.MongoConfig, cols []Column, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStorage{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		columns:    cols,
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

func (s *MongoStorage) Store(listings []types.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	docs := mongoDocuments(s.columns, listings, time.Now().UTC())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("mongodb insert: %w", err)}
	}

	s.count += len(listings)
	s.logger.Debug("listings stored in mongodb", "count", len(listings), "total", s.count)
	return nil
}

// mongoDocuments builds one ordered document per listing keyed by column name.
func mongoDocuments(cols []Column, listings []types.Listing, scrapedAt time.Time) []any {
	docs := make([]any, len(listings))
	for i := range listings {
		l := &listings[i]
		doc := make(bson.D, 0, len(cols)+3)
		for _, c := range cols {
			doc = append(doc, bson.E{Key: c.Name, Value: Coerce(c, c.Value(l))})
		}
		doc = append(doc,
			bson.E{Key: "_page", Value: l.Page},
			bson.E{Key: "_position", Value: l.Position},
			bson.E{Key: "_scraped_at", Value: scrapedAt},
		)
		docs[i] = doc
	}
	return docs
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_listings", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes the dataset to several backends in order.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

// Store writes to every backend even after a failure and returns the
// failures joined.
func (s *MultiStorage) Store(listings []types.Listing) error {
	var errs []error
	for _, backend := range s.backends {
		if err := backend.Store(listings); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MultiStorage) Close() error {
	var errs []error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", backend.Name(), err))
		}
	}
	return errors.Join(errs...)
}
