package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

// PostgresStorage writes listings to a PostgreSQL table. Numeric columns
// are BIGINT with the untouched text kept in a raw_ column beside them.
type PostgresStorage struct {
	pool    *pgxpool.Pool
	table   pgx.Identifier
	columns []Column
	count   int
	logger  *slog.Logger
}

// NewPostgresStorage opens a pool, verifies the connection and creates the
// table when it does not exist.
func NewPostgresStorage(cfg *config.PostgresConfig, cols []Column, logger *slog.Logger) (*PostgresStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PostgresStorage{
		pool:    pool,
		table:   pgx.Identifier{cfg.Table},
		columns: cols,
		logger:  logger.With("component", "postgres_storage"),
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStorage) Name() string { return "postgres" }

// EnsureSchema creates the listings table for the configured columns.
func (s *PostgresStorage) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL(s.table, s.columns)); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func sqlColumn(c Column) string {
	return strings.ToLower(c.Name)
}

func createTableSQL(table pgx.Identifier, cols []Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\tid BIGSERIAL PRIMARY KEY,\n", table.Sanitize())
	for _, c := range cols {
		name := sqlColumn(c)
		if c.Numeric {
			fmt.Fprintf(&b, "\t%s BIGINT,\n\traw_%s TEXT,\n", name, name)
			continue
		}
		fmt.Fprintf(&b, "\t%s TEXT,\n", name)
	}
	b.WriteString("\tpage INTEGER NOT NULL,\n\tposition INTEGER NOT NULL,\n")
	b.WriteString("\tscraped_at TIMESTAMPTZ NOT NULL DEFAULT NOW()\n)")
	return b.String()
}

func insertSQL(table pgx.Identifier, cols []Column) string {
	var names []string
	for _, c := range cols {
		names = append(names, sqlColumn(c))
		if c.Numeric {
			names = append(names, "raw_"+sqlColumn(c))
		}
	}
	names = append(names, "page", "position")

	params := make([]string, len(names))
	for i := range params {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.Sanitize(), strings.Join(names, ", "), strings.Join(params, ", "))
}

// rowArgs returns the insert arguments of l in insertSQL order. Null fields
// and non-integer numeric text are SQL NULL.
func rowArgs(cols []Column, l *types.Listing) []any {
	args := make([]any, 0, len(cols)+5)
	for _, c := range cols {
		f := c.Value(l)
		var raw any
		if !f.IsNull() {
			raw = f.Value
		}
		if !c.Numeric {
			args = append(args, raw)
			continue
		}
		n, ok := Coerce(c, f).(int64)
		if ok {
			args = append(args, n, raw)
		} else {
			args = append(args, nil, raw)
		}
	}
	return append(args, l.Page, l.Position)
}

func (s *PostgresStorage) Store(listings []types.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	query := insertSQL(s.table, s.columns)
	batch := &pgx.Batch{}
	for i := range listings {
		batch.Queue(query, rowArgs(s.columns, &listings[i])...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("batch insert failed at row %d: %w", i, err)}
		}
	}

	s.count += len(listings)
	s.logger.Debug("listings stored in postgres", "count", len(listings), "total", s.count)
	return nil
}

func (s *PostgresStorage) Close() error {
	s.logger.Info("postgres storage closing", "total_listings", s.count)
	s.pool.Close()
	return nil
}
