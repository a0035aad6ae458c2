package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver
	"github.com/pressly/goose/v3"

	"github.com/vietddude/deliverycal/internal/core/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	URL      string `yaml:"url"`
	Driver   string `yaml:"driver"` // pgx (default) or postgres
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PostgresStore keeps entries in the cache_entries table.
type PostgresStore struct {
	db        *sqlx.DB
	retention time.Duration
}

type entryRow struct {
	Key       string         `db:"key"`
	Payload   []byte         `db:"payload"`
	CachedAt  time.Time      `db:"cached_at"`
	RangeFrom sql.NullString `db:"range_from"`
	RangeTo   sql.NullString `db:"range_to"`
}

// NewPostgresStore opens the database and applies the embedded migrations.
// Rows older than retention are pruned on write (0 = keep forever).
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, retention time.Duration) (*PostgresStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "pgx"
	}

	db, err := sqlx.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(4)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(1)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &PostgresStore{db: db, retention: retention}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row,
		`SELECT key, payload, cached_at, range_from, range_to FROM cache_entries WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	e := &Entry{Payload: row.Payload, CachedAt: row.CachedAt}
	if row.RangeFrom.Valid && row.RangeTo.Valid {
		from, err := domain.ParseDate(row.RangeFrom.String)
		if err != nil {
			return nil, err
		}
		to, err := domain.ParseDate(row.RangeTo.String)
		if err != nil {
			return nil, err
		}
		e.Range = &domain.DateRange{From: from, To: to}
	}
	return e, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, e Entry) error {
	var from, to sql.NullString
	if e.Range != nil {
		from = sql.NullString{String: e.Range.From.String(), Valid: true}
		to = sql.NullString{String: e.Range.To.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, payload, cached_at, range_from, range_to)
		VALUES ($1, $2::jsonb, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			cached_at = EXCLUDED.cached_at,
			range_from = EXCLUDED.range_from,
			range_to = EXCLUDED.range_to`,
		key, string(e.Payload), e.CachedAt, from, to)
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}

	if s.retention > 0 {
		cutoff := e.CachedAt.Add(-s.retention)
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE cached_at < $1`, cutoff); err != nil {
			// The entry is saved; a failed prune is retried on the next write.
			slog.Warn("Failed to prune cache entries", "cutoff", cutoff, "error", err)
		}
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}
