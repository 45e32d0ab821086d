package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres checkpoint backend.
type PostgresConfig struct {
	DSN   string
	Table string
	Name  string
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostgresBackend stores each named checkpoint document as one JSONB row.
type PostgresBackend struct {
	pool  pool
	table string
	name  string
}

// NewPostgresBackend connects to Postgres and ensures the checkpoint table exists.
func NewPostgresBackend(ctx context.Context, cfg PostgresConfig) (*PostgresBackend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("checkpoint.dsn is required")
	}
	p, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	backend, err := NewPostgresBackendWithPool(p, cfg.Table, cfg.Name)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := backend.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return backend, nil
}

// NewPostgresBackendWithPool builds a backend over an existing pool (primarily for testing).
func NewPostgresBackendWithPool(p pool, table, name string) (*PostgresBackend, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "harvest_checkpoints"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if name == "" {
		name = "default"
	}
	return &PostgresBackend{pool: p, table: table, name: name}, nil
}

// EnsureSchema creates the checkpoint table when missing.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name TEXT PRIMARY KEY,
	state JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, b.table)
	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

// Read returns the stored document, or nil when the row does not exist.
func (b *PostgresBackend) Read(ctx context.Context) ([]byte, error) {
	query := fmt.Sprintf("SELECT state FROM %s WHERE name = $1", b.table)
	var data []byte
	if err := b.pool.QueryRow(ctx, query, b.name).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select checkpoint: %w", err)
	}
	return data, nil
}

// Write upserts the whole document.
func (b *PostgresBackend) Write(ctx context.Context, data []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (name, state, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (name) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`, b.table)
	if _, err := b.pool.Exec(ctx, query, b.name, data); err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Delete removes the document row.
func (b *PostgresBackend) Delete(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE name = $1", b.table)
	if _, err := b.pool.Exec(ctx, query, b.name); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}
