package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads secret payloads by coordinate. Implementations return an error
// wrapping ErrSecretNotFound for unknown coordinates and ErrStoreUnavailable
// when the backend cannot be reached.
type Store interface {
	Read(ctx context.Context, coordinate string) (string, error)
}

// PostgresStore is the platform's default secret store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the secrets table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("SECRETS_DATABASE_URL/DATABASE_URL not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets database: %w", err)
	}
	store, err := NewPostgresStoreWithPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithPool reuses an existing pool.
func NewPostgresStoreWithPool(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if err := ensureTable(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to ensure secrets table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func ensureTable(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS secrets (
  coordinate text PRIMARY KEY,
  payload text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
);
`
	_, err := pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Read(ctx context.Context, coordinate string) (string, error) {
	var payload string
	err := s.pool.QueryRow(ctx, `SELECT payload FROM secrets WHERE coordinate = $1`, coordinate).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return payload, nil
}

// Ping checks connectivity. The worker reports it through gRPC health.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// MemoryStore is a fixed in-memory store, used for local runs and tests.
type MemoryStore map[string]string

func (m MemoryStore) Read(ctx context.Context, coordinate string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	v, ok := m[coordinate]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}
