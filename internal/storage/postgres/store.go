// Package postgres provides the durable attempt registry and session store.
//
// One connection pool backs both stores. Schema management is a single
// idempotent [Migrate] run at startup; there is no external migration tool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vivahq/viva/internal/attempt"
	"github.com/vivahq/viva/internal/session"
)

// Store owns the pool and hands out the typed stores.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres, verifies the connection and applies the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Attempts returns the durable attempt registry.
func (s *Store) Attempts() attempt.Registry {
	return &attemptRegistry{pool: s.pool}
}

// Sessions returns the durable session store.
func (s *Store) Sessions() session.Store {
	return &sessionStore{pool: s.pool}
}

// Ping reports pool health; used by the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
