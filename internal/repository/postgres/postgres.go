// Package postgres provides a PostgreSQL implementation of the domain
// repositories on top of a pgx connection pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/msomdec/accounts/internal/domain"
)

// DB wraps a pgx pool and hands out the repositories built on it.
type DB struct {
	Pool  *pgxpool.Pool
	users *UserRepository
}

// New connects to the database at the given URL and verifies the connection.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{Pool: pool}
	db.users = &UserRepository{pool: pool}
	return db, nil
}

// Migrate applies all pending schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	return runMigrations(ctx, d.Pool)
}

// PendingMigrations lists migrations that Migrate would apply.
func (d *DB) PendingMigrations(ctx context.Context) ([]string, error) {
	return pendingMigrations(ctx, d.Pool)
}

func (d *DB) Users() domain.UserRepository {
	return d.users
}

func (d *DB) Close() error {
	d.Pool.Close()
	return nil
}
