package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/schemadoc/schemadoc-engine/pkg/config"
	"github.com/schemadoc/schemadoc-engine/pkg/retry"
)

const (
	defaultMaxConns        = 25
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute
)

// DB is the metadata store connection pool.
type DB struct {
	*pgxpool.Pool
}

// Config holds pool settings. Zero values fall back to defaults.
type Config struct {
	URL             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// ConnectAttempts bounds how many times the startup ping is tried.
	ConnectAttempts int
}

// ConfigFrom builds a pool Config from application database settings.
func ConfigFrom(cfg *config.DatabaseConfig) *Config {
	return &Config{
		URL:             cfg.ConnectionString(),
		MaxConnections:  cfg.MaxConnections,
		MinConnections:  cfg.MaxIdleConns,
		ConnectAttempts: 5,
	}
}

// NewConnection creates the pool and waits for the database to answer a ping.
// Transient startup failures (database still booting) are retried.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = valueOr(cfg.MaxConnections, defaultMaxConns)
	poolConfig.MaxConnLifetime = valueOr(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	poolConfig.MaxConnIdleTime = valueOr(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)
	if cfg.MinConnections > 0 && cfg.MinConnections <= poolConfig.MaxConns {
		poolConfig.MinConns = cfg.MinConnections
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	err = retry.Do(ctx, retry.WithAttempts(cfg.ConnectAttempts), func() error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func valueOr[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

// StdDB exposes the pool through database/sql for golang-migrate.
// Closing the returned handle does not close the pool.
func (db *DB) StdDB() *sql.DB {
	return stdlib.OpenDBFromPool(db.Pool)
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
