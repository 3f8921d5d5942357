package database

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantScope wraps a connection with tenant context and ensures cleanup.
// The connection has app.current_project_id set for RLS policy evaluation.
type TenantScope struct {
	Conn *pgxpool.Conn
}

// Close resets tenant context and releases connection to pool.
// This MUST be called to prevent tenant context from leaking to the next request.
func (s *TenantScope) Close() {
	if s.Conn == nil {
		return
	}
	// Reset the tenant context before returning connection to pool
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_project_id")
	s.Conn.Release()
}

// AdvisoryLock takes a session-level advisory lock for (namespace, projectID)
// on the scope's connection, blocking until it is granted or ctx is done.
// The returned unlock func must be called before Close. If the unlock fails the
// connection is closed, which ends the session and drops the lock, and the pool
// discards it on Release.
func (s *TenantScope) AdvisoryLock(ctx context.Context, namespace string, projectID uuid.UUID) (func() error, error) {
	key := AdvisoryLockKey(namespace, projectID)
	if _, err := s.Conn.Exec(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		return nil, fmt.Errorf("acquire advisory lock %s: %w", namespace, err)
	}
	return func() error {
		return releaseAdvisoryLock(s.Conn, key, func() {
			_ = s.Conn.Conn().Close(context.Background())
		})
	}, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// releaseAdvisoryLock unlocks key on conn and calls discard when the lock could
// not be confirmed released.
func releaseAdvisoryLock(conn rowQuerier, key int64, discard func()) error {
	var released bool
	if err := conn.QueryRow(context.Background(), "SELECT pg_advisory_unlock($1)", key).Scan(&released); err != nil {
		discard()
		return fmt.Errorf("release advisory lock %d: %w", key, err)
	}
	if !released {
		discard()
		return fmt.Errorf("release advisory lock %d: lock was not held by this session", key)
	}
	return nil
}

// AdvisoryLockKey derives a stable bigint lock key from a namespace and project.
func AdvisoryLockKey(namespace string, projectID uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write(projectID[:])
	return int64(h.Sum64())
}

// WithTenant acquires a connection and sets the tenant context for RLS.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithTenant(ctx context.Context, projectID uuid.UUID) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_project_id', $1, false)", projectID.String())
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("set tenant context: %w", err)
	}

	return &TenantScope{Conn: conn}, nil
}
