package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schemadoc/schemadoc-engine/pkg/adapters/datasource"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// routinesQuery lists SQL and PL/pgSQL functions and procedures outside the
// system schemas. pg_get_functiondef yields a full CREATE statement whose body
// the PostgreSQL join extractor parses.
const routinesQuery = `
	SELECT n.nspname, p.proname, pg_get_functiondef(p.oid)
	FROM pg_proc p
	JOIN pg_namespace n ON n.oid = p.pronamespace
	JOIN pg_language l ON l.oid = p.prolang
	WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
	  AND n.nspname NOT LIKE 'pg_toast%'
	  AND p.prokind IN ('f', 'p')
	  AND l.lanname IN ('sql', 'plpgsql')
	ORDER BY n.nspname, p.proname, p.oid`

// ProcedureReader reads routine definitions from a PostgreSQL database.
type ProcedureReader struct {
	pool *pgxpool.Pool
}

// NewProcedureReader opens a small pool to the datasource and verifies it.
func NewProcedureReader(ctx context.Context, cfg *Config, opts datasource.ConnectOptions) (*ProcedureReader, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &ProcedureReader{pool: pool}, nil
}

// ReadProcedures implements datasource.ProcedureReader.
func (r *ProcedureReader) ReadProcedures(ctx context.Context) ([]*models.StoredProcedure, error) {
	rows, err := r.pool.Query(ctx, routinesQuery)
	if err != nil {
		return nil, fmt.Errorf("query routines: %w", err)
	}
	defer rows.Close()

	var procs []*models.StoredProcedure
	for rows.Next() {
		var schema, name string
		var definition *string
		if err := rows.Scan(&schema, &name, &definition); err != nil {
			return nil, fmt.Errorf("scan routine: %w", err)
		}
		if definition == nil || *definition == "" {
			continue
		}
		procs = append(procs, &models.StoredProcedure{
			SchemaName: schema,
			Name:       name,
			Definition: *definition,
			Dialect:    models.ProcedureDialectPostgres,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routines: %w", err)
	}

	return procs, nil
}

// Close releases the pool.
func (r *ProcedureReader) Close() error {
	r.pool.Close()
	return nil
}

var _ datasource.ProcedureReader = (*ProcedureReader)(nil)
