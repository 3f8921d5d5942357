package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/schemadoc/schemadoc-engine/pkg/adapters/datasource"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// modulesQuery lists stored procedures and SQL functions with their source.
// definition is NULL for encrypted modules.
const modulesQuery = `
	SELECT s.name, o.name, m.definition
	FROM sys.sql_modules m
	JOIN sys.objects o ON o.object_id = m.object_id
	JOIN sys.schemas s ON s.schema_id = o.schema_id
	WHERE o.type IN ('P', 'FN', 'IF', 'TF')
	  AND o.is_ms_shipped = 0
	ORDER BY s.name, o.name`

// ProcedureReader reads module definitions from SQL Server.
type ProcedureReader struct {
	db *sql.DB
}

// NewProcedureReader opens a connection to the datasource and verifies it.
func NewProcedureReader(ctx context.Context, cfg *Config, opts datasource.ConnectOptions) (*ProcedureReader, error) {
	db, err := sql.Open(cfg.DriverName(), cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.AuthMethod, err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(int(opts.MaxConns))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &ProcedureReader{db: db}, nil
}

// ReadProcedures implements datasource.ProcedureReader.
func (r *ProcedureReader) ReadProcedures(ctx context.Context) ([]*models.StoredProcedure, error) {
	rows, err := r.db.QueryContext(ctx, modulesQuery)
	if err != nil {
		return nil, fmt.Errorf("query sql modules: %w", err)
	}
	defer rows.Close()

	var procs []*models.StoredProcedure
	for rows.Next() {
		var schema, name string
		var definition sql.NullString
		if err := rows.Scan(&schema, &name, &definition); err != nil {
			return nil, fmt.Errorf("scan sql module: %w", err)
		}
		if !definition.Valid || definition.String == "" {
			continue
		}
		procs = append(procs, &models.StoredProcedure{
			SchemaName: schema,
			Name:       name,
			Definition: definition.String,
			Dialect:    models.ProcedureDialectTSQL,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sql modules: %w", err)
	}

	return procs, nil
}

// Close releases the connection.
func (r *ProcedureReader) Close() error {
	return r.db.Close()
}

var _ datasource.ProcedureReader = (*ProcedureReader)(nil)
