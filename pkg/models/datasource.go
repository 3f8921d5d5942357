package models

import (
	"time"

	"github.com/google/uuid"
)

// Datasource types with registered procedure readers.
const (
	DatasourceTypePostgres = "postgres"
	DatasourceTypeMSSQL    = "mssql"
)

// Datasource is a project's registered source database. Its connection config
// is stored encrypted and travels separately from this struct.
type Datasource struct {
	ID             uuid.UUID `json:"id"`
	ProjectID      uuid.UUID `json:"project_id"`
	Name           string    `json:"name"`
	DatasourceType string    `json:"datasource_type"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProcedureDialect returns the SQL dialect of procedures read from this datasource.
func (d *Datasource) ProcedureDialect() ProcedureDialect {
	if d.DatasourceType == DatasourceTypeMSSQL {
		return ProcedureDialectTSQL
	}
	return ProcedureDialectPostgres
}
