package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/schemadoc/schemadoc-engine/pkg/database"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// StoredProcedureRepository reads procedure definitions mirrored during schema sync.
type StoredProcedureRepository interface {
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.StoredProcedure, error)
}

type storedProcedureRepository struct{}

// NewStoredProcedureRepository creates a new StoredProcedureRepository.
func NewStoredProcedureRepository() StoredProcedureRepository {
	return &storedProcedureRepository{}
}

var _ StoredProcedureRepository = (*storedProcedureRepository)(nil)

func (r *storedProcedureRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.StoredProcedure, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT schema_name, procedure_name, definition, dialect
		FROM engine_stored_procedures
		WHERE project_id = $1
		ORDER BY schema_name, procedure_name`

	rows, err := scope.Conn.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stored procedures: %w", err)
	}
	defer rows.Close()

	var procs []*models.StoredProcedure
	for rows.Next() {
		var p models.StoredProcedure
		var dialect string
		if err := rows.Scan(&p.SchemaName, &p.Name, &p.Definition, &dialect); err != nil {
			return nil, fmt.Errorf("failed to scan stored procedure: %w", err)
		}
		p.Dialect = models.ProcedureDialect(dialect)
		procs = append(procs, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stored procedures: %w", err)
	}

	return procs, nil
}
