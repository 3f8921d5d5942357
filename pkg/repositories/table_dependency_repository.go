package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/schemadoc/schemadoc-engine/pkg/database"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// TableDependencyRepository maintains the project's table dependency graph.
type TableDependencyRepository interface {
	// AddDependency upserts an edge. Re-adding an existing edge refreshes its confidence.
	AddDependency(ctx context.Context, dep *models.TableDependency) error

	// ListByProject returns all edges for a project.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.TableDependency, error)
}

type tableDependencyRepository struct{}

// NewTableDependencyRepository creates a new TableDependencyRepository.
func NewTableDependencyRepository() TableDependencyRepository {
	return &tableDependencyRepository{}
}

var _ TableDependencyRepository = (*tableDependencyRepository)(nil)

func (r *tableDependencyRepository) AddDependency(ctx context.Context, dep *models.TableDependency) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO engine_table_dependencies
			(project_id, source_table_id, target_table_id, dependency_type, confidence)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id, source_table_id, target_table_id, dependency_type) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		dep.ProjectID, dep.SourceTableID, dep.TargetTableID, string(dep.DependencyType), dep.Confidence,
	).Scan(&dep.ID, &dep.CreatedAt, &dep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to add table dependency: %w", err)
	}

	return nil
}

func (r *tableDependencyRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.TableDependency, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, project_id, source_table_id, target_table_id, dependency_type, confidence, created_at, updated_at
		FROM engine_table_dependencies
		WHERE project_id = $1
		ORDER BY created_at, id`

	rows, err := scope.Conn.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query table dependencies: %w", err)
	}
	defer rows.Close()

	var deps []*models.TableDependency
	for rows.Next() {
		var d models.TableDependency
		var depType string
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.SourceTableID, &d.TargetTableID,
			&depType, &d.Confidence, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan table dependency: %w", err)
		}
		d.DependencyType = models.DependencyType(depType)
		deps = append(deps, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table dependencies: %w", err)
	}

	return deps, nil
}
