package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/schemadoc/schemadoc-engine/pkg/database"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// SchemaRepository reads the mirrored schema of a project's datasource.
// The mirror is written by schema sync; detection only reads it.
type SchemaRepository interface {
	// GetColumnsForDetection returns every live column of every live table in the
	// project, with declared-FK participation folded into IsForeignKey.
	GetColumnsForDetection(ctx context.Context, projectID uuid.UUID) ([]models.DetectionColumn, error)

	// GetPhysicalFKKeys returns the canonical edge keys of declared foreign keys.
	GetPhysicalFKKeys(ctx context.Context, projectID uuid.UUID) (map[string]struct{}, error)

	// ColumnsBelongToTable reports whether every ID in columnIDs is a live column of tableID.
	ColumnsBelongToTable(ctx context.Context, projectID, tableID uuid.UUID, columnIDs []uuid.UUID) (bool, error)
}

type schemaRepository struct{}

// NewSchemaRepository creates a new SchemaRepository.
func NewSchemaRepository() SchemaRepository {
	return &schemaRepository{}
}

var _ SchemaRepository = (*schemaRepository)(nil)

func (r *schemaRepository) GetColumnsForDetection(ctx context.Context, projectID uuid.UUID) ([]models.DetectionColumn, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT t.id, c.id, t.schema_name, t.table_name, c.column_name, c.data_type,
		       c.is_primary_key, c.is_unique,
		       EXISTS (
		           SELECT 1 FROM engine_schema_relationships r
		           WHERE r.project_id = c.project_id
		             AND r.source_column_id = c.id
		             AND r.deleted_at IS NULL
		       ) AS is_foreign_key
		FROM engine_schema_columns c
		JOIN engine_schema_tables t ON t.id = c.schema_table_id
		WHERE c.project_id = $1
		  AND c.deleted_at IS NULL
		  AND t.deleted_at IS NULL
		ORDER BY t.schema_name, t.table_name, c.ordinal_position, c.column_name`

	rows, err := scope.Conn.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detection columns: %w", err)
	}
	defer rows.Close()

	var columns []models.DetectionColumn
	for rows.Next() {
		var c models.DetectionColumn
		if err := rows.Scan(&c.TableID, &c.ColumnID, &c.SchemaName, &c.TableName, &c.ColumnName,
			&c.DataType, &c.IsPrimaryKey, &c.IsUnique, &c.IsForeignKey); err != nil {
			return nil, fmt.Errorf("failed to scan detection column: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating detection columns: %w", err)
	}

	return columns, nil
}

func (r *schemaRepository) GetPhysicalFKKeys(ctx context.Context, projectID uuid.UUID) (map[string]struct{}, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT source_table_id, source_column_id, target_table_id, target_column_id
		FROM engine_schema_relationships
		WHERE project_id = $1 AND deleted_at IS NULL`

	rows, err := scope.Conn.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query physical foreign keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k models.EdgeKey
		if err := rows.Scan(&k.SourceTableID, &k.SourceColumnID, &k.TargetTableID, &k.TargetColumnID); err != nil {
			return nil, fmt.Errorf("failed to scan physical foreign key: %w", err)
		}
		keys[k.String()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating physical foreign keys: %w", err)
	}

	return keys, nil
}

func (r *schemaRepository) ColumnsBelongToTable(ctx context.Context, projectID, tableID uuid.UUID, columnIDs []uuid.UUID) (bool, error) {
	if len(columnIDs) == 0 {
		return false, nil
	}

	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	distinct := make(map[uuid.UUID]struct{}, len(columnIDs))
	for _, id := range columnIDs {
		distinct[id] = struct{}{}
	}

	query := `
		SELECT COUNT(*)
		FROM engine_schema_columns c
		JOIN engine_schema_tables t ON t.id = c.schema_table_id
		WHERE c.project_id = $1
		  AND c.schema_table_id = $2
		  AND c.id = ANY($3)
		  AND c.deleted_at IS NULL
		  AND t.deleted_at IS NULL`

	var count int
	if err := scope.Conn.QueryRow(ctx, query, projectID, tableID, columnIDs).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check column ownership: %w", err)
	}

	return count == len(distinct), nil
}
