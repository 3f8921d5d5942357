package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/schemadoc/schemadoc-engine/pkg/apperrors"
	"github.com/schemadoc/schemadoc-engine/pkg/database"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// DatasourceRepository reads registered source databases. Connection configs
// stay encrypted here; decryption belongs to the caller holding the key.
type DatasourceRepository interface {
	// Create inserts a new datasource. Returns apperrors.ErrConflict if the name is taken.
	Create(ctx context.Context, ds *models.Datasource, encryptedConfig string) error

	// GetPrimary returns the project's oldest datasource and its encrypted config.
	// Returns apperrors.ErrNotFound if the project has none.
	GetPrimary(ctx context.Context, projectID uuid.UUID) (*models.Datasource, string, error)
}

// datasourceRepository implements DatasourceRepository using PostgreSQL.
type datasourceRepository struct{}

// NewDatasourceRepository creates a new datasource repository.
func NewDatasourceRepository() DatasourceRepository {
	return &datasourceRepository{}
}

var _ DatasourceRepository = (*datasourceRepository)(nil)

func (r *datasourceRepository) Create(ctx context.Context, ds *models.Datasource, encryptedConfig string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO engine_datasources (project_id, name, datasource_type, datasource_config)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query, ds.ProjectID, ds.Name, ds.DatasourceType, encryptedConfig).
		Scan(&ds.ID, &ds.CreatedAt, &ds.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("datasource %q: %w", ds.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create datasource: %w", err)
	}

	return nil
}

func (r *datasourceRepository) GetPrimary(ctx context.Context, projectID uuid.UUID) (*models.Datasource, string, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, "", fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, project_id, name, datasource_type, datasource_config, created_at, updated_at
		FROM engine_datasources
		WHERE project_id = $1
		ORDER BY created_at, id
		LIMIT 1`

	var ds models.Datasource
	var encryptedConfig string
	err := scope.Conn.QueryRow(ctx, query, projectID).Scan(
		&ds.ID,
		&ds.ProjectID,
		&ds.Name,
		&ds.DatasourceType,
		&encryptedConfig,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", apperrors.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get datasource: %w", err)
	}

	return &ds, encryptedConfig, nil
}
