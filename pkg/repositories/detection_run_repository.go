package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/schemadoc/schemadoc-engine/pkg/apperrors"
	"github.com/schemadoc/schemadoc-engine/pkg/database"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// DetectionRunRepository tracks when logical FK detection last ran for a project.
type DetectionRunRepository interface {
	// GetDetectionMetadata returns run bookkeeping joined with the project's last
	// schema sync. Returns apperrors.ErrNotFound if the project does not exist.
	GetDetectionMetadata(ctx context.Context, projectID uuid.UUID) (*models.DetectionMetadata, error)

	// StampDetectionRun records a completed persisting run.
	StampDetectionRun(ctx context.Context, projectID uuid.UUID, algorithmVersion string, candidatesFound, rowsAffected int) error
}

type detectionRunRepository struct{}

// NewDetectionRunRepository creates a new DetectionRunRepository.
func NewDetectionRunRepository() DetectionRunRepository {
	return &detectionRunRepository{}
}

var _ DetectionRunRepository = (*detectionRunRepository)(nil)

func (r *detectionRunRepository) GetDetectionMetadata(ctx context.Context, projectID uuid.UUID) (*models.DetectionMetadata, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT p.id, d.last_run_at, d.algorithm_version, p.last_schema_sync_at
		FROM engine_projects p
		LEFT JOIN engine_logical_fk_detection_runs d ON d.project_id = p.id
		WHERE p.id = $1`

	var meta models.DetectionMetadata
	err := scope.Conn.QueryRow(ctx, query, projectID).Scan(
		&meta.ProjectID, &meta.LastRunAt, &meta.AlgorithmVersion, &meta.LastSchemaSyncAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get detection metadata: %w", err)
	}

	return &meta, nil
}

func (r *detectionRunRepository) StampDetectionRun(ctx context.Context, projectID uuid.UUID, algorithmVersion string, candidatesFound, rowsAffected int) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO engine_logical_fk_detection_runs
			(project_id, last_run_at, algorithm_version, candidates_found, rows_affected)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id) DO UPDATE SET
			last_run_at = EXCLUDED.last_run_at,
			algorithm_version = EXCLUDED.algorithm_version,
			candidates_found = EXCLUDED.candidates_found,
			rows_affected = EXCLUDED.rows_affected`

	_, err := scope.Conn.Exec(ctx, query, projectID, time.Now(), algorithmVersion, candidatesFound, rowsAffected)
	if err != nil {
		return fmt.Errorf("failed to stamp detection run: %w", err)
	}

	return nil
}
