package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/apperrors"
	"github.com/schemadoc/schemadoc-engine/pkg/database"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// LogicalFKRepository provides data access for logical foreign keys.
type LogicalFKRepository interface {
	// Create inserts a logical FK. Returns apperrors.ErrConflict if the edge already exists.
	Create(ctx context.Context, fk *models.LogicalForeignKey) error

	// GetByID returns apperrors.ErrNotFound when no row matches.
	GetByID(ctx context.Context, projectID, id uuid.UUID) (*models.LogicalForeignKey, error)

	// List returns the project's logical FKs, optionally filtered by status.
	List(ctx context.Context, projectID uuid.UUID, status *models.LogicalFKStatus) ([]*models.LogicalForeignKey, error)

	// ListKeysWithStatus returns every canonical edge key for the project with its status.
	ListKeysWithStatus(ctx context.Context, projectID uuid.UUID) (map[string]models.LogicalFKStatus, error)

	// UpdateStatus sets a new status. confirmedBy is recorded only for CONFIRMED.
	UpdateStatus(ctx context.Context, projectID, id uuid.UUID, status models.LogicalFKStatus, confirmedBy *string) error

	// Delete removes a logical FK. Returns apperrors.ErrNotFound when no row matches.
	Delete(ctx context.Context, projectID, id uuid.UUID) error

	// UpsertSuggestions writes detected candidates as SUGGESTED rows in one batch.
	// Per candidate: insert if new; else re-surface a REJECTED row whose stored
	// score is lower; else refresh a SUGGESTED row. CONFIRMED rows are never touched.
	UpsertSuggestions(ctx context.Context, projectID uuid.UUID, candidates []*models.LogicalFKCandidate) (models.UpsertResult, error)
}

type logicalFKRepository struct {
	logger *zap.Logger
}

// NewLogicalFKRepository creates a new LogicalFKRepository.
func NewLogicalFKRepository(logger *zap.Logger) LogicalFKRepository {
	return &logicalFKRepository{logger: logger.Named("logical-fk-repository")}
}

var _ LogicalFKRepository = (*logicalFKRepository)(nil)

const logicalFKColumns = `
	fk.id, fk.project_id, fk.source_table_id, fk.source_column_ids,
	fk.target_table_id, fk.target_column_ids, fk.discovery_method,
	fk.confidence_score, fk.status, fk.reason, fk.confirmed_by, fk.confirmed_at,
	fk.notes, fk.created_by, fk.created_at, fk.updated_at,
	st.table_name, tt.table_name`

const logicalFKFrom = `
	FROM engine_logical_fks fk
	LEFT JOIN engine_schema_tables st ON st.id = fk.source_table_id
	LEFT JOIN engine_schema_tables tt ON tt.id = fk.target_table_id`

func (r *logicalFKRepository) Create(ctx context.Context, fk *models.LogicalForeignKey) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	sourceJSON, err := fk.SourceColumnIDs.EncodeJSON()
	if err != nil {
		return err
	}
	targetJSON, err := fk.TargetColumnIDs.EncodeJSON()
	if err != nil {
		return err
	}

	now := time.Now()
	if fk.ID == uuid.Nil {
		fk.ID = uuid.New()
	}
	fk.CreatedAt = now
	fk.UpdatedAt = now

	query := `
		INSERT INTO engine_logical_fks (
			id, project_id, source_table_id, source_column_ids, target_table_id, target_column_ids,
			discovery_method, confidence_score, status, reason, confirmed_by, confirmed_at,
			notes, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4::jsonb, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = scope.Conn.Exec(ctx, query,
		fk.ID, fk.ProjectID, fk.SourceTableID, sourceJSON, fk.TargetTableID, targetJSON,
		fk.DiscoveryMethod, fk.ConfidenceScore, fk.Status, fk.Reason, fk.ConfirmedBy, fk.ConfirmedAt,
		fk.Notes, fk.CreatedBy, fk.CreatedAt, fk.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create logical fk: %w", err)
	}

	return nil
}

func (r *logicalFKRepository) GetByID(ctx context.Context, projectID, id uuid.UUID) (*models.LogicalForeignKey, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + logicalFKColumns + logicalFKFrom + `
		WHERE fk.project_id = $1 AND fk.id = $2`

	fk, err := r.scanLogicalFK(scope.Conn.QueryRow(ctx, query, projectID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get logical fk: %w", err)
	}
	return fk, nil
}

func (r *logicalFKRepository) List(ctx context.Context, projectID uuid.UUID, status *models.LogicalFKStatus) ([]*models.LogicalForeignKey, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + logicalFKColumns + logicalFKFrom + `
		WHERE fk.project_id = $1 AND ($2::text IS NULL OR fk.status = $2)
		ORDER BY fk.confidence_score DESC, st.table_name, tt.table_name, fk.id`

	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	rows, err := scope.Conn.Query(ctx, query, projectID, statusArg)
	if err != nil {
		return nil, fmt.Errorf("failed to query logical fks: %w", err)
	}
	defer rows.Close()

	var fks []*models.LogicalForeignKey
	for rows.Next() {
		fk, err := r.scanLogicalFK(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan logical fk row: %w", err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logical fk rows: %w", err)
	}

	return fks, nil
}

func (r *logicalFKRepository) ListKeysWithStatus(ctx context.Context, projectID uuid.UUID) (map[string]models.LogicalFKStatus, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, source_table_id, source_column_ids, target_table_id, target_column_ids, status
		FROM engine_logical_fks
		WHERE project_id = $1`

	rows, err := scope.Conn.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query logical fk keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]models.LogicalFKStatus)
	for rows.Next() {
		var row logicalFKKeyRow
		if err := rows.Scan(&row.ID, &row.SourceTableID, &row.SourceColumnIDs,
			&row.TargetTableID, &row.TargetColumnIDs, &row.Status); err != nil {
			return nil, fmt.Errorf("failed to scan logical fk key: %w", err)
		}

		source := r.decodeColumnIDs(row.ID, "source_column_ids", row.SourceColumnIDs)
		target := r.decodeColumnIDs(row.ID, "target_column_ids", row.TargetColumnIDs)
		keys[models.CompositeEdgeKey(row.SourceTableID, source, row.TargetTableID, target)] = models.LogicalFKStatus(row.Status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logical fk keys: %w", err)
	}

	return keys, nil
}

func (r *logicalFKRepository) UpdateStatus(ctx context.Context, projectID, id uuid.UUID, status models.LogicalFKStatus, confirmedBy *string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE engine_logical_fks
		SET status = $3,
		    confirmed_by = CASE WHEN $3 = 'CONFIRMED' THEN $4 ELSE NULL END,
		    confirmed_at = CASE WHEN $3 = 'CONFIRMED' THEN NOW() ELSE NULL END,
		    updated_at = NOW()
		WHERE project_id = $1 AND id = $2`

	result, err := scope.Conn.Exec(ctx, query, projectID, id, string(status), confirmedBy)
	if err != nil {
		return fmt.Errorf("failed to update logical fk status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *logicalFKRepository) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM engine_logical_fks WHERE project_id = $1 AND id = $2`, projectID, id)
	if err != nil {
		return fmt.Errorf("failed to delete logical fk: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// upsertSuggestionQuery performs the ordered insert / re-surface / refresh
// attempts for one edge in a single statement. Data-modifying CTEs share one
// snapshot, so the updates never see the row the insert just wrote.
const upsertSuggestionQuery = `
	WITH inserted AS (
		INSERT INTO engine_logical_fks (
			project_id, source_table_id, source_column_ids, target_table_id, target_column_ids,
			discovery_method, confidence_score, status, reason, created_by
		) VALUES ($1, $2, $3::jsonb, $4, $5::jsonb, $6, $7::numeric, 'SUGGESTED', $8, 'system')
		ON CONFLICT ON CONSTRAINT uq_engine_logical_fks_edge DO NOTHING
		RETURNING 'inserted'::text AS outcome
	), resurfaced AS (
		UPDATE engine_logical_fks
		SET status = 'SUGGESTED', discovery_method = $6, confidence_score = $7::numeric,
		    reason = $8, confirmed_by = NULL, confirmed_at = NULL, updated_at = NOW()
		WHERE project_id = $1 AND source_table_id = $2 AND source_column_ids = $3::jsonb
		  AND target_table_id = $4 AND target_column_ids = $5::jsonb
		  AND status = 'REJECTED' AND confidence_score < $7::numeric
		RETURNING 'resurfaced'::text AS outcome
	), refreshed AS (
		UPDATE engine_logical_fks
		SET discovery_method = $6, confidence_score = $7::numeric, reason = $8, updated_at = NOW()
		WHERE project_id = $1 AND source_table_id = $2 AND source_column_ids = $3::jsonb
		  AND target_table_id = $4 AND target_column_ids = $5::jsonb
		  AND status = 'SUGGESTED'
		RETURNING 'refreshed'::text AS outcome
	)
	SELECT COALESCE(
		(SELECT outcome FROM inserted),
		(SELECT outcome FROM resurfaced),
		(SELECT outcome FROM refreshed),
		'unchanged')`

func (r *logicalFKRepository) UpsertSuggestions(ctx context.Context, projectID uuid.UUID, candidates []*models.LogicalFKCandidate) (models.UpsertResult, error) {
	var result models.UpsertResult
	if len(candidates) == 0 {
		return result, nil
	}

	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return result, fmt.Errorf("no tenant scope in context")
	}

	batch := &pgx.Batch{}
	for _, c := range candidates {
		sourceJSON, err := models.ColumnIDList{c.SourceColumnID}.EncodeJSON()
		if err != nil {
			return result, err
		}
		targetJSON, err := models.ColumnIDList{c.TargetColumnID}.EncodeJSON()
		if err != nil {
			return result, err
		}
		batch.Queue(upsertSuggestionQuery,
			projectID, c.SourceTableID, sourceJSON, c.TargetTableID, targetJSON,
			string(c.PersistedDiscoveryMethod()), c.ConfidenceScore, c.Reason,
		)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	br := tx.SendBatch(ctx, batch)
	for _, c := range candidates {
		var outcome string
		if err := br.QueryRow().Scan(&outcome); err != nil {
			br.Close()
			return models.UpsertResult{}, fmt.Errorf("batch upsert logical fk %s: %w", c.EdgeKey(), err)
		}
		result.Record(models.UpsertOutcome(outcome))
	}
	if err := br.Close(); err != nil {
		return models.UpsertResult{}, fmt.Errorf("failed to close upsert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.UpsertResult{}, fmt.Errorf("failed to commit upsert batch: %w", err)
	}

	return result, nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

// logicalFKKeyRow is the raw persisted shape of a key lookup. Column ID lists
// stay as JSON bytes until decoded.
type logicalFKKeyRow struct {
	ID              uuid.UUID
	SourceTableID   uuid.UUID
	SourceColumnIDs []byte
	TargetTableID   uuid.UUID
	TargetColumnIDs []byte
	Status          string
}

// decodeColumnIDs parses a stored ID list. Unparseable entries are logged and
// kept as uuid.Nil so one bad row never aborts a batch read.
func (r *logicalFKRepository) decodeColumnIDs(rowID uuid.UUID, field string, raw []byte) models.ColumnIDList {
	list, invalid, err := models.DecodeColumnIDList(raw)
	if err != nil {
		r.logger.Warn("Unreadable column id list on logical fk",
			zap.String("logical_fk_id", rowID.String()),
			zap.String("field", field),
			zap.Error(err))
		return models.ColumnIDList{}
	}
	if len(invalid) > 0 {
		r.logger.Warn("Invalid column ids on logical fk",
			zap.String("logical_fk_id", rowID.String()),
			zap.String("field", field),
			zap.Strings("invalid", invalid))
	}
	return list
}

// parseDiscoveryMethod normalizes a stored method. Unknown values are logged
// and returned as stored so the row stays readable.
func (r *logicalFKRepository) parseDiscoveryMethod(rowID uuid.UUID, raw string) models.DiscoveryMethod {
	method, ok := models.ParseDiscoveryMethod(raw)
	if !ok {
		r.logger.Warn("Unknown discovery method on logical fk",
			zap.String("logical_fk_id", rowID.String()),
			zap.String("discovery_method", raw))
		return models.DiscoveryMethod(raw)
	}
	return method
}

func (r *logicalFKRepository) scanLogicalFK(row pgx.Row) (*models.LogicalForeignKey, error) {
	var fk models.LogicalForeignKey
	var sourceIDs, targetIDs []byte
	var method, status string
	var sourceName, targetName *string

	err := row.Scan(
		&fk.ID, &fk.ProjectID, &fk.SourceTableID, &sourceIDs,
		&fk.TargetTableID, &targetIDs, &method,
		&fk.ConfidenceScore, &status, &fk.Reason, &fk.ConfirmedBy, &fk.ConfirmedAt,
		&fk.Notes, &fk.CreatedBy, &fk.CreatedAt, &fk.UpdatedAt,
		&sourceName, &targetName,
	)
	if err != nil {
		return nil, err
	}

	fk.DiscoveryMethod = r.parseDiscoveryMethod(fk.ID, method)
	fk.Status = models.LogicalFKStatus(status)
	fk.SourceColumnIDs = r.decodeColumnIDs(fk.ID, "source_column_ids", sourceIDs)
	fk.TargetColumnIDs = r.decodeColumnIDs(fk.ID, "target_column_ids", targetIDs)
	if sourceName != nil {
		fk.SourceTableName = *sourceName
	}
	if targetName != nil {
		fk.TargetTableName = *targetName
	}

	return &fk, nil
}
