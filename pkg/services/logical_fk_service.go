package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/apperrors"
	"github.com/schemadoc/schemadoc-engine/pkg/database"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
	"github.com/schemadoc/schemadoc-engine/pkg/repositories"
	"github.com/schemadoc/schemadoc-engine/pkg/retry"
	"github.com/schemadoc/schemadoc-engine/pkg/services/logicalfk"
)

// logicalFKLockNamespace scopes the per-project advisory lock for persisting runs.
const logicalFKLockNamespace = "logical_fk_detection"

// LogicalFKService detects, persists and manages logical foreign keys.
type LogicalFKService interface {
	// DetectCandidates runs detection and returns ranked candidates without persisting.
	// Every existing logical FK, whatever its status, is excluded.
	DetectCandidates(ctx context.Context, projectID uuid.UUID) (*models.DetectionResult, error)

	// DetectAndPersistCandidates runs detection and upserts the candidates as SUGGESTED.
	// The project's detection metadata is stamped even when nothing was found.
	DetectAndPersistCandidates(ctx context.Context, projectID uuid.UUID) (*models.DetectionPersistResult, error)

	// GetStaleness reports whether persisted results need a re-run.
	GetStaleness(ctx context.Context, projectID uuid.UUID) (*models.DetectionStaleness, error)

	// DetectIfStale persists a new run only when results are stale.
	// Returns nil when results were fresh.
	DetectIfStale(ctx context.Context, projectID uuid.UUID) (*models.DetectionPersistResult, error)

	List(ctx context.Context, projectID uuid.UUID, status *models.LogicalFKStatus) ([]*models.LogicalForeignKey, error)
	Get(ctx context.Context, projectID, id uuid.UUID) (*models.LogicalForeignKey, error)

	// CreateManual records a user-declared logical FK, confirmed immediately.
	CreateManual(ctx context.Context, projectID uuid.UUID, req *models.CreateLogicalFKRequest) (*models.LogicalForeignKey, error)

	// Confirm marks a logical FK confirmed and feeds it to the dependency graph.
	Confirm(ctx context.Context, projectID, id uuid.UUID, confirmedBy string) (*models.LogicalForeignKey, error)

	// Reject marks a suggested logical FK rejected.
	Reject(ctx context.Context, projectID, id uuid.UUID) (*models.LogicalForeignKey, error)

	Delete(ctx context.Context, projectID, id uuid.UUID) error
}

// ProjectLocker serializes persisting detection runs for one project.
type ProjectLocker interface {
	Lock(ctx context.Context, projectID uuid.UUID) (unlock func() error, err error)
}

type tenantScopeLocker struct{}

// NewTenantScopeLocker takes a Postgres advisory lock on the request's tenant connection.
func NewTenantScopeLocker() ProjectLocker {
	return tenantScopeLocker{}
}

func (tenantScopeLocker) Lock(ctx context.Context, projectID uuid.UUID) (func() error, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}
	return scope.AdvisoryLock(ctx, logicalFKLockNamespace, projectID)
}

// LogicalFKServiceDeps contains dependencies for LogicalFKService.
type LogicalFKServiceDeps struct {
	LogicalFKRepo    repositories.LogicalFKRepository
	SchemaRepo       repositories.SchemaRepository
	DetectionRunRepo repositories.DetectionRunRepository
	DependencyRepo   repositories.TableDependencyRepository
	Procedures       ProcedureSource
	Extractor        logicalfk.JoinExtractor
	Locker           ProjectLocker // Optional: nil disables per-project locking
	Logger           *zap.Logger

	// SPAnalysisTimeout bounds loading procedures. Zero means no extra bound.
	SPAnalysisTimeout time.Duration
	// LoadRetries is the attempt count for bulk metadata reads. Values below 1 mean 1.
	LoadRetries int
	// IrregularPlurals enables irregular English plural table resolution.
	IrregularPlurals bool
}

type logicalFKService struct {
	logicalFKRepo     repositories.LogicalFKRepository
	schemaRepo        repositories.SchemaRepository
	detectionRunRepo  repositories.DetectionRunRepository
	dependencyRepo    repositories.TableDependencyRepository
	procedures        ProcedureSource
	extractor         logicalfk.JoinExtractor
	locker            ProjectLocker
	detector          *logicalfk.Detector
	spAnalysisTimeout time.Duration
	retryConfig       *retry.Config
	logger            *zap.Logger
}

// NewLogicalFKService creates a new LogicalFKService.
func NewLogicalFKService(deps *LogicalFKServiceDeps) LogicalFKService {
	attempts := deps.LoadRetries
	if attempts < 1 {
		attempts = 1
	}
	return &logicalFKService{
		logicalFKRepo:     deps.LogicalFKRepo,
		schemaRepo:        deps.SchemaRepo,
		detectionRunRepo:  deps.DetectionRunRepo,
		dependencyRepo:    deps.DependencyRepo,
		procedures:        deps.Procedures,
		extractor:         deps.Extractor,
		locker:            deps.Locker,
		detector:          logicalfk.NewDetector(deps.Logger, logicalfk.WithIrregularPlurals(deps.IrregularPlurals)),
		spAnalysisTimeout: deps.SPAnalysisTimeout,
		retryConfig:       retry.WithAttempts(attempts),
		logger:            deps.Logger.Named("logical-fk-service"),
	}
}

var _ LogicalFKService = (*logicalFKService)(nil)

func (s *logicalFKService) DetectCandidates(ctx context.Context, projectID uuid.UUID) (*models.DetectionResult, error) {
	return s.detect(ctx, projectID, logicalfk.ExcludeAllExisting)
}

func (s *logicalFKService) DetectAndPersistCandidates(ctx context.Context, projectID uuid.UUID) (*models.DetectionPersistResult, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to lock project for detection: %w", err)
		}
		defer func() {
			if err := unlock(); err != nil {
				s.logger.Error("Failed to release detection lock",
					zap.String("project_id", projectID.String()),
					zap.Error(err))
			}
		}()
	}

	detection, err := s.detect(ctx, projectID, logicalfk.KeepRevisable)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	upsert, err := s.logicalFKRepo.UpsertSuggestions(ctx, projectID, detection.Candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to persist candidates: %w", err)
	}

	if err := s.detectionRunRepo.StampDetectionRun(ctx, projectID, logicalfk.AlgorithmVersion,
		len(detection.Candidates), upsert.Affected()); err != nil {
		return nil, fmt.Errorf("failed to stamp detection run: %w", err)
	}

	s.logger.Info("Persisted logical FK candidates",
		zap.String("project_id", projectID.String()),
		zap.Int("candidates", len(detection.Candidates)),
		zap.Int("inserted", upsert.Inserted),
		zap.Int("resurfaced", upsert.Resurfaced),
		zap.Int("refreshed", upsert.Refreshed),
		zap.String("sp_analysis", string(detection.SPAnalysis.Status)))

	return &models.DetectionPersistResult{
		Detection: detection,
		Upsert:    upsert,
		Affected:  upsert.Affected(),
	}, nil
}

func (s *logicalFKService) GetStaleness(ctx context.Context, projectID uuid.UUID) (*models.DetectionStaleness, error) {
	meta, err := s.detectionRunRepo.GetDetectionMetadata(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get detection metadata: %w", err)
	}
	return models.EvaluateStaleness(meta, logicalfk.AlgorithmVersion), nil
}

func (s *logicalFKService) DetectIfStale(ctx context.Context, projectID uuid.UUID) (*models.DetectionPersistResult, error) {
	staleness, err := s.GetStaleness(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !staleness.Stale {
		s.logger.Debug("Logical FK detection results are fresh",
			zap.String("project_id", projectID.String()))
		return nil, nil
	}

	s.logger.Info("Logical FK detection results are stale, re-running",
		zap.String("project_id", projectID.String()),
		zap.String("reason", string(staleness.Reason)))
	return s.DetectAndPersistCandidates(ctx, projectID)
}

// detect loads the run's inputs in bulk and hands them to the detector.
func (s *logicalFKService) detect(ctx context.Context, projectID uuid.UUID, mode logicalfk.ExclusionMode) (*models.DetectionResult, error) {
	columns, err := retry.DoIfRetryable(ctx, s.retryConfig, func() ([]models.DetectionColumn, error) {
		return s.schemaRepo.GetColumnsForDetection(ctx, projectID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load columns: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exclusions, err := s.loadExclusions(ctx, projectID)
	if err != nil {
		return nil, err
	}

	procs, procErr := s.loadProcedures(ctx, projectID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := s.detector.Detect(ctx, &logicalfk.DetectionInput{
		Columns:      columns,
		Exclusions:   exclusions,
		Mode:         mode,
		Procedures:   procs,
		ProcedureErr: procErr,
		Extractor:    s.extractor,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Logical FK detection complete",
		zap.String("project_id", projectID.String()),
		zap.Int("columns", out.ColumnsScanned),
		zap.Int("candidates", len(out.Candidates)))

	return &models.DetectionResult{
		ProjectID:        projectID,
		Candidates:       out.Candidates,
		SPAnalysis:       out.SPAnalysis,
		AlgorithmVersion: logicalfk.AlgorithmVersion,
		ColumnsScanned:   out.ColumnsScanned,
	}, nil
}

func (s *logicalFKService) loadExclusions(ctx context.Context, projectID uuid.UUID) (*logicalfk.Exclusions, error) {
	physical, err := retry.DoIfRetryable(ctx, s.retryConfig, func() (map[string]struct{}, error) {
		return s.schemaRepo.GetPhysicalFKKeys(ctx, projectID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load physical foreign keys: %w", err)
	}

	logical, err := retry.DoIfRetryable(ctx, s.retryConfig, func() (map[string]models.LogicalFKStatus, error) {
		return s.logicalFKRepo.ListKeysWithStatus(ctx, projectID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load logical foreign keys: %w", err)
	}

	exclusions := logicalfk.NewExclusions()
	if physical != nil {
		exclusions.Physical = physical
	}
	if logical != nil {
		exclusions.Logical = logical
	}
	return exclusions, nil
}

// loadProcedures never fails the run. The returned error is handed to the
// detector, which degrades to naming-only evidence.
func (s *logicalFKService) loadProcedures(ctx context.Context, projectID uuid.UUID) ([]*models.StoredProcedure, error) {
	if s.procedures == nil {
		return nil, nil
	}

	spCtx := ctx
	if s.spAnalysisTimeout > 0 {
		var cancel context.CancelFunc
		spCtx, cancel = context.WithTimeout(ctx, s.spAnalysisTimeout)
		defer cancel()
	}

	procs, err := s.procedures.LoadProcedures(spCtx, projectID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("loading stored procedures exceeded %s: %w", s.spAnalysisTimeout, err)
		}
		return nil, err
	}
	return procs, nil
}

func (s *logicalFKService) List(ctx context.Context, projectID uuid.UUID, status *models.LogicalFKStatus) ([]*models.LogicalForeignKey, error) {
	fks, err := s.logicalFKRepo.List(ctx, projectID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list logical fks: %w", err)
	}
	return fks, nil
}

func (s *logicalFKService) Get(ctx context.Context, projectID, id uuid.UUID) (*models.LogicalForeignKey, error) {
	fk, err := s.logicalFKRepo.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get logical fk: %w", err)
	}
	return fk, nil
}

func (s *logicalFKService) CreateManual(ctx context.Context, projectID uuid.UUID, req *models.CreateLogicalFKRequest) (*models.LogicalForeignKey, error) {
	if err := s.validateManual(ctx, projectID, req); err != nil {
		return nil, err
	}

	now := time.Now()
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "user"
	}
	reason := "Manually declared"
	fk := &models.LogicalForeignKey{
		ProjectID:       projectID,
		SourceTableID:   req.SourceTableID,
		SourceColumnIDs: req.SourceColumnIDs,
		TargetTableID:   req.TargetTableID,
		TargetColumnIDs: req.TargetColumnIDs,
		DiscoveryMethod: models.DiscoveryMethodManual,
		ConfidenceScore: 1.0,
		Status:          models.LogicalFKStatusConfirmed,
		Reason:          &reason,
		ConfirmedBy:     &createdBy,
		ConfirmedAt:     &now,
		Notes:           req.Notes,
		CreatedBy:       createdBy,
	}

	if err := s.logicalFKRepo.Create(ctx, fk); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("logical fk already exists: %w", apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create logical fk: %w", err)
	}

	s.addDependency(ctx, fk)
	return fk, nil
}

// validateManual checks shape, column ownership, then duplicates of existing keys.
func (s *logicalFKService) validateManual(ctx context.Context, projectID uuid.UUID, req *models.CreateLogicalFKRequest) error {
	if req == nil {
		return apperrors.NewValidationError("request body is required")
	}
	if req.SourceTableID == uuid.Nil || req.TargetTableID == uuid.Nil {
		return apperrors.NewValidationError("source_table_id and target_table_id are required")
	}
	if len(req.SourceColumnIDs) == 0 || len(req.TargetColumnIDs) == 0 {
		return apperrors.NewValidationError("source_column_ids and target_column_ids must not be empty")
	}
	if len(req.SourceColumnIDs) != len(req.TargetColumnIDs) {
		return apperrors.NewValidationError("source has %d columns but target has %d",
			len(req.SourceColumnIDs), len(req.TargetColumnIDs))
	}

	if req.SourceTableID == req.TargetTableID && req.SourceColumnIDs.Equal(req.TargetColumnIDs) {
		return apperrors.NewValidationError("source and target columns are identical")
	}

	ok, err := s.schemaRepo.ColumnsBelongToTable(ctx, projectID, req.SourceTableID, req.SourceColumnIDs)
	if err != nil {
		return fmt.Errorf("failed to validate source columns: %w", err)
	}
	if !ok {
		return apperrors.NewValidationError("source_column_ids must all belong to source table %s", req.SourceTableID)
	}
	ok, err = s.schemaRepo.ColumnsBelongToTable(ctx, projectID, req.TargetTableID, req.TargetColumnIDs)
	if err != nil {
		return fmt.Errorf("failed to validate target columns: %w", err)
	}
	if !ok {
		return apperrors.NewValidationError("target_column_ids must all belong to target table %s", req.TargetTableID)
	}

	key := models.CompositeEdgeKey(req.SourceTableID, req.SourceColumnIDs, req.TargetTableID, req.TargetColumnIDs)

	logical, err := s.logicalFKRepo.ListKeysWithStatus(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load logical foreign keys: %w", err)
	}
	if status, exists := logical[key]; exists {
		return fmt.Errorf("logical fk already exists with status %s: %w", status, apperrors.ErrConflict)
	}

	physical, err := s.schemaRepo.GetPhysicalFKKeys(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load physical foreign keys: %w", err)
	}
	if _, exists := physical[key]; exists {
		return fmt.Errorf("a declared foreign key already covers these columns: %w", apperrors.ErrConflict)
	}

	return nil
}

func (s *logicalFKService) Confirm(ctx context.Context, projectID, id uuid.UUID, confirmedBy string) (*models.LogicalForeignKey, error) {
	if confirmedBy == "" {
		confirmedBy = "user"
	}
	fk, err := s.transition(ctx, projectID, id, models.LogicalFKStatusConfirmed, &confirmedBy)
	if err != nil {
		return nil, err
	}

	s.addDependency(ctx, fk)
	return fk, nil
}

func (s *logicalFKService) Reject(ctx context.Context, projectID, id uuid.UUID) (*models.LogicalForeignKey, error) {
	return s.transition(ctx, projectID, id, models.LogicalFKStatusRejected, nil)
}

func (s *logicalFKService) transition(ctx context.Context, projectID, id uuid.UUID, next models.LogicalFKStatus, by *string) (*models.LogicalForeignKey, error) {
	fk, err := s.logicalFKRepo.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get logical fk: %w", err)
	}
	if !fk.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("cannot change logical fk from %s to %s: %w", fk.Status, next, apperrors.ErrInvalidTransition)
	}

	if err := s.logicalFKRepo.UpdateStatus(ctx, projectID, id, next, by); err != nil {
		return nil, fmt.Errorf("failed to update logical fk status: %w", err)
	}

	updated, err := s.logicalFKRepo.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload logical fk: %w", err)
	}

	s.logger.Info("Logical FK status changed",
		zap.String("project_id", projectID.String()),
		zap.String("logical_fk_id", id.String()),
		zap.String("from", string(fk.Status)),
		zap.String("to", string(next)))

	return updated, nil
}

// addDependency feeds a confirmed logical FK into the dependency graph. Failures
// are logged only; the logical FK row is the source of truth.
func (s *logicalFKService) addDependency(ctx context.Context, fk *models.LogicalForeignKey) {
	if s.dependencyRepo == nil {
		return
	}
	dep := &models.TableDependency{
		ProjectID:      fk.ProjectID,
		SourceTableID:  fk.SourceTableID,
		TargetTableID:  fk.TargetTableID,
		DependencyType: models.DependencyTypeLogicalFK,
		Confidence:     fk.ConfidenceScore,
	}
	if err := s.dependencyRepo.AddDependency(ctx, dep); err != nil {
		s.logger.Warn("Failed to add logical FK to dependency graph",
			zap.String("project_id", fk.ProjectID.String()),
			zap.String("logical_fk_id", fk.ID.String()),
			zap.Error(err))
	}
}

func (s *logicalFKService) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	if err := s.logicalFKRepo.Delete(ctx, projectID, id); err != nil {
		return fmt.Errorf("failed to delete logical fk: %w", err)
	}
	return nil
}
