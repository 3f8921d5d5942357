package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/schemadoc/schemadoc-engine/pkg/apperrors"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// mockLogicalFKRepository keeps logical FKs in memory.
type mockLogicalFKRepository struct {
	mu  sync.Mutex
	fks map[uuid.UUID]*models.LogicalForeignKey

	keysErr   error
	upsertErr error

	upserted     []*models.LogicalFKCandidate
	upsertCalls  int
	upsertResult models.UpsertResult
}

func newMockLogicalFKRepository() *mockLogicalFKRepository {
	return &mockLogicalFKRepository{fks: make(map[uuid.UUID]*models.LogicalForeignKey)}
}

func (m *mockLogicalFKRepository) put(fk *models.LogicalForeignKey) *models.LogicalForeignKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fk.ID == uuid.Nil {
		fk.ID = uuid.New()
	}
	m.fks[fk.ID] = fk
	return fk
}

func (m *mockLogicalFKRepository) Create(ctx context.Context, fk *models.LogicalForeignKey) error {
	m.mu.Lock()
	for _, existing := range m.fks {
		if existing.EdgeKey() == fk.EdgeKey() {
			m.mu.Unlock()
			return apperrors.ErrConflict
		}
	}
	m.mu.Unlock()
	m.put(fk)
	return nil
}

func (m *mockLogicalFKRepository) GetByID(ctx context.Context, projectID, id uuid.UUID) (*models.LogicalForeignKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fk, ok := m.fks[id]
	if !ok || fk.ProjectID != projectID {
		return nil, apperrors.ErrNotFound
	}
	copied := *fk
	return &copied, nil
}

func (m *mockLogicalFKRepository) List(ctx context.Context, projectID uuid.UUID, status *models.LogicalFKStatus) ([]*models.LogicalForeignKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LogicalForeignKey
	for _, fk := range m.fks {
		if fk.ProjectID == projectID && (status == nil || fk.Status == *status) {
			out = append(out, fk)
		}
	}
	return out, nil
}

func (m *mockLogicalFKRepository) ListKeysWithStatus(ctx context.Context, projectID uuid.UUID) (map[string]models.LogicalFKStatus, error) {
	if m.keysErr != nil {
		return nil, m.keysErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make(map[string]models.LogicalFKStatus)
	for _, fk := range m.fks {
		if fk.ProjectID == projectID {
			keys[fk.EdgeKey()] = fk.Status
		}
	}
	return keys, nil
}

func (m *mockLogicalFKRepository) UpdateStatus(ctx context.Context, projectID, id uuid.UUID, status models.LogicalFKStatus, confirmedBy *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fk, ok := m.fks[id]
	if !ok || fk.ProjectID != projectID {
		return apperrors.ErrNotFound
	}
	fk.Status = status
	fk.ConfirmedBy = confirmedBy
	return nil
}

func (m *mockLogicalFKRepository) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fk, ok := m.fks[id]
	if !ok || fk.ProjectID != projectID {
		return apperrors.ErrNotFound
	}
	delete(m.fks, id)
	return nil
}

func (m *mockLogicalFKRepository) UpsertSuggestions(ctx context.Context, projectID uuid.UUID, candidates []*models.LogicalFKCandidate) (models.UpsertResult, error) {
	m.upsertCalls++
	if m.upsertErr != nil {
		return models.UpsertResult{}, m.upsertErr
	}
	m.upserted = candidates
	if m.upsertResult != (models.UpsertResult{}) {
		return m.upsertResult, nil
	}
	return models.UpsertResult{Inserted: len(candidates)}, nil
}

// mockSchemaRepository serves a fixed column snapshot.
type mockSchemaRepository struct {
	columns     []models.DetectionColumn
	physical    map[string]struct{}
	columnsErr  error
	columnCalls int
}

func (m *mockSchemaRepository) GetColumnsForDetection(ctx context.Context, projectID uuid.UUID) ([]models.DetectionColumn, error) {
	m.columnCalls++
	if m.columnsErr != nil {
		return nil, m.columnsErr
	}
	return m.columns, nil
}

func (m *mockSchemaRepository) GetPhysicalFKKeys(ctx context.Context, projectID uuid.UUID) (map[string]struct{}, error) {
	return m.physical, nil
}

func (m *mockSchemaRepository) ColumnsBelongToTable(ctx context.Context, projectID, tableID uuid.UUID, columnIDs []uuid.UUID) (bool, error) {
	if len(columnIDs) == 0 {
		return false, nil
	}
	for _, id := range columnIDs {
		found := false
		for _, c := range m.columns {
			if c.ColumnID == id && c.TableID == tableID {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// mockDetectionRunRepository records stamps.
type mockDetectionRunRepository struct {
	meta     *models.DetectionMetadata
	stamps   []string
	stampErr error
}

func (m *mockDetectionRunRepository) GetDetectionMetadata(ctx context.Context, projectID uuid.UUID) (*models.DetectionMetadata, error) {
	if m.meta == nil {
		return &models.DetectionMetadata{ProjectID: projectID}, nil
	}
	return m.meta, nil
}

func (m *mockDetectionRunRepository) StampDetectionRun(ctx context.Context, projectID uuid.UUID, algorithmVersion string, candidatesFound, rowsAffected int) error {
	if m.stampErr != nil {
		return m.stampErr
	}
	m.stamps = append(m.stamps, algorithmVersion)
	return nil
}

// mockDependencyRepository records dependency edges.
type mockDependencyRepository struct {
	added []*models.TableDependency
	err   error
}

func (m *mockDependencyRepository) AddDependency(ctx context.Context, dep *models.TableDependency) error {
	if m.err != nil {
		return m.err
	}
	m.added = append(m.added, dep)
	return nil
}

func (m *mockDependencyRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.TableDependency, error) {
	return m.added, nil
}

// mockProcedureSource returns fixed procedures or an error.
type mockProcedureSource struct {
	procs []*models.StoredProcedure
	err   error
	block bool
}

func (m *mockProcedureSource) LoadProcedures(ctx context.Context, projectID uuid.UUID) ([]*models.StoredProcedure, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.procs, m.err
}

// mockJoinExtractor maps procedure names to joins.
type mockJoinExtractor struct {
	joins map[string][]models.JoinCondition
}

func (m *mockJoinExtractor) ExtractJoinConditions(proc *models.StoredProcedure) ([]models.JoinCondition, error) {
	return m.joins[proc.Name], nil
}

// mockLocker counts lock acquisitions.
type mockLocker struct {
	locked, unlocked int
	err              error
	unlockErr        error
}

func (m *mockLocker) Lock(ctx context.Context, projectID uuid.UUID) (func() error, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.locked++
	return func() error {
		m.unlocked++
		return m.unlockErr
	}, nil
}
