//go:build integration

package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/database"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
	"github.com/schemadoc/schemadoc-engine/pkg/repositories"
	"github.com/schemadoc/schemadoc-engine/pkg/sql"
	"github.com/schemadoc/schemadoc-engine/pkg/testhelpers"
)

type lfkIntegrationContext struct {
	engineDB  *testhelpers.EngineDB
	projectID uuid.UUID
	svc       LogicalFKService
	ctx       context.Context

	customers, orders uuid.UUID
}

func setupLFKIntegration(t *testing.T) *lfkIntegrationContext {
	t.Helper()

	engineDB := testhelpers.GetEngineDB(t)
	projectID := engineDB.CreateProject(t, "lfk-service")
	pool := engineDB.DB.Pool
	bg := context.Background()

	tc := &lfkIntegrationContext{engineDB: engineDB, projectID: projectID}

	require.NoError(t, pool.QueryRow(bg, `INSERT INTO engine_schema_tables (project_id, schema_name, table_name)
		VALUES ($1, 'public', 'customers') RETURNING id`, projectID).Scan(&tc.customers))
	require.NoError(t, pool.QueryRow(bg, `INSERT INTO engine_schema_tables (project_id, schema_name, table_name)
		VALUES ($1, 'public', 'orders') RETURNING id`, projectID).Scan(&tc.orders))
	_, err := pool.Exec(bg, `
		INSERT INTO engine_schema_columns (project_id, schema_table_id, column_name, data_type, is_primary_key, is_unique, ordinal_position)
		VALUES ($1, $2, 'id', 'integer', true, true, 1),
		       ($1, $3, 'id', 'integer', true, true, 1),
		       ($1, $3, 'customer_id', 'integer', false, false, 2)`, projectID, tc.customers, tc.orders)
	require.NoError(t, err)
	_, err = pool.Exec(bg, `
		INSERT INTO engine_stored_procedures (project_id, schema_name, procedure_name, definition, dialect)
		VALUES ($1, 'public', 'order_customers',
		        'SELECT c.id FROM public.orders o JOIN public.customers c ON o.customer_id = c.id', 'postgres')`, projectID)
	require.NoError(t, err)

	scope, err := engineDB.DB.WithTenant(bg, projectID)
	require.NoError(t, err)
	t.Cleanup(scope.Close)
	tc.ctx = database.SetTenantScope(bg, scope)

	logger := zap.NewNop()
	tc.svc = NewLogicalFKService(&LogicalFKServiceDeps{
		LogicalFKRepo:    repositories.NewLogicalFKRepository(logger),
		SchemaRepo:       repositories.NewSchemaRepository(),
		DetectionRunRepo: repositories.NewDetectionRunRepository(),
		DependencyRepo:   repositories.NewTableDependencyRepository(),
		Procedures:       NewMetadataProcedureSource(repositories.NewStoredProcedureRepository()),
		Extractor:        sql.NewDialectExtractor(),
		Locker:           NewTenantScopeLocker(),
		Logger:           logger,
		LoadRetries:      2,
	})
	return tc
}

func TestLogicalFKService_Integration_IdempotentRerun(t *testing.T) {
	tc := setupLFKIntegration(t)

	staleness, err := tc.svc.GetStaleness(tc.ctx, tc.projectID)
	require.NoError(t, err)
	assert.Equal(t, models.StalenessReasonNeverRun, staleness.Reason)

	first, err := tc.svc.DetectAndPersistCandidates(tc.ctx, tc.projectID)
	require.NoError(t, err)
	require.NotEmpty(t, first.Detection.Candidates)
	assert.Equal(t, models.SPAnalysisOK, first.Detection.SPAnalysis.Status)
	assert.Equal(t, len(first.Detection.Candidates), first.Upsert.Inserted)

	second, err := tc.svc.DetectAndPersistCandidates(tc.ctx, tc.projectID)
	require.NoError(t, err)
	assert.Zero(t, second.Upsert.Inserted)
	assert.Equal(t, first.Upsert.Inserted, second.Upsert.Refreshed)

	fks, err := tc.svc.List(tc.ctx, tc.projectID, nil)
	require.NoError(t, err)
	assert.Len(t, fks, first.Upsert.Inserted)
	assert.Equal(t, models.DiscoveryMethodCorroborated, fks[0].DiscoveryMethod)

	// Persisted suggestions are gone from the preview.
	preview, err := tc.svc.DetectCandidates(tc.ctx, tc.projectID)
	require.NoError(t, err)
	assert.Empty(t, preview.Candidates)

	staleness, err = tc.svc.GetStaleness(tc.ctx, tc.projectID)
	require.NoError(t, err)
	assert.False(t, staleness.Stale)

	ran, err := tc.svc.DetectIfStale(tc.ctx, tc.projectID)
	require.NoError(t, err)
	assert.Nil(t, ran)
}

func TestLogicalFKService_Integration_ConfirmFeedsDependencies(t *testing.T) {
	tc := setupLFKIntegration(t)

	_, err := tc.svc.DetectAndPersistCandidates(tc.ctx, tc.projectID)
	require.NoError(t, err)
	fks, err := tc.svc.List(tc.ctx, tc.projectID, nil)
	require.NoError(t, err)
	require.NotEmpty(t, fks)

	confirmed, err := tc.svc.Confirm(tc.ctx, tc.projectID, fks[0].ID, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, models.LogicalFKStatusConfirmed, confirmed.Status)

	deps, err := repositories.NewTableDependencyRepository().ListByProject(tc.ctx, tc.projectID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, tc.orders, deps[0].SourceTableID)
	assert.Equal(t, tc.customers, deps[0].TargetTableID)

	// Re-running detection leaves confirmed rows alone.
	result, err := tc.svc.DetectAndPersistCandidates(tc.ctx, tc.projectID)
	require.NoError(t, err)
	assert.Zero(t, result.Affected)
}
