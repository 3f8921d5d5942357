//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

func TestStoredProcedureRepository_ListByProject(t *testing.T) {
	tc := setupRepoTest(t, "stored-procs")

	_, err := tc.engineDB.DB.Pool.Exec(context.Background(), `
		INSERT INTO engine_stored_procedures (project_id, schema_name, procedure_name, definition, dialect)
		VALUES ($1, 'dbo', 'usp_b', 'SELECT 1', 'tsql'),
		       ($1, 'dbo', 'usp_a', 'SELECT 2', 'tsql'),
		       ($1, 'public', 'fn_c', 'SELECT 3', 'postgres')`, tc.projectID)
	require.NoError(t, err)

	procs, err := NewStoredProcedureRepository().ListByProject(tc.ctx, tc.projectID)
	require.NoError(t, err)
	require.Len(t, procs, 3)

	assert.Equal(t, "dbo.usp_a", procs[0].QualifiedName())
	assert.Equal(t, "dbo.usp_b", procs[1].QualifiedName())
	assert.Equal(t, models.ProcedureDialectPostgres, procs[2].Dialect)
}
