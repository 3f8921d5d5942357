//go:build integration

package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemadoc/schemadoc-engine/pkg/apperrors"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

func TestDatasourceRepository_GetPrimary(t *testing.T) {
	tc := setupRepoTest(t, "datasources")
	repo := NewDatasourceRepository()

	_, _, err := repo.GetPrimary(tc.ctx, tc.projectID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	ds := &models.Datasource{ProjectID: tc.projectID, Name: "warehouse", DatasourceType: "mssql"}
	require.NoError(t, repo.Create(tc.ctx, ds, "ciphertext"))

	dup := &models.Datasource{ProjectID: tc.projectID, Name: "warehouse", DatasourceType: "postgres"}
	assert.ErrorIs(t, repo.Create(tc.ctx, dup, "x"), apperrors.ErrConflict)

	got, encrypted, err := repo.GetPrimary(tc.ctx, tc.projectID)
	require.NoError(t, err)
	assert.Equal(t, ds.ID, got.ID)
	assert.Equal(t, "mssql", got.DatasourceType)
	assert.Equal(t, "ciphertext", encrypted)
}
