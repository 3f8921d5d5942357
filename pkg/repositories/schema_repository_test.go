//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

func TestSchemaRepository_GetColumnsForDetection(t *testing.T) {
	tc := setupRepoTest(t, "schema-columns")
	s := tc.seedOrdersCustomers()
	tc.createRelationship(s.orders, s.ordersCustomerID, s.customers, s.customersID)

	// Soft-deleted columns are excluded.
	dropped := tc.createColumn(s.orders, "legacy_id", "integer", false, 3)
	_, err := tc.engineDB.DB.Pool.Exec(context.Background(),
		`UPDATE engine_schema_columns SET deleted_at = NOW() WHERE id = $1`, dropped)
	require.NoError(t, err)

	repo := NewSchemaRepository()
	cols, err := repo.GetColumnsForDetection(tc.ctx, tc.projectID)
	require.NoError(t, err)
	require.Len(t, cols, 3)

	byID := make(map[uuid.UUID]models.DetectionColumn)
	for _, c := range cols {
		byID[c.ColumnID] = c
	}
	assert.True(t, byID[s.ordersCustomerID].IsForeignKey)
	assert.False(t, byID[s.ordersID].IsForeignKey)
	assert.True(t, byID[s.customersID].IsPrimaryKey)
	assert.Equal(t, "orders", byID[s.ordersCustomerID].TableName)
	assert.Equal(t, "public", byID[s.ordersCustomerID].SchemaName)
	assert.NotContains(t, byID, dropped)
}

func TestSchemaRepository_GetPhysicalFKKeys(t *testing.T) {
	tc := setupRepoTest(t, "schema-physical")
	s := tc.seedOrdersCustomers()
	tc.createRelationship(s.orders, s.ordersCustomerID, s.customers, s.customersID)

	keys, err := NewSchemaRepository().GetPhysicalFKKeys(tc.ctx, tc.projectID)
	require.NoError(t, err)

	want := models.EdgeKey{
		SourceTableID: s.orders, SourceColumnID: s.ordersCustomerID,
		TargetTableID: s.customers, TargetColumnID: s.customersID,
	}.String()
	assert.Contains(t, keys, want)
	assert.Len(t, keys, 1)
}

func TestSchemaRepository_ColumnsBelongToTable(t *testing.T) {
	tc := setupRepoTest(t, "schema-ownership")
	s := tc.seedOrdersCustomers()
	repo := NewSchemaRepository()

	tests := []struct {
		name    string
		tableID uuid.UUID
		ids     []uuid.UUID
		want    bool
	}{
		{"all owned", s.orders, []uuid.UUID{s.ordersID, s.ordersCustomerID}, true},
		{"repeated id", s.orders, []uuid.UUID{s.ordersID, s.ordersID}, true},
		{"foreign column", s.orders, []uuid.UUID{s.customersID}, false},
		{"unknown column", s.orders, []uuid.UUID{uuid.New()}, false},
		{"empty", s.orders, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ColumnsBelongToTable(tc.ctx, tc.projectID, tt.tableID, tt.ids)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
