//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/schemadoc/schemadoc-engine/pkg/database"
	"github.com/schemadoc/schemadoc-engine/pkg/testhelpers"
)

// repoTestContext holds a project and a tenant-scoped context for one test.
type repoTestContext struct {
	t         *testing.T
	engineDB  *testhelpers.EngineDB
	projectID uuid.UUID
	ctx       context.Context
}

func setupRepoTest(t *testing.T, name string) *repoTestContext {
	t.Helper()

	engineDB := testhelpers.GetEngineDB(t)
	projectID := engineDB.CreateProject(t, name)

	scope, err := engineDB.DB.WithTenant(context.Background(), projectID)
	require.NoError(t, err)
	t.Cleanup(scope.Close)

	return &repoTestContext{
		t:         t,
		engineDB:  engineDB,
		projectID: projectID,
		ctx:       database.SetTenantScope(context.Background(), scope),
	}
}

// createTable inserts a mirrored table and returns its ID.
func (tc *repoTestContext) createTable(schemaName, tableName string) uuid.UUID {
	tc.t.Helper()
	var id uuid.UUID
	err := tc.engineDB.DB.Pool.QueryRow(context.Background(), `
		INSERT INTO engine_schema_tables (project_id, schema_name, table_name)
		VALUES ($1, $2, $3) RETURNING id`, tc.projectID, schemaName, tableName).Scan(&id)
	require.NoError(tc.t, err)
	return id
}

// createColumn inserts a mirrored column and returns its ID.
func (tc *repoTestContext) createColumn(tableID uuid.UUID, name, dataType string, isPK bool, ordinal int) uuid.UUID {
	tc.t.Helper()
	var id uuid.UUID
	err := tc.engineDB.DB.Pool.QueryRow(context.Background(), `
		INSERT INTO engine_schema_columns (project_id, schema_table_id, column_name, data_type, is_primary_key, is_unique, ordinal_position)
		VALUES ($1, $2, $3, $4, $5, $5, $6) RETURNING id`,
		tc.projectID, tableID, name, dataType, isPK, ordinal).Scan(&id)
	require.NoError(tc.t, err)
	return id
}

// createRelationship inserts a declared foreign key.
func (tc *repoTestContext) createRelationship(srcTable, srcCol, tgtTable, tgtCol uuid.UUID) {
	tc.t.Helper()
	_, err := tc.engineDB.DB.Pool.Exec(context.Background(), `
		INSERT INTO engine_schema_relationships (project_id, source_table_id, source_column_id, target_table_id, target_column_id)
		VALUES ($1, $2, $3, $4, $5)`, tc.projectID, srcTable, srcCol, tgtTable, tgtCol)
	require.NoError(tc.t, err)
}

// ordersCustomers seeds orders.customer_id -> customers.id and returns the IDs.
type ordersCustomers struct {
	customers, customersID, orders, ordersID, ordersCustomerID uuid.UUID
}

func (tc *repoTestContext) seedOrdersCustomers() ordersCustomers {
	tc.t.Helper()
	var s ordersCustomers
	s.customers = tc.createTable("public", "customers")
	s.customersID = tc.createColumn(s.customers, "id", "integer", true, 1)
	s.orders = tc.createTable("public", "orders")
	s.ordersID = tc.createColumn(s.orders, "id", "integer", true, 1)
	s.ordersCustomerID = tc.createColumn(s.orders, "customer_id", "integer", false, 2)
	return s
}
