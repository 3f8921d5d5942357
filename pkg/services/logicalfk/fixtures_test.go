package logicalfk

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// testSchema builds a column snapshot with stable table IDs per name.
type testSchema struct {
	tables  map[string]uuid.UUID
	columns []models.DetectionColumn
}

type columnOption func(*models.DetectionColumn)

func pk(c *models.DetectionColumn)     { c.IsPrimaryKey = true }
func fk(c *models.DetectionColumn)     { c.IsForeignKey = true }
func unique(c *models.DetectionColumn) { c.IsUnique = true }

func newTestSchema() *testSchema {
	return &testSchema{tables: make(map[string]uuid.UUID)}
}

func (s *testSchema) tableID(name string) uuid.UUID {
	id, ok := s.tables[name]
	if !ok {
		id = uuid.New()
		s.tables[name] = id
	}
	return id
}

// add appends a column in the dbo schema and returns it.
func (s *testSchema) add(table, column, dataType string, opts ...columnOption) models.DetectionColumn {
	c := models.DetectionColumn{
		TableID:    s.tableID(table),
		ColumnID:   uuid.New(),
		SchemaName: "dbo",
		TableName:  table,
		ColumnName: column,
		DataType:   dataType,
	}
	for _, opt := range opts {
		opt(&c)
	}
	s.columns = append(s.columns, c)
	return c
}

func (s *testSchema) index() *ColumnIndex {
	return NewColumnIndex(s.columns)
}

func edgeKey(src, tgt models.DetectionColumn) models.EdgeKey {
	return models.EdgeKey{
		SourceTableID:  src.TableID,
		SourceColumnID: src.ColumnID,
		TargetTableID:  tgt.TableID,
		TargetColumnID: tgt.ColumnID,
	}
}

// fakeExtractor returns canned joins per procedure name.
type fakeExtractor struct {
	joins  map[string][]models.JoinCondition
	fail   map[string]bool
	panics map[string]bool
}

func (f *fakeExtractor) ExtractJoinConditions(proc *models.StoredProcedure) ([]models.JoinCondition, error) {
	if f.panics[proc.Name] {
		panic(fmt.Sprintf("boom in %s", proc.Name))
	}
	if f.fail[proc.Name] {
		return nil, errors.New("syntax error near JOIN")
	}
	return f.joins[proc.Name], nil
}

func proc(name string) *models.StoredProcedure {
	return &models.StoredProcedure{
		SchemaName: "dbo",
		Name:       name,
		Definition: "CREATE PROCEDURE dbo." + name + " AS SELECT 1",
		Dialect:    models.ProcedureDialectTSQL,
	}
}

func join(lt, lc, rt, rc string) models.JoinCondition {
	return models.JoinCondition{LeftTable: lt, LeftColumn: lc, RightTable: rt, RightColumn: rc}
}

// ordersCustomers is the canonical orders.customer_id -> Customers.id schema.
func ordersCustomers() (*testSchema, models.DetectionColumn, models.DetectionColumn) {
	s := newTestSchema()
	s.add("Customers", "id", "int", pk)
	s.add("Customers", "name", "nvarchar")
	s.add("orders", "id", "int", pk)
	src := s.add("orders", "customer_id", "int")
	s.add("orders", "total", "decimal")
	tgt := s.columns[0]
	return s, src, tgt
}
