package logicalfk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

func TestColumnIndex_DeterministicOrder(t *testing.T) {
	s := newTestSchema()
	s.add("zeta", "b", "int")
	s.add("Alpha", "z", "int")
	s.add("alpha", "a", "int")
	s.add("zeta", "A", "int")

	idx := s.index()

	var names []string
	for _, c := range idx.Columns() {
		names = append(names, c.TableName+"."+c.ColumnName)
	}
	assert.Equal(t, []string{"Alpha.z", "alpha.a", "zeta.A", "zeta.b"}, names)
	assert.Equal(t, 3, idx.TableCount())
}

func TestColumnIndex_LookupTable(t *testing.T) {
	s := newTestSchema()
	c := s.add("Orders", "id", "int", pk)
	idx := s.index()

	tests := []struct {
		name  string
		input string
		found bool
	}{
		{"bare exact", "Orders", true},
		{"bare lower", "orders", true},
		{"schema qualified", "dbo.orders", true},
		{"unknown", "customers", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := idx.LookupTable(tt.input)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, c.TableID, id)
			}
		})
	}
}

func TestColumnIndex_FindColumn(t *testing.T) {
	s := newTestSchema()
	c := s.add("Orders", "CustomerID", "int")
	idx := s.index()

	for _, name := range []string{"CustomerID", "customerid", "[CustomerID]", `"customerid"`} {
		t.Run(name, func(t *testing.T) {
			found, ok := idx.FindColumn(c.TableID, name)
			require.True(t, ok)
			assert.Equal(t, c.ColumnID, found.ColumnID)
		})
	}

	_, ok := idx.FindColumn(c.TableID, "OrderID")
	assert.False(t, ok)
}

func TestColumnIndex_CopiesInput(t *testing.T) {
	cols := []models.DetectionColumn{{ColumnName: "id", TableName: "t"}}
	idx := NewColumnIndex(cols)
	cols[0].ColumnName = "changed"
	assert.Equal(t, "id", idx.Columns()[0].ColumnName)
}
