package logicalfk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNameCandidates_Order(t *testing.T) {
	assert.Equal(t, []string{"customer", "customers", "customeres"}, TableNameCandidates("Customer"))

	got := TableNameCandidates("category")
	require.GreaterOrEqual(t, len(got), 4)
	assert.Equal(t, []string{"category", "categorys", "categoryes", "categories"}, got[:4])

	got = TableNameCandidates("status")
	assert.Equal(t, []string{"status", "statuss", "statuses", "statu"}, got[:4])

	assert.Nil(t, TableNameCandidates("  "))
}

func TestIrregularTableNames(t *testing.T) {
	assert.Equal(t, []string{"people"}, IrregularTableNames("person"))
	assert.Equal(t, []string{"children"}, IrregularTableNames("child"))
	assert.Empty(t, IrregularTableNames("customer"), "regular forms are already standard attempts")
	assert.Nil(t, IrregularTableNames(""))
}

func TestTryResolveTableIrregular(t *testing.T) {
	s := newTestSchema()
	s.add("People", "id", "int", pk)
	persons := s.add("Persons", "id", "int", pk)

	id, ok := tryResolveTableIrregular("person", s.index())
	require.True(t, ok)
	assert.Equal(t, persons.TableID, id, "standard attempts keep precedence")

	s = newTestSchema()
	people := s.add("People", "id", "int", pk)
	id, ok = tryResolveTableIrregular("person", s.index())
	require.True(t, ok)
	assert.Equal(t, people.TableID, id)
}

func TestTryResolveTable(t *testing.T) {
	t.Run("plural", func(t *testing.T) {
		s := newTestSchema()
		c := s.add("Customers", "id", "int", pk)
		id, ok := TryResolveTable("customer", s.index())
		require.True(t, ok)
		assert.Equal(t, c.TableID, id)
	})

	t.Run("ies", func(t *testing.T) {
		s := newTestSchema()
		c := s.add("Categories", "id", "int", pk)
		id, ok := TryResolveTable("category", s.index())
		require.True(t, ok)
		assert.Equal(t, c.TableID, id)
	})

	t.Run("exact wins over plural", func(t *testing.T) {
		s := newTestSchema()
		exact := s.add("Category", "id", "int", pk)
		s.add("Categories", "id", "int", pk)
		id, ok := TryResolveTable("category", s.index())
		require.True(t, ok)
		assert.Equal(t, exact.TableID, id)
	})

	t.Run("irregular plural is not a standard attempt", func(t *testing.T) {
		s := newTestSchema()
		s.add("People", "id", "int", pk)
		_, ok := TryResolveTable("person", s.index())
		assert.False(t, ok)
	})

	t.Run("unresolved", func(t *testing.T) {
		s := newTestSchema()
		s.add("Orders", "id", "int", pk)
		_, ok := TryResolveTable("status", s.index())
		assert.False(t, ok)
	})
}

func TestResolveTableName(t *testing.T) {
	s := newTestSchema()
	c := s.add("Orders", "id", "int", pk)
	idx := s.index()

	for _, raw := range []string{"Orders", "dbo.Orders", "[dbo].[Orders]", `"dbo"."orders"`, "sales.Orders", "[Orders]"} {
		t.Run(raw, func(t *testing.T) {
			id, ok := ResolveTableName(raw, idx)
			require.True(t, ok)
			assert.Equal(t, c.TableID, id)
		})
	}

	for _, raw := range []string{"", "dbo.", "Customers", "#temp"} {
		t.Run("miss "+raw, func(t *testing.T) {
			_, ok := ResolveTableName(raw, idx)
			assert.False(t, ok)
		})
	}
}
