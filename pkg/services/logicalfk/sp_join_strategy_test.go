package logicalfk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

func TestAnalyzeProcedures_PerProcedureIsolation(t *testing.T) {
	extractor := &fakeExtractor{
		joins: map[string][]models.JoinCondition{
			"good":  {join("o", "customer_id", "c", "id")},
			"empty": nil,
		},
		fail:   map[string]bool{"broken": true},
		panics: map[string]bool{"explodes": true},
	}
	blank := proc("blank")
	blank.Definition = "   "

	analysis := AnalyzeProcedures(
		[]*models.StoredProcedure{proc("broken"), proc("good"), proc("explodes"), proc("empty"), blank, nil},
		extractor, zap.NewNop())

	assert.Equal(t, 4, analysis.Analyzed)
	assert.Equal(t, 2, analysis.Failed)
	require.Len(t, analysis.Procedures, 1)
	assert.Equal(t, "dbo.good", analysis.Procedures[0].ProcedureName)
}

func TestDetectBySPJoins_Direction(t *testing.T) {
	logger := zap.NewNop()

	t.Run("pk side is target regardless of order", func(t *testing.T) {
		s, src, tgt := ordersCustomers()
		idx := s.index()

		for _, j := range []models.JoinCondition{
			join("dbo.orders", "customer_id", "[dbo].[Customers]", "id"),
			join("Customers", "ID", "orders", "Customer_Id"),
		} {
			result := DetectBySPJoins(idx, []ProcedureJoins{{ProcedureName: "p", Joins: []models.JoinCondition{j}}}, logger)
			require.Len(t, result.Edges, 1)
			assert.Equal(t, edgeKey(src, tgt), result.Edges[0].Key)
		}
	})

	t.Run("id suffix decides when neither side is pk", func(t *testing.T) {
		s := newTestSchema()
		code := s.add("Regions", "code", "varchar", unique)
		src := s.add("Stores", "region_id", "varchar")
		idx := s.index()

		result := DetectBySPJoins(idx, []ProcedureJoins{
			{ProcedureName: "p", Joins: []models.JoinCondition{join("Regions", "code", "Stores", "region_id")}},
		}, logger)

		require.Len(t, result.Edges, 1)
		assert.Equal(t, edgeKey(src, code), result.Edges[0].Key)
	})

	t.Run("unknown direction is skipped", func(t *testing.T) {
		s := newTestSchema()
		s.add("A", "name", "varchar")
		s.add("B", "name", "varchar")
		s.add("C", "id", "int", pk)
		s.add("D", "id", "int", pk)

		result := DetectBySPJoins(s.index(), []ProcedureJoins{
			{ProcedureName: "p", Joins: []models.JoinCondition{
				join("A", "name", "B", "name"),
				join("C", "id", "D", "id"),
			}},
		}, logger)

		assert.Empty(t, result.Edges)
	})
}

func TestDetectBySPJoins_SkipsUnresolvedAndSelfJoins(t *testing.T) {
	s := newTestSchema()
	s.add("Employees", "id", "int", pk)
	s.add("Employees", "manager_id", "int")
	idx := s.index()

	result := DetectBySPJoins(idx, []ProcedureJoins{
		{ProcedureName: "p", Joins: []models.JoinCondition{
			join("Employees", "manager_id", "Employees", "id"),
			join("Employees", "manager_id", "#temp", "id"),
			join("Employees", "missing_id", "Employees", "id"),
		}},
	}, zap.NewNop())

	assert.Empty(t, result.Edges)
}

func TestDetectBySPJoins_CountsDistinctProcedures(t *testing.T) {
	s, src, tgt := ordersCustomers()
	j := join("orders", "customer_id", "Customers", "id")

	result := DetectBySPJoins(s.index(), []ProcedureJoins{
		{ProcedureName: "dbo.b", Joins: []models.JoinCondition{j, j}},
		{ProcedureName: "dbo.a", Joins: []models.JoinCondition{j}},
		{ProcedureName: "dbo.c", Joins: []models.JoinCondition{j}},
	}, zap.NewNop())

	edge, ok := result.Edge(edgeKey(src, tgt))
	require.True(t, ok)
	assert.Equal(t, 3, edge.SPCount())
	assert.Equal(t, []string{"dbo.a", "dbo.b", "dbo.c"}, edge.Procedures())
}

func TestSPJoinResult_NilEdge(t *testing.T) {
	var r *SPJoinResult
	_, ok := r.Edge(models.EdgeKey{})
	assert.False(t, ok)
}
