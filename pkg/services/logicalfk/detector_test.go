package logicalfk

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// salesSchema has one naming-only edge, one corroborated edge and one SP-only edge.
func salesSchema() *testSchema {
	s := newTestSchema()
	s.add("Customers", "id", "int", pk)
	s.add("Products", "ProductID", "int", pk)
	s.add("Regions", "id", "uniqueidentifier", pk)
	s.add("Orders", "id", "int", pk)
	s.add("Orders", "customer_id", "int")
	s.add("Orders", "region_id", "int")
	s.add("OrderLines", "id", "int", pk)
	s.add("OrderLines", "ProductID", "int")
	s.add("OrderLines", "sku", "int")
	return s
}

func salesProcedures() ([]*models.StoredProcedure, *fakeExtractor) {
	extractor := &fakeExtractor{joins: map[string][]models.JoinCondition{
		"usp_orders": {
			join("dbo.Orders", "customer_id", "dbo.Customers", "id"),
			join("OrderLines", "sku", "Products", "ProductID"),
		},
		"usp_report": {join("Orders", "customer_id", "Customers", "id")},
		"usp_lines":  {join("[dbo].[Customers]", "[id]", "[dbo].[Orders]", "[customer_id]")},
	}}
	return []*models.StoredProcedure{proc("usp_orders"), proc("usp_report"), proc("usp_lines")}, extractor
}

func TestDetector_Detect(t *testing.T) {
	procs, extractor := salesProcedures()
	d := NewDetector(zap.NewNop())

	out, err := d.Detect(context.Background(), &DetectionInput{
		Columns:    salesSchema().columns,
		Procedures: procs,
		Extractor:  extractor,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SPAnalysisOK, out.SPAnalysis.Status)
	assert.Equal(t, 3, out.SPAnalysis.ProceduresAnalyzed)
	assert.Equal(t, 4, out.SPAnalysis.JoinConditionsFound)
	assert.Equal(t, 9, out.ColumnsScanned)

	type row struct {
		edge    string
		score   float64
		methods []models.DiscoveryMethod
		matches int
	}
	var got []row
	for _, c := range out.Candidates {
		got = append(got, row{
			edge:    c.SourceTableName + "." + c.SourceColumnName + "->" + c.TargetTableName + "." + c.TargetColumnName,
			score:   c.ConfidenceScore,
			methods: c.DiscoveryMethods,
			matches: c.MatchCount,
		})
	}

	naming := models.DiscoveryMethodNameConvention
	spJoin := models.DiscoveryMethodSPJoin
	assert.Equal(t, []row{
		{"Orders.customer_id->Customers.id", 1.0, []models.DiscoveryMethod{naming, spJoin}, 4},
		{"OrderLines.ProductID->Products.ProductID", 0.70, []models.DiscoveryMethod{naming}, 1},
		{"OrderLines.sku->Products.ProductID", 0.60, []models.DiscoveryMethod{spJoin}, 1},
		{"Orders.region_id->Regions.id", 0.50, []models.DiscoveryMethod{naming}, 1},
	}, got)

	top := out.Candidates[0]
	assert.Equal(t, models.ConfidenceBandHighlyConfident, top.ConfidenceBand)
	assert.Equal(t, []string{"dbo.usp_lines", "dbo.usp_orders", "dbo.usp_report"}, top.SPEvidence)
	assert.Equal(t, models.DiscoveryMethodCorroborated, top.PersistedDiscoveryMethod())
}

func TestDetector_Deterministic(t *testing.T) {
	procs, extractor := salesProcedures()
	d := NewDetector(zap.NewNop())
	cols := salesSchema().columns

	first, err := d.Detect(context.Background(), &DetectionInput{Columns: cols, Procedures: procs, Extractor: extractor})
	require.NoError(t, err)

	shuffled := append([]models.DetectionColumn(nil), cols...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	second, err := d.Detect(context.Background(), &DetectionInput{Columns: shuffled, Procedures: procs, Extractor: extractor})
	require.NoError(t, err)

	assert.Equal(t, first.Candidates, second.Candidates)
}

func TestDetector_DegradesToNamingOnly(t *testing.T) {
	d := NewDetector(zap.NewNop())

	out, err := d.Detect(context.Background(), &DetectionInput{
		Columns:      salesSchema().columns,
		ProcedureErr: errors.New("datasource unreachable"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.SPAnalysisDegraded, out.SPAnalysis.Status)
	assert.Contains(t, out.SPAnalysis.Warning, "datasource unreachable")
	require.Len(t, out.Candidates, 3)
	for _, c := range out.Candidates {
		assert.Equal(t, []models.DiscoveryMethod{models.DiscoveryMethodNameConvention}, c.DiscoveryMethods)
	}
}

func TestDetector_SPStatus(t *testing.T) {
	d := NewDetector(zap.NewNop())
	cols := salesSchema().columns

	t.Run("no procedures", func(t *testing.T) {
		out, err := d.Detect(context.Background(), &DetectionInput{Columns: cols, Extractor: &fakeExtractor{}})
		require.NoError(t, err)
		assert.Equal(t, models.SPAnalysisSkipped, out.SPAnalysis.Status)
	})

	t.Run("all procedures fail", func(t *testing.T) {
		extractor := &fakeExtractor{fail: map[string]bool{"a": true, "b": true}}
		out, err := d.Detect(context.Background(), &DetectionInput{
			Columns:    cols,
			Procedures: []*models.StoredProcedure{proc("a"), proc("b")},
			Extractor:  extractor,
		})
		require.NoError(t, err)
		assert.Equal(t, models.SPAnalysisDegraded, out.SPAnalysis.Status)
		assert.Equal(t, 2, out.SPAnalysis.ProceduresFailed)
		assert.NotEmpty(t, out.Candidates)
	})

	t.Run("some procedures fail", func(t *testing.T) {
		procs, extractor := salesProcedures()
		extractor.panics = map[string]bool{"usp_report": true}
		out, err := d.Detect(context.Background(), &DetectionInput{Columns: cols, Procedures: procs, Extractor: extractor})
		require.NoError(t, err)
		assert.Equal(t, models.SPAnalysisDegraded, out.SPAnalysis.Status)
		assert.Equal(t, "1 of 3 stored procedures could not be parsed", out.SPAnalysis.Warning)
		assert.Equal(t, 2, out.Candidates[0].Signals.SPCount)
	})
}

func TestDetector_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDetector(zap.NewNop()).Detect(ctx, &DetectionInput{Columns: salesSchema().columns})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetector_NoSelfReferences(t *testing.T) {
	s := newTestSchema()
	s.add("Employees", "id", "int", pk)
	s.add("Employees", "employee_id", "int")
	s.add("Employees", "manager_id", "int")

	extractor := &fakeExtractor{joins: map[string][]models.JoinCondition{
		"p": {join("Employees", "manager_id", "Employees", "id")},
	}}
	out, err := NewDetector(zap.NewNop()).Detect(context.Background(), &DetectionInput{
		Columns:    s.columns,
		Procedures: []*models.StoredProcedure{proc("p")},
		Extractor:  extractor,
	})
	require.NoError(t, err)
	assert.Empty(t, out.Candidates)
}

func TestDetector_IrregularPluralsOption(t *testing.T) {
	s := newTestSchema()
	s.add("people", "id", "int", pk)
	s.add("orders", "id", "int", pk)
	s.add("orders", "person_id", "int")

	out, err := NewDetector(zap.NewNop()).Detect(context.Background(), &DetectionInput{Columns: s.columns})
	require.NoError(t, err)
	assert.Empty(t, out.Candidates)

	out, err = NewDetector(zap.NewNop(), WithIrregularPlurals(true)).Detect(context.Background(), &DetectionInput{Columns: s.columns})
	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, "person_id", out.Candidates[0].SourceColumnName)
}
