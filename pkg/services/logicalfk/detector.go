package logicalfk

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// AlgorithmVersion identifies the scoring rules. Bump it whenever detection or
// scoring changes so persisted results are reported stale.
const AlgorithmVersion = "lfk-2026.10.1"

// DetectionInput is everything one run needs, loaded up front by the caller.
type DetectionInput struct {
	Columns    []models.DetectionColumn
	Exclusions *Exclusions
	Mode       ExclusionMode

	// Procedures are analyzed with Extractor. ProcedureErr is set when the
	// procedure source itself failed; the run then degrades to naming-only.
	Procedures   []*models.StoredProcedure
	ProcedureErr error
	Extractor    JoinExtractor
}

// DetectionOutput is the ranked candidates plus the SP phase report.
type DetectionOutput struct {
	Candidates     []*models.LogicalFKCandidate
	SPAnalysis     models.SPAnalysisReport
	ColumnsScanned int
}

// Detector runs both strategies, merges their evidence and scores every edge.
// It holds no per-run state and is safe for concurrent use.
type Detector struct {
	logger *zap.Logger
	naming NamingOptions
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithIrregularPlurals enables irregular English plural resolution in the
// naming-convention strategy.
func WithIrregularPlurals(enabled bool) DetectorOption {
	return func(d *Detector) { d.naming.IrregularPlurals = enabled }
}

// NewDetector creates a Detector.
func NewDetector(logger *zap.Logger, opts ...DetectorOption) *Detector {
	d := &Detector{logger: logger.Named("logical-fk-detector")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs one detection pass. ctx is checked between phases.
func (d *Detector) Detect(ctx context.Context, in *DetectionInput) (*DetectionOutput, error) {
	idx := NewColumnIndex(in.Columns)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	naming := DetectByNamingConventionWith(idx, d.naming)
	d.logger.Debug("Naming-convention phase complete",
		zap.Int("edges", len(naming.Edges)),
		zap.Int("ambiguity_groups", len(naming.Groups)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sp, report := d.runSPPhase(idx, in)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	naming.Disambiguate(sp)
	merged := MergeEvidence(naming, sp, in.Exclusions, in.Mode)

	candidates := make([]*models.LogicalFKCandidate, 0, len(merged))
	for _, e := range merged {
		candidates = append(candidates, buildCandidate(e))
	}
	SortCandidates(candidates)

	return &DetectionOutput{
		Candidates:     candidates,
		SPAnalysis:     report,
		ColumnsScanned: len(idx.Columns()),
	}, nil
}

// runSPPhase never fails the run: any problem degrades to naming-only.
func (d *Detector) runSPPhase(idx *ColumnIndex, in *DetectionInput) (*SPJoinResult, models.SPAnalysisReport) {
	if in.ProcedureErr != nil {
		d.logger.Warn("Stored procedure analysis unavailable, using naming convention only",
			zap.Error(in.ProcedureErr))
		return nil, models.SPAnalysisReport{
			Status:  models.SPAnalysisDegraded,
			Warning: fmt.Sprintf("stored procedure analysis unavailable: %v", in.ProcedureErr),
		}
	}
	if in.Extractor == nil || len(in.Procedures) == 0 {
		return nil, models.SPAnalysisReport{Status: models.SPAnalysisSkipped}
	}

	analysis := AnalyzeProcedures(in.Procedures, in.Extractor, d.logger)
	report := models.SPAnalysisReport{
		Status:             models.SPAnalysisOK,
		ProceduresAnalyzed: analysis.Analyzed,
		ProceduresFailed:   analysis.Failed,
	}
	for _, p := range analysis.Procedures {
		report.JoinConditionsFound += len(p.Joins)
	}

	switch {
	case analysis.Analyzed == 0:
		report.Status = models.SPAnalysisSkipped
	case analysis.Failed == analysis.Analyzed:
		report.Status = models.SPAnalysisDegraded
		report.Warning = "no stored procedure could be parsed, using naming convention only"
		d.logger.Warn("All stored procedures failed join extraction",
			zap.Int("procedures", analysis.Analyzed))
	case analysis.Failed > 0:
		report.Status = models.SPAnalysisDegraded
		report.Warning = fmt.Sprintf("%d of %d stored procedures could not be parsed", analysis.Failed, analysis.Analyzed)
	}

	return DetectBySPJoins(idx, analysis.Procedures, d.logger), report
}

func buildCandidate(e *MergedEdge) *models.LogicalFKCandidate {
	conf := CalculateConfidence(e.Signals)
	score := conf.Score()

	var methods []models.DiscoveryMethod
	matchCount := e.Signals.SPCount
	if e.Signals.NamingDetected {
		methods = append(methods, models.DiscoveryMethodNameConvention)
		matchCount++
	}
	if e.Signals.SPJoinDetected {
		methods = append(methods, models.DiscoveryMethodSPJoin)
	}

	return &models.LogicalFKCandidate{
		SourceTableID:    e.Source.TableID,
		SourceTableName:  e.Source.TableName,
		SourceColumnID:   e.Source.ColumnID,
		SourceColumnName: e.Source.ColumnName,
		SourceDataType:   e.Source.DataType,
		TargetTableID:    e.Target.TableID,
		TargetTableName:  e.Target.TableName,
		TargetColumnID:   e.Target.ColumnID,
		TargetColumnName: e.Target.ColumnName,
		TargetDataType:   e.Target.DataType,
		ConfidenceScore:  score,
		ConfidenceBand:   models.BandForConfidence(score),
		Reason:           BuildReason(e, conf),
		IsAmbiguous:      e.Ambiguous,
		DiscoveryMethods: methods,
		SPEvidence:       e.Procedures,
		MatchCount:       matchCount,
		Signals:          e.Signals,
		CapsApplied:      conf.CapsApplied,
		ExistingStatus:   e.ExistingStatus,
	}
}

// SortCandidates orders by confidence descending, then by source and target
// names so equal scores always come out the same way.
func SortCandidates(candidates []*models.LogicalFKCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.ConfidenceScore != b.ConfidenceScore {
			return a.ConfidenceScore > b.ConfidenceScore
		}
		if c := compareFold(a.SourceTableName, b.SourceTableName); c != 0 {
			return c < 0
		}
		if c := compareFold(a.SourceColumnName, b.SourceColumnName); c != 0 {
			return c < 0
		}
		if c := compareFold(a.TargetTableName, b.TargetTableName); c != 0 {
			return c < 0
		}
		if c := compareFold(a.TargetColumnName, b.TargetColumnName); c != 0 {
			return c < 0
		}
		return a.EdgeKey().String() < b.EdgeKey().String()
	})
}

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
