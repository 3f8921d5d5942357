package logicalfk

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// JoinExtractor pulls equality join conditions out of procedure source text.
type JoinExtractor interface {
	ExtractJoinConditions(proc *models.StoredProcedure) ([]models.JoinCondition, error)
}

// ProcedureJoins is the extracted join evidence of one procedure.
type ProcedureJoins struct {
	ProcedureName string
	Joins         []models.JoinCondition
}

// ProcedureAnalysis is the outcome of running the extractor over all procedures.
type ProcedureAnalysis struct {
	Procedures []ProcedureJoins
	Analyzed   int
	Failed     int
}

// AnalyzeProcedures extracts joins from every procedure with a non-empty body.
// A failure (error or panic) on one procedure is logged and skipped.
func AnalyzeProcedures(procs []*models.StoredProcedure, extractor JoinExtractor, logger *zap.Logger) *ProcedureAnalysis {
	analysis := &ProcedureAnalysis{}
	for _, proc := range procs {
		if proc == nil || strings.TrimSpace(proc.Definition) == "" {
			continue
		}
		analysis.Analyzed++

		joins, err := extractSafely(extractor, proc)
		if err != nil {
			analysis.Failed++
			logger.Warn("Skipping stored procedure after join extraction failure",
				zap.String("procedure", proc.QualifiedName()),
				zap.Error(err))
			continue
		}
		if len(joins) == 0 {
			continue
		}
		analysis.Procedures = append(analysis.Procedures, ProcedureJoins{
			ProcedureName: proc.QualifiedName(),
			Joins:         joins,
		})
	}
	return analysis
}

func extractSafely(extractor JoinExtractor, proc *models.StoredProcedure) (joins []models.JoinCondition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("join extractor panicked: %v", r)
		}
	}()
	return extractor.ExtractJoinConditions(proc)
}

// SPJoinEdge is one directed edge inferred from procedure joins.
type SPJoinEdge struct {
	Key        models.EdgeKey
	Source     *models.DetectionColumn
	Target     *models.DetectionColumn
	procedures map[string]struct{}
}

// Procedures returns the distinct procedure names that produced the edge, sorted.
func (e *SPJoinEdge) Procedures() []string {
	names := make([]string, 0, len(e.procedures))
	for n := range e.procedures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SPCount is the number of distinct procedures that produced the edge.
func (e *SPJoinEdge) SPCount() int {
	return len(e.procedures)
}

// SPJoinResult holds SP-join edges in first-seen order.
type SPJoinResult struct {
	Edges []*SPJoinEdge
	byKey map[models.EdgeKey]*SPJoinEdge
}

// Edge returns the SP-join edge for a key, if present.
func (r *SPJoinResult) Edge(key models.EdgeKey) (*SPJoinEdge, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := r.byKey[key]
	return e, ok
}

// DetectBySPJoins resolves extracted join conditions against the index and
// accumulates directed edges keyed canonically.
func DetectBySPJoins(idx *ColumnIndex, procs []ProcedureJoins, logger *zap.Logger) *SPJoinResult {
	result := &SPJoinResult{byKey: make(map[models.EdgeKey]*SPJoinEdge)}

	for _, proc := range procs {
		for _, join := range proc.Joins {
			src, tgt, ok := resolveJoin(idx, join)
			if !ok {
				logger.Debug("Unresolved join condition",
					zap.String("procedure", proc.ProcedureName),
					zap.String("left", join.LeftTable+"."+join.LeftColumn),
					zap.String("right", join.RightTable+"."+join.RightColumn))
				continue
			}

			key := models.EdgeKey{
				SourceTableID:  src.TableID,
				SourceColumnID: src.ColumnID,
				TargetTableID:  tgt.TableID,
				TargetColumnID: tgt.ColumnID,
			}
			edge, exists := result.byKey[key]
			if !exists {
				edge = &SPJoinEdge{
					Key:        key,
					Source:     src,
					Target:     tgt,
					procedures: make(map[string]struct{}),
				}
				result.byKey[key] = edge
				result.Edges = append(result.Edges, edge)
			}
			edge.procedures[proc.ProcedureName] = struct{}{}
		}
	}

	return result
}

// resolveJoin maps both sides to columns and orients the edge FK → PK.
func resolveJoin(idx *ColumnIndex, join models.JoinCondition) (src, tgt *models.DetectionColumn, ok bool) {
	leftTable, ok := ResolveTableName(join.LeftTable, idx)
	if !ok {
		return nil, nil, false
	}
	rightTable, ok := ResolveTableName(join.RightTable, idx)
	if !ok || leftTable == rightTable {
		return nil, nil, false
	}

	left, ok := idx.FindColumn(leftTable, join.LeftColumn)
	if !ok {
		return nil, nil, false
	}
	right, ok := idx.FindColumn(rightTable, join.RightColumn)
	if !ok {
		return nil, nil, false
	}

	return orientJoin(left, right)
}

// orientJoin picks the FK side. Exactly one PK side decides it; otherwise the
// side whose name carries an Id suffix is the source. If neither or both do,
// the direction is unknown and the join is skipped.
func orientJoin(left, right *models.DetectionColumn) (src, tgt *models.DetectionColumn, ok bool) {
	switch {
	case left.IsPrimaryKey && !right.IsPrimaryKey:
		return right, left, true
	case right.IsPrimaryKey && !left.IsPrimaryKey:
		return left, right, true
	}

	leftID := HasIDSuffix(left.ColumnName)
	rightID := HasIDSuffix(right.ColumnName)
	switch {
	case leftID && !rightID:
		return left, right, true
	case rightID && !leftID:
		return right, left, true
	default:
		return nil, nil, false
	}
}
