package logicalfk

import (
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// ExclusionMode controls how existing logical FKs filter merged edges.
type ExclusionMode int

const (
	// ExcludeAllExisting drops every edge that is already a logical FK, whatever
	// its status. Used by the preview.
	ExcludeAllExisting ExclusionMode = iota

	// KeepRevisable drops only confirmed logical FKs. Suggested and rejected
	// edges pass through tagged with their status so persistence can refresh
	// or re-surface them.
	KeepRevisable
)

// Exclusions are the canonical keys already known for a project, loaded in bulk
// before detection.
type Exclusions struct {
	Physical map[string]struct{}
	Logical  map[string]models.LogicalFKStatus
}

// NewExclusions returns empty exclusion sets.
func NewExclusions() *Exclusions {
	return &Exclusions{
		Physical: make(map[string]struct{}),
		Logical:  make(map[string]models.LogicalFKStatus),
	}
}

// MergedEdge is the union of naming and SP-join evidence for one canonical key.
type MergedEdge struct {
	Key            models.EdgeKey
	Source         *models.DetectionColumn
	Target         *models.DetectionColumn
	Signals        models.DetectionSignals
	Ambiguous      bool
	GroupKey       string
	Procedures     []string
	ExistingStatus *models.LogicalFKStatus
}

// MergeEvidence unions both strategies' edges by canonical key. Naming edges come
// first in their own order, followed by SP-only edges in theirs. Naming evidence
// supplies the columns when both strategies found the edge.
func MergeEvidence(naming *NamingResult, sp *SPJoinResult, excl *Exclusions, mode ExclusionMode) []*MergedEdge {
	if excl == nil {
		excl = NewExclusions()
	}

	var merged []*MergedEdge
	seen := make(map[models.EdgeKey]struct{})

	add := func(key models.EdgeKey, src, tgt *models.DetectionColumn) *MergedEdge {
		seen[key] = struct{}{}
		existing, keep := excl.check(key, mode)
		if !keep {
			return nil
		}
		e := &MergedEdge{Key: key, Source: src, Target: tgt, ExistingStatus: existing}
		merged = append(merged, e)
		return e
	}

	if naming != nil {
		for _, ne := range naming.Edges {
			e := add(ne.Key, ne.Source, ne.Target)
			if e == nil {
				continue
			}
			e.Signals.NamingDetected = true
			e.Ambiguous = ne.Ambiguous
			e.GroupKey = ne.GroupKey
			if se, ok := sp.Edge(ne.Key); ok {
				e.Signals.SPJoinDetected = true
				e.Signals.SPCount = se.SPCount()
				e.Procedures = se.Procedures()
			}
		}
	}

	if sp != nil {
		for _, se := range sp.Edges {
			if _, done := seen[se.Key]; done {
				continue
			}
			e := add(se.Key, se.Source, se.Target)
			if e == nil {
				continue
			}
			e.Signals.SPJoinDetected = true
			e.Signals.SPCount = se.SPCount()
			e.Procedures = se.Procedures()
		}
	}

	for _, e := range merged {
		e.Signals.Corroborated = e.Signals.NamingDetected && e.Signals.SPJoinDetected
		e.Signals.TypeMatch = AreCompatible(e.Source.DataType, e.Target.DataType)
		e.Signals.HasIDSuffix = HasIDSuffix(e.Source.ColumnName)
	}

	return merged
}

// check reports whether key survives exclusion, and the existing status to carry.
func (x *Exclusions) check(key models.EdgeKey, mode ExclusionMode) (*models.LogicalFKStatus, bool) {
	k := key.String()
	if _, physical := x.Physical[k]; physical {
		return nil, false
	}
	status, logical := x.Logical[k]
	if !logical {
		return nil, true
	}
	if mode == ExcludeAllExisting || status == models.LogicalFKStatusConfirmed {
		return nil, false
	}
	return &status, true
}
