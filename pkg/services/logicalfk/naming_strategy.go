package logicalfk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// idSuffixPattern matches names ending in _id / Id / ID, capturing the prefix.
var idSuffixPattern = regexp.MustCompile(`^(.+?)_?[Ii][Dd]$`)

// Structural tiers for target key columns.
const (
	tierUnique     = 1
	tierPrimaryKey = 2
)

// Naming affinity scores for target key columns.
const (
	affinityEndsWithID  = 1
	affinityPrefixID    = 2
	affinityExactIDName = 3
)

// SplitIDSuffix returns the prefix of an "…Id"-shaped column name.
func SplitIDSuffix(columnName string) (string, bool) {
	m := idSuffixPattern.FindStringSubmatch(columnName)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// HasIDSuffix reports whether the column name looks like a foreign key reference.
func HasIDSuffix(columnName string) bool {
	return idSuffixPattern.MatchString(columnName)
}

// NamingEdge is one candidate produced by the naming-convention strategy.
type NamingEdge struct {
	Key         models.EdgeKey
	Source      *models.DetectionColumn
	Target      *models.DetectionColumn
	Prefix      string
	Tier        int
	NamingScore int
	Ambiguous   bool
	GroupKey    string
}

// AmbiguityGroup ties together naming candidates that could not be separated.
type AmbiguityGroup struct {
	Key     string
	Members []models.EdgeKey
}

// NamingResult holds naming-convention candidates in deterministic order.
type NamingResult struct {
	Edges  []*NamingEdge
	Groups []*AmbiguityGroup
	byKey  map[models.EdgeKey]*NamingEdge
}

// Edge returns the naming edge for a key, if present.
func (r *NamingResult) Edge(key models.EdgeKey) (*NamingEdge, bool) {
	e, ok := r.byKey[key]
	return e, ok
}

func ambiguityGroupKey(src *models.DetectionColumn, targetTable string) string {
	return fmt.Sprintf("%s:%s→%s", src.TableName, src.ColumnName, targetTable)
}

// NamingOptions tunes the naming-convention strategy.
type NamingOptions struct {
	// IrregularPlurals also resolves prefixes through English irregular forms
	// once the standard attempts miss.
	IrregularPlurals bool
}

// DetectByNamingConvention scans non-key columns for "…Id" names and links each to
// the best key column of the table its prefix names.
func DetectByNamingConvention(idx *ColumnIndex) *NamingResult {
	return DetectByNamingConventionWith(idx, NamingOptions{})
}

// DetectByNamingConventionWith is DetectByNamingConvention with options.
func DetectByNamingConventionWith(idx *ColumnIndex, opts NamingOptions) *NamingResult {
	resolve := TryResolveTable
	if opts.IrregularPlurals {
		resolve = tryResolveTableIrregular
	}

	result := &NamingResult{byKey: make(map[models.EdgeKey]*NamingEdge)}

	for _, src := range idx.Columns() {
		if src.IsPrimaryKey || src.IsForeignKey {
			continue
		}
		prefix, ok := SplitIDSuffix(src.ColumnName)
		if !ok {
			continue
		}
		targetTableID, ok := resolve(prefix, idx)
		if !ok || targetTableID == src.TableID {
			continue
		}

		targets := bestKeyColumns(idx.ColumnsOf(targetTableID), prefix)
		if len(targets) == 0 {
			continue
		}

		ambiguous := len(targets) > 1
		var group *AmbiguityGroup
		if ambiguous {
			group = &AmbiguityGroup{Key: ambiguityGroupKey(src, idx.TableName(targetTableID))}
			result.Groups = append(result.Groups, group)
		}

		for _, t := range targets {
			edge := &NamingEdge{
				Key: models.EdgeKey{
					SourceTableID:  src.TableID,
					SourceColumnID: src.ColumnID,
					TargetTableID:  t.column.TableID,
					TargetColumnID: t.column.ColumnID,
				},
				Source:      src,
				Target:      t.column,
				Prefix:      prefix,
				Tier:        t.tier,
				NamingScore: t.affinity,
				Ambiguous:   ambiguous,
			}
			if group != nil {
				edge.GroupKey = group.Key
				group.Members = append(group.Members, edge.Key)
			}
			result.Edges = append(result.Edges, edge)
			result.byKey[edge.Key] = edge
		}
	}

	return result
}

type rankedKey struct {
	column   *models.DetectionColumn
	tier     int
	affinity int
}

// bestKeyColumns keeps the key columns at the highest structural tier, then the
// highest naming affinity within that tier.
func bestKeyColumns(columns []*models.DetectionColumn, prefix string) []rankedKey {
	maxTier := 0
	for _, c := range columns {
		if t := structuralTier(c); t > maxTier {
			maxTier = t
		}
	}
	if maxTier == 0 {
		return nil
	}

	var survivors []rankedKey
	maxAffinity := 0
	for _, c := range columns {
		if structuralTier(c) != maxTier {
			continue
		}
		a := namingAffinity(c.ColumnName, prefix)
		if a == 0 {
			continue
		}
		survivors = append(survivors, rankedKey{column: c, tier: maxTier, affinity: a})
		if a > maxAffinity {
			maxAffinity = a
		}
	}

	best := survivors[:0]
	for _, s := range survivors {
		if s.affinity == maxAffinity {
			best = append(best, s)
		}
	}
	return best
}

func structuralTier(c *models.DetectionColumn) int {
	switch {
	case c.IsPrimaryKey:
		return tierPrimaryKey
	case c.IsUnique:
		return tierUnique
	default:
		return 0
	}
}

func namingAffinity(columnName, prefix string) int {
	name := strings.ToLower(columnName)
	p := strings.ToLower(prefix)
	switch {
	case name == "id":
		return affinityExactIDName
	case name == p+"id" || name == p+"_id":
		return affinityPrefixID
	case strings.HasSuffix(name, "id"):
		return affinityEndsWithID
	default:
		return 0
	}
}

// Disambiguate resolves ambiguity groups using stored-procedure evidence. When
// exactly one member of a group is corroborated by a join, it is kept and marked
// unambiguous and its siblings are dropped. Otherwise the group stands as is.
func (r *NamingResult) Disambiguate(sp *SPJoinResult) {
	if sp == nil || len(r.Groups) == 0 {
		return
	}

	dropped := make(map[models.EdgeKey]struct{})
	remaining := r.Groups[:0]
	for _, g := range r.Groups {
		var corroborated []models.EdgeKey
		for _, key := range g.Members {
			if _, ok := sp.Edge(key); ok {
				corroborated = append(corroborated, key)
			}
		}
		if len(corroborated) != 1 {
			remaining = append(remaining, g)
			continue
		}

		winner := corroborated[0]
		for _, key := range g.Members {
			if key == winner {
				e := r.byKey[key]
				e.Ambiguous = false
				e.GroupKey = ""
				continue
			}
			dropped[key] = struct{}{}
		}
	}
	r.Groups = remaining

	if len(dropped) == 0 {
		return
	}
	kept := r.Edges[:0]
	for _, e := range r.Edges {
		if _, drop := dropped[e.Key]; drop {
			delete(r.byKey, e.Key)
			continue
		}
		kept = append(kept, e)
	}
	r.Edges = kept
}
