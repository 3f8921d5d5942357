package logicalfk

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
)

// TableNameCandidates returns the names tried for a naming-convention prefix, in
// precedence order: exact, +s, +es, singularized trailing s, y→ies.
func TableNameCandidates(prefix string) []string {
	p := strings.ToLower(strings.TrimSpace(prefix))
	if p == "" {
		return nil
	}

	names := []string{p, p + "s", p + "es"}
	if strings.HasSuffix(p, "s") && len(p) > 1 {
		names = append(names, p[:len(p)-1])
	}
	if strings.HasSuffix(p, "y") && len(p) > 1 {
		names = append(names, p[:len(p)-1]+"ies")
	}
	return names
}

// IrregularTableNames returns English plural and singular forms of prefix that
// TableNameCandidates does not already cover (person→people, child→children).
func IrregularTableNames(prefix string) []string {
	p := strings.ToLower(strings.TrimSpace(prefix))
	if p == "" {
		return nil
	}

	tried := make(map[string]struct{})
	for _, n := range TableNameCandidates(p) {
		tried[n] = struct{}{}
	}

	var out []string
	for _, n := range []string{strings.ToLower(inflection.Plural(p)), strings.ToLower(inflection.Singular(p))} {
		if _, dup := tried[n]; dup || n == "" {
			continue
		}
		tried[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// TryResolveTable maps a column-name prefix to a table. First hit wins.
func TryResolveTable(prefix string, tables TableLookup) (uuid.UUID, bool) {
	return lookupFirst(TableNameCandidates(prefix), tables)
}

// tryResolveTableIrregular is TryResolveTable followed by the irregular forms.
func tryResolveTableIrregular(prefix string, tables TableLookup) (uuid.UUID, bool) {
	if id, ok := TryResolveTable(prefix, tables); ok {
		return id, true
	}
	return lookupFirst(IrregularTableNames(prefix), tables)
}

func lookupFirst(names []string, tables TableLookup) (uuid.UUID, bool) {
	for _, name := range names {
		if id, ok := tables.LookupTable(name); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

// ResolveTableName maps a raw identifier from SQL source (dbo.Orders,
// [dbo].[Orders], "public"."orders") to a table. The qualified form is tried
// first, then the part after the last dot.
func ResolveTableName(raw string, tables TableLookup) (uuid.UUID, bool) {
	name := stripIdentifierQuotes(raw)
	if name == "" {
		return uuid.Nil, false
	}
	if id, ok := tables.LookupTable(name); ok {
		return id, true
	}
	if dot := strings.LastIndex(name, "."); dot >= 0 && dot < len(name)-1 {
		if id, ok := tables.LookupTable(name[dot+1:]); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}
