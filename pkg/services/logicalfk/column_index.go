// Package logicalfk infers undeclared foreign keys from naming conventions and
// from join patterns in stored procedures, and scores each candidate.
//
// Everything in this package is pure, request-scoped computation over an
// in-memory schema snapshot. I/O lives in the services and repositories layers.
package logicalfk

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// TableLookup resolves a (case-insensitive) table name to a table ID.
type TableLookup interface {
	LookupTable(name string) (uuid.UUID, bool)
}

// ColumnIndex is a read-only snapshot of a project's columns prepared once per run.
type ColumnIndex struct {
	columns      []*models.DetectionColumn
	byTable      map[uuid.UUID][]*models.DetectionColumn
	byID         map[uuid.UUID]*models.DetectionColumn
	tableNames   map[uuid.UUID]string
	tablesByName map[string]uuid.UUID
}

// NewColumnIndex builds the index. Columns are ordered by schema, table and column
// name so every downstream iteration is deterministic regardless of input order.
// When two schemas contain a table with the same bare name, the bare name maps to
// the first in that order; the schema-qualified name always resolves exactly.
func NewColumnIndex(columns []models.DetectionColumn) *ColumnIndex {
	idx := &ColumnIndex{
		columns:      make([]*models.DetectionColumn, 0, len(columns)),
		byTable:      make(map[uuid.UUID][]*models.DetectionColumn),
		byID:         make(map[uuid.UUID]*models.DetectionColumn, len(columns)),
		tableNames:   make(map[uuid.UUID]string),
		tablesByName: make(map[string]uuid.UUID),
	}

	for i := range columns {
		c := columns[i]
		idx.columns = append(idx.columns, &c)
	}
	sort.SliceStable(idx.columns, func(i, j int) bool {
		a, b := idx.columns[i], idx.columns[j]
		if !strings.EqualFold(a.SchemaName, b.SchemaName) {
			return strings.ToLower(a.SchemaName) < strings.ToLower(b.SchemaName)
		}
		if !strings.EqualFold(a.TableName, b.TableName) {
			return strings.ToLower(a.TableName) < strings.ToLower(b.TableName)
		}
		if a.TableName != b.TableName {
			return a.TableName < b.TableName
		}
		return strings.ToLower(a.ColumnName) < strings.ToLower(b.ColumnName)
	})

	for _, c := range idx.columns {
		idx.byTable[c.TableID] = append(idx.byTable[c.TableID], c)
		idx.byID[c.ColumnID] = c
		if _, seen := idx.tableNames[c.TableID]; seen {
			continue
		}
		idx.tableNames[c.TableID] = c.TableName

		bare := strings.ToLower(c.TableName)
		if _, taken := idx.tablesByName[bare]; !taken {
			idx.tablesByName[bare] = c.TableID
		}
		if c.SchemaName != "" {
			idx.tablesByName[strings.ToLower(c.SchemaName+"."+c.TableName)] = c.TableID
		}
	}

	return idx
}

// Columns returns all columns in deterministic order.
func (idx *ColumnIndex) Columns() []*models.DetectionColumn {
	return idx.columns
}

// ColumnsOf returns the columns of one table in deterministic order.
func (idx *ColumnIndex) ColumnsOf(tableID uuid.UUID) []*models.DetectionColumn {
	return idx.byTable[tableID]
}

// Column returns a column by ID.
func (idx *ColumnIndex) Column(columnID uuid.UUID) (*models.DetectionColumn, bool) {
	c, ok := idx.byID[columnID]
	return c, ok
}

// TableName returns the display name of a table.
func (idx *ColumnIndex) TableName(tableID uuid.UUID) string {
	return idx.tableNames[tableID]
}

// TableCount returns the number of distinct tables.
func (idx *ColumnIndex) TableCount() int {
	return len(idx.tableNames)
}

// LookupTable implements TableLookup.
func (idx *ColumnIndex) LookupTable(name string) (uuid.UUID, bool) {
	id, ok := idx.tablesByName[strings.ToLower(name)]
	return id, ok
}

// FindColumn resolves a column name within a table: exact match first, then
// case-insensitive, then with brackets and quotes stripped.
func (idx *ColumnIndex) FindColumn(tableID uuid.UUID, name string) (*models.DetectionColumn, bool) {
	cols := idx.byTable[tableID]
	for _, c := range cols {
		if c.ColumnName == name {
			return c, true
		}
	}
	for _, c := range cols {
		if strings.EqualFold(c.ColumnName, name) {
			return c, true
		}
	}
	stripped := stripIdentifierQuotes(name)
	if stripped == name {
		return nil, false
	}
	for _, c := range cols {
		if strings.EqualFold(c.ColumnName, stripped) {
			return c, true
		}
	}
	return nil, false
}

// stripIdentifierQuotes removes [bracket] and "double quote" identifier quoting.
func stripIdentifierQuotes(s string) string {
	return strings.NewReplacer("[", "", "]", "", `"`, "", "`", "").Replace(strings.TrimSpace(s))
}
