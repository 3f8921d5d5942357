package sql

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// PostgresJoinExtractor extracts joins from PostgreSQL function and procedure
// bodies using the real PostgreSQL parser. Bodies the parser rejects (PL/pgSQL
// blocks, fragments) fall back to pattern matching.
type PostgresJoinExtractor struct {
	fallback *TSQLJoinExtractor
}

// NewPostgresJoinExtractor creates a PostgreSQL join extractor.
func NewPostgresJoinExtractor() *PostgresJoinExtractor {
	return &PostgresJoinExtractor{fallback: NewTSQLJoinExtractor()}
}

// ExtractJoinConditions extracts joins from a stored procedure definition.
func (e *PostgresJoinExtractor) ExtractJoinConditions(proc *models.StoredProcedure) ([]models.JoinCondition, error) {
	if proc == nil {
		return nil, fmt.Errorf("nil stored procedure")
	}
	return e.ExtractJoins(proc.Definition)
}

// ExtractJoins parses source and returns qualified column equalities with
// range-variable aliases resolved to table names.
func (e *PostgresJoinExtractor) ExtractJoins(source string) ([]models.JoinCondition, error) {
	tree, err := pg_query.Parse(source)
	if err != nil {
		return e.fallback.ExtractJoins(source)
	}

	var out joinSet
	var bodies []string

	// Each statement gets its own alias scope.
	for _, raw := range tree.GetStmts() {
		aliases := make(aliasMap)
		var pairs [][2]*pg_query.ColumnRef

		walkMessage(raw.ProtoReflect(), func(m protoreflect.ProtoMessage) {
			switch n := m.(type) {
			case *pg_query.RangeVar:
				table := n.GetRelname()
				if n.GetSchemaname() != "" {
					table = n.GetSchemaname() + "." + table
				}
				aliases.add(table, n.GetAlias().GetAliasname())
			case *pg_query.A_Expr:
				if n.GetKind() != pg_query.A_Expr_Kind_AEXPR_OP || !isEqualsOperator(n.GetName()) {
					return
				}
				left, right := n.GetLexpr().GetColumnRef(), n.GetRexpr().GetColumnRef()
				if left != nil && right != nil {
					pairs = append(pairs, [2]*pg_query.ColumnRef{left, right})
				}
			case *pg_query.DefElem:
				// Function bodies arrive as the string argument of the "as" option.
				if n.GetDefname() != "as" {
					return
				}
				for _, item := range n.GetArg().GetList().GetItems() {
					if s := item.GetString_().GetSval(); s != "" {
						bodies = append(bodies, s)
					}
				}
			}
		})

		for _, p := range pairs {
			leftQual, leftCol := columnRefParts(p[0])
			rightQual, rightCol := columnRefParts(p[1])
			if leftQual == "" || rightQual == "" || strings.EqualFold(leftQual, rightQual) {
				continue
			}
			out.add(models.JoinCondition{
				LeftTable:   aliases.resolve(leftQual),
				LeftColumn:  leftCol,
				RightTable:  aliases.resolve(rightQual),
				RightColumn: rightCol,
			})
		}
	}

	for _, body := range bodies {
		inner, err := e.ExtractJoins(body)
		if err != nil {
			return nil, err
		}
		for _, jc := range inner {
			out.add(jc)
		}
	}

	return out.joins, nil
}

func isEqualsOperator(name []*pg_query.Node) bool {
	return len(name) == 1 && name[0].GetString_().GetSval() == "="
}

// columnRefParts returns the qualifier and column of a ColumnRef with at least
// two name parts. Star references and bare columns yield an empty qualifier.
func columnRefParts(ref *pg_query.ColumnRef) (qualifier, column string) {
	fields := ref.GetFields()
	if len(fields) < 2 {
		return "", ""
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		s := f.GetString_()
		if s == nil {
			return "", ""
		}
		names = append(names, s.GetSval())
	}
	return strings.Join(names[:len(names)-1], "."), names[len(names)-1]
}

// walkMessage visits every protobuf message in the parse tree, depth first,
// in field declaration order so results are stable.
func walkMessage(m protoreflect.Message, visit func(protoreflect.ProtoMessage)) {
	if !m.IsValid() {
		return
	}
	visit(m.Interface())

	fields := m.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.Message() == nil || fd.IsMap() || !m.Has(fd) {
			continue
		}
		v := m.Get(fd)
		if fd.IsList() {
			list := v.List()
			for j := 0; j < list.Len(); j++ {
				walkMessage(list.Get(j).Message(), visit)
			}
			continue
		}
		walkMessage(v.Message(), visit)
	}
}

// DialectExtractor dispatches to the extractor matching a procedure's dialect.
type DialectExtractor struct {
	tsql     *TSQLJoinExtractor
	postgres *PostgresJoinExtractor
}

// NewDialectExtractor creates an extractor covering every supported dialect.
func NewDialectExtractor() *DialectExtractor {
	return &DialectExtractor{
		tsql:     NewTSQLJoinExtractor(),
		postgres: NewPostgresJoinExtractor(),
	}
}

// ExtractJoinConditions implements the detector's extractor contract.
func (d *DialectExtractor) ExtractJoinConditions(proc *models.StoredProcedure) ([]models.JoinCondition, error) {
	if proc == nil {
		return nil, fmt.Errorf("nil stored procedure")
	}
	if proc.Dialect == models.ProcedureDialectPostgres {
		return d.postgres.ExtractJoinConditions(proc)
	}
	return d.tsql.ExtractJoinConditions(proc)
}
