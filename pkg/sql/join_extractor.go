// Package sql extracts relationship evidence from SQL source text.
package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

const (
	identPattern     = `\[[^\]]+\]|"[^"]+"|[A-Za-z_#@][\w@#$]*`
	qualifiedPattern = `(?:` + identPattern + `)(?:\s*\.\s*(?:` + identPattern + `)){0,3}`
	columnRefPattern = `(?:` + identPattern + `)(?:\s*\.\s*(?:` + identPattern + `)){1,3}`
)

var (
	// tableRefPattern matches a single table reference after a keyword that
	// introduces one, with an optional alias.
	tableRefPattern = regexp.MustCompile(`(?i)\b(?:JOIN|UPDATE|INTO|APPLY|USING|MERGE(?:\s+INTO)?)\s+(` + qualifiedPattern + `)(?:\s+(?:AS\s+)?(` + identPattern + `))?`)

	// fromClausePattern captures a FROM list up to the next clause keyword so
	// comma-separated (old style) joins are covered.
	fromClausePattern = regexp.MustCompile(`(?is)\bFROM\s+(.+?)(?:\bWHERE\b|\bGROUP\b|\bORDER\b|\bHAVING\b|\bUNION\b|\bJOIN\b|\bINNER\b|\bLEFT\b|\bRIGHT\b|\bFULL\b|\bCROSS\b|\bOUTER\b|\bSELECT\b|\bSET\b|\bEND\b|\bOPTION\b|;|$)`)

	fromItemPattern = regexp.MustCompile(`(?i)^\s*(` + qualifiedPattern + `)(?:\s+(?:AS\s+)?(` + identPattern + `))?`)

	// equalityPattern matches qualified column equalities such as o.CustomerId = c.Id.
	equalityPattern = regexp.MustCompile(`(` + columnRefPattern + `)\s*=\s*(` + columnRefPattern + `)`)

	identSplitPattern = regexp.MustCompile(identPattern)
)

// reservedAliases are words that can follow a table reference but are never aliases.
var reservedAliases = map[string]struct{}{
	"on": {}, "where": {}, "join": {}, "inner": {}, "left": {}, "right": {}, "full": {},
	"outer": {}, "cross": {}, "group": {}, "order": {}, "having": {}, "union": {},
	"set": {}, "with": {}, "as": {}, "select": {}, "values": {}, "output": {}, "when": {},
	"then": {}, "end": {}, "and": {}, "or": {}, "begin": {}, "if": {}, "else": {},
	"return": {}, "using": {}, "apply": {}, "option": {}, "except": {}, "intersect": {},
	"for": {}, "limit": {}, "offset": {}, "insert": {}, "update": {}, "delete": {},
	"from": {}, "into": {}, "go": {}, "exec": {}, "execute": {}, "declare": {}, "while": {},
	"natural": {}, "lateral": {}, "pivot": {}, "unpivot": {}, "tablesample": {},
	"returning": {}, "default": {},
}

// TSQLJoinExtractor pulls equality joins out of T-SQL (and generic ANSI SQL)
// procedure bodies with pattern matching. It handles [bracket] and "double
// quote" identifiers, table aliases, ON clauses, WHERE equalities and old
// style comma joins.
//
// Aliases are scoped to the statement that declares them, so a procedure may
// reuse the same alias for different tables in separate statements.
//
// Limitations:
// - Derived tables and CTE names are not resolved to base tables
// - An alias reused inside a subquery of the same statement resolves to the last binding
// - A FROM list whose first table is a bracketed clause keyword ([Order]) is not aliased
// - Only qualified equalities (alias.col = alias.col) are considered
// - Dynamic SQL built in strings is ignored
type TSQLJoinExtractor struct{}

// NewTSQLJoinExtractor creates a T-SQL join extractor.
func NewTSQLJoinExtractor() *TSQLJoinExtractor {
	return &TSQLJoinExtractor{}
}

// ExtractJoinConditions extracts joins from a stored procedure definition.
func (e *TSQLJoinExtractor) ExtractJoinConditions(proc *models.StoredProcedure) ([]models.JoinCondition, error) {
	if proc == nil {
		return nil, fmt.Errorf("nil stored procedure")
	}
	return e.ExtractJoins(proc.Definition)
}

// ExtractJoins extracts joins from raw SQL text.
func (e *TSQLJoinExtractor) ExtractJoins(source string) ([]models.JoinCondition, error) {
	clean := stripCommentsAndLiterals(source)

	var out joinSet
	for _, stmt := range splitStatements(clean) {
		aliases := collectAliases(stmt)
		for _, m := range equalityPattern.FindAllStringSubmatch(stmt, -1) {
			leftQual, leftCol := splitColumnRef(m[1])
			rightQual, rightCol := splitColumnRef(m[2])
			if leftQual == "" || rightQual == "" || strings.EqualFold(leftQual, rightQual) {
				continue
			}
			if isVariable(leftQual) || isVariable(rightQual) {
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
	return out.joins, nil
}

// joinSet collects join conditions in first-seen order, ignoring repeats.
type joinSet struct {
	joins []models.JoinCondition
	seen  map[string]struct{}
}

func (s *joinSet) add(jc models.JoinCondition) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	key := strings.ToLower(jc.LeftTable + "." + jc.LeftColumn + "=" + jc.RightTable + "." + jc.RightColumn)
	if _, dup := s.seen[key]; dup {
		return
	}
	s.seen[key] = struct{}{}
	s.joins = append(s.joins, jc)
}

// statementKeywords start a new statement when they appear outside parentheses.
var statementKeywords = map[string]struct{}{
	"select": {}, "insert": {}, "update": {}, "delete": {}, "merge": {},
}

// continuationWords precede a statement keyword that belongs to the current
// statement: MERGE ... THEN UPDATE, SELECT ... FOR UPDATE, ON DELETE CASCADE.
var continuationWords = map[string]struct{}{
	"then": {}, "for": {}, "on": {},
}

// splitStatements cuts comment-free SQL into statements at semicolons and at
// top-level statement keywords. Parenthesized subqueries stay with their
// enclosing statement.
func splitStatements(clean string) []string {
	var stmts []string
	depth, start := 0, 0
	prevWord := ""

	cut := func(at int) {
		if strings.TrimSpace(clean[start:at]) != "" {
			stmts = append(stmts, clean[start:at])
		}
		start = at
	}

	for i := 0; i < len(clean); {
		c := clean[i]
		switch {
		case c == '[' || c == '"':
			closer := byte(']')
			if c == '"' {
				closer = '"'
			}
			end := strings.IndexByte(clean[i+1:], closer)
			if end < 0 {
				i = len(clean)
			} else {
				i += end + 2
			}
			prevWord = ""
		case c == '(':
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			i++
		case c == ';':
			if depth == 0 {
				cut(i)
				start = i + 1
			}
			i++
		case isWordByte(c):
			j := i
			for j < len(clean) && isWordByte(clean[j]) {
				j++
			}
			word := strings.ToLower(clean[i:j])
			_, keyword := statementKeywords[word]
			_, continues := continuationWords[prevWord]
			if depth == 0 && keyword && !continues && (i == 0 || clean[i-1] != '.') {
				cut(i)
			}
			prevWord = word
			i = j
		default:
			i++
		}
	}
	cut(len(clean))
	return stmts
}

func isWordByte(c byte) bool {
	return c == '_' || c == '@' || c == '#' || c == '$' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// aliasMap maps lower-cased aliases and bare table names to the table
// identifier as written in the source.
type aliasMap map[string]string

func (a aliasMap) add(table, alias string) {
	// Bare keywords (UPDATE SET in a MERGE action) are not tables; [Order] is.
	if _, reserved := reservedAliases[strings.ToLower(strings.TrimSpace(table))]; reserved {
		return
	}
	table = unquoteQualified(table)
	if table == "" || isVariable(table) {
		return
	}
	a[strings.ToLower(table)] = table
	if dot := strings.LastIndex(table, "."); dot >= 0 {
		a[strings.ToLower(table[dot+1:])] = table
	}
	if alias == "" {
		return
	}
	alias = unquoteIdent(alias)
	if _, reserved := reservedAliases[strings.ToLower(alias)]; reserved {
		return
	}
	a[strings.ToLower(alias)] = table
}

// resolve returns the table behind a qualifier, or the qualifier itself.
func (a aliasMap) resolve(qualifier string) string {
	if t, ok := a[strings.ToLower(qualifier)]; ok {
		return t
	}
	return qualifier
}

func collectAliases(clean string) aliasMap {
	aliases := make(aliasMap)
	for _, m := range tableRefPattern.FindAllStringSubmatch(clean, -1) {
		aliases.add(m[1], m[2])
	}
	for _, m := range fromClausePattern.FindAllStringSubmatch(clean, -1) {
		for _, item := range splitTopLevel(m[1]) {
			if im := fromItemPattern.FindStringSubmatch(item); im != nil {
				aliases.add(im[1], im[2])
			}
		}
	}
	return aliases
}

// splitTopLevel splits a FROM list on commas outside parentheses.
func splitTopLevel(list string) []string {
	var parts []string
	depth, start := 0, 0
	for i, ch := range list {
		switch ch {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, list[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, list[start:])
}

// splitColumnRef splits "a.b.c" into qualifier "a.b" and column "c", unquoted.
func splitColumnRef(ref string) (qualifier, column string) {
	parts := identSplitPattern.FindAllString(ref, -1)
	if len(parts) < 2 {
		return "", ""
	}
	for i := range parts {
		parts[i] = unquoteIdent(parts[i])
	}
	return strings.Join(parts[:len(parts)-1], "."), parts[len(parts)-1]
}

func unquoteQualified(name string) string {
	parts := identSplitPattern.FindAllString(name, -1)
	for i := range parts {
		parts[i] = unquoteIdent(parts[i])
	}
	return strings.Join(parts, ".")
}

func unquoteIdent(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && ((s[0] == '[' && s[len(s)-1] == ']') || (s[0] == '"' && s[len(s)-1] == '"')) {
		return s[1 : len(s)-1]
	}
	return s
}

func isVariable(s string) bool {
	return strings.HasPrefix(s, "@")
}

// stripCommentsAndLiterals removes -- and /* */ comments and empties string
// literals so their contents cannot be mistaken for joins. Quoted identifiers
// are copied through untouched.
func stripCommentsAndLiterals(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			b.WriteByte('\n')
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				i = len(src)
			} else {
				i += end + 3
			}
			b.WriteByte(' ')
		case c == '\'':
			b.WriteString("''")
			i++
			for i < len(src) {
				if src[i] == '\'' {
					if i+1 < len(src) && src[i+1] == '\'' {
						i += 2
						continue
					}
					break
				}
				i++
			}
		case c == '[' || c == '"':
			closer := byte(']')
			if c == '"' {
				closer = '"'
			}
			end := strings.IndexByte(src[i+1:], closer)
			if end < 0 {
				b.WriteString(src[i:])
				i = len(src)
				continue
			}
			b.WriteString(src[i : i+end+2])
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}
