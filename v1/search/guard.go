package search

import (
	"fmt"
	"regexp"
	"strings"
)

// CustomerPlaceholder marks where generated SQL expects the customer id.
const CustomerPlaceholder = "{customer_id}"

// DefaultAllowedTables are the tables generated SQL may read.
var DefaultAllowedTables = []string{"receipt_lookup", "spending_summary", "receipt_line_items"}

var (
	stringLiteral  = regexp.MustCompile(`'(?:[^']|'')*'`)
	quotedIdent    = regexp.MustCompile(`"(?:[^"]|"")*"`)
	forbiddenWords = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|drop|alter|create|truncate|grant|revoke|copy|call|do|execute|prepare|deallocate|lock|table|vacuum|analyze|cluster|reindex|refresh|listen|notify|set|reset|begin|commit|rollback|savepoint|into|pg_sleep|pg_read_file|pg_ls_dir|dblink|lo_import|lo_export)\b`)
	nonTableFrom   = regexp.MustCompile(`(?i)\b(extract\s*\(\s*[a-z_]+|is\s+(?:not\s+)?distinct)\s+from\b`)
	sqlTokens      = regexp.MustCompile(`[a-z_][a-z0-9_.]*|\S`)
	cteNames       = regexp.MustCompile(`(?i)(?:\bwith|,)\s*([a-z_][a-z0-9_]*)\s+as\s*\(`)
	placeholders   = regexp.MustCompile(`'?\{\{?\s*customer_id\s*\}?\}'?`)
)

// allowedFunctions may be called from generated SQL. Every other
// identifier followed by "(" must be a keyword in sqlParenKeywords.
var allowedFunctions = map[string]struct{}{
	"count": {}, "sum": {}, "avg": {}, "min": {}, "max": {}, "stddev": {}, "variance": {},
	"percentile_cont": {}, "percentile_disc": {}, "mode": {}, "string_agg": {}, "array_agg": {},
	"bool_and": {}, "bool_or": {}, "row_number": {}, "rank": {}, "dense_rank": {}, "ntile": {},
	"lag": {}, "lead": {}, "first_value": {}, "last_value": {},
	"round": {}, "floor": {}, "ceil": {}, "ceiling": {}, "abs": {}, "greatest": {}, "least": {},
	"coalesce": {}, "nullif": {}, "cast": {}, "extract": {}, "date_part": {}, "date_trunc": {},
	"date": {}, "to_char": {}, "to_date": {}, "age": {}, "now": {}, "make_date": {},
	"lower": {}, "upper": {}, "trim": {}, "length": {}, "substring": {}, "position": {},
	"concat": {}, "split_part": {}, "left": {}, "right": {},
	"jsonb_array_elements_text": {}, "jsonb_array_length": {}, "unnest": {},
	"numeric": {}, "decimal": {}, "varchar": {}, "char": {},
}

// sqlParenKeywords may precede "(" without being a function call.
var sqlParenKeywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "and": {}, "or": {}, "not": {}, "in": {},
	"exists": {}, "any": {}, "all": {}, "some": {}, "as": {}, "over": {}, "filter": {},
	"within": {}, "join": {}, "on": {}, "using": {}, "lateral": {}, "by": {}, "having": {},
	"when": {}, "then": {}, "else": {}, "case": {}, "between": {}, "like": {}, "ilike": {},
	"is": {}, "distinct": {}, "union": {}, "except": {}, "intersect": {}, "values": {},
	"row": {}, "array": {}, "limit": {}, "offset": {}, "with": {},
}

// clauseEnd ends a FROM list.
var clauseEnd = map[string]struct{}{
	"where": {}, "group": {}, "order": {}, "limit": {}, "offset": {}, "having": {},
	"on": {}, "using": {}, "join": {}, "inner": {}, "left": {}, "right": {}, "full": {},
	"cross": {}, "natural": {}, "union": {}, "except": {}, "intersect": {}, "window": {},
	"fetch": {},
}

// Statement is vetted SQL ready to execute read-only.
type Statement struct {
	SQL  string
	Args []any
}

// Guard vets generated SQL: one SELECT (or WITH ... SELECT) over
// allow-listed tables, no comments, no positional parameters of its own.
type Guard struct {
	allowed map[string]struct{}
}

func NewGuard(tables ...string) *Guard {
	if len(tables) == 0 {
		tables = DefaultAllowedTables
	}
	g := &Guard{allowed: make(map[string]struct{}, len(tables))}
	for _, t := range tables {
		g.allowed[strings.ToLower(t)] = struct{}{}
	}
	return g
}

// Vet checks raw and binds the customer placeholder as $1. When
// customerID is set the statement must reference the placeholder, so the
// result is always scoped to that customer.
func (g *Guard) Vet(raw, customerID string) (Statement, error) {
	sql := strings.TrimSpace(raw)
	sql = strings.TrimSpace(strings.TrimSuffix(sql, ";"))
	if sql == "" {
		return Statement{}, fmt.Errorf("%w: empty statement", ErrUnsafeStatement)
	}

	// Scan a copy with literals blanked so their contents cannot trip or
	// hide from the checks below.
	scan := stringLiteral.ReplaceAllString(sql, "''")
	scan = quotedIdent.ReplaceAllStringFunc(scan, func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, `"`, ""))
	})

	if strings.Contains(scan, ";") {
		return Statement{}, fmt.Errorf("%w: multiple statements", ErrUnsafeStatement)
	}
	if strings.Contains(scan, "--") || strings.Contains(scan, "/*") {
		return Statement{}, fmt.Errorf("%w: comments are not allowed", ErrUnsafeStatement)
	}

	lead := strings.ToLower(strings.Fields(scan)[0])
	if lead != "select" && lead != "with" {
		return Statement{}, fmt.Errorf("%w: only SELECT is allowed", ErrUnsafeStatement)
	}
	if m := forbiddenWords.FindString(scan); m != "" {
		return Statement{}, fmt.Errorf("%w: %q is not allowed", ErrUnsafeStatement, strings.ToUpper(m))
	}
	if err := checkFunctions(scan); err != nil {
		return Statement{}, err
	}
	if strings.Contains(scan, "$") {
		return Statement{}, fmt.Errorf("%w: parameters and dollar quoting are not allowed", ErrUnsafeStatement)
	}

	if err := g.checkTables(scan); err != nil {
		return Statement{}, err
	}

	hasPlaceholder := placeholders.MatchString(sql)
	switch {
	case customerID != "" && !hasPlaceholder:
		return Statement{}, fmt.Errorf("%w: statement is not scoped to the customer", ErrUnsafeStatement)
	case customerID == "" && hasPlaceholder:
		return Statement{}, fmt.Errorf("%w: statement expects a customer but none was given", ErrUnsafeStatement)
	case !hasPlaceholder:
		return Statement{SQL: sql}, nil
	}
	return Statement{SQL: placeholders.ReplaceAllString(sql, "$$1"), Args: []any{customerID}}, nil
}

// checkFunctions rejects any call to a function outside allowedFunctions,
// including schema-qualified names.
func checkFunctions(scan string) error {
	toks := sqlTokens.FindAllString(strings.ToLower(scan), -1)
	ctes := map[string]struct{}{}
	for _, m := range cteNames.FindAllStringSubmatch(scan, -1) {
		ctes[strings.ToLower(m[1])] = struct{}{}
	}

	for i := 0; i+1 < len(toks); i++ {
		name := toks[i]
		if toks[i+1] != "(" || !isIdentToken(name) {
			continue
		}
		if _, ok := sqlParenKeywords[name]; ok {
			continue
		}
		if _, ok := allowedFunctions[name]; ok {
			continue
		}
		if _, ok := ctes[name]; ok {
			continue
		}
		return fmt.Errorf("%w: function %q is not allowed", ErrUnsafeStatement, name)
	}
	return nil
}

func isIdentToken(t string) bool {
	c := t[0]
	return c == '_' || (c >= 'a' && c <= 'z')
}

func (g *Guard) checkTables(scan string) error {
	scan = nonTableFrom.ReplaceAllString(scan, "$1 of")

	ctes := map[string]struct{}{}
	for _, m := range cteNames.FindAllStringSubmatch(scan, -1) {
		ctes[strings.ToLower(m[1])] = struct{}{}
	}

	refs := tableNames(scan)
	if len(refs) == 0 {
		return fmt.Errorf("%w: no table referenced", ErrUnsafeStatement)
	}

	for _, ref := range refs {
		name := ref
		if schema, table, ok := strings.Cut(name, "."); ok {
			if schema != "public" {
				return fmt.Errorf("%w: schema %q is not allowed", ErrUnsafeStatement, schema)
			}
			name = table
		}
		if _, ok := ctes[name]; ok {
			continue
		}
		if _, ok := g.allowed[name]; !ok {
			return fmt.Errorf("%w: table %q is not allowed", ErrUnsafeStatement, name)
		}
	}
	return nil
}

// tableNames returns every relation named in a FROM list or after a
// JOIN. Subqueries are skipped here; their own FROM is visited in turn.
func tableNames(scan string) []string {
	toks := sqlTokens.FindAllString(strings.ToLower(scan), -1)
	isIdent := isIdentToken
	isEnd := func(t string) bool {
		_, ok := clauseEnd[t]
		return ok
	}

	var out []string
	for i := 0; i < len(toks); i++ {
		switch toks[i] {
		case "join":
			if i+1 < len(toks) && isIdent(toks[i+1]) {
				out = append(out, toks[i+1])
			}
		case "from":
			j := i + 1
			for j < len(toks) && isIdent(toks[j]) && !isEnd(toks[j]) {
				out = append(out, toks[j])
				j++
				// alias
				for j < len(toks) && isIdent(toks[j]) && !isEnd(toks[j]) {
					j++
				}
				if j < len(toks) && toks[j] == "," {
					j++
					continue
				}
				break
			}
		}
	}
	return out
}
