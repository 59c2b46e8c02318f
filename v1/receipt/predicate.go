package receipt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Column is a searchable receipt_lookup column. Only the constants below
// render; anything else is rejected.
type Column string

const (
	ColTransactionID Column = "transaction_id"
	ColCustomerID    Column = "customer_id"
	ColStoreID       Column = "store_id"
	ColStoreName     Column = "store_name"
	ColTransactionTS Column = "transaction_ts"
	ColTotalCents    Column = "total_cents"
	ColCardLast4     Column = "card_last4"
)

var searchable = map[Column]struct{}{
	ColTransactionID: {},
	ColCustomerID:    {},
	ColStoreID:       {},
	ColStoreName:     {},
	ColTransactionTS: {},
	ColTotalCents:    {},
	ColCardLast4:     {},
}

// Op is a predicate operator.
type Op int

const (
	// OpEq is col = v.
	OpEq Op = iota
	// OpILike is a case-insensitive substring match; LIKE wildcards in the
	// value are matched literally.
	OpILike
	// OpBetween is lo <= col AND col <= hi.
	OpBetween
	// OpHalfOpen is lo <= col AND col < hi.
	OpHalfOpen
	// OpGte is col >= v.
	OpGte
	// OpLt is col < v.
	OpLt
	// OpLte is col <= v.
	OpLte
)

// selectivity orders clauses: equality, then pattern, then range.
func (o Op) selectivity() int {
	switch o {
	case OpEq:
		return 0
	case OpILike:
		return 1
	default:
		return 2
	}
}

// Predicate is one typed WHERE clause over a single column.
type Predicate struct {
	Column Column
	Op     Op
	Values []any
}

func Eq(col Column, v any) Predicate { return Predicate{Column: col, Op: OpEq, Values: []any{v}} }

func ILike(col Column, substr string) Predicate {
	return Predicate{Column: col, Op: OpILike, Values: []any{substr}}
}

func Between(col Column, lo, hi any) Predicate {
	return Predicate{Column: col, Op: OpBetween, Values: []any{lo, hi}}
}

func HalfOpen(col Column, lo, hi any) Predicate {
	return Predicate{Column: col, Op: OpHalfOpen, Values: []any{lo, hi}}
}

func Gte(col Column, v any) Predicate { return Predicate{Column: col, Op: OpGte, Values: []any{v}} }
func Lt(col Column, v any) Predicate  { return Predicate{Column: col, Op: OpLt, Values: []any{v}} }
func Lte(col Column, v any) Predicate { return Predicate{Column: col, Op: OpLte, Values: []any{v}} }

// Matches evaluates the predicate against a summary in memory. It mirrors
// the SQL semantics and backs fakes and cache filtering.
func (p Predicate) Matches(s Summary) bool {
	var field any
	switch p.Column {
	case ColTransactionID:
		field = s.TransactionID
	case ColCustomerID:
		if s.CustomerID == nil {
			return false
		}
		field = *s.CustomerID
	case ColStoreID:
		field = s.StoreID
	case ColStoreName:
		field = s.StoreName
	case ColTransactionTS:
		field = s.TransactionTS
	case ColTotalCents:
		field = s.TotalCents
	case ColCardLast4:
		if s.CardLast4 == nil {
			return false
		}
		field = *s.CardLast4
	default:
		return false
	}

	switch p.Op {
	case OpEq:
		return compare(field, p.Values[0]) == 0
	case OpILike:
		str, _ := field.(string)
		needle, _ := p.Values[0].(string)
		return strings.Contains(strings.ToLower(str), strings.ToLower(needle))
	case OpBetween:
		return compare(field, p.Values[0]) >= 0 && compare(field, p.Values[1]) <= 0
	case OpHalfOpen:
		return compare(field, p.Values[0]) >= 0 && compare(field, p.Values[1]) < 0
	case OpGte:
		return compare(field, p.Values[0]) >= 0
	case OpLt:
		return compare(field, p.Values[0]) < 0
	case OpLte:
		return compare(field, p.Values[0]) <= 0
	}
	return false
}

func compare(a, b any) int {
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case int64:
		bv, _ := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Compare(bv)
	}
	return -2
}

// SortBySelectivity orders predicates equality first, then pattern, then
// range. The sort is stable so equal-rank clauses keep caller order.
func SortBySelectivity(preds []Predicate) []Predicate {
	out := append([]Predicate(nil), preds...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Op.selectivity() < out[j].Op.selectivity()
	})
	return out
}

// Render turns predicates into an AND-joined clause with positional
// placeholders starting at $next, qualified by alias. Values are never
// interpolated. An empty slice renders "TRUE".
func Render(preds []Predicate, alias string, next int) (string, []any, error) {
	if len(preds) == 0 {
		return "TRUE", nil, nil
	}

	var (
		clauses []string
		args    []any
	)
	placeholder := func(v any) string {
		args = append(args, v)
		s := "$" + strconv.Itoa(next)
		next++
		return s
	}

	for _, p := range SortBySelectivity(preds) {
		if _, ok := searchable[p.Column]; !ok {
			return "", nil, fmt.Errorf("%w: column %q", ErrInvalidPredicate, p.Column)
		}
		if want := p.Op.arity(); len(p.Values) != want {
			return "", nil, fmt.Errorf("%w: %s expects %d values, got %d", ErrInvalidPredicate, p.Column, want, len(p.Values))
		}

		col := pq.QuoteIdentifier(string(p.Column))
		if alias != "" {
			col = pq.QuoteIdentifier(alias) + "." + col
		}

		switch p.Op {
		case OpEq:
			clauses = append(clauses, fmt.Sprintf("%s = %s", col, placeholder(p.Values[0])))
		case OpILike:
			s, ok := p.Values[0].(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: %s pattern must be a string", ErrInvalidPredicate, p.Column)
			}
			clauses = append(clauses, fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, col, placeholder("%"+EscapeLike(s)+"%")))
		case OpBetween:
			clauses = append(clauses, fmt.Sprintf("%s BETWEEN %s AND %s", col, placeholder(p.Values[0]), placeholder(p.Values[1])))
		case OpHalfOpen:
			clauses = append(clauses, fmt.Sprintf("%s >= %s AND %s < %s", col, placeholder(p.Values[0]), col, placeholder(p.Values[1])))
		case OpGte:
			clauses = append(clauses, fmt.Sprintf("%s >= %s", col, placeholder(p.Values[0])))
		case OpLt:
			clauses = append(clauses, fmt.Sprintf("%s < %s", col, placeholder(p.Values[0])))
		case OpLte:
			clauses = append(clauses, fmt.Sprintf("%s <= %s", col, placeholder(p.Values[0])))
		default:
			return "", nil, fmt.Errorf("%w: unknown operator %d", ErrInvalidPredicate, p.Op)
		}
	}

	return "(" + strings.Join(clauses, ") AND (") + ")", args, nil
}

func (o Op) arity() int {
	switch o {
	case OpBetween, OpHalfOpen:
		return 2
	default:
		return 1
	}
}

// EscapeLike escapes LIKE metacharacters so s matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
