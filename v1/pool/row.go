package pool

import (
	"fmt"
	"strconv"
	"time"
)

// Row is one result row with its column names.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value for col.
func (r Row) Get(col string) (any, bool) {
	for i, c := range r.Columns {
		if c == col {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row keyed by column name.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

func (r Row) String(col string) string {
	v, _ := r.Get(col)
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func (r Row) Int64(col string) int64 {
	v, _ := r.Get(col)
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(t), 10, 64)
		return n
	}
	return 0
}

func (r Row) Float64(col string) float64 {
	v, _ := r.Get(col)
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(string(t), 64)
		return f
	}
	return 0
}

func (r Row) Time(col string) time.Time {
	v, _ := r.Get(col)
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}

// StringPtr returns nil when the column is NULL.
func (r Row) StringPtr(col string) *string {
	v, ok := r.Get(col)
	if !ok || v == nil {
		return nil
	}
	s := r.String(col)
	return &s
}
