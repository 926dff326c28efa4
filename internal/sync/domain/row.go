package domain

import (
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the dynamic type of a column value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindBool
	KindTime
)

// TrueToken is the string that databases without a boolean type use for true.
const TrueToken = "y"

// timeLayout renders timestamps as local date-time without zone, e.g. 2024-03-01T10:15:30.5.
const timeLayout = "2006-01-02T15:04:05.999999999"

// Value is one column value of a source row.
type Value struct {
	Kind ValueKind
	Str  string
	B    bool
	T    time.Time
}

func NullValue() Value            { return Value{} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, B: b} }
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, T: t} }

// IsNull reports whether the value is SQL NULL or absent.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Bool normalizes the value to a boolean: native booleans pass through, the string "y" is true,
// every other string is false, and null is false.
func (v Value) Bool() bool {
	switch v.Kind {
	case KindBool:
		return v.B
	case KindString:
		return v.Str == TrueToken
	default:
		return false
	}
}

// String renders the value as a directory attribute. Timestamps use their canonical local form; null renders as "".
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindTime:
		return v.T.Format(timeLayout)
	default:
		return ""
	}
}

// Row is one source result row keyed by lower-cased column name, in column order.
type Row struct {
	columns []string
	values  map[string]Value
}

// NewRow returns an empty row with room for n columns.
func NewRow(n int) *Row {
	return &Row{columns: make([]string, 0, n), values: make(map[string]Value, n)}
}

// Set stores v under the lower-cased column name. A repeated column keeps its first position and the last value.
func (r *Row) Set(column string, v Value) {
	key := strings.ToLower(column)
	if _, ok := r.values[key]; !ok {
		r.columns = append(r.columns, key)
	}
	r.values[key] = v
}

// Get returns the value of column, case-insensitively; absent columns are null.
func (r *Row) Get(column string) Value {
	return r.values[strings.ToLower(column)]
}

// Has reports whether the row declares column, even if its value is null.
func (r *Row) Has(column string) bool {
	_, ok := r.values[strings.ToLower(column)]
	return ok
}

// Columns returns the lower-cased column names in source order.
func (r *Row) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Masked renders the row for debug logs with the temporary password hidden.
func (r *Row) Masked() map[string]string {
	out := make(map[string]string, len(r.columns))
	for _, c := range r.columns {
		v := r.values[c]
		switch {
		case v.IsNull():
			out[c] = "<null>"
		case c == ColumnTempPassword:
			out[c] = "***"
		default:
			out[c] = v.String()
		}
	}
	return out
}
