// Package source reads user rows from a provider's relational database: it maps result rows,
// runs the provider's queries on pooled connections and caches one pool per provider.
package source

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"db-user-sync/internal/sync/domain"
)

// MapRow converts one result row into a domain.Row. values[i] belongs to columns[i].
// []byte decodes to string and numbers render in decimal; unknown types use their fmt form.
func MapRow(columns []string, values []any) *domain.Row {
	row := domain.NewRow(len(columns))
	for i, c := range columns {
		var v any
		if i < len(values) {
			v = values[i]
		}
		row.Set(c, toValue(v))
	}
	return row
}

func toValue(v any) domain.Value {
	switch x := v.(type) {
	case nil:
		return domain.NullValue()
	case string:
		return domain.StringValue(x)
	case []byte:
		return domain.StringValue(string(x))
	case bool:
		return domain.BoolValue(x)
	case time.Time:
		return domain.TimeValue(x)
	case int64:
		return domain.StringValue(strconv.FormatInt(x, 10))
	case int32:
		return domain.StringValue(strconv.FormatInt(int64(x), 10))
	case int:
		return domain.StringValue(strconv.Itoa(x))
	case float64:
		return domain.StringValue(strconv.FormatFloat(x, 'f', -1, 64))
	case float32:
		return domain.StringValue(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case fmt.Stringer:
		return domain.StringValue(x.String())
	default:
		return domain.StringValue(fmt.Sprint(x))
	}
}

// ScanRow scans the current row of rows into a domain.Row.
func ScanRow(rows *sql.Rows, columns []string) (*domain.Row, error) {
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return MapRow(columns, values), nil
}
