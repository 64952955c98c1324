package report

import (
	"fmt"
	"strconv"
)

// Row maps a column label to a scalar cell value (string, int or float64).
type Row map[string]any

// Table is a named sheet: an ordered header plus rows keyed by that header.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Values returns row i as cell values in column order. Missing cells are
// empty strings.
func (t Table) Values(i int) []any {
	values := make([]any, len(t.Columns))
	for j, col := range t.Columns {
		v, ok := t.Rows[i][col]
		if !ok || v == nil {
			values[j] = ""
			continue
		}
		values[j] = v
	}
	return values
}

// Strings is Values rendered as text, for sinks without typed cells.
func (t Table) Strings(i int) []string {
	values := t.Values(i)
	out := make([]string, len(values))
	for j, v := range values {
		out[j] = FormatValue(v)
	}
	return out
}

// FormatValue renders a cell the way it should appear in a text sink.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
