// Package table provides the in-memory tabular engine that query specs are
// executed against.
//
// A Dataset is built from CSV text (or from already-typed rows) and hands out
// single-use query builders. Builders accept callables for projection,
// filtering, grouping, ordering and join expansion, and are drained exactly
// once into a slice of rows.
//
// Example usage:
//
//	ds, err := table.Parse("x,y\n1,a\n2,b\n")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	q := ds.Query()
//	q.Where(func(r table.Row) (bool, error) { return r.Get("x") != nil, nil })
//	rows, err := q.Rows()
package table

import (
	"bytes"
	"encoding/json"
	"math"
)

// Row is an ordered mapping from column name to value.
//
// Values are scalars (string, int64, float64, bool or nil) for rows parsed
// from CSV, but callables may produce nested rows or slices. The zero value is
// an empty row ready to use.
type Row struct {
	columns []string
	values  map[string]interface{}
}

// NewRow creates a row from alternating column/value pairs.
//
//	row := NewRow("id", int64(1), "name", "alice")
func NewRow(pairs ...interface{}) Row {
	r := Row{}
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		r.Set(name, pairs[i+1])
	}
	return r
}

// RowFromMap creates a row from a map, ordering columns as given. Map keys not
// present in order are appended in the order of keys.
func RowFromMap(m map[string]interface{}, order []string) Row {
	r := Row{}
	for _, col := range order {
		if v, ok := m[col]; ok {
			r.Set(col, v)
		}
	}
	for col, v := range m {
		if !r.Has(col) {
			r.Set(col, v)
		}
	}
	return r
}

// Set assigns a value, appending the column if it is new.
func (r *Row) Set(column string, value interface{}) {
	if r.values == nil {
		r.values = make(map[string]interface{})
	}
	if _, exists := r.values[column]; !exists {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
}

// Get returns the value of a column, or nil when the column is absent.
func (r Row) Get(column string) interface{} {
	return r.values[column]
}

// Lookup returns the value of a column and whether it exists.
func (r Row) Lookup(column string) (interface{}, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Has reports whether the column exists.
func (r Row) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Columns returns the column names in insertion order.
func (r Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.columns)
}

// Clone returns a copy that shares no column bookkeeping with r.
func (r Row) Clone() Row {
	c := Row{
		columns: make([]string, len(r.columns)),
		values:  make(map[string]interface{}, len(r.values)),
	}
	copy(c.columns, r.columns)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// Map returns the row as a plain map. Nested rows are converted recursively.
func (r Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.columns))
	for _, col := range r.columns {
		m[col] = plain(r.values[col])
	}
	return m
}

func plain(v interface{}) interface{} {
	switch val := v.(type) {
	case Row:
		return val.Map()
	case []Row:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = item.Map()
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether two rows have the same columns in the same order with
// equal values.
func (r Row) Equal(other Row) bool {
	if len(r.columns) != len(other.columns) {
		return false
	}
	for i, col := range r.columns {
		if other.columns[i] != col {
			return false
		}
	}
	return rowKey(r) == rowKey(other)
}

// MarshalJSON encodes the row as a JSON object, preserving column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := MarshalValue(r.values[col])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalValue encodes one cell value. NaN and the infinities, which JSON
// cannot carry, are written as the strings a script would print for them.
func MarshalValue(v interface{}) ([]byte, error) {
	return json.Marshal(jsonValue(v))
}

func jsonValue(v interface{}) interface{} {
	switch val := v.(type) {
	case float64:
		if s, ok := NonFinite(val); ok {
			return s
		}
	case float32:
		if s, ok := NonFinite(float64(val)); ok {
			return s
		}
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = jsonValue(item)
		}
		return out
	}
	return v
}

// NonFinite spells NaN, Infinity and -Infinity. ok is false for finite f.
func NonFinite(f float64) (s string, ok bool) {
	switch {
	case math.IsNaN(f):
		return "NaN", true
	case math.IsInf(f, 1):
		return "Infinity", true
	case math.IsInf(f, -1):
		return "-Infinity", true
	}
	return "", false
}

// UnmarshalJSON decodes a JSON object into the row, preserving key order.
// Whole numbers decode as int64, other numbers as float64.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return err
	}
	row, ok := v.(Row)
	if !ok {
		return &json.UnmarshalTypeError{Value: "non-object", Type: rowType}
	}
	*r = row
	return nil
}

// GetColumnNames returns all unique column names from rows in first-seen order.
func GetColumnNames(rows []Row) []string {
	if len(rows) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	columns := make([]string, 0)

	for _, row := range rows {
		for _, col := range row.columns {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}

	return columns
}
