package table

import (
	"cmp"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Kinds in ascending sort order. Values of any other kind compare equal to
// everything.
const (
	kindNull = iota
	kindBool
	kindNumber
	kindString
	kindOther
)

// CompareValues orders two cell values and returns -1, 0 or +1. Null sorts
// first, then booleans (false before true), numbers of any width, and
// strings. It backs the compare(a, b) helper scripts can call.
func CompareValues(a, b interface{}) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka == kindOther || kb == kindOther {
		return 0
	}
	if ka != kb {
		return cmp.Compare(ka, kb)
	}

	switch ka {
	case kindBool:
		return cmp.Compare(boolRank(a.(bool)), boolRank(b.(bool)))
	case kindNumber:
		x, _ := toFloat64(a)
		y, _ := toFloat64(b)
		return cmp.Compare(x, y)
	case kindString:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

func kindOf(v interface{}) int {
	switch v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case string:
		return kindString
	}
	if _, ok := toFloat64(v); ok {
		return kindNumber
	}
	return kindOther
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// toFloat64 widens any Go number.
func toFloat64(v interface{}) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// rowKey creates a unique string key from a row for deduplication.
// Column order is ignored so that {a,b} and {b,a} collapse together.
func rowKey(row Row) string {
	columns := row.Columns()
	sort.Strings(columns)

	var key strings.Builder
	for i, col := range columns {
		if i > 0 {
			key.WriteString("\x00||\x00") // Use unlikely separator to avoid collisions
		}
		key.WriteString(col)
		key.WriteString("\x00:\x00")
		key.WriteString(valueKey(row.values[col]))
	}
	return key.String()
}

// valueKey renders a value for hashing. Whole floats and ints share a key so
// that 2 and 2.0 group together, matching how scripts see numbers.
func valueKey(v interface{}) string {
	switch val := v.(type) {
	case Row:
		return "{" + rowKey(val) + "}"
	case []Row:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = "{" + rowKey(item) + "}"
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = valueKey(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	if f, ok := toFloat64(v); ok {
		return fmt.Sprintf("n:%v", f)
	}
	return fmt.Sprintf("%#v", v) // Use %#v for better type differentiation
}
