package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Dataset is an immutable set of rows parsed from one CSV source.
//
// It is rebuilt whenever the source text changes; nothing executed through
// Query ever modifies it.
type Dataset struct {
	columns []string
	rows    []Row
}

// Parse reads CSV text with a header row into a Dataset.
//
// Cells are coerced: empty cells become nil, integers become int64, other
// numbers become float64 and everything else stays a string. Records shorter
// than the header are padded with nil, longer ones are truncated. Empty text
// yields an empty dataset.
func Parse(text string) (*Dataset, error) {
	if strings.TrimSpace(text) == "" {
		return &Dataset{}, nil
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(name)
	}

	rows := make([]Row, 0)
	for {
		record, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read row %d: %w", len(rows)+1, err)
		}
		row := Row{}
		for i, col := range columns {
			if i < len(record) {
				row.Set(col, Coerce(record[i]))
			} else {
				row.Set(col, nil)
			}
		}
		rows = append(rows, row)
	}

	return &Dataset{columns: columns, rows: rows}, nil
}

// FromRows builds a dataset from already-typed rows. Columns are taken in
// first-seen order.
func FromRows(rows []Row) *Dataset {
	copied := make([]Row, len(rows))
	for i, row := range rows {
		copied[i] = row.Clone()
	}
	return &Dataset{columns: GetColumnNames(copied), rows: copied}
}

// Coerce converts a raw CSV cell into a scalar value. Only decimal number
// literals become numbers; words such as "NaN" or "inf" and hex floats stay
// text.
func Coerce(cell string) interface{} {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if isDecimal(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) {
			return f
		}
	}
	return cell
}

// isDecimal reports whether s only uses the characters of a decimal literal
// with an optional exponent.
func isDecimal(s string) bool {
	digits := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
		case r == '+' || r == '-':
			if i > 0 && s[i-1] != 'e' && s[i-1] != 'E' {
				return false
			}
		case r == '.' || r == 'e' || r == 'E':
		default:
			return false
		}
	}
	return digits
}

// RowCount returns the number of data rows.
func (d *Dataset) RowCount() int {
	return len(d.rows)
}

// Columns returns the header columns.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

// Query returns a fresh single-use builder over the dataset.
func (d *Dataset) Query() Builder {
	return newQuery(d.rows)
}
