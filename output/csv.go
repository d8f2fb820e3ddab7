package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/vegasq/csvplay/table"
)

// CSVFormatter outputs rows as CSV format
type CSVFormatter struct {
	writer   io.Writer
	sanitize bool
}

// NewCSVFormatter creates a CSV formatter that guards string cells against
// spreadsheet formula injection.
func NewCSVFormatter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{writer: w, sanitize: true}
}

// NewRawCSVFormatter creates a CSV formatter that writes cells verbatim, for
// output that is parsed again rather than opened in a spreadsheet.
func NewRawCSVFormatter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{writer: w}
}

// SetOutput sets the output writer
func (c *CSVFormatter) SetOutput(w io.Writer) {
	c.writer = w
}

// Format writes rows as CSV. The header lists every column seen, in
// first-seen order; cells missing from a row are empty.
func (c *CSVFormatter) Format(rows []table.Row) error {
	csvWriter := csv.NewWriter(c.writer)

	if len(rows) > 0 {
		columns := table.GetColumnNames(rows)
		if err := csvWriter.Write(columns); err != nil {
			return err
		}

		for _, row := range rows {
			record := make([]string, len(columns))
			for i, col := range columns {
				record[i] = formatValue(row.Get(col), c.sanitize)
			}
			if err := csvWriter.Write(record); err != nil {
				return err
			}
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV writer: %w", err)
	}

	return nil
}

// formatValue converts a value to a single cell.
func formatValue(v interface{}, sanitize bool) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		if sanitize && len(val) > 0 {
			switch val[0] {
			case '=', '+', '-', '@', '\t', '\r', '\n', '|':
				return "'" + strings.ReplaceAll(val, "'", "''")
			}
		}
		return val
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", val)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float64:
		if text, ok := table.NonFinite(val); ok {
			return text
		}
		return fmt.Sprintf("%g", val)
	case float32:
		if text, ok := table.NonFinite(float64(val)); ok {
			return text
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case []byte:
		return string(val)
	default:
		// Nested rows and lists are written as JSON.
		data, err := table.MarshalValue(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
