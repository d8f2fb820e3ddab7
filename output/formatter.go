// Package output renders result rows.
//
// Supported formats:
//   - json: JSON Lines, one object per row with column order kept
//   - csv: a header row followed by one record per row
//   - table: an aligned text table for terminals
//
// Example usage:
//
//	formatter, err := output.New("table", os.Stdout)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := formatter.Format(rows); err != nil {
//	    log.Fatal(err)
//	}
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/vegasq/csvplay/table"
)

// Format names accepted by New.
const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatTable = "table"
)

// Formatter defines the interface for output formatters.
type Formatter interface {
	// Format writes rows in the formatter's specific format
	Format(rows []table.Row) error

	// SetOutput changes the output writer
	SetOutput(w io.Writer)
}

// New returns the formatter for the named format.
func New(format string, w io.Writer) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON, "jsonl":
		return NewJSONFormatter(w), nil
	case FormatCSV:
		return NewCSVFormatter(w), nil
	case FormatTable, "":
		return NewTableFormatter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
