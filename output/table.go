package output

import (
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/vegasq/csvplay/table"
)

// TableFormatter outputs rows as an aligned text table.
type TableFormatter struct {
	writer io.Writer
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{writer: w}
}

// SetOutput sets the output writer
func (t *TableFormatter) SetOutput(w io.Writer) {
	t.writer = w
}

// Format renders rows with one column per name seen. An empty result
// renders nothing.
func (t *TableFormatter) Format(rows []table.Row) error {
	if len(rows) == 0 {
		return nil
	}

	columns := table.GetColumnNames(rows)

	tw := tablewriter.NewWriter(t.writer)
	tw.SetHeader(columns)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)

	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = formatValue(row.Get(col), false)
		}
		tw.Append(record)
	}

	tw.Render()
	return nil
}
