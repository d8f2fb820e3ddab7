package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vegasq/csvplay/table"
)

// JSONFormatter outputs rows as JSON Lines format
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a new JSON Lines formatter
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

// SetOutput sets the output writer
func (j *JSONFormatter) SetOutput(w io.Writer) {
	j.writer = w
}

// Format writes rows as JSON Lines (one JSON object per line). Keys follow
// each row's column order.
func (j *JSONFormatter) Format(rows []table.Row) error {
	encoder := json.NewEncoder(j.writer)
	for i, row := range rows {
		if err := encoder.Encode(row); err != nil {
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
	}
	return nil
}
