package reader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vegasq/csvplay/output"
)

// ReadCSVFile returns the text of a CSV file.
func ReadCSVFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read csv file: %w", err)
	}
	return string(data), nil
}

// LoadText returns CSV source text for path. Parquet files and glob patterns
// are read as parquet and rendered to CSV; anything else is read as-is.
func LoadText(path string) (string, error) {
	if !isGlob(path) && !strings.EqualFold(filepath.Ext(path), ".parquet") {
		return ReadCSVFile(path)
	}

	rows, err := ReadParquet(path)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := output.NewRawCSVFormatter(&buf).Format(rows); err != nil {
		return "", fmt.Errorf("failed to render parquet rows: %w", err)
	}
	return buf.String(), nil
}
