// Package reader loads data sources: CSV files as text and parquet files as
// rows, using github.com/parquet-go/parquet-go.
package reader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/vegasq/csvplay/table"
)

// FileColumn names the column added to rows read through a glob pattern.
const FileColumn = "_file"

// maxFiles bounds how many files one glob pattern may expand to.
const maxFiles = 1000

// Reader reads one parquet file.
//
// It maintains both an OS file handle and a parquet file handle to enable
// proper resource cleanup.
type Reader struct {
	file   *os.File
	pqFile *parquet.File
}

// NewReader opens path and validates it as a parquet file.
//
//	r, err := reader.NewReader("data.parquet")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pqFile, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	return &Reader{
		file:   file,
		pqFile: pqFile,
	}, nil
}

// ReadAll reads every row into memory. Columns follow the schema's field
// order; group fields become nested rows.
func (r *Reader) ReadAll() ([]table.Row, error) {
	order := make([]string, 0)
	for _, f := range r.pqFile.Schema().Fields() {
		order = append(order, f.Name())
	}

	rows := make([]table.Row, 0, int(r.pqFile.NumRows()))

	pr := parquet.NewReader(r.pqFile)
	defer func() { _ = pr.Close() }()

	for {
		m := make(map[string]interface{})
		err := pr.Read(&m)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		row := table.Row{}
		for _, col := range order {
			if v, ok := m[col]; ok {
				row.Set(col, normalize(v))
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// Schema returns the parquet file schema.
func (r *Reader) Schema() *parquet.Schema {
	return r.pqFile.Schema()
}

// Close releases the file handle. It is safe to call Close multiple times.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// ReadParquet reads rows from a parquet file or from every file matching a
// glob pattern. Rows read through a pattern carry a FileColumn naming their
// source file; single file reads keep the file's own columns only.
func ReadParquet(pattern string) ([]table.Row, error) {
	if !isGlob(pattern) {
		return readFile(pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no files match pattern: %s", pattern)
	}
	if len(matches) > maxFiles {
		return nil, fmt.Errorf("glob pattern matched too many files (%d), maximum is %d", len(matches), maxFiles)
	}

	var all []table.Row
	for _, path := range matches {
		rows, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for i := range rows {
			rows[i].Set(FileColumn, path)
		}
		all = append(all, rows...)
	}

	return all, nil
}

func readFile(path string) ([]table.Row, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}

	rows, readErr := r.ReadAll()
	closeErr := r.Close()

	if readErr != nil {
		return nil, readErr
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close file: %w", closeErr)
	}
	return rows, nil
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// normalize converts decoded parquet values to row values: groups become
// rows with sorted columns, byte arrays become strings.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		row := table.Row{}
		for _, k := range keys {
			row.Set(k, normalize(val[k]))
		}
		return row
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = normalize(item)
		}
		return items
	case []byte:
		return string(val)
	default:
		return v
	}
}
