package reader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/vegasq/csvplay/table"
)

type person struct {
	ID   int64  `parquet:"id"`
	Name string `parquet:"name"`
	Age  int32  `parquet:"age"`
}

func writeParquet[T any](t *testing.T, path string, rows []T) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	writer := parquet.NewGenericWriter[T](f)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("failed to write test data: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close file: %v", err)
	}
}

func TestReadParquet_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.parquet")
	writeParquet(t, path, []person{
		{ID: 1, Name: "Alice", Age: 30},
		{ID: 2, Name: "Bob", Age: 25},
	})

	rows, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("ReadParquet() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ReadParquet() returned %d rows, want 2", len(rows))
	}

	cols := rows[0].Columns()
	if len(cols) != 3 || cols[0] != "id" || cols[1] != "name" || cols[2] != "age" {
		t.Errorf("columns = %v, want [id name age]", cols)
	}
	if rows[1].Get("name") != "Bob" {
		t.Errorf("name = %v, want Bob", rows[1].Get("name"))
	}
	if table.CompareValues(rows[0].Get("age"), int64(30)) != 0 {
		t.Errorf("age = %v, want 30", rows[0].Get("age"))
	}

	// Single file reads do not add the source column.
	if rows[0].Has(FileColumn) {
		t.Errorf("single file read added %s", FileColumn)
	}
}

func TestReadParquet_GlobPattern(t *testing.T) {
	dir := t.TempDir()
	files := []struct {
		name string
		rows []person
	}{
		{"a.parquet", []person{{ID: 1, Name: "Alice"}}},
		{"b.parquet", []person{{ID: 2, Name: "Bob"}, {ID: 3, Name: "Carol"}}},
	}
	for _, f := range files {
		writeParquet(t, filepath.Join(dir, f.name), f.rows)
	}

	rows, err := ReadParquet(filepath.Join(dir, "*.parquet"))
	if err != nil {
		t.Fatalf("ReadParquet() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("ReadParquet() returned %d rows, want 3", len(rows))
	}
	if got := rows[2].Get(FileColumn); got != filepath.Join(dir, "b.parquet") {
		t.Errorf("%s = %v, want b.parquet path", FileColumn, got)
	}
}

func TestReadParquet_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadParquet(filepath.Join(dir, "missing.parquet")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := ReadParquet(filepath.Join(dir, "*.parquet")); err == nil {
		t.Error("expected error for pattern with no matches")
	}

	bogus := filepath.Join(dir, "bogus.parquet")
	if err := os.WriteFile(bogus, []byte("not parquet"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadParquet(bogus); err == nil {
		t.Error("expected error for invalid parquet file")
	}
}

func TestDescribe(t *testing.T) {
	type address struct {
		Street string `parquet:"street"`
		City   string `parquet:"city"`
	}
	type record struct {
		ID      int64    `parquet:"id"`
		Score   float64  `parquet:"score"`
		Active  bool     `parquet:"active"`
		Note    *string  `parquet:"note,optional"`
		Tags    []string `parquet:"tags"`
		Address address  `parquet:"address"`
	}

	path := filepath.Join(t.TempDir(), "record.parquet")
	note := "n"
	writeParquet(t, path, []record{{ID: 1, Score: 1.5, Active: true, Note: &note, Tags: []string{"a"}}})

	cols, err := Describe(path)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}

	byName := make(map[string]ColumnInfo)
	for _, c := range cols {
		byName[c.Name] = c
	}

	tests := []struct {
		name     string
		typ      string
		optional bool
		repeated bool
	}{
		{"id", "INT64", false, false},
		{"score", "DOUBLE", false, false},
		{"active", "BOOLEAN", false, false},
		{"note", "STRING", true, false},
		{"tags", "STRING", false, true},
		{"address.street", "STRING", false, false},
		{"address.city", "STRING", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := byName[tt.name]
			if !ok {
				t.Fatalf("column %s not found in %v", tt.name, cols)
			}
			if c.Type != tt.typ {
				t.Errorf("type = %s, want %s", c.Type, tt.typ)
			}
			if c.Optional != tt.optional {
				t.Errorf("optional = %v, want %v", c.Optional, tt.optional)
			}
			if c.Repeated != tt.repeated {
				t.Errorf("repeated = %v, want %v", c.Repeated, tt.repeated)
			}
		})
	}
}

func TestLoadText(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(csvPath, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	text, err := LoadText(csvPath)
	if err != nil {
		t.Fatalf("LoadText(csv) error = %v", err)
	}
	if text != "a,b\n1,2\n" {
		t.Errorf("LoadText(csv) = %q", text)
	}

	pqPath := filepath.Join(dir, "people.parquet")
	writeParquet(t, pqPath, []person{{ID: 7, Name: "-Eve", Age: 41}})

	text, err = LoadText(pqPath)
	if err != nil {
		t.Fatalf("LoadText(parquet) error = %v", err)
	}
	if text != "id,name,age\n7,-Eve,41\n" {
		t.Errorf("LoadText(parquet) = %q", text)
	}

	if _, err := LoadText(filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("expected error for missing csv file")
	}
}
