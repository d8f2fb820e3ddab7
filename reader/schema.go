package reader

import (
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// ColumnInfo describes one leaf column of a parquet file.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Physical string `json:"physical_type"`
	Logical  string `json:"logical_type,omitempty"`
	Optional bool   `json:"optional"`
	Repeated bool   `json:"repeated"`
}

// Describe lists the leaf columns of the parquet file at path. Nested
// columns use dot notation, e.g. "address.street".
func Describe(path string) ([]ColumnInfo, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var cols []ColumnInfo
	for _, field := range r.Schema().Fields() {
		cols = append(cols, describeField(field, "", false)...)
	}
	return cols, nil
}

// describeField walks a field; repetition is inherited from parent groups.
func describeField(field parquet.Field, prefix string, parentRepeated bool) []ColumnInfo {
	name := field.Name()
	if prefix != "" {
		name = prefix + "." + name
	}
	repeated := parentRepeated || field.Repeated()

	if children := field.Fields(); len(children) > 0 {
		var cols []ColumnInfo
		for _, child := range children {
			cols = append(cols, describeField(child, name, repeated)...)
		}
		return cols
	}

	info := ColumnInfo{
		Name:     name,
		Type:     "GROUP",
		Physical: "GROUP",
		Optional: field.Optional(),
		Repeated: repeated,
	}
	if t := field.Type(); t != nil {
		info.Physical = physicalName(t.Kind())
		info.Type = info.Physical
		if lt := t.LogicalType(); lt != nil {
			info.Logical = lt.String()
			info.Type = friendlyName(info.Logical, t.Kind())
		}
	}
	return []ColumnInfo{info}
}

func physicalName(kind parquet.Kind) string {
	switch kind {
	case parquet.Boolean:
		return "BOOLEAN"
	case parquet.Int32:
		return "INT32"
	case parquet.Int64:
		return "INT64"
	case parquet.Int96:
		return "INT96"
	case parquet.Float:
		return "FLOAT"
	case parquet.Double:
		return "DOUBLE"
	case parquet.ByteArray:
		return "BYTE_ARRAY"
	case parquet.FixedLenByteArray:
		return "FIXED_LEN_BYTE_ARRAY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", kind)
	}
}

// friendlyName prefers the logical type when it is one users recognise.
func friendlyName(logical string, kind parquet.Kind) string {
	switch logical {
	case "STRING", "UTF8":
		return "STRING"
	case "ENUM", "UUID", "DATE", "TIME", "TIMESTAMP", "DECIMAL", "JSON", "BSON":
		return logical
	default:
		return physicalName(kind)
	}
}
