// Package queryspec defines the serializable description of one query.
//
// A QuerySpec holds the text of every stage as the user typed it. Nothing is
// validated here: a stage is only judged when the pipeline compiles it.
package queryspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// CurrentVersion is the document version written by this package.
//
// Version 1 documents predate the having field.
const CurrentVersion = 2

// SelectKind controls how a select definition is interpreted.
type SelectKind string

const (
	// KindAuto compiles definitions containing "=>" and treats everything
	// else as a column name.
	KindAuto SelectKind = ""
	// KindColumn never compiles the definition.
	KindColumn SelectKind = "column"
	// KindExpr always compiles the definition, as an arrow function when it
	// contains "=>" and as an expression over row otherwise.
	KindExpr SelectKind = "expr"
)

// SelectItem is one alias of the select mapping.
type SelectItem struct {
	Alias      string
	Definition string
	Kind       SelectKind
}

// Selection is an ordered alias -> definition mapping with unique aliases.
type Selection []SelectItem

// QuerySpec describes every stage of a query.
type QuerySpec struct {
	Version    int       `json:"version"`
	Select     Selection `json:"select"`
	Where      string    `json:"where"`
	Group      string    `json:"group"`
	Order      string    `json:"order"`
	Limit      string    `json:"limit"`
	IsDistinct bool      `json:"isDistinct"`
	Joins      []string  `json:"joins"`
	Having     string    `json:"having"`
}

// Default returns an empty query spec.
func Default() QuerySpec {
	return QuerySpec{
		Version: CurrentVersion,
		Select:  Selection{},
		Joins:   []string{},
	}
}

// Clone returns a deep copy.
func (q QuerySpec) Clone() QuerySpec {
	c := q
	c.Select = append(Selection{}, q.Select...)
	c.Joins = append([]string{}, q.Joins...)
	return c
}

// Equal reports structural equality.
func (q QuerySpec) Equal(other QuerySpec) bool {
	if q.Where != other.Where || q.Group != other.Group || q.Order != other.Order ||
		q.Limit != other.Limit || q.IsDistinct != other.IsDistinct || q.Having != other.Having {
		return false
	}
	if len(q.Select) != len(other.Select) || len(q.Joins) != len(other.Joins) {
		return false
	}
	for i := range q.Select {
		if q.Select[i] != other.Select[i] {
			return false
		}
	}
	for i := range q.Joins {
		if q.Joins[i] != other.Joins[i] {
			return false
		}
	}
	return true
}

type wireSpec struct {
	Version     int                   `json:"version"`
	Select      Selection             `json:"select"`
	SelectKinds map[string]SelectKind `json:"selectKinds,omitempty"`
	Where       string                `json:"where"`
	Group       string                `json:"group"`
	Order       string                `json:"order"`
	Limit       string                `json:"limit"`
	IsDistinct  bool                  `json:"isDistinct"`
	Joins       []string              `json:"joins"`
	Having      string                `json:"having"`
}

// MarshalJSON writes the query with select as an ordered object. Non-auto
// select kinds are recorded in a separate selectKinds object so the select
// mapping keeps its alias -> definition shape.
func (q QuerySpec) MarshalJSON() ([]byte, error) {
	w := wireSpec{
		Version:    CurrentVersion,
		Select:     q.Select,
		Where:      q.Where,
		Group:      q.Group,
		Order:      q.Order,
		Limit:      q.Limit,
		IsDistinct: q.IsDistinct,
		Joins:      q.Joins,
		Having:     q.Having,
	}
	if w.Select == nil {
		w.Select = Selection{}
	}
	if w.Joins == nil {
		w.Joins = []string{}
	}
	for _, item := range q.Select {
		if item.Kind != KindAuto {
			if w.SelectKinds == nil {
				w.SelectKinds = make(map[string]SelectKind)
			}
			w.SelectKinds[item.Alias] = item.Kind
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads any known document version. Missing fields take their
// defaults, which is how version 1 documents gain an empty having stage.
func (q *QuerySpec) UnmarshalJSON(data []byte) error {
	var w wireSpec
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	spec := Default()
	if w.Select != nil {
		spec.Select = w.Select
	}
	for i := range spec.Select {
		spec.Select[i].Kind = w.SelectKinds[spec.Select[i].Alias]
	}
	spec.Where = w.Where
	spec.Group = w.Group
	spec.Order = w.Order
	spec.Limit = w.Limit
	spec.IsDistinct = w.IsDistinct
	if w.Joins != nil {
		spec.Joins = w.Joins
	}
	spec.Having = w.Having

	*q = spec
	return nil
}

// MarshalJSON encodes the selection as a JSON object in alias order.
func (s Selection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Alias)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(item.Definition)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order. A repeated alias
// keeps its first position and its last definition.
func (s *Selection) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("select must be an object, got %v", tok)
	}

	var out Selection
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		alias, _ := keyTok.(string)

		var def string
		if err := dec.Decode(&def); err != nil {
			return fmt.Errorf("select %q: %w", alias, err)
		}
		out = out.Set(alias, def)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = out
	return nil
}

// Index returns the position of alias, or -1.
func (s Selection) Index(alias string) int {
	for i, item := range s {
		if item.Alias == alias {
			return i
		}
	}
	return -1
}

// Get returns the definition for alias.
func (s Selection) Get(alias string) (string, bool) {
	if i := s.Index(alias); i >= 0 {
		return s[i].Definition, true
	}
	return "", false
}

// Set returns a selection with alias defined. An existing alias keeps its
// position and kind.
func (s Selection) Set(alias, definition string) Selection {
	out := append(Selection{}, s...)
	if i := out.Index(alias); i >= 0 {
		out[i].Definition = definition
		return out
	}
	return append(out, SelectItem{Alias: alias, Definition: definition})
}

// Add returns a selection with a column selected under its own name, the way
// a newly added select field starts out. Blank names are ignored.
func (s Selection) Add(column string) Selection {
	if strings.TrimSpace(column) == "" {
		return s
	}
	return s.Set(column, column)
}

// Remove returns a selection without alias.
func (s Selection) Remove(alias string) Selection {
	out := make(Selection, 0, len(s))
	for _, item := range s {
		if item.Alias != alias {
			out = append(out, item)
		}
	}
	return out
}

// Rename returns a selection with oldAlias renamed in place. Renaming onto an
// existing alias replaces that entry.
func (s Selection) Rename(oldAlias, newAlias string) Selection {
	if newAlias == "" || oldAlias == newAlias {
		return s
	}
	out := make(Selection, 0, len(s))
	for _, item := range s {
		switch item.Alias {
		case newAlias:
			continue
		case oldAlias:
			item.Alias = newAlias
		}
		out = append(out, item)
	}
	return out
}

// Redefine returns a selection with alias pointing at a new definition.
// Unknown aliases are left alone.
func (s Selection) Redefine(alias, definition string) Selection {
	if s.Index(alias) < 0 || definition == "" {
		return s
	}
	return s.Set(alias, definition)
}

// WithKind returns a selection with alias interpreted as kind.
func (s Selection) WithKind(alias string, kind SelectKind) Selection {
	out := append(Selection{}, s...)
	if i := out.Index(alias); i >= 0 {
		out[i].Kind = kind
	}
	return out
}
