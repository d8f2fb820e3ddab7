package table

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDrained is returned when a builder is drained a second time.
var ErrDrained = errors.New("query already drained")

// RowPredicate decides whether a row is kept.
type RowPredicate func(row Row) (bool, error)

// RowKeyFunc extracts a grouping key from a row.
type RowKeyFunc func(row Row) (interface{}, error)

// RowComparator is a three-way comparator: negative, zero or positive.
type RowComparator func(a, b Row) (int, error)

// RowFlatMap expands one row into zero or more derived rows.
type RowFlatMap func(row Row) ([]Row, error)

// RowFunc computes a projected value. group holds the members of the row's
// group when the query is grouped, and is nil otherwise.
type RowFunc func(row Row, group []Row) (interface{}, error)

// Projection is one entry of a select list. When Func is nil the value is
// read from the Column of the input row.
type Projection struct {
	Alias  string
	Column string
	Func   RowFunc
}

// Builder accumulates query stages. Stages may be supplied in any call order
// but are applied in a fixed logical order:
// join, where, groupBy, select, distinct, orderBy, fetchFirst.
type Builder interface {
	Select(items []Projection) Builder
	Where(fn RowPredicate) Builder
	GroupBy(fn RowKeyFunc) Builder
	OrderBy(fn RowComparator) Builder
	Join(fn RowFlatMap) Builder
	FetchFirst(n int) Builder
	Distinct(on bool) Builder

	// Rows drains the builder. Any callable error aborts the whole drain.
	Rows() ([]Row, error)
}

// Query is the Builder implementation over a dataset's rows.
type Query struct {
	source   []Row
	selects  []Projection
	filters  []RowPredicate
	groupBy  RowKeyFunc
	orderBy  RowComparator
	joins    []RowFlatMap
	limit    *int
	distinct bool
	drained  bool
}

func newQuery(rows []Row) *Query {
	return &Query{source: rows}
}

// Select sets the projection. An empty list keeps rows unchanged.
func (q *Query) Select(items []Projection) Builder {
	q.selects = append([]Projection(nil), items...)
	return q
}

// Where adds a filter. Multiple filters must all pass.
func (q *Query) Where(fn RowPredicate) Builder {
	if fn != nil {
		q.filters = append(q.filters, fn)
	}
	return q
}

// GroupBy sets the grouping key.
func (q *Query) GroupBy(fn RowKeyFunc) Builder {
	q.groupBy = fn
	return q
}

// OrderBy sets the comparator.
func (q *Query) OrderBy(fn RowComparator) Builder {
	q.orderBy = fn
	return q
}

// Join appends a flat-map stage. Joins run in the order added.
func (q *Query) Join(fn RowFlatMap) Builder {
	if fn != nil {
		q.joins = append(q.joins, fn)
	}
	return q
}

// FetchFirst caps the number of rows returned. Negative values are ignored.
func (q *Query) FetchFirst(n int) Builder {
	if n >= 0 {
		q.limit = &n
	}
	return q
}

// Distinct toggles duplicate suppression.
func (q *Query) Distinct(on bool) Builder {
	q.distinct = on
	return q
}

// Rows executes the query.
func (q *Query) Rows() (rows []Row, err error) {
	if q.drained {
		return nil, ErrDrained
	}
	q.drained = true

	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = fmt.Errorf("query panicked: %v", r)
		}
	}()

	rows = q.source

	for i, join := range q.joins {
		rows, err = applyJoin(rows, join)
		if err != nil {
			return nil, fmt.Errorf("failed to apply join %d: %w", i+1, err)
		}
	}

	for _, filter := range q.filters {
		rows, err = applyWhere(rows, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to apply filter: %w", err)
		}
	}

	var groups [][]Row
	if q.groupBy != nil {
		rows, groups, err = applyGroupBy(rows, q.groupBy)
		if err != nil {
			return nil, fmt.Errorf("failed to apply grouping: %w", err)
		}
	}

	if len(q.selects) > 0 {
		rows, err = applySelect(rows, groups, q.selects)
		if err != nil {
			return nil, fmt.Errorf("failed to apply select list: %w", err)
		}
	}

	if q.distinct {
		rows = ApplyDistinct(rows)
	}

	if q.orderBy != nil {
		rows, err = ApplyOrderBy(rows, q.orderBy)
		if err != nil {
			return nil, fmt.Errorf("failed to apply ordering: %w", err)
		}
	}

	if q.limit != nil {
		rows = ApplyLimit(rows, *q.limit)
	}

	// Never hand out the dataset's own backing array.
	out := make([]Row, len(rows))
	copy(out, rows)
	return out, nil
}

func applyJoin(rows []Row, fn RowFlatMap) ([]Row, error) {
	joined := make([]Row, 0, len(rows))
	for _, row := range rows {
		derived, err := fn(row)
		if err != nil {
			return nil, err
		}
		joined = append(joined, derived...)
	}
	return joined, nil
}

func applyWhere(rows []Row, fn RowPredicate) ([]Row, error) {
	filtered := make([]Row, 0)
	for _, row := range rows {
		match, err := fn(row)
		if err != nil {
			return nil, err
		}
		if match {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// applyGroupBy partitions rows by key in first-encounter order. Each group is
// represented by its first member, overlaid with the key's columns when the
// key is itself a row.
func applyGroupBy(rows []Row, fn RowKeyFunc) ([]Row, [][]Row, error) {
	index := make(map[string]int)
	heads := make([]Row, 0)
	groups := make([][]Row, 0)

	for _, row := range rows {
		key, err := fn(row)
		if err != nil {
			return nil, nil, err
		}

		hash := valueKey(key)
		if i, exists := index[hash]; exists {
			groups[i] = append(groups[i], row)
			continue
		}

		head := row.Clone()
		if keyRow, ok := key.(Row); ok {
			for _, col := range keyRow.columns {
				head.Set(col, keyRow.values[col])
			}
		}
		index[hash] = len(heads)
		heads = append(heads, head)
		groups = append(groups, []Row{row})
	}

	return heads, groups, nil
}

func applySelect(rows []Row, groups [][]Row, items []Projection) ([]Row, error) {
	projected := make([]Row, 0, len(rows))
	for i, row := range rows {
		var members []Row
		if groups != nil {
			members = groups[i]
		}

		out := Row{}
		for _, item := range items {
			if item.Func == nil {
				out.Set(item.Alias, row.Get(item.Column))
				continue
			}
			value, err := item.Func(row, members)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", item.Alias, err)
			}
			out.Set(item.Alias, value)
		}
		projected = append(projected, out)
	}
	return projected, nil
}

// ApplyDistinct removes duplicate rows, keeping the first occurrence.
func ApplyDistinct(rows []Row) []Row {
	if len(rows) == 0 {
		return rows
	}

	seen := make(map[string]bool)
	distinct := make([]Row, 0)

	for _, row := range rows {
		key := rowKey(row)
		if !seen[key] {
			seen[key] = true
			distinct = append(distinct, row)
		}
	}

	return distinct
}

// ApplyOrderBy sorts a copy of rows with a three-way comparator. The sort is
// stable so equal rows keep their encounter order. The first comparator error
// aborts the sort.
func ApplyOrderBy(rows []Row, cmp RowComparator) ([]Row, error) {
	if len(rows) == 0 || cmp == nil {
		return rows, nil
	}

	sorted := make([]Row, len(rows))
	copy(sorted, rows)

	var sortErr error
	sort.SliceStable(sorted, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		c, err := cmp(sorted[i], sorted[j])
		if err != nil {
			sortErr = err
			return false
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}

	return sorted, nil
}

// ApplyLimit keeps at most n rows. LIMIT 0 returns an empty result.
func ApplyLimit(rows []Row, n int) []Row {
	if n <= 0 {
		return []Row{}
	}
	if n >= len(rows) {
		return rows
	}
	return rows[:n]
}
