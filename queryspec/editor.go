package queryspec

import (
	"go.uber.org/zap"

	"github.com/vegasq/csvplay/state"
)

// Editor applies whole-value edits to a persisted query spec. Every edit is
// a transform of the previous value, so successive edits compose.
type Editor struct {
	cell *state.Cell[QuerySpec]
}

// OpenEditor loads the query stored under key. A legacy standalone having
// value stored under state.KeyHaving is folded into the query when the query
// has none of its own.
func OpenEditor(medium state.Medium, key string, log *zap.Logger) *Editor {
	cell := state.Open(medium, key, Default(), log)
	e := &Editor{cell: cell}

	legacy := state.Open(medium, state.KeyHaving, "", log)
	if having := legacy.Get(); having != "" && cell.Get().Having == "" {
		e.SetHaving(having)
		legacy.Set("")
	}

	return e
}

// NewEditor wraps an existing cell.
func NewEditor(cell *state.Cell[QuerySpec]) *Editor {
	return &Editor{cell: cell}
}

// Query returns a copy of the current spec.
func (e *Editor) Query() QuerySpec {
	return e.cell.Get().Clone()
}

func (e *Editor) update(fn func(q QuerySpec) QuerySpec) {
	e.cell.Update(func(old QuerySpec) QuerySpec {
		return fn(old.Clone())
	})
}

// SetQuery replaces the whole spec.
func (e *Editor) SetQuery(q QuerySpec) {
	e.update(func(QuerySpec) QuerySpec { return q.Clone() })
}

// Reset restores the empty defaults.
func (e *Editor) Reset() {
	e.SetQuery(Default())
}

// SetSelect replaces the selection with fn(previous).
func (e *Editor) SetSelect(fn func(Selection) Selection) {
	e.update(func(q QuerySpec) QuerySpec {
		q.Select = fn(q.Select)
		return q
	})
}

// SetWhere replaces the where text.
func (e *Editor) SetWhere(where string) {
	e.update(func(q QuerySpec) QuerySpec {
		q.Where = where
		return q
	})
}

// SetGroup replaces the group text.
func (e *Editor) SetGroup(group string) {
	e.update(func(q QuerySpec) QuerySpec {
		q.Group = group
		return q
	})
}

// SetOrder replaces the order text.
func (e *Editor) SetOrder(order string) {
	e.update(func(q QuerySpec) QuerySpec {
		q.Order = order
		return q
	})
}

// SetLimit replaces the limit text.
func (e *Editor) SetLimit(limit string) {
	e.UpdateLimit(func(string) string { return limit })
}

// UpdateLimit replaces the limit text with fn(previous).
func (e *Editor) UpdateLimit(fn func(string) string) {
	e.update(func(q QuerySpec) QuerySpec {
		q.Limit = fn(q.Limit)
		return q
	})
}

// SetIsDistinct toggles duplicate suppression.
func (e *Editor) SetIsDistinct(on bool) {
	e.update(func(q QuerySpec) QuerySpec {
		q.IsDistinct = on
		return q
	})
}

// SetJoins replaces the joins with fn(previous).
func (e *Editor) SetJoins(fn func([]string) []string) {
	e.update(func(q QuerySpec) QuerySpec {
		q.Joins = fn(q.Joins)
		return q
	})
}

// AddJoin appends a join fragment. Empty text is ignored.
func (e *Editor) AddJoin(text string) {
	if text == "" {
		return
	}
	e.SetJoins(func(joins []string) []string {
		return append(joins, text)
	})
}

// RemoveJoin drops the join at index. Out of range indexes are ignored.
func (e *Editor) RemoveJoin(index int) {
	e.SetJoins(func(joins []string) []string {
		if index < 0 || index >= len(joins) {
			return joins
		}
		return append(joins[:index:index], joins[index+1:]...)
	})
}

// SetHaving replaces the having text.
func (e *Editor) SetHaving(having string) {
	e.update(func(q QuerySpec) QuerySpec {
		q.Having = having
		return q
	})
}
