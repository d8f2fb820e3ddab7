package queryspec

import (
	"go.uber.org/zap"

	"github.com/vegasq/csvplay/state"
)

// Saved is a named snapshot of a query.
type Saved struct {
	Name  string    `json:"name"`
	Query QuerySpec `json:"query"`
}

// SavedList is the persisted list of saved queries, newest first.
type SavedList struct {
	cell *state.Cell[[]Saved]
}

// OpenSavedList loads the list stored under key.
func OpenSavedList(medium state.Medium, key string, log *zap.Logger) *SavedList {
	return &SavedList{cell: state.Open(medium, key, []Saved{}, log)}
}

// All returns a copy of the list.
func (l *SavedList) All() []Saved {
	items := l.cell.Get()
	out := make([]Saved, len(items))
	for i, s := range items {
		out[i] = Saved{Name: s.Name, Query: s.Query.Clone()}
	}
	return out
}

// Save prepends a snapshot of q under name. An empty name is ignored.
func (l *SavedList) Save(name string, q QuerySpec) bool {
	if name == "" {
		return false
	}
	l.cell.Update(func(old []Saved) []Saved {
		return append([]Saved{{Name: name, Query: q.Clone()}}, old...)
	})
	return true
}

// Remove drops the entry at index. Out of range indexes are ignored.
func (l *SavedList) Remove(index int) bool {
	removed := false
	l.cell.Update(func(old []Saved) []Saved {
		if index < 0 || index >= len(old) {
			return old
		}
		removed = true
		out := make([]Saved, 0, len(old)-1)
		out = append(out, old[:index]...)
		return append(out, old[index+1:]...)
	})
	return removed
}

// Get returns the entry at index.
func (l *SavedList) Get(index int) (Saved, bool) {
	items := l.cell.Get()
	if index < 0 || index >= len(items) {
		return Saved{}, false
	}
	return Saved{Name: items[index].Name, Query: items[index].Query.Clone()}, true
}

// Find returns the newest entry named name.
func (l *SavedList) Find(name string) (Saved, bool) {
	for i, s := range l.cell.Get() {
		if s.Name == name {
			return l.Get(i)
		}
	}
	return Saved{}, false
}
