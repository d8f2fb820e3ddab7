package workspace

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vegasq/csvplay/queryspec"
	"github.com/vegasq/csvplay/script"
	"github.com/vegasq/csvplay/state"
)

func open(t *testing.T, m state.Medium, opts ...Option) *Workspace {
	t.Helper()
	c, err := script.New(script.DialectJS)
	require.NoError(t, err)
	return Open(m, c, opts...)
}

func numbers(n int) string {
	var b strings.Builder
	b.WriteString("x\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	return b.String()
}

func TestWorkspace_ResultsFromCSV(t *testing.T) {
	w := open(t, state.NewMemoryMedium(0))

	res := w.Results()
	assert.Empty(t, res.Rows)
	assert.Equal(t, []string{}, res.Columns)

	require.NoError(t, w.SetCSV("name,age\nAlice,30\nBob,25\n"))
	assert.Equal(t, 2, w.RowCount())

	w.Edit(func(e *queryspec.Editor) {
		e.SetSelect(func(s queryspec.Selection) queryspec.Selection {
			return s.Add("name").Set("next", "(row) => row.age + 1")
		})
		e.SetWhere("return row.age < 30;")
	})

	res = w.Results()
	assert.Equal(t, []string{"name", "next"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Bob", res.Rows[0].Get("name"))
	assert.EqualValues(t, 26, res.Rows[0].Get("next"))
}

func TestWorkspace_HavingAndSort(t *testing.T) {
	w := open(t, state.NewMemoryMedium(0))
	require.NoError(t, w.SetCSV(numbers(6)))

	w.Edit(func(e *queryspec.Editor) { e.SetHaving("return row.x > 3;") })
	w.SetSortText("return rowB.x - rowA.x;")

	var got []interface{}
	for _, r := range w.Results().Rows {
		got = append(got, r.Get("x"))
	}
	assert.Equal(t, []interface{}{int64(6), int64(5), int64(4)}, got)
	assert.Equal(t, "return rowB.x - rowA.x;", w.SortText())
}

func TestWorkspace_BadCSVIsEmpty(t *testing.T) {
	w := open(t, state.NewMemoryMedium(0))
	assert.Error(t, w.SetCSV("a,b\n\"unterminated,1\n"))
	assert.Equal(t, 0, w.RowCount())
	assert.Empty(t, w.Results().Rows)
}

func TestWorkspace_LimitClampOnLargeDataset(t *testing.T) {
	tests := []struct {
		name  string
		limit string
		want  string
	}{
		{"empty", "", "1000"},
		{"smaller", "20", "20"},
		{"larger", "5000", "1000"},
		{"not a number", "lots", "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := open(t, state.NewMemoryMedium(0))
			w.Edit(func(e *queryspec.Editor) { e.SetLimit(tt.limit) })

			require.NoError(t, w.SetCSV(numbers(1500)))
			assert.Equal(t, tt.want, w.Query().Limit)
		})
	}

	t.Run("small dataset left alone", func(t *testing.T) {
		w := open(t, state.NewMemoryMedium(0))
		w.Edit(func(e *queryspec.Editor) { e.SetLimit("5000") })
		require.NoError(t, w.SetCSV(numbers(10)))
		assert.Equal(t, "5000", w.Query().Limit)
	})

	t.Run("custom cap", func(t *testing.T) {
		w := open(t, state.NewMemoryMedium(0), WithRowCap(5))
		require.NoError(t, w.SetCSV(numbers(10)))
		assert.Equal(t, "5", w.Query().Limit)
		assert.Len(t, w.Results().Rows, 5)
	})
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "1000"},
		{"10", "10"},
		{" 10 ", "10"},
		{"1000", "1000"},
		{"1001", "1000"},
		{"2.5", "2.5"},
		{"-4", "-4"},
		{"NaN", "1000"},
		{"abc", "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampLimit(tt.in, 1000))
		})
	}
}

func TestWorkspace_SavedQueries(t *testing.T) {
	m := state.NewMemoryMedium(0)
	w := open(t, m)
	require.NoError(t, w.SetCSV(numbers(5)))

	w.Edit(func(e *queryspec.Editor) { e.SetWhere("return row.x % 2 === 0;") })
	assert.False(t, w.SaveQuery("  "))
	require.True(t, w.SaveQuery("evens"))
	evens := w.Results().Rows

	w.Reset()
	assert.Len(t, w.Results().Rows, 5)

	require.True(t, w.ApplySaved(0))
	got := w.Results().Rows
	require.Len(t, got, len(evens))
	for i := range got {
		assert.True(t, evens[i].Equal(got[i]))
	}

	assert.False(t, w.ApplySaved(3))
	assert.False(t, w.RemoveSaved(3))
	require.True(t, w.RemoveSaved(0))
	assert.Empty(t, w.Saved())
}

func TestWorkspace_StatePersists(t *testing.T) {
	m := state.NewMemoryMedium(0)
	w := open(t, m)
	require.NoError(t, w.SetCSV(numbers(3)))
	w.SetSortText("return rowB.x - rowA.x;")
	w.Edit(func(e *queryspec.Editor) { e.SetLimit("2") })
	require.True(t, w.SaveQuery("two"))

	reopened := open(t, m)
	assert.Equal(t, numbers(3), reopened.CSV())
	assert.Equal(t, "2", reopened.Query().Limit)
	require.Len(t, reopened.Saved(), 1)

	rows := reopened.Results().Rows
	require.Len(t, rows, 2)
	assert.EqualValues(t, 2, rows[0].Get("x"))
	assert.EqualValues(t, 1, rows[1].Get("x"))
}
