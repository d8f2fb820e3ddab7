package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbersDataset(t *testing.T) *Dataset {
	t.Helper()
	ds, err := Parse("x,tag\n3,b\n1,a\n2,b\n1,a\n")
	require.NoError(t, err)
	return ds
}

func xs(rows []Row) []interface{} {
	out := make([]interface{}, len(rows))
	for i, r := range rows {
		out[i] = r.Get("x")
	}
	return out
}

func TestQuery_Where(t *testing.T) {
	q := numbersDataset(t).Query()
	q.Where(func(r Row) (bool, error) {
		return CompareValues(r.Get("x"), int64(1)) > 0, nil
	})

	rows, err := q.Rows()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(3), int64(2)}, xs(rows))
}

func TestQuery_SelectColumnAndFunc(t *testing.T) {
	q := numbersDataset(t).Query()
	q.Select([]Projection{
		{Alias: "value", Column: "x"},
		{Alias: "double", Func: func(r Row, _ []Row) (interface{}, error) {
			return r.Get("x").(int64) * 2, nil
		}},
		{Alias: "missing", Column: "nope"},
	})

	rows, err := q.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"value", "double", "missing"}, rows[0].Columns())
	assert.Equal(t, int64(3), rows[0].Get("value"))
	assert.Equal(t, int64(6), rows[0].Get("double"))
	assert.Nil(t, rows[0].Get("missing"))
}

func TestQuery_GroupByWithAggregate(t *testing.T) {
	q := numbersDataset(t).Query()
	q.GroupBy(func(r Row) (interface{}, error) { return r.Get("tag"), nil })
	q.Select([]Projection{
		{Alias: "tag", Column: "tag"},
		{Alias: "count", Func: func(_ Row, group []Row) (interface{}, error) {
			return len(group), nil
		}},
	})

	rows, err := q.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].Get("tag"))
	assert.Equal(t, 2, rows[0].Get("count"))
	assert.Equal(t, "a", rows[1].Get("tag"))
	assert.Equal(t, 2, rows[1].Get("count"))
}

func TestQuery_GroupByRowKeyOverlaysColumns(t *testing.T) {
	q := numbersDataset(t).Query()
	q.GroupBy(func(r Row) (interface{}, error) {
		return NewRow("bucket", r.Get("tag")), nil
	})

	rows, err := q.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"x", "tag", "bucket"}, rows[0].Columns())
	assert.Equal(t, "b", rows[0].Get("bucket"))
}

func TestQuery_OrderByAndLimit(t *testing.T) {
	q := numbersDataset(t).Query()
	q.FetchFirst(3) // call order does not matter
	q.OrderBy(func(a, b Row) (int, error) {
		return CompareValues(a.Get("x"), b.Get("x")), nil
	})

	rows, err := q.Rows()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(1), int64(2)}, xs(rows))
}

func TestQuery_Distinct(t *testing.T) {
	q := numbersDataset(t).Query()
	q.Distinct(true)

	rows, err := q.Rows()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(3), int64(1), int64(2)}, xs(rows))
}

func TestQuery_JoinFanOut(t *testing.T) {
	q := numbersDataset(t).Query()
	q.Join(func(r Row) ([]Row, error) {
		if r.Get("tag") == "a" {
			return nil, nil
		}
		return []Row{
			NewRow("x", r.Get("x"), "n", int64(1)),
			NewRow("x", r.Get("x"), "n", int64(2)),
		}, nil
	})
	q.Join(func(r Row) ([]Row, error) {
		return []Row{r}, nil
	})

	rows, err := q.Rows()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(3), int64(3), int64(2), int64(2)}, xs(rows))
	assert.Equal(t, int64(1), rows[0].Get("n"))
	assert.Equal(t, int64(2), rows[1].Get("n"))
}

func TestQuery_LimitZero(t *testing.T) {
	q := numbersDataset(t).Query()
	q.FetchFirst(0)

	rows, err := q.Rows()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestQuery_CallableErrorAborts(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		build func(b Builder)
	}{
		{"where", func(b Builder) {
			b.Where(func(Row) (bool, error) { return false, boom })
		}},
		{"group", func(b Builder) {
			b.GroupBy(func(Row) (interface{}, error) { return nil, boom })
		}},
		{"order", func(b Builder) {
			b.OrderBy(func(Row, Row) (int, error) { return 0, boom })
		}},
		{"join", func(b Builder) {
			b.Join(func(Row) ([]Row, error) { return nil, boom })
		}},
		{"select", func(b Builder) {
			b.Select([]Projection{{Alias: "a", Func: func(Row, []Row) (interface{}, error) { return nil, boom }}})
		}},
		{"panic", func(b Builder) {
			b.Where(func(Row) (bool, error) { panic("bad") })
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := numbersDataset(t).Query()
			tt.build(q)
			rows, err := q.Rows()
			assert.Error(t, err)
			assert.Nil(t, rows)
		})
	}
}

func TestQuery_DrainOnce(t *testing.T) {
	q := numbersDataset(t).Query()
	_, err := q.Rows()
	require.NoError(t, err)

	_, err = q.Rows()
	assert.ErrorIs(t, err, ErrDrained)
}

func TestQuery_DoesNotMutateDataset(t *testing.T) {
	ds := numbersDataset(t)
	q := ds.Query()
	q.OrderBy(func(a, b Row) (int, error) {
		return CompareValues(a.Get("x"), b.Get("x")), nil
	})
	_, err := q.Rows()
	require.NoError(t, err)

	rows, err := ds.Query().Rows()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(3), int64(1), int64(2), int64(1)}, xs(rows))
}
