// Package workspace holds one editing session: the CSV source, the query
// being edited, the secondary sort text and the saved queries, all persisted
// in a state.Medium. Results are recomputed from scratch on every call.
package workspace

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vegasq/csvplay/pipeline"
	"github.com/vegasq/csvplay/queryspec"
	"github.com/vegasq/csvplay/script"
	"github.com/vegasq/csvplay/state"
	"github.com/vegasq/csvplay/table"
)

// Result is one run of the current query.
type Result struct {
	Columns []string    `json:"columns"`
	Rows    []table.Row `json:"rows"`
}

// Workspace is safe for concurrent use; calls are serialized.
type Workspace struct {
	mu sync.Mutex

	csv    *state.Cell[string]
	sort   *state.Cell[string]
	query  *queryspec.Editor
	saved  *queryspec.SavedList
	runner *pipeline.Pipeline
	rowCap int
	log    *zap.Logger

	// dataset is memoised on the CSV text it was parsed from.
	dataset     *table.Dataset
	datasetText string
	datasetErr  error
	built       bool
}

type options struct {
	rowCap int
	log    *zap.Logger
}

// Option configures a Workspace.
type Option func(*options)

// WithRowCap sets the dataset size above which results are capped.
func WithRowCap(n int) Option {
	return func(o *options) {
		o.rowCap = n
	}
}

// WithLogger sets the logger shared by the workspace, its cells and its
// pipeline.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// Open loads a workspace from medium. Fragments are compiled with compiler.
func Open(medium state.Medium, compiler script.Compiler, opts ...Option) *Workspace {
	o := options{rowCap: pipeline.DefaultRowCap, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	w := &Workspace{
		csv:    state.Open(medium, state.KeyCSV, "", o.log),
		sort:   state.Open(medium, state.KeySort, "", o.log),
		query:  queryspec.OpenEditor(medium, state.KeyQuery, o.log),
		saved:  queryspec.OpenSavedList(medium, state.KeySavedQueries, o.log),
		runner: pipeline.New(compiler, pipeline.WithRowCap(o.rowCap), pipeline.WithLogger(o.log)),
		rowCap: o.rowCap,
		log:    o.log,
	}

	w.mu.Lock()
	w.refresh()
	w.mu.Unlock()

	return w
}

// CSV returns the source text.
func (w *Workspace) CSV() string {
	return w.csv.Get()
}

// SetCSV replaces the source text and rebuilds the dataset. It returns the
// parse error, if any; an unparsable source behaves as an empty dataset.
func (w *Workspace) SetCSV(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.csv.Set(text)
	w.refresh()
	return w.datasetErr
}

// RowCount is the number of rows in the current dataset.
func (w *Workspace) RowCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.refresh().RowCount()
}

// Query returns a copy of the current query.
func (w *Workspace) Query() queryspec.QuerySpec {
	return w.query.Query()
}

// Edit applies fn to the query editor.
func (w *Workspace) Edit(fn func(e *queryspec.Editor)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fn(w.query)
}

// SetQuery replaces the whole query.
func (w *Workspace) SetQuery(q queryspec.QuerySpec) {
	w.Edit(func(e *queryspec.Editor) { e.SetQuery(q) })
}

// Reset restores the empty query.
func (w *Workspace) Reset() {
	w.Edit(func(e *queryspec.Editor) { e.Reset() })
}

// SortText returns the secondary sort comparator body.
func (w *Workspace) SortText() string {
	return w.sort.Get()
}

// SetSortText replaces the secondary sort comparator body.
func (w *Workspace) SetSortText(text string) {
	w.sort.Set(text)
}

// Saved lists the saved queries, newest first.
func (w *Workspace) Saved() []queryspec.Saved {
	return w.saved.All()
}

// SaveQuery stores the current query under name. An empty name is ignored.
func (w *Workspace) SaveQuery(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.saved.Save(strings.TrimSpace(name), w.query.Query())
}

// ApplySaved makes the saved query at index the current query.
func (w *Workspace) ApplySaved(index int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.saved.Get(index)
	if !ok {
		return false
	}
	w.query.SetQuery(s.Query)
	return true
}

// RemoveSaved deletes the saved query at index.
func (w *Workspace) RemoveSaved(index int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.saved.Remove(index)
}

// Results runs the current query, its having stage and the secondary sort.
// Columns are those of the first result row.
func (w *Workspace) Results() Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	ds := w.refresh()
	rows := w.runner.Execute(ds, w.query.Query(), w.sort.Get())

	res := Result{Columns: []string{}, Rows: rows}
	if len(rows) > 0 {
		res.Columns = rows[0].Columns()
	}
	return res
}

// refresh returns the dataset for the current CSV text, parsing it again
// only when the text changed. Installing a dataset larger than the row cap
// clamps the query limit. Callers hold w.mu.
func (w *Workspace) refresh() *table.Dataset {
	text := w.csv.Get()
	if w.built && text == w.datasetText {
		return w.dataset
	}

	ds, err := table.Parse(text)
	if err != nil {
		w.log.Warn("csv parse failed, using an empty dataset", zap.Error(err))
		ds = table.FromRows(nil)
	}

	w.dataset, w.datasetText, w.datasetErr, w.built = ds, text, err, true

	if w.rowCap > 0 && ds.RowCount() > w.rowCap {
		w.query.UpdateLimit(func(old string) string {
			return ClampLimit(old, w.rowCap)
		})
	}

	return ds
}

// ClampLimit bounds a limit text by ceiling. A numeric limit becomes the
// smaller of the two; anything else becomes ceiling.
func ClampLimit(limit string, ceiling int) string {
	trimmed := strings.TrimSpace(limit)
	if trimmed == "" {
		return strconv.Itoa(ceiling)
	}

	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(n) {
		return strconv.Itoa(ceiling)
	}
	if n > float64(ceiling) {
		n = float64(ceiling)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
