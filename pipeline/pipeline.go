// Package pipeline turns a query spec into results.
//
// Each stage of the query is compiled into a callable and handed to the
// engine's query builder; the having and secondary sort stages run on the
// materialized rows. A stage that fails to compile is dropped on its own and
// never blocks the rest of the query. A failure while the engine evaluates
// rows empties the whole result. Nothing in this package returns an error to
// its caller.
package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vegasq/csvplay/queryspec"
	"github.com/vegasq/csvplay/script"
	"github.com/vegasq/csvplay/table"
)

// DefaultRowCap is the implicit limit applied to datasets larger than it
// when the query sets no limit of its own.
const DefaultRowCap = 1000

// Parameter names visible to stage fragments.
var (
	rowParams        = []string{"row"}
	comparatorParams = []string{"rowA", "rowB"}
)

// Engine is a dataset that can be queried.
type Engine interface {
	RowCount() int
	Query() table.Builder
}

// Pipeline compiles and runs query specs.
type Pipeline struct {
	compiler script.Compiler
	rowCap   int
	log      *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRowCap overrides DefaultRowCap. Zero disables the implicit limit.
func WithRowCap(n int) Option {
	return func(p *Pipeline) {
		p.rowCap = n
	}
}

// WithLogger logs degraded stages at debug level.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a pipeline around a compiler.
func New(compiler script.Compiler, opts ...Option) *Pipeline {
	p := &Pipeline{
		compiler: compiler,
		rowCap:   DefaultRowCap,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs the query and then the secondary sort. Both share one
// compiler session, fresh for this call.
func (p *Pipeline) Execute(engine Engine, spec queryspec.QuerySpec, sortText string) []table.Row {
	c := p.compiler.Fresh()
	return p.sort(c, p.results(c, engine, spec), sortText)
}

// Results runs every stage of spec against engine, including having.
// Fragments run in a compiler session of their own, so state a fragment
// leaves behind never reaches the next call.
func (p *Pipeline) Results(engine Engine, spec queryspec.QuerySpec) []table.Row {
	return p.results(p.compiler.Fresh(), engine, spec)
}

// Having keeps the rows for which the having fragment is truthy. An empty or
// broken fragment, or one that fails on any row, keeps every row.
func (p *Pipeline) Having(rows []table.Row, text string) []table.Row {
	return p.having(p.compiler.Fresh(), rows, text)
}

// Sort orders rows with the comparator fragment. An empty or broken fragment,
// or one that fails during sorting, leaves rows in their original order.
func (p *Pipeline) Sort(rows []table.Row, text string) []table.Row {
	return p.sort(p.compiler.Fresh(), rows, text)
}

func (p *Pipeline) results(c script.Compiler, engine Engine, spec queryspec.QuerySpec) []table.Row {
	q := engine.Query()

	if len(spec.Select) > 0 {
		q.Select(p.projections(c, spec.Select))
	}

	if spec.Where != "" {
		if fn, ok := p.compile(c, "where", rowParams, spec.Where); ok {
			q.Where(predicate(fn))
		}
	}

	if spec.Group != "" {
		if fn, ok := p.compile(c, "group", rowParams, spec.Group); ok {
			q.GroupBy(func(row table.Row) (interface{}, error) {
				return fn.Call(row)
			})
		}
	}

	if spec.Order != "" {
		if fn, ok := p.compile(c, "order", comparatorParams, spec.Order); ok {
			q.OrderBy(comparator(fn))
		}
	}

	for i, text := range spec.Joins {
		if fn, ok := p.compile(c, fmt.Sprintf("join[%d]", i), rowParams, text); ok {
			q.Join(flatMap(fn))
		}
	}

	if limit, ok := ParseLimit(spec.Limit); ok {
		q.FetchFirst(limit)
	} else if p.rowCap > 0 && engine.RowCount() > p.rowCap {
		q.FetchFirst(p.rowCap)
	}

	if spec.IsDistinct {
		q.Distinct(true)
	}

	rows, err := q.Rows()
	if err != nil {
		p.log.Debug("materialization failed, returning no rows", zap.Error(err))
		return []table.Row{}
	}

	return p.having(c, rows, spec.Having)
}

func (p *Pipeline) having(c script.Compiler, rows []table.Row, text string) []table.Row {
	if text == "" {
		return rows
	}
	fn, ok := p.compile(c, "having", rowParams, text)
	if !ok {
		return rows
	}

	kept := make([]table.Row, 0, len(rows))
	for _, row := range rows {
		v, err := fn.Call(row)
		if err != nil {
			p.log.Debug("stage skipped", zap.String("stage", "having"), zap.Error(err))
			return rows
		}
		if script.Truthy(v) {
			kept = append(kept, row)
		}
	}
	return kept
}

func (p *Pipeline) sort(c script.Compiler, rows []table.Row, text string) []table.Row {
	if text == "" {
		return rows
	}
	fn, ok := p.compile(c, "sort", comparatorParams, text)
	if !ok {
		return rows
	}

	sorted, err := table.ApplyOrderBy(rows, comparator(fn))
	if err != nil {
		p.log.Debug("stage skipped", zap.String("stage", "sort"), zap.Error(err))
		return rows
	}
	return sorted
}

// ParseLimit reads a limit text. Only non-negative integers count; anything
// else, including the empty string, means no explicit limit.
func ParseLimit(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (p *Pipeline) compile(c script.Compiler, stage string, params []string, body string) (script.Func, bool) {
	fn, err := c.CompileBody(params, body)
	if err != nil {
		p.log.Debug("stage skipped", zap.String("stage", stage), zap.Error(err))
		return nil, false
	}
	return fn, true
}

// projections resolves each select entry to a column reference or a
// compiled function. An entry that fails to compile falls back to its
// literal definition as a column name.
func (p *Pipeline) projections(c script.Compiler, sel queryspec.Selection) []table.Projection {
	out := make([]table.Projection, 0, len(sel))
	for _, item := range sel {
		proj := table.Projection{Alias: item.Alias, Column: item.Definition}

		if fn, ok := p.compileSelect(c, item); ok {
			proj.Func = func(row table.Row, group []table.Row) (interface{}, error) {
				if group == nil {
					return fn.Call(row)
				}
				return fn.Call(row, group)
			}
		}

		out = append(out, proj)
	}
	return out
}

func (p *Pipeline) compileSelect(c script.Compiler, item queryspec.SelectItem) (script.Func, bool) {
	var (
		fn  script.Func
		err error
	)

	switch item.Kind {
	case queryspec.KindColumn:
		return nil, false
	case queryspec.KindExpr:
		if strings.Contains(item.Definition, "=>") {
			fn, err = script.CompileArrow(c, item.Definition)
		} else {
			fn, err = c.CompileExpr(rowParams, item.Definition)
		}
	default:
		if !strings.Contains(item.Definition, "=>") {
			return nil, false
		}
		fn, err = script.CompileArrow(c, item.Definition)
	}

	if err != nil {
		p.log.Debug("select entry kept as column", zap.String("alias", item.Alias), zap.Error(err))
		return nil, false
	}
	return fn, true
}

func predicate(fn script.Func) table.RowPredicate {
	return func(row table.Row) (bool, error) {
		v, err := fn.Call(row)
		if err != nil {
			return false, err
		}
		return script.Truthy(v), nil
	}
}

func comparator(fn script.Func) table.RowComparator {
	return func(a, b table.Row) (int, error) {
		v, err := fn.Call(a, b)
		if err != nil {
			return 0, err
		}
		return script.Sign(v), nil
	}
}

// flatMap adapts a join fragment. The fragment may return an array of rows,
// a single row, or nothing.
func flatMap(fn script.Func) table.RowFlatMap {
	return func(row table.Row) ([]table.Row, error) {
		v, err := fn.Call(row)
		if err != nil {
			return nil, err
		}

		switch val := v.(type) {
		case nil:
			return nil, nil
		case table.Row:
			return []table.Row{val}, nil
		case []table.Row:
			return val, nil
		case []interface{}:
			rows := make([]table.Row, 0, len(val))
			for i, item := range val {
				r, ok := item.(table.Row)
				if !ok {
					return nil, fmt.Errorf("join result item %d is %T, not a row", i, item)
				}
				rows = append(rows, r)
			}
			return rows, nil
		default:
			return nil, fmt.Errorf("join result is %T, not a list of rows", v)
		}
	}
}
