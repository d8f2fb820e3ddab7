package script

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/vegasq/csvplay/table"
)

// CELCompiler compiles Common Expression Language fragments. Every declared
// parameter is a dynamically typed variable, and compare(a, b) orders two
// values like table.CompareValues.
type CELCompiler struct {
	timeout time.Duration
}

// NewCEL creates a CEL compiler. A positive timeout bounds each call.
func NewCEL(timeout time.Duration) *CELCompiler {
	return &CELCompiler{timeout: timeout}
}

// Dialect returns "cel".
func (c *CELCompiler) Dialect() string { return DialectCEL }

// Fresh returns c. CEL programs hold no state between evaluations.
func (c *CELCompiler) Fresh() Compiler { return c }

// CompileBody accepts "return expr;" as well as a bare expression.
func (c *CELCompiler) CompileBody(params []string, body string) (Func, error) {
	expr := strings.TrimSpace(body)
	if rest := strings.TrimPrefix(expr, "return"); rest != expr && (rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n' || rest[0] == '(') {
		expr = rest
	}
	expr = strings.TrimSuffix(strings.TrimSpace(expr), ";")
	return c.CompileExpr(params, expr)
}

// CompileExpr compiles a CEL expression.
func (c *CELCompiler) CompileExpr(params []string, expr string) (fn Func, err error) {
	defer func() {
		if r := recover(); r != nil {
			fn = nil
			err = &CompileError{Dialect: DialectCEL, Source: expr, Err: fmt.Errorf("%v", r)}
		}
	}()

	decls := []cel.EnvOption{cel.CrossTypeNumericComparisons(true), compareFunction}
	for _, p := range params {
		decls = append(decls, cel.Variable(p, cel.DynType))
	}

	env, err := cel.NewEnv(decls...)
	if err != nil {
		return nil, &CompileError{Dialect: DialectCEL, Source: expr, Err: err}
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, &CompileError{Dialect: DialectCEL, Source: expr, Err: issues.Err()}
	}

	prg, err := env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, &CompileError{Dialect: DialectCEL, Source: expr, Err: fmt.Errorf("program construction error: %w", err)}
	}

	return &celFunc{params: params, prg: prg, timeout: c.timeout}, nil
}

var compareFunction = cel.Function("compare",
	cel.Overload("compare_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.IntType,
		cel.BinaryBinding(func(a, b ref.Val) ref.Val {
			return types.Int(table.CompareValues(fromCEL(a), fromCEL(b)))
		}),
	),
)

type celFunc struct {
	params  []string
	prg     cel.Program
	timeout time.Duration
}

func (f *celFunc) Call(args ...interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &EvalError{Err: fmt.Errorf("%v", r)}
		}
	}()

	vars := make(map[string]interface{}, len(f.params))
	for i, p := range f.params {
		if i < len(args) {
			vars[p] = toCEL(args[i])
		} else {
			vars[p] = nil
		}
	}

	ctx := context.Background()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	out, _, err := f.prg.ContextEval(ctx, vars)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &EvalError{Err: ErrTimeout}
		}
		return nil, &EvalError{Err: err}
	}

	return fromCEL(out), nil
}

func toCEL(v interface{}) interface{} {
	switch val := v.(type) {
	case table.Row:
		return val.Map()
	case []table.Row:
		items := make([]interface{}, len(val))
		for i, row := range val {
			items[i] = row.Map()
		}
		return items
	default:
		return v
	}
}

// fromCEL converts a CEL value to Go. Maps become rows with keys sorted,
// since CEL maps carry no order.
func fromCEL(v ref.Val) interface{} {
	if v == nil || v.Type() == types.NullType {
		return nil
	}

	switch val := v.(type) {
	case traits.Mapper:
		type entry struct {
			key string
			val ref.Val
		}
		var entries []entry
		it := val.Iterator()
		for it.HasNext() == types.True {
			k := it.Next()
			entries = append(entries, entry{key: fmt.Sprint(k.Value()), val: val.Get(k)})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

		row := table.Row{}
		for _, e := range entries {
			row.Set(e.key, fromCEL(e.val))
		}
		return row
	case traits.Lister:
		n, _ := val.Size().(types.Int)
		items := make([]interface{}, int(n))
		for i := range items {
			items[i] = fromCEL(val.Get(types.Int(i)))
		}
		return items
	default:
		return v.Value()
	}
}
