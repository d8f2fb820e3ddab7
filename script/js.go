package script

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/vegasq/csvplay/table"
)

// JSCompiler compiles JavaScript function bodies with the language's own
// Function constructor, so a fragment means exactly what it would mean in
// new Function(params..., body).
//
// The runtime's only host binding is compare(a, b), the three-way ordering
// of table.CompareValues. A JSCompiler and every Func it produced share one
// runtime, globals included, and must be used from one goroutine at a time.
// Fresh starts over with a new runtime.
type JSCompiler struct {
	vm      *goja.Runtime
	ctor    goja.Value
	timeout time.Duration
}

// NewJS creates a JavaScript compiler. A positive timeout bounds each compile
// and each call.
func NewJS(timeout time.Duration) *JSCompiler {
	vm := goja.New()
	_ = vm.Set("compare", func(a, b goja.Value) int {
		return table.CompareValues(fromJS(a), fromJS(b))
	})
	return &JSCompiler{
		vm:      vm,
		ctor:    vm.Get("Function"),
		timeout: timeout,
	}
}

// Dialect returns "js".
func (c *JSCompiler) Dialect() string { return DialectJS }

// Fresh returns a compiler on a new runtime with the same timeout.
func (c *JSCompiler) Fresh() Compiler { return NewJS(c.timeout) }

// CompileExpr compiles expr as "return expr".
func (c *JSCompiler) CompileExpr(params []string, expr string) (Func, error) {
	return c.CompileBody(params, "return "+expr)
}

// CompileBody compiles a function body.
func (c *JSCompiler) CompileBody(params []string, body string) (fn Func, err error) {
	defer func() {
		if r := recover(); r != nil {
			fn = nil
			err = &CompileError{Dialect: DialectJS, Source: body, Err: fmt.Errorf("%v", r)}
		}
	}()

	args := make([]goja.Value, 0, len(params)+1)
	for _, p := range params {
		args = append(args, c.vm.ToValue(p))
	}
	args = append(args, c.vm.ToValue(body))

	var obj *goja.Object
	err = c.guard(func() error {
		var newErr error
		obj, newErr = c.vm.New(c.ctor, args...)
		return newErr
	})
	if err != nil {
		return nil, &CompileError{Dialect: DialectJS, Source: body, Err: err}
	}

	callable, ok := goja.AssertFunction(obj)
	if !ok {
		return nil, &CompileError{Dialect: DialectJS, Source: body, Err: fmt.Errorf("not a function")}
	}

	return &jsFunc{compiler: c, fn: callable}, nil
}

// guard runs f with the interrupt timer armed.
func (c *JSCompiler) guard(f func() error) error {
	if c.timeout <= 0 {
		return f()
	}

	var mu sync.Mutex
	done := false
	timer := time.AfterFunc(c.timeout, func() {
		mu.Lock()
		defer mu.Unlock()
		if !done {
			c.vm.Interrupt(ErrTimeout)
		}
	})
	defer func() {
		mu.Lock()
		done = true
		mu.Unlock()
		timer.Stop()
		c.vm.ClearInterrupt()
	}()

	return f()
}

type jsFunc struct {
	compiler *JSCompiler
	fn       goja.Callable
}

func (f *jsFunc) Call(args ...interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &EvalError{Err: fmt.Errorf("%v", r)}
		}
	}()

	vm := f.compiler.vm
	vals := make([]goja.Value, len(args))
	for i, arg := range args {
		vals[i] = toJS(vm, arg)
	}

	var out goja.Value
	err = f.compiler.guard(func() error {
		var callErr error
		out, callErr = f.fn(goja.Undefined(), vals...)
		return callErr
	})
	if err != nil {
		return nil, &EvalError{Err: err}
	}

	return fromJS(out), nil
}

// toJS converts a Go value into the runtime. Rows become plain objects with
// their column order intact.
func toJS(vm *goja.Runtime, v interface{}) goja.Value {
	switch val := v.(type) {
	case nil:
		return goja.Null()
	case goja.Value:
		return val
	case table.Row:
		obj := vm.NewObject()
		for _, col := range val.Columns() {
			_ = obj.Set(col, toJS(vm, val.Get(col)))
		}
		return obj
	case []table.Row:
		items := make([]interface{}, len(val))
		for i, row := range val {
			items[i] = toJS(vm, row)
		}
		return vm.NewArray(items...)
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = toJS(vm, item)
		}
		return vm.NewArray(items...)
	default:
		return vm.ToValue(val)
	}
}

// fromJS exports a runtime value. Objects become rows in property order,
// arrays become []interface{}, null and undefined become nil.
func fromJS(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}

	switch obj.ClassName() {
	case "Array":
		n := int(obj.Get("length").ToInteger())
		items := make([]interface{}, n)
		for i := 0; i < n; i++ {
			items[i] = fromJS(obj.Get(fmt.Sprint(i)))
		}
		return items
	case "Object":
		row := table.Row{}
		for _, key := range obj.Keys() {
			row.Set(key, fromJS(obj.Get(key)))
		}
		return row
	default:
		return v.Export()
	}
}
