// Package script compiles user-authored code fragments into callable
// functions.
//
// A fragment is the body of a function whose positional parameters are
// declared separately. Compilation either yields a Func or a *CompileError;
// nothing panics past this package. Runtime failures of a compiled Func are
// reported as *EvalError from Call.
//
// Two dialects are available:
//   - "js": JavaScript function bodies, evaluated by an embedded interpreter
//     with no host access. Bodies use explicit return statements.
//   - "cel": Common Expression Language expressions. A leading "return" and
//     trailing ";" are tolerated so that the same stage text shape works.
//
// Example usage:
//
//	c, _ := script.New("js")
//	pred, err := c.CompileBody([]string{"row"}, "return row.x > 1;")
//	if err != nil {
//	    // stage is inert
//	}
//	ok, err := pred.Call(row)
package script

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	// DialectJS selects the embedded JavaScript interpreter.
	DialectJS = "js"
	// DialectCEL selects the Common Expression Language.
	DialectCEL = "cel"
)

// ErrTimeout is reported when a call exceeds the configured time bound.
var ErrTimeout = errors.New("evaluation timed out")

// Func is a compiled fragment.
type Func interface {
	// Call invokes the function. Extra arguments beyond the declared
	// parameters are ignored; missing ones are null.
	Call(args ...interface{}) (interface{}, error)
}

// Compiler turns fragments into functions.
type Compiler interface {
	// CompileBody compiles a function body that returns its result
	// explicitly.
	CompileBody(params []string, body string) (Func, error)
	// CompileExpr compiles a single expression whose value is the result.
	CompileExpr(params []string, expr string) (Func, error)
	// Dialect names the language accepted.
	Dialect() string
	// Fresh returns a compiler whose functions share no state with the
	// functions of the receiver.
	Fresh() Compiler
}

// CompileError reports a fragment that is not valid code for the declared
// parameters.
type CompileError struct {
	Dialect string
	Source  string
	Err     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s compile error: %v", e.Dialect, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// EvalError reports a failure while a compiled function was running.
type EvalError struct {
	Err error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation error: %v", e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

type options struct {
	timeout time.Duration
}

// Option configures a compiler.
type Option func(*options)

// WithTimeout bounds every compile and call. Zero means unbounded.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// New creates a compiler for the named dialect. An empty name selects "js".
func New(dialect string, opts ...Option) (Compiler, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "", DialectJS:
		return NewJS(o.timeout), nil
	case DialectCEL:
		return NewCEL(o.timeout), nil
	default:
		return nil, fmt.Errorf("unknown script dialect: %s", dialect)
	}
}

// SplitArrow splits an arrow-style definition "(a, b) => expr" at the first
// "=>". One wrapping pair of parentheses is stripped from the parameter list.
// ok is false when def contains no arrow.
func SplitArrow(def string) (params []string, body string, ok bool) {
	idx := strings.Index(def, "=>")
	if idx < 0 {
		return nil, "", false
	}

	args := strings.TrimSpace(def[:idx])
	args = strings.TrimPrefix(args, "(")
	args = strings.TrimSuffix(args, ")")

	for _, p := range strings.Split(args, ",") {
		if p = strings.TrimSpace(p); p != "" {
			params = append(params, p)
		}
	}
	return params, strings.TrimSpace(def[idx+2:]), true
}

// CompileArrow compiles an arrow-style definition. A definition without "=>"
// is a compile error; callers decide whether to treat it as a column name.
func CompileArrow(c Compiler, def string) (Func, error) {
	params, body, ok := SplitArrow(def)
	if !ok {
		return nil, &CompileError{Dialect: c.Dialect(), Source: def, Err: errors.New("not an arrow definition")}
	}
	return c.CompileExpr(params, body)
}

// Truthy reports whether a value counts as true, following JavaScript rules:
// nil, false, zero, NaN and the empty string are false.
func Truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0 && val == val
	case float32:
		return val != 0 && val == val
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return cast.ToFloat64(val) != 0
	default:
		return true
	}
}

// Sign converts a comparator result to -1, 0 or 1. Values that are not
// numeric compare as equal.
func Sign(v interface{}) int {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	switch {
	case f < 0:
		return -1
	case f > 0:
		return 1
	default:
		return 0
	}
}
