package frame

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// Expr is an unevaluated per-event expression. It is bound to the columns
// of a node when it is used in Define, Redefine or Filter.
type Expr interface {
	String() string
	compile(n *Node) (compiled, error)
}

type compiled struct {
	kind   Kind
	inputs []string
	eval   func(a Args) (any, error)
}

// Code returns an expression written in the expr language, e.g.
// "nmuonpass == 1 && ncleantaupass == 1" or "puWeight[0] * unitGenWeight".
// Identifiers are resolved against the columns of the node it is applied to.
func Code(src string) Expr {
	return codeExpr{src: src}
}

// CodeAs is like Code but fixes the result kind instead of inferring it.
func CodeAs(k Kind, src string) Expr {
	return codeExpr{src: src, kind: k}
}

type codeExpr struct {
	src  string
	kind Kind
}

func (c codeExpr) String() string { return c.src }

func (c codeExpr) compile(n *Node) (compiled, error) {
	tree, err := parser.Parse(c.src)
	if err != nil {
		return compiled{}, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, c.src, err)
	}

	v := &identifiers{seen: make(map[string]bool)}
	ast.Walk(&tree.Node, v)

	env := make(map[string]any)
	var inputs []string
	for _, name := range v.names {
		ref, ok := n.cols[name]
		if !ok {
			continue
		}
		env[name] = ref.kind.zero()
		inputs = append(inputs, name)
	}

	prog, err := expr.Compile(c.src, expr.Env(env))
	if err != nil {
		return compiled{}, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, c.src, err)
	}

	kind := c.kind
	if kind == Invalid {
		kind = kindOfType(prog.Node().Type())
	}
	if kind == Invalid {
		return compiled{}, fmt.Errorf("%w: %q: cannot infer result type, use CodeAs", ErrInvalidExpression, c.src)
	}

	return compiled{
		kind:   kind,
		inputs: inputs,
		eval:   runProgram(prog, inputs, kind),
	}, nil
}

func runProgram(prog *vm.Program, inputs []string, kind Kind) func(Args) (any, error) {
	return func(a Args) (any, error) {
		env := make(map[string]any, len(inputs))
		for i, name := range inputs {
			env[name] = a[i]
		}
		out, err := expr.Run(prog, env)
		if err != nil {
			return nil, err
		}
		return convert(out, kind)
	}
}

type identifiers struct {
	names []string
	seen  map[string]bool
}

func (v *identifiers) Visit(node *ast.Node) {
	id, ok := (*node).(*ast.IdentifierNode)
	if !ok || v.seen[id.Value] {
		return
	}
	v.seen[id.Value] = true
	v.names = append(v.names, id.Value)
}

// Func returns an expression computed by a Go function over the named input
// columns. fn receives the input values in the order given.
func Func(k Kind, fn func(a Args) (any, error), inputs ...string) Expr {
	return funcExpr{kind: k, fn: fn, inputs: inputs}
}

type funcExpr struct {
	kind   Kind
	fn     func(a Args) (any, error)
	inputs []string
}

func (f funcExpr) String() string {
	return "func(" + strings.Join(f.inputs, ", ") + ")"
}

func (f funcExpr) compile(n *Node) (compiled, error) {
	if f.kind == Invalid {
		return compiled{}, fmt.Errorf("%w: %s: result kind not set", ErrInvalidExpression, f)
	}
	for _, in := range f.inputs {
		if !n.Has(in) {
			return compiled{}, fmt.Errorf("%w %q in %s", ErrUnknownColumn, in, f)
		}
	}
	kind := f.kind
	fn := f.fn
	return compiled{
		kind:   kind,
		inputs: f.inputs,
		eval: func(a Args) (any, error) {
			out, err := fn(a)
			if err != nil {
				return nil, err
			}
			return convert(out, kind)
		},
	}, nil
}

// Col returns an expression copying an existing column.
func Col(name string) Expr {
	return derived{name: name, op: "column", args: []string{name}, build: func(ks []Kind) (Kind, func(Args) (any, error), error) {
		return ks[0], func(a Args) (any, error) { return a[0], nil }, nil
	}}
}

// Const returns an expression with the same value for every event.
func Const(v any) Expr {
	return derived{name: fmt.Sprint(v), op: "const", build: func([]Kind) (Kind, func(Args) (any, error), error) {
		k := KindOf(v)
		if k == Invalid {
			if f, ok := toFloat(v); ok {
				v, k = f, Float
			} else {
				return Invalid, nil, fmt.Errorf("%w: constant of type %T", ErrKindMismatch, v)
			}
		}
		return k, func(Args) (any, error) { return v, nil }, nil
	}}
}

// Mask selects the objects of an array column for which mask is true
// (or non-zero for an integer mask).
func Mask(col, mask string) Expr {
	return derived{name: col + "[" + mask + "]", op: "mask", args: []string{col, mask}, build: func(ks []Kind) (Kind, func(Args) (any, error), error) {
		if !ks[0].IsArray() {
			return Invalid, nil, fmt.Errorf("%w: %s is %v, not an array", ErrKindMismatch, col, ks[0])
		}
		if ks[1] != Bools && ks[1] != Ints {
			return Invalid, nil, fmt.Errorf("%w: mask %s is %v", ErrKindMismatch, mask, ks[1])
		}
		return ks[0], func(a Args) (any, error) {
			keep := a.Bools(1)
			switch v := a[0].(type) {
			case []float64:
				return maskSlice(v, keep)
			case []int64:
				return maskSlice(v, keep)
			case []bool:
				return maskSlice(v, keep)
			case [][]float64:
				return maskSlice(v, keep)
			}
			return nil, fmt.Errorf("%w: %T", ErrKindMismatch, a[0])
		}, nil
	}}
}

func maskSlice[T any](v []T, keep []bool) ([]T, error) {
	if len(v) != len(keep) {
		return nil, fmt.Errorf("mask length %d does not match column length %d", len(keep), len(v))
	}
	out := make([]T, 0, len(v))
	for i, x := range v {
		if keep[i] {
			out = append(out, x)
		}
	}
	return out, nil
}

// Size returns the number of objects in an array column.
func Size(col string) Expr {
	return derived{name: "size(" + col + ")", op: "size", args: []string{col}, build: func(ks []Kind) (Kind, func(Args) (any, error), error) {
		if !ks[0].IsArray() {
			return Invalid, nil, fmt.Errorf("%w: %s is not an array", ErrKindMismatch, col)
		}
		return Int, func(a Args) (any, error) { return int64(a.Len(0)), nil }, nil
	}}
}

// CountTrue returns the number of true entries of a boolean array column.
func CountTrue(col string) Expr {
	return derived{name: "count(" + col + ")", op: "count", args: []string{col}, build: func(ks []Kind) (Kind, func(Args) (any, error), error) {
		if ks[0] != Bools && ks[0] != Ints {
			return Invalid, nil, fmt.Errorf("%w: %s is %v", ErrKindMismatch, col, ks[0])
		}
		return Int, func(a Args) (any, error) {
			var n int64
			for _, b := range a.Bools(0) {
				if b {
					n++
				}
			}
			return n, nil
		}, nil
	}}
}

// Sum returns the sum over the objects of a numeric array column.
func Sum(col string) Expr {
	return derived{name: "sum(" + col + ")", op: "sum", args: []string{col}, build: func(ks []Kind) (Kind, func(Args) (any, error), error) {
		switch ks[0] {
		case Ints, Bools:
			return Int, func(a Args) (any, error) {
				var s int64
				for _, x := range a.Ints(0) {
					s += x
				}
				return s, nil
			}, nil
		case Floats:
			return Float, func(a Args) (any, error) {
				var s float64
				for _, x := range a.Floats(0) {
					s += x
				}
				return s, nil
			}, nil
		}
		return Invalid, nil, fmt.Errorf("%w: cannot sum %s of kind %v", ErrKindMismatch, col, ks[0])
	}}
}

type derived struct {
	name  string
	op    string
	args  []string
	build func(ks []Kind) (Kind, func(Args) (any, error), error)
}

func (d derived) String() string { return d.name }

func (d derived) compile(n *Node) (compiled, error) {
	ks := make([]Kind, len(d.args))
	for i, in := range d.args {
		k, ok := n.Kind(in)
		if !ok {
			return compiled{}, fmt.Errorf("%w %q in %s", ErrUnknownColumn, in, d.op)
		}
		ks[i] = k
	}
	kind, eval, err := d.build(ks)
	if err != nil {
		return compiled{}, err
	}
	return compiled{kind: kind, inputs: d.args, eval: eval}, nil
}
