package frame

import (
	"fmt"
	"slices"
)

type opKind uint8

const (
	opRoot opKind = iota
	opDefine
	opFilter
)

// Node is an unevaluated view of the events surviving every filter between
// the root and the node, with every column defined along that path.
type Node struct {
	f      *Frame
	id     int
	parent *Node
	op     opKind
	label  string
	expr   Expr
	code   compiled
	args   []*colRef
	cols   map[string]*colRef
	names  []string
}

// colRef locates the value of a column: a source slot or a defining node.
type colRef struct {
	name string
	kind Kind
	src  int
	def  *Node
}

// Frame returns the frame the node belongs to.
func (n *Node) Frame() *Frame { return n.f }

// Parent returns the node this one was derived from, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Label returns the column name of a define node or the label of a filter.
func (n *Node) Label() string { return n.label }

// Has reports whether the column is visible at the node.
func (n *Node) Has(name string) bool {
	_, ok := n.cols[name]
	return ok
}

// Kind returns the kind of a visible column.
func (n *Node) Kind(name string) (Kind, bool) {
	ref, ok := n.cols[name]
	if !ok {
		return Invalid, false
	}
	return ref.kind, true
}

// ColumnNames returns the visible columns: source columns first, then
// definitions in the order they were made.
func (n *Node) ColumnNames() []string {
	return slices.Clone(n.names)
}

// Columns describes the named columns, or every visible column when no
// name is given.
func (n *Node) Columns(names ...string) ([]Column, error) {
	if len(names) == 0 {
		names = n.names
	}
	out := make([]Column, 0, len(names))
	for _, name := range names {
		ref, ok := n.cols[name]
		if !ok {
			return nil, fmt.Errorf("frame: %w %q", ErrUnknownColumn, name)
		}
		out = append(out, Column{Name: name, Kind: ref.kind})
	}
	return out, nil
}

// Define returns a node with a new column computed by e.
func (n *Node) Define(name string, e Expr) (*Node, error) {
	if name == "" {
		return nil, fmt.Errorf("frame: define: empty column name")
	}
	if n.Has(name) {
		return nil, fmt.Errorf("frame: define %q: %w", name, ErrColumnExists)
	}
	return n.define(name, e)
}

// Redefine returns a node where an existing column is replaced by e. The
// expression may read the previous value of the column.
func (n *Node) Redefine(name string, e Expr) (*Node, error) {
	if !n.Has(name) {
		return nil, fmt.Errorf("frame: redefine %q: %w", name, ErrUnknownColumn)
	}
	return n.define(name, e)
}

func (n *Node) define(name string, e Expr) (*Node, error) {
	c, err := e.compile(n)
	if err != nil {
		return nil, fmt.Errorf("frame: define %q: %w", name, err)
	}
	child := n.derive(opDefine, name, e, c)

	child.cols = make(map[string]*colRef, len(n.cols)+1)
	for k, v := range n.cols {
		child.cols[k] = v
	}
	if _, ok := n.cols[name]; !ok {
		child.names = append(slices.Clone(n.names), name)
	} else {
		child.names = n.names
	}
	child.cols[name] = &colRef{name: name, kind: c.kind, src: -1, def: child}
	return child, nil
}

// Filter returns a node keeping only the events for which e is true. label
// names the filter in evaluation errors.
func (n *Node) Filter(label string, e Expr) (*Node, error) {
	c, err := e.compile(n)
	if err != nil {
		return nil, fmt.Errorf("frame: filter %s: %w", label, err)
	}
	if c.kind != Bool {
		return nil, fmt.Errorf("frame: filter %s: %w: %q is %v, not bool", label, ErrInvalidExpression, e, c.kind)
	}
	child := n.derive(opFilter, label, e, c)
	child.cols = n.cols
	child.names = n.names
	return child, nil
}

func (n *Node) derive(op opKind, label string, e Expr, c compiled) *Node {
	child := &Node{
		f:      n.f,
		parent: n,
		op:     op,
		label:  label,
		expr:   e,
		code:   c,
		args:   make([]*colRef, len(c.inputs)),
	}
	for i, in := range c.inputs {
		child.args[i] = n.cols[in]
	}
	n.f.add(child)
	return child
}

func (n *Node) column(name string) (*colRef, error) {
	ref, ok := n.cols[name]
	if !ok {
		return nil, fmt.Errorf("frame: %w %q", ErrUnknownColumn, name)
	}
	return ref, nil
}
