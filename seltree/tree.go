// Package seltree builds the branching selection tree of an analysis.
//
// Every node of the tree is a cumulative selection: the events that passed
// all cuts from the root to the node, with every column defined along the
// way. Cuts, variables and histograms are registered in a Registry and then
// booked once onto a Tree; the leaves of the booked tree are the output
// units of the analysis.
package seltree

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/decibelcooper/nanoaodframe/frame"
)

// Node is one node of the selection tree.
type Node struct {
	pos      string
	view     *frame.Node
	parent   *Node
	children []*Node
	hists    []*frame.Hist1D
}

// Position returns the node's address in the tree.
func (n *Node) Position() string { return n.pos }

// View returns the frame node holding the node's events and columns.
func (n *Node) View() *frame.Node { return n.view }

// Parent returns the parent node, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's children in the order they were created.
func (n *Node) Children() []*Node { return n.children }

// Histograms returns the histogram instances booked at this node.
func (n *Node) Histograms() []*frame.Hist1D { return n.hists }

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// Tree is the selection tree. It is built by a single goroutine; once
// frozen only traversal is allowed.
type Tree struct {
	root   *Node
	index  map[string]*Node
	frozen bool
	broken bool // a Book call failed part way
	log    *slog.Logger
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the logger used for booking warnings.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) {
		t.log = l
	}
}

// New creates a tree whose root wraps the given view.
func New(view *frame.Node, opts ...Option) *Tree {
	root := &Node{pos: Root, view: view}
	t := &Tree{
		root:  root,
		index: map[string]*Node{Root: root},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Frozen reports whether booking has completed.
func (t *Tree) Frozen() bool { return t.frozen }

// Freeze ends the building phase.
func (t *Tree) Freeze() { t.frozen = true }

func (t *Tree) mutable() error {
	switch {
	case t.frozen:
		return ErrFrozen
	case t.broken:
		return ErrBroken
	}
	return nil
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.index) }

// Node returns the node at exactly pos.
func (t *Tree) Node(pos string) (*Node, error) {
	n, ok := t.index[pos]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, pos)
	}
	return n, nil
}

// AddChild creates the next child of the node at parentPos, keeping the
// events of the parent for which cut is true.
func (t *Tree) AddChild(parentPos string, cut frame.Expr) (*Node, error) {
	if err := t.mutable(); err != nil {
		return nil, err
	}
	parent, err := t.Node(parentPos)
	if err != nil {
		return nil, err
	}
	pos, err := childPosition(parentPos, len(parent.children))
	if err != nil {
		return nil, err
	}
	if _, dup := t.index[pos]; dup {
		return nil, fmt.Errorf("%w: %q", ErrDuplicatePosition, pos)
	}

	view, err := parent.view.Filter("cut@"+pos, cut)
	if err != nil {
		return nil, err
	}

	child := &Node{pos: pos, view: view, parent: parent}
	parent.children = append(parent.children, child)
	t.index[pos] = child
	return child, nil
}

// define replaces the view of n by one with an extra column. Only legal
// while n has no children, which booking guarantees.
func (t *Tree) define(n *Node, name string, e frame.Expr) error {
	if err := t.mutable(); err != nil {
		return err
	}
	if !n.IsLeaf() {
		return fmt.Errorf("define %q: node %q already has children", name, n.pos)
	}
	view, err := n.view.Define(name, e)
	if err != nil {
		return err
	}
	n.view = view
	return nil
}

func (t *Tree) histogram(n *Node, m frame.HistModel, value, weight string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	h, err := n.view.Histo1D(m, value, weight)
	if err != nil {
		return err
	}
	n.hists = append(n.hists, h)
	return nil
}

// Walk visits every node depth first, parents before children and
// children in creation order.
func (t *Tree) Walk(fn func(n *Node) error) error {
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if err := fn(n); err != nil {
			return err
		}
		for _, c := range n.children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(t.root)
}

// Leaves returns every node without children in depth-first order. A tree
// without cuts has the root as its only leaf.
func (t *Tree) Leaves() []*Node {
	var leaves []*Node
	_ = t.Walk(func(n *Node) error {
		if n.IsLeaf() {
			leaves = append(leaves, n)
		}
		return nil
	})
	return leaves
}

// Lineage returns the nodes from the root down to n.
func Lineage(n *Node) []*Node {
	var chain []*Node
	for ; n != nil; n = n.parent {
		chain = append(chain, n)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Print writes an indented listing of the tree.
func (t *Tree) Print(w io.Writer) error {
	return t.Walk(func(n *Node) error {
		name := n.pos
		if name == Root {
			name = "(root)"
		}
		_, err := fmt.Fprintf(w, "%s%s  cols=%d hists=%d\n",
			strings.Repeat("  ", Depth(n.pos)), name, len(n.view.ColumnNames()), len(n.hists))
		return err
	})
}
