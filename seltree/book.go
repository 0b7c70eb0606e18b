package seltree

import (
	"fmt"
)

// Variables are defined once, at the node created at their activation
// position, and inherited below it. Histograms are booked again at every
// node under their activation position so each cut stage gets its own copy.
const (
	variableActivation  = exactMatch
	histogramActivation = prefixMatch
)

// Book applies the registry to the tree and freezes it:
//
//  1. root variables are defined at the root, in order;
//  2. root histograms are booked at the root;
//  3. each cut creates its child, then every variable activated at exactly
//     the child position is defined on it and every histogram whose
//     activation position prefixes the child position is booked on it.
//
// Any failure aborts booking and leaves the tree half built: it is not
// frozen, and every later mutation, Book included, returns ErrBroken.
func (t *Tree) Book(r *Registry) (err error) {
	if err := t.mutable(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			t.broken = true
		}
	}()

	usedVars := make([]bool, len(r.vars))
	usedHists := make([]bool, len(r.hists))

	if err := t.activate(t.root, r, usedVars, usedHists); err != nil {
		return err
	}
	for _, c := range r.cuts {
		child, err := t.AddChild(c.Parent, c.Expr)
		if err != nil {
			return &ConfigError{Op: "add cut", Position: c.Parent, Name: c.Expr.String(), Err: err}
		}
		if err := t.activate(child, r, usedVars, usedHists); err != nil {
			return err
		}
	}

	for i, v := range r.vars {
		if !usedVars[i] {
			t.log.Warn("variable never activated", "name", v.Name, "position", v.Position)
		}
	}
	for i, h := range r.hists {
		if !usedHists[i] {
			t.log.Warn("histogram never booked", "name", h.Model.Name, "position", h.Position)
		}
	}

	t.frozen = true
	t.log.Info("selection tree booked", "nodes", len(t.index), "leaves", len(t.Leaves()))
	return nil
}

// activate defines the variables and books the histograms that become
// active at the newly created node n.
func (t *Tree) activate(n *Node, r *Registry, usedVars, usedHists []bool) error {
	for i, v := range r.vars {
		if !variableActivation.matches(v.Position, n.pos) {
			continue
		}
		usedVars[i] = true
		if err := t.define(n, v.Name, v.Expr); err != nil {
			return &ConfigError{Op: "define", Position: n.pos, Name: v.Name, Err: err}
		}
	}

	for i, h := range r.hists {
		if !histogramActivation.matches(h.Position, n.pos) {
			continue
		}
		usedHists[i] = true
		m := h.Model
		m.Name = HistName(m.Name, n.pos)
		if m.Title != "" {
			m.Title = HistName(m.Title, n.pos)
		}
		if err := t.histogram(n, m, h.Value, h.Weight); err != nil {
			return &ConfigError{Op: "book histogram", Position: n.pos, Name: m.Name, Err: err}
		}
	}
	return nil
}

// String describes the cut for logs.
func (c CutSpec) String() string {
	return fmt.Sprintf("%s @ %q", c.Expr, c.Parent)
}
