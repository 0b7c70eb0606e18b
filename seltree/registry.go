package seltree

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/decibelcooper/nanoaodframe/frame"
)

// VariableSpec is a derived column activated at one position.
type VariableSpec struct {
	Name     string
	Expr     frame.Expr
	Position string
}

// HistogramSpec is a histogram booked at every node below Position.
type HistogramSpec struct {
	Model    frame.HistModel
	Value    string
	Weight   string
	Position string
}

// CutSpec creates one child of Parent.
type CutSpec struct {
	Expr   frame.Expr
	Parent string
}

// StorePattern selects output columns by regular expression. A pattern
// must match a whole column name.
type StorePattern struct {
	Pattern string
	re      *regexp.Regexp
}

// Match reports whether the pattern matches the whole column name.
func (p StorePattern) Match(name string) bool { return p.re.MatchString(name) }

// Registry records the analysis description in registration order. Only
// the shape of each entry is checked here; positions are resolved when the
// registry is booked onto a tree.
type Registry struct {
	vars  []VariableSpec
	hists []HistogramSpec
	cuts  []CutSpec
	store []StorePattern
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

func checkPosition(pos string) error {
	if !ValidPosition(pos) {
		return fmt.Errorf("invalid position %q", pos)
	}
	return nil
}

// AddCut registers a cut creating a child of parent.
func (r *Registry) AddCut(e frame.Expr, parent string) error {
	if e == nil {
		return &ConfigError{Op: "add cut", Position: parent, Err: errors.New("nil expression")}
	}
	if err := checkPosition(parent); err != nil {
		return &ConfigError{Op: "add cut", Position: parent, Name: e.String(), Err: err}
	}
	r.cuts = append(r.cuts, CutSpec{Expr: e, Parent: parent})
	return nil
}

// AddVariable registers a column defined at the node created at pos, or at
// the root before any cut when pos is Root.
func (r *Registry) AddVariable(name string, e frame.Expr, pos string) error {
	switch {
	case name == "":
		return &ConfigError{Op: "add variable", Position: pos, Err: errors.New("empty name")}
	case e == nil:
		return &ConfigError{Op: "add variable", Position: pos, Name: name, Err: errors.New("nil expression")}
	}
	if err := checkPosition(pos); err != nil {
		return &ConfigError{Op: "add variable", Position: pos, Name: name, Err: err}
	}
	r.vars = append(r.vars, VariableSpec{Name: name, Expr: e, Position: pos})
	return nil
}

// Add1DHistogram registers a histogram of value weighted by weight, booked
// at every node whose position starts with pos.
func (r *Registry) Add1DHistogram(m frame.HistModel, value, weight, pos string) error {
	if err := m.Validate(); err != nil {
		return &ConfigError{Op: "add histogram", Position: pos, Name: m.Name, Err: err}
	}
	if value == "" {
		return &ConfigError{Op: "add histogram", Position: pos, Name: m.Name, Err: errors.New("empty value column")}
	}
	if err := checkPosition(pos); err != nil {
		return &ConfigError{Op: "add histogram", Position: pos, Name: m.Name, Err: err}
	}
	r.hists = append(r.hists, HistogramSpec{Model: m, Value: value, Weight: weight, Position: pos})
	return nil
}

// AddVarToStore registers a regular expression selecting output columns.
func (r *Registry) AddVarToStore(pattern string) error {
	if pattern == "" {
		return &ConfigError{Op: "add store pattern", Err: errors.New("empty pattern")}
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return &ConfigError{Op: "add store pattern", Name: pattern, Err: err}
	}
	r.store = append(r.store, StorePattern{Pattern: pattern, re: re})
	return nil
}

// Variables returns the registered variables in registration order.
func (r *Registry) Variables() []VariableSpec { return r.vars }

// Histograms returns the registered histograms in registration order.
func (r *Registry) Histograms() []HistogramSpec { return r.hists }

// Cuts returns the registered cuts in the order they are booked.
func (r *Registry) Cuts() []CutSpec { return r.cuts }

// StorePatterns returns the column patterns to store, in resolution order.
func (r *Registry) StorePatterns() []StorePattern { return r.store }
