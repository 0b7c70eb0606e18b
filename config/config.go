// Package config reads an analysis description from YAML:
//
//	year: 2018
//	calib: calib/2018.yaml
//	golden: Cert_314472-325175_13TeV_Legacy2018.json
//	defaulttree: true
//	muptcuts: [50, 60]
//	variables:
//	  - {name: tau_pt0, expr: "len(Tau_pt) > 0 ? Tau_pt[0] : -1.0", kind: float, position: "0"}
//	cuts:
//	  - {expr: "tau_pt0 > 60", parent: "00"}
//	histograms:
//	  - {name: htau_pt0, bins: 40, lo: 0, hi: 400, value: tau_pt0, weight: eventWeight, position: "00"}
//	store: ["tau_pt0"]
//
// Entries are registered in file order after the default tree, if any.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/decibelcooper/nanoaodframe/frame"
	"github.com/decibelcooper/nanoaodframe/seltree"
)

// Variable is a derived column activated at Position.
type Variable struct {
	Name     string `yaml:"name"`
	Expr     string `yaml:"expr"`
	Kind     string `yaml:"kind,omitempty"`
	Position string `yaml:"position"`
}

// Cut creates a child of Parent.
type Cut struct {
	Expr   string `yaml:"expr"`
	Parent string `yaml:"parent"`
}

// Histogram is booked at every node under Position.
type Histogram struct {
	Name     string  `yaml:"name"`
	Title    string  `yaml:"title,omitempty"`
	Bins     int     `yaml:"bins"`
	Lo       float64 `yaml:"lo"`
	Hi       float64 `yaml:"hi"`
	Value    string  `yaml:"value"`
	Weight   string  `yaml:"weight,omitempty"`
	Position string  `yaml:"position"`
}

// File is an analysis description.
type File struct {
	Year string `yaml:"year,omitempty"`
	Syst string `yaml:"syst,omitempty"`
	// Calib and Golden are relative to the directory of the file.
	Calib  string `yaml:"calib,omitempty"`
	Golden string `yaml:"golden,omitempty"`

	DefaultTree bool      `yaml:"defaulttree"`
	MuonPtCuts  []float64 `yaml:"muptcuts,omitempty"`

	Variables  []Variable  `yaml:"variables,omitempty"`
	Cuts       []Cut       `yaml:"cuts,omitempty"`
	Histograms []Histogram `yaml:"histograms,omitempty"`
	Store      []string    `yaml:"store,omitempty"`
}

// Read decodes a description, rejecting unknown keys.
func Read(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &f, nil
}

// Load reads the description at path and resolves its file references.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Read(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for _, p := range []*string{&f.Calib, &f.Golden} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return f, nil
}

// ParseKind returns the kind named s, as printed by frame.Kind.String.
func ParseKind(s string) (frame.Kind, error) {
	for k := frame.Float; k <= frame.FloatsVec; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return frame.Invalid, fmt.Errorf("config: unknown kind %q", s)
}

func (v Variable) expr() (frame.Expr, error) {
	if v.Kind == "" {
		return frame.Code(v.Expr), nil
	}
	k, err := ParseKind(v.Kind)
	if err != nil {
		return nil, err
	}
	return frame.CodeAs(k, v.Expr), nil
}

// Apply registers the variables, cuts, histograms and store patterns.
func (f *File) Apply(r *seltree.Registry) error {
	var errs []error
	for _, v := range f.Variables {
		if v.Expr == "" {
			errs = append(errs, fmt.Errorf("config: variable %q: empty expression", v.Name))
			continue
		}
		e, err := v.expr()
		if err == nil {
			err = r.AddVariable(v.Name, e, v.Position)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range f.Cuts {
		if c.Expr == "" {
			errs = append(errs, fmt.Errorf("config: cut under %q: empty expression", c.Parent))
			continue
		}
		if err := r.AddCut(frame.Code(c.Expr), c.Parent); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range f.Histograms {
		m := frame.HistModel{Name: h.Name, Title: h.Title, Bins: h.Bins, Lo: h.Lo, Hi: h.Hi}
		if m.Title == "" {
			m.Title = h.Name
		}
		if err := r.Add1DHistogram(m, h.Value, h.Weight, h.Position); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range f.Store {
		if err := r.AddVarToStore(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
