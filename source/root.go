// Package source provides frame sources reading event files.
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"regexp"
	"slices"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"

	"github.com/decibelcooper/nanoaodframe/frame"
)

// ROOT reads the branches of a flat TTree. Each Scan opens its own file
// handle, so disjoint ranges may be scanned concurrently.
type ROOT struct {
	path    string
	tree    string
	only    []*regexp.Regexp
	log     *slog.Logger
	cols    []frame.Column
	entries int64
}

// Option configures a ROOT source.
type Option func(*ROOT)

// WithLogger sets the logger used to report skipped branches.
func WithLogger(l *slog.Logger) Option {
	return func(r *ROOT) { r.log = l }
}

// WithBranches restricts the columns to the branches fully matching one of
// the regular expressions.
func WithBranches(patterns ...string) Option {
	return func(r *ROOT) {
		for _, p := range patterns {
			r.only = append(r.only, regexp.MustCompile("^(?:"+p+")$"))
		}
	}
}

// OpenROOT inspects the tree named tree in the file at path. Branches whose
// type has no column kind are skipped.
func OpenROOT(path, tree string, opts ...Option) (*ROOT, error) {
	r := &ROOT{path: path, tree: tree}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	f, t, err := r.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r.entries = t.Entries()
	for _, rv := range rtree.NewReadVars(t) {
		if !r.wanted(rv.Name) {
			continue
		}
		k := frame.KindOfType(reflect.TypeOf(rv.Value).Elem())
		if k == frame.Invalid {
			r.log.Warn("skipping branch", "branch", rv.Name, "type", fmt.Sprintf("%T", rv.Value))
			continue
		}
		r.cols = append(r.cols, frame.Column{Name: rv.Name, Kind: k})
	}
	r.log.Info("opened tree", "file", path, "tree", tree, "entries", r.entries, "columns", len(r.cols))
	return r, nil
}

func (r *ROOT) wanted(name string) bool {
	if len(r.only) == 0 {
		return true
	}
	for _, re := range r.only {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (r *ROOT) open() (*riofs.File, rtree.Tree, error) {
	f, err := groot.Open(r.path)
	if err != nil {
		return nil, nil, fmt.Errorf("source: opening %s: %w", r.path, err)
	}
	obj, err := riofs.Dir(f).Get(r.tree)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("source: %s: %w", r.path, err)
	}
	t, ok := obj.(rtree.Tree)
	if !ok {
		f.Close()
		return nil, nil, fmt.Errorf("source: %s: %s is a %T, not a tree", r.path, r.tree, obj)
	}
	return f, t, nil
}

func (r *ROOT) Columns() []frame.Column { return r.cols }

func (r *ROOT) Len() int64 { return r.entries }

func (r *ROOT) Scan(ctx context.Context, begin, end int64, fn func(int64, []any) error) error {
	if end < 0 || end > r.entries {
		end = r.entries
	}
	if begin >= end {
		return nil
	}

	f, t, err := r.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rvars := make([]rtree.ReadVar, len(r.cols))
	byName := make(map[string]rtree.ReadVar)
	for _, rv := range rtree.NewReadVars(t) {
		byName[rv.Name] = rv
	}
	for i, c := range r.cols {
		rvars[i] = byName[c.Name]
	}

	rd, err := rtree.NewReader(t, rvars, rtree.WithRange(begin, end))
	if err != nil {
		return fmt.Errorf("source: reading %s: %w", r.path, err)
	}
	defer rd.Close()

	row := make([]any, len(r.cols))
	return rd.Read(func(rc rtree.RCtx) error {
		if (rc.Entry-begin)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for i, rv := range rvars {
			v, err := frame.Convert(reflect.ValueOf(rv.Value).Elem().Interface(), r.cols[i].Kind)
			if err != nil {
				return fmt.Errorf("source: entry %d, branch %s: %w", rc.Entry, rv.Name, err)
			}
			row[i] = detach(v)
		}
		return fn(rc.Entry, row)
	})
}

// detach copies slices the reader reuses between entries.
func detach(v any) any {
	switch s := v.(type) {
	case []float64:
		return slices.Clone(s)
	case []int64:
		return slices.Clone(s)
	case []bool:
		return slices.Clone(s)
	}
	return v
}
