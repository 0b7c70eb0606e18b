package output

import (
	"fmt"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rhist"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"
	"go-hep.org/x/hep/hbook"

	"github.com/decibelcooper/nanoaodframe/frame"
)

// ROOTSink writes each destination as a ROOT file holding one flat tree and
// the histograms as TH1D objects.
type ROOTSink struct {
	// Tree is the name of the output tree, "Events" when empty.
	Tree string
}

// Create opens dest and declares one branch per column. Array columns get
// an extra int32 branch "n<Name>" holding their length. FloatsVec columns
// are flattened object by object: "n<Name>" holds the flattened length and
// "<Name>_stride" the number of values per object.
func (s ROOTSink) Create(dest string, cols []frame.Column) (Writer, error) {
	name := s.Tree
	if name == "" {
		name = "Events"
	}

	w := &rootWriter{}
	var wvars []rtree.WriteVar
	for _, c := range cols {
		vars, set, err := rootBranch(c)
		if err != nil {
			return nil, err
		}
		wvars = append(wvars, vars...)
		w.set = append(w.set, set)
	}

	f, err := groot.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("output: creating %s: %w", dest, err)
	}
	w.f = f
	if len(wvars) > 0 {
		w.tree, err = rtree.NewWriter(f, name, wvars)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("output: creating tree %s in %s: %w", name, dest, err)
		}
	}
	return w, nil
}

// rootBranch returns the write variables of one column and the function
// copying a row value into them.
func rootBranch(c frame.Column) ([]rtree.WriteVar, func(any) error, error) {
	switch c.Kind {
	case frame.Float:
		return scalarBranch[float64](c.Name)
	case frame.Int:
		return scalarBranch[int64](c.Name)
	case frame.Bool:
		return scalarBranch[bool](c.Name)
	case frame.Floats:
		return sliceBranch[float64](c.Name)
	case frame.Ints:
		return sliceBranch[int64](c.Name)
	case frame.Bools:
		return sliceBranch[bool](c.Name)
	case frame.FloatsVec:
		return flatBranch(c.Name)
	}
	return nil, nil, fmt.Errorf("%w: %s is %v", ErrUnsupportedKind, c.Name, c.Kind)
}

func scalarBranch[T any](name string) ([]rtree.WriteVar, func(any) error, error) {
	p := new(T)
	return []rtree.WriteVar{{Name: name, Value: p}}, func(v any) error {
		*p = v.(T)
		return nil
	}, nil
}

func sliceBranch[T any](name string) ([]rtree.WriteVar, func(any) error, error) {
	n := new(int32)
	p := new([]T)
	count := "n" + name
	vars := []rtree.WriteVar{
		{Name: count, Value: n},
		{Name: name, Value: p, Count: count},
	}
	return vars, func(v any) error {
		*p = v.([]T)
		*n = int32(len(*p))
		return nil
	}, nil
}

func flatBranch(name string) ([]rtree.WriteVar, func(any) error, error) {
	n := new(int32)
	stride := new(int32)
	p := new([]float64)
	count := "n" + name
	vars := []rtree.WriteVar{
		{Name: count, Value: n},
		{Name: name + "_stride", Value: stride},
		{Name: name, Value: p, Count: count},
	}
	return vars, func(v any) error {
		objs := v.([][]float64)
		*stride = 0
		if len(objs) > 0 {
			*stride = int32(len(objs[0]))
		}
		flat := (*p)[:0]
		for i, o := range objs {
			if int32(len(o)) != *stride {
				return fmt.Errorf("output: %s object %d has %d values, want %d", name, i, len(o), *stride)
			}
			flat = append(flat, o...)
		}
		*p = flat
		*n = int32(len(flat))
		return nil
	}, nil
}

type rootWriter struct {
	f    *riofs.File
	tree rtree.Writer
	set  []func(any) error
}

func (w *rootWriter) WriteRow(row []any) error {
	if w.tree == nil {
		return nil
	}
	for i, v := range row {
		if err := w.set[i](v); err != nil {
			return err
		}
	}
	_, err := w.tree.Write()
	return err
}

func (w *rootWriter) WriteHist(h *hbook.H1D) error {
	name := h.Name()
	if name == "" {
		return fmt.Errorf("output: histogram without a name")
	}
	return w.f.Put(name, rhist.NewH1DFrom(h))
}

func (w *rootWriter) Close() error {
	if w.tree != nil {
		if err := w.tree.Close(); err != nil {
			w.f.Close()
			return fmt.Errorf("output: closing tree: %w", err)
		}
	}
	return w.f.Close()
}
